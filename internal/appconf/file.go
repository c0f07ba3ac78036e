package appconf

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/metrosign/metrosign/internal/board"
	"github.com/metrosign/metrosign/internal/colors"
	"github.com/metrosign/metrosign/internal/predictions"
)

// Defaults applied by ToAppConfig and ToSignConfig.
const (
	DefaultPort           = 4000
	DefaultRateLimit      = 100
	DefaultRefreshSeconds = 5
	DefaultAPIRateLimit   = 10
	DefaultHeadingText    = "LN DEST   MIN"
	DefaultButtonDebounce = 20
	DefaultButtonPollMs   = 5
)

// Default colours.
const (
	DefaultHeadingColor  = colors.Red
	DefaultBusColor      = colors.DefaultBusColor
	DefaultRealtimeColor = colors.DefaultBusColor
)

// OverrideFile configures the no-passenger override.
type OverrideFile struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	LocationCode string `json:"location-code" yaml:"location-code" validate:"required_if=Enabled true"`
	Destination  string `json:"destination" yaml:"destination" validate:"required_if=Enabled true"`
	Line         string `json:"line" yaml:"line" validate:"omitempty,oneof=RD OR YL GR BL SV"`
	Placeholder  string `json:"placeholder" yaml:"placeholder"`
	Boarding     string `json:"boarding" yaml:"boarding"`
}

// RealtimeFile configures the optional GTFS-Realtime mode.
type RealtimeFile struct {
	FeedURL   string            `json:"feed-url" yaml:"feed-url" validate:"omitempty,url"`
	StopID    string            `json:"stop-id" yaml:"stop-id" validate:"required_with=FeedURL"`
	Route     string            `json:"route" yaml:"route"`
	Headsigns map[string]string `json:"headsigns" yaml:"headsigns"`
	Color     string            `json:"color" yaml:"color" validate:"omitempty,color"`
	Retries   *uint             `json:"retries" yaml:"retries"`
}

// FileConfig is the on-disk configuration. JSON and YAML share the same
// kebab-case keys.
//
// A port of 0 turns the status server off. RateLimit is API requests per
// second per key: 0 rejects every API request and a negative value disables
// limiting. Both fall back to their defaults when unset.
type FileConfig struct {
	Port      *int     `json:"port" yaml:"port" validate:"omitempty,gte=0,lte=65535"`
	Env       string   `json:"env" yaml:"env" validate:"omitempty,oneof=development dev test production prod"`
	ApiKeys   []string `json:"api-keys" yaml:"api-keys"`
	Verbose   bool     `json:"verbose" yaml:"verbose"`
	RateLimit *int     `json:"rate-limit" yaml:"rate-limit"`

	Modes           []string `json:"modes" yaml:"modes" validate:"omitempty,unique,dive,oneof=trains bus realtime"`
	RefreshInterval int      `json:"refresh-interval" yaml:"refresh-interval" validate:"gte=0"`
	RetryBackoffMs  int      `json:"retry-backoff-ms" yaml:"retry-backoff-ms" validate:"gte=0"`
	APIRateLimit    *float64 `json:"api-rate-limit" yaml:"api-rate-limit" validate:"omitempty,gte=0"`
	WMATAAPIKey     string   `json:"wmata-api-key" yaml:"wmata-api-key"`

	MetroStationCode string       `json:"metro-station-code" yaml:"metro-station-code"`
	TrainGroup       string       `json:"train-group" yaml:"train-group"`
	MetroAPIURL      string       `json:"metro-api-url" yaml:"metro-api-url" validate:"omitempty,url"`
	MetroAPIRetries  *uint        `json:"metro-api-retries" yaml:"metro-api-retries"`
	Override         OverrideFile `json:"no-passenger-override" yaml:"no-passenger-override"`

	BusStopID     string `json:"bus-stop-id" yaml:"bus-stop-id"`
	BusDirection  string `json:"bus-direction-num" yaml:"bus-direction-num"`
	BusAPIURL     string `json:"bus-api-url" yaml:"bus-api-url" validate:"omitempty,url"`
	BusAPIRetries *uint  `json:"bus-api-retries" yaml:"bus-api-retries"`
	BusColor      string `json:"bus-color" yaml:"bus-color" validate:"omitempty,color"`

	Realtime RealtimeFile `json:"realtime" yaml:"realtime"`

	NumSlots            int    `json:"num-trains" yaml:"num-trains" validate:"gte=0,lte=16"`
	DestinationMaxChars int    `json:"destination-max-characters" yaml:"destination-max-characters" validate:"gte=0"`
	MinLabelChars       int    `json:"min-label-characters" yaml:"min-label-characters" validate:"gte=0"`
	TextColor           string `json:"text-color" yaml:"text-color" validate:"omitempty,color"`
	EightCarColor       string `json:"text-color-8-car-train" yaml:"text-color-8-car-train" validate:"omitempty,color"`
	LoadingDestination  string `json:"loading-destination-text" yaml:"loading-destination-text"`
	LoadingMinText      string `json:"loading-min-text" yaml:"loading-min-text"`
	LoadingLineColor    string `json:"loading-line-color" yaml:"loading-line-color" validate:"omitempty,color"`
	HeadingText         string `json:"heading-text" yaml:"heading-text"`
	HeadingColor        string `json:"heading-color" yaml:"heading-color" validate:"omitempty,color"`

	ButtonGPIOPath   string `json:"button-gpio-path" yaml:"button-gpio-path"`
	ButtonDebounceMs int    `json:"button-debounce-ms" yaml:"button-debounce-ms" validate:"gte=0"`
	ButtonPollMs     int    `json:"button-poll-ms" yaml:"button-poll-ms" validate:"gte=0"`

	HistoryPath string `json:"history-path" yaml:"history-path"`
}

// LoadFromFile reads and validates a configuration file. Files ending in
// .yml or .yaml are parsed as YAML, everything else as JSON.
func LoadFromFile(path string) (*FileConfig, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to stat config file %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("color", func(fl validator.FieldLevel) bool {
		_, err := colors.ParseColor(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks field constraints and the requirements of each enabled
// mode.
func (c *FileConfig) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		return err
	}

	var errs []error
	for _, mode := range c.modes() {
		switch mode {
		case ModeTrains:
			if c.MetroStationCode == "" {
				errs = append(errs, errors.New("metro-station-code is required for the trains mode"))
			}
		case ModeBus:
			if c.BusStopID == "" {
				errs = append(errs, errors.New("bus-stop-id is required for the bus mode"))
			}
		case ModeRealtime:
			if c.Realtime.FeedURL == "" {
				errs = append(errs, errors.New("realtime.feed-url is required for the realtime mode"))
			}
		}
	}
	return errors.Join(errs...)
}

func (c *FileConfig) modes() []string {
	if len(c.Modes) > 0 {
		return c.Modes
	}
	return []string{ModeTrains, ModeBus}
}

// ToAppConfig converts the file into the server configuration.
func (c *FileConfig) ToAppConfig() Config {
	env, _ := ParseEnvironment(c.Env)
	port := DefaultPort
	if c.Port != nil {
		port = *c.Port
	}
	rateLimit := DefaultRateLimit
	if c.RateLimit != nil {
		rateLimit = *c.RateLimit
	}
	keys := c.ApiKeys
	if keys == nil {
		keys = []string{}
	}
	return Config{
		Port:      port,
		Env:       env,
		ApiKeys:   keys,
		Verbose:   c.Verbose,
		RateLimit: rateLimit,
	}
}

// ToSignConfig converts the file into the sign configuration. Colours have
// already been checked by Validate, so parse failures fall back to defaults.
func (c *FileConfig) ToSignConfig() SignConfig {
	layout := board.DefaultLayout()
	if c.NumSlots > 0 {
		layout.NumSlots = c.NumSlots
	}
	if c.DestinationMaxChars > 0 {
		layout.DestinationMaxChars = c.DestinationMaxChars
	}
	if c.MinLabelChars > 0 {
		layout.ArrivalWidth = c.MinLabelChars
	}
	layout.TextColor = parseColorOr(c.TextColor, layout.TextColor)
	layout.EightCarColor = parseColorOr(c.EightCarColor, layout.EightCarColor)
	layout.LoadingColor = parseColorOr(c.LoadingLineColor, layout.LoadingColor)
	if c.LoadingDestination != "" {
		layout.LoadingDestination = c.LoadingDestination
	}
	if c.LoadingMinText != "" {
		layout.LoadingArrival = c.LoadingMinText
	}

	refresh := time.Duration(c.RefreshInterval) * time.Second
	if refresh <= 0 {
		refresh = DefaultRefreshSeconds * time.Second
	}
	apiRate := float64(DefaultAPIRateLimit)
	if c.APIRateLimit != nil {
		apiRate = *c.APIRateLimit
	}
	debounce := c.ButtonDebounceMs
	if debounce == 0 {
		debounce = DefaultButtonDebounce
	}
	poll := c.ButtonPollMs
	if poll == 0 {
		poll = DefaultButtonPollMs
	}

	override := predictions.Override{
		Enabled:      c.Override.Enabled,
		LocationCode: c.Override.LocationCode,
		Destination:  c.Override.Destination,
		Line:         c.Override.Line,
		Placeholder:  c.Override.Placeholder,
		Boarding:     c.Override.Boarding,
	}
	heading := c.HeadingText
	if heading == "" {
		heading = DefaultHeadingText
	}

	return SignConfig{
		Modes:           c.modes(),
		RefreshInterval: refresh,
		RetryBackoff:    time.Duration(c.RetryBackoffMs) * time.Millisecond,
		APIRateLimit:    apiRate,

		Layout:       layout,
		HeadingText:  heading,
		HeadingColor: parseColorOr(c.HeadingColor, DefaultHeadingColor),

		Train: predictions.EndpointConfig{
			BaseURL:    c.MetroAPIURL,
			ID:         c.MetroStationCode,
			APIKey:     c.WMATAAPIKey,
			MaxRetries: retriesOr(c.MetroAPIRetries),
		},
		TrainGroup: filterOr(c.TrainGroup),
		Override:   override,

		Bus: predictions.EndpointConfig{
			BaseURL:    c.BusAPIURL,
			ID:         c.BusStopID,
			APIKey:     c.WMATAAPIKey,
			MaxRetries: retriesOr(c.BusAPIRetries),
		},
		BusDirection: filterOr(c.BusDirection),
		BusColor:     parseColorOr(c.BusColor, DefaultBusColor),

		Realtime: RealtimeConfig{
			Endpoint: predictions.EndpointConfig{
				BaseURL:    c.Realtime.FeedURL,
				MaxRetries: retriesOr(c.Realtime.Retries),
			},
			StopID:    c.Realtime.StopID,
			Route:     filterOr(c.Realtime.Route),
			Headsigns: c.Realtime.Headsigns,
			Color:     parseColorOr(c.Realtime.Color, DefaultRealtimeColor),
		},

		ButtonPath:     c.ButtonGPIOPath,
		ButtonDebounce: time.Duration(debounce) * time.Millisecond,
		ButtonPoll:     time.Duration(poll) * time.Millisecond,

		HistoryPath: c.HistoryPath,
	}
}

func retriesOr(v *uint) uint {
	if v == nil {
		return predictions.DefaultMaxRetries
	}
	return *v
}

func filterOr(v string) string {
	if v == "" {
		return predictions.Wildcard
	}
	return v
}

func parseColorOr(s string, def colors.Color) colors.Color {
	if s == "" {
		return def
	}
	c, err := colors.ParseColor(s)
	if err != nil {
		return def
	}
	return c
}
