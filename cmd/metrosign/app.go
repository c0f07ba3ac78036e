package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/metrosign/metrosign/internal/app"
	"github.com/metrosign/metrosign/internal/appconf"
	"github.com/metrosign/metrosign/internal/board"
	"github.com/metrosign/metrosign/internal/clock"
	"github.com/metrosign/metrosign/internal/colors"
	"github.com/metrosign/metrosign/internal/display"
	"github.com/metrosign/metrosign/internal/history"
	"github.com/metrosign/metrosign/internal/logging"
	"github.com/metrosign/metrosign/internal/metrics"
	"github.com/metrosign/metrosign/internal/predictions"
	"github.com/metrosign/metrosign/internal/restapi"
	"github.com/metrosign/metrosign/internal/sign"
	"github.com/metrosign/metrosign/internal/webui"
)

const dbStatsInterval = 15 * time.Second

// ParseAPIKeys splits a comma separated key list and trims each key.
func ParseAPIKeys(apiKeysFlag string) []string {
	if apiKeysFlag == "" {
		return []string{}
	}
	keys := strings.Split(apiKeysFlag, ",")
	for i, key := range keys {
		keys[i] = strings.TrimSpace(key)
	}
	return keys
}

// BuildApplication wires the prediction pipeline, the board drawn to out and
// the history store. Logs go to stderr. The caller owns the result and must pass it to
// closeApplication.
func BuildApplication(cfg appconf.Config, signCfg appconf.SignConfig, out io.Writer) (*app.Application, error) {
	if out == nil {
		return nil, errors.New("display output is required")
	}
	logger := logging.NewLogger(os.Stderr, cfg.Env == appconf.Production, cfg.Verbose)
	c, err := clock.FromEnvironment(clock.NowEnvVar)
	if err != nil {
		return nil, err
	}
	appMetrics := metrics.NewWithLogger(logger)

	modes, err := buildModes(signCfg, c)
	if err != nil {
		appMetrics.Shutdown()
		return nil, fmt.Errorf("failed to configure modes: %w", err)
	}

	heading := display.Heading{Text: signCfg.HeadingText, Color: signCfg.HeadingColor}
	terminal := display.NewTerminal(out, signCfg.Layout.NumSlots, heading, signCfg.Layout.DestinationMaxChars)
	signBoard, err := board.New(terminal, signCfg.Layout, logger)
	if err != nil {
		appMetrics.Shutdown()
		return nil, fmt.Errorf("failed to create board: %w", err)
	}

	store, err := history.Open(context.Background(), history.Config{
		DBPath: signCfg.HistoryPath,
		Clock:  c,
	})
	if err != nil {
		appMetrics.Shutdown()
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	appMetrics.StartDBStatsCollector(store.DB, dbStatsInterval)

	var transportOpts []predictions.TransportOption
	transportOpts = append(transportOpts, predictions.WithTransportLogger(logger))
	if signCfg.APIRateLimit > 0 {
		transportOpts = append(transportOpts, predictions.WithRateLimit(signCfg.APIRateLimit, 1))
	}
	fetcher := predictions.NewFetcher(
		predictions.NewHTTPTransport(transportOpts...),
		predictions.WithLogger(logger),
		predictions.WithMetrics(appMetrics),
		predictions.WithBackoff(signCfg.RetryBackoff),
	)

	s, err := sign.New(fetcher, signBoard, modes,
		sign.WithInterval(signCfg.RefreshInterval),
		sign.WithClock(c),
		sign.WithLogger(logger),
		sign.WithMetrics(appMetrics),
		sign.WithRecorder(store),
	)
	if err != nil {
		appMetrics.Shutdown()
		logging.SafeCloseWithLogging(store, logger, "history store")
		return nil, fmt.Errorf("failed to create sign: %w", err)
	}

	return &app.Application{
		Config:     cfg,
		SignConfig: signCfg,
		Logger:     logger,
		Clock:      c,
		Metrics:    appMetrics,
		Sign:       s,
		Board:      terminal,
		History:    store,
	}, nil
}

// buildModes turns the configured mode names into sign modes, in order.
func buildModes(signCfg appconf.SignConfig, c clock.Clock) ([]sign.Mode, error) {
	modes := make([]sign.Mode, 0, len(signCfg.Modes))
	for _, name := range signCfg.Modes {
		switch name {
		case appconf.ModeTrains:
			modes = append(modes, sign.Mode{
				Name:     name,
				Endpoint: predictions.TrainEndpoint(signCfg.Train, predictions.TrainPolicy(signCfg.Override)),
				Filter:   signCfg.TrainGroup,
			})
		case appconf.ModeBus:
			modes = append(modes, sign.Mode{
				Name:     name,
				Endpoint: predictions.BusEndpoint(signCfg.Bus, predictions.BusPolicy(signCfg.BusColor)),
				Filter:   signCfg.BusDirection,
			})
		case appconf.ModeRealtime:
			rt := signCfg.Realtime
			decoder := &predictions.RealtimeDecoder{
				StopID:    rt.StopID,
				Headsigns: rt.Headsigns,
				Clock:     c,
			}
			policy := predictions.NewNormalizer(predictions.RealtimeFields, colors.NewResolver(nil, rt.Color))
			modes = append(modes, sign.Mode{
				Name:     name,
				Endpoint: predictions.RealtimeEndpoint(rt.Endpoint, decoder, policy),
				Filter:   rt.Route,
			})
		default:
			return nil, fmt.Errorf("unknown mode %q", name)
		}
	}
	if len(modes) == 0 {
		return nil, errors.New("no modes configured")
	}
	return modes, nil
}

// CreateServer builds the status server. Call Shutdown on the returned API
// once the server has stopped.
func CreateServer(coreApp *app.Application, cfg appconf.Config) (*http.Server, *restapi.RestAPI) {
	api := restapi.NewRestAPI(coreApp)
	webUI := &webui.WebUI{Application: coreApp}

	mux := http.NewServeMux()
	api.SetRoutes(mux)
	webUI.SetWebUIRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.Handler(mux),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return srv, api
}

func closeApplication(coreApp *app.Application) {
	if coreApp.Metrics != nil {
		coreApp.Metrics.Shutdown()
	}
	if coreApp.History != nil {
		logging.SafeCloseWithLogging(coreApp.History, coreApp.Logger, "history store")
	}
}
