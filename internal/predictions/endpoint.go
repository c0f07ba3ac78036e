package predictions

import (
	"net/url"
)

// Wildcard as a filter value keeps every entry.
const Wildcard = "*"

// APIKeyHeader carries the opaque WMATA API key.
const APIKeyHeader = "api_key"

// Default WMATA endpoints. The station code or stop id is appended.
const (
	DefaultTrainURL = "https://api.wmata.com/StationPrediction.svc/json/GetPrediction/"
	DefaultBusURL   = "https://api.wmata.com/NextBusService.svc/json/jPredictions?StopID="
)

// DefaultMaxRetries is the retry ceiling used when none is configured.
const DefaultMaxRetries = 2

// Endpoint describes one prediction source: where to fetch, how to decode,
// which key to group by and how to normalize.
type Endpoint struct {
	Name       string
	URL        string
	Headers    map[string]string
	MaxRetries uint
	// GroupField is the raw key compared against the fetch filter.
	GroupField string
	Decoder    Decoder
	Policy     Policy
}

// EndpointConfig is the configuration shared by every endpoint constructor.
type EndpointConfig struct {
	BaseURL    string
	ID         string
	APIKey     string
	MaxRetries uint
}

func (c EndpointConfig) headers() map[string]string {
	headers := map[string]string{}
	if c.APIKey != "" {
		headers[APIKeyHeader] = c.APIKey
	}
	return headers
}

// TrainEndpoint targets the rail prediction API for the station in cfg.ID.
func TrainEndpoint(cfg EndpointConfig, policy Policy) Endpoint {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultTrainURL
	}
	return Endpoint{
		Name:       "trains",
		URL:        base + url.PathEscape(cfg.ID),
		Headers:    cfg.headers(),
		MaxRetries: cfg.MaxRetries,
		GroupField: TrainFields.Group,
		Decoder:    JSONCollection{Key: "Trains"},
		Policy:     policy,
	}
}

// BusEndpoint targets the bus prediction API for the stop in cfg.ID.
func BusEndpoint(cfg EndpointConfig, policy Policy) Endpoint {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBusURL
	}
	return Endpoint{
		Name:       "bus",
		URL:        base + url.QueryEscape(cfg.ID),
		Headers:    cfg.headers(),
		MaxRetries: cfg.MaxRetries,
		GroupField: BusFields.Group,
		Decoder:    JSONCollection{Key: "Predictions"},
		Policy:     policy,
	}
}

// RealtimeEndpoint targets a GTFS-Realtime TripUpdates feed. cfg.BaseURL is
// the full feed URL; the stop is chosen by the decoder.
func RealtimeEndpoint(cfg EndpointConfig, decoder *RealtimeDecoder, policy Policy) Endpoint {
	return Endpoint{
		Name:       "realtime",
		URL:        cfg.BaseURL,
		Headers:    cfg.headers(),
		MaxRetries: cfg.MaxRetries,
		GroupField: RealtimeFields.Group,
		Decoder:    decoder,
		Policy:     policy,
	}
}

// collect filters entries on GroupField and normalizes the survivors. The
// result is never nil.
func (ep Endpoint) collect(entries []RawEntry, filter string) []Record {
	records := make([]Record, 0, len(entries))
	for _, entry := range entries {
		if filter != Wildcard && entry.String(ep.GroupField) != filter {
			continue
		}
		records = append(records, ep.Policy.Normalize(entry))
	}
	return records
}
