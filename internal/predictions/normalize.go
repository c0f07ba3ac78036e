package predictions

import (
	"github.com/metrosign/metrosign/internal/colors"
)

// NoPassenger replaces every sentinel destination.
const NoPassenger = "No Psngr"

// Defaults for the special-case override.
const (
	DefaultPlaceholder = "---"
	DefaultBoarding    = "BRD"
)

// DefaultSentinels are the destination strings WMATA uses for trains that do
// not carry passengers.
func DefaultSentinels() []string {
	return []string{"No Passenger", "NoPssenger", "ssenger"}
}

// Fields names the raw keys an endpoint uses for each record field.
type Fields struct {
	Line        string
	Destination string
	Arrival     string
	Car         string
	Location    string
	Group       string
}

var (
	// TrainFields matches the rail GetPrediction response.
	TrainFields = Fields{
		Line:        "Line",
		Destination: "Destination",
		Arrival:     "Min",
		Car:         "Car",
		Location:    "LocationCode",
		Group:       "Group",
	}

	// BusFields matches the bus jPredictions response. Buses have no car count.
	BusFields = Fields{
		Line:        "RouteID",
		Destination: "DirectionText",
		Arrival:     "Minutes",
		Location:    "StopID",
		Group:       "DirectionNum",
	}

	// RealtimeFields is the shape produced by RealtimeDecoder.
	RealtimeFields = Fields{
		Line:        "RouteID",
		Destination: "Headsign",
		Arrival:     "Minutes",
		Location:    "StopID",
		Group:       "RouteID",
	}
)

// Override lets one location repurpose its own out-of-service train as a
// rider-usable entry under another label.
type Override struct {
	Enabled      bool
	LocationCode string
	// Destination replaces NoPassenger when the override triggers.
	Destination string
	// Line is the line code whose colour the overridden row takes.
	Line string
	// Placeholder is the arrival text replaced by Boarding.
	Placeholder string
	Boarding    string
}

func (o Override) withDefaults() Override {
	if o.Placeholder == "" {
		o.Placeholder = DefaultPlaceholder
	}
	if o.Boarding == "" {
		o.Boarding = DefaultBoarding
	}
	return o
}

// Policy turns a raw entry into a Record.
type Policy interface {
	Normalize(raw RawEntry) Record
}

// Normalizer is the Policy used by every endpoint. With the override disabled
// it is the ordinary policy; enabled, it is the special-case aware one.
type Normalizer struct {
	fields    Fields
	sentinels map[string]struct{}
	override  Override
	colors    *colors.Resolver
}

// NormalizerOption configures a Normalizer.
type NormalizerOption func(*Normalizer)

// WithSentinels replaces the default sentinel destination set.
func WithSentinels(sentinels ...string) NormalizerOption {
	return func(n *Normalizer) {
		n.sentinels = make(map[string]struct{}, len(sentinels))
		for _, s := range sentinels {
			n.sentinels[s] = struct{}{}
		}
	}
}

// WithOverride enables the special-case override.
func WithOverride(o Override) NormalizerOption {
	return func(n *Normalizer) {
		n.override = o.withDefaults()
	}
}

// NewNormalizer builds a Normalizer reading fields and colouring rows with resolver.
func NewNormalizer(fields Fields, resolver *colors.Resolver, opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		fields: fields,
		colors: resolver,
	}
	WithSentinels(DefaultSentinels()...)(n)
	for _, opt := range opts {
		opt(n)
	}
	if n.colors == nil {
		n.colors = colors.NewResolver(nil, colors.DefaultMetroColor)
	}
	return n
}

// Normalize never fails; missing fields fall back to empty strings and a car
// count of NoCar.
func (n *Normalizer) Normalize(raw RawEntry) Record {
	line := raw.String(n.fields.Line)
	destination := raw.String(n.fields.Destination)
	arrival := raw.String(n.fields.Arrival)
	car := raw.String(n.fields.Car)
	location := raw.String(n.fields.Location)

	if _, ok := n.sentinels[destination]; ok {
		destination = NoPassenger
	}

	if n.override.Enabled && destination == NoPassenger && location == n.override.LocationCode {
		destination = n.override.Destination
		if arrival == n.override.Placeholder {
			arrival = n.override.Boarding
		}
	}

	if car == "" {
		car = NoCar
	}

	return Record{
		LineColor:   n.colors.Resolve(line, destination),
		Destination: destination,
		Arrival:     arrival,
		Car:         car,
	}
}

// TrainPolicy builds the rail normalizer. When the override is enabled and
// override.Line is set, its destination text is coloured like that line.
// Without a line the row keeps the colour of the train's own line.
func TrainPolicy(override Override) *Normalizer {
	table := colors.MetroLineColors()
	var colorOpts []colors.Option
	var opts []NormalizerOption
	if override.Enabled {
		if override.Line != "" {
			c, ok := table[override.Line]
			if !ok {
				c = colors.DefaultMetroColor
			}
			colorOpts = append(colorOpts, colors.WithOverride(override.Destination, c))
		}
		opts = append(opts, WithOverride(override))
	}
	resolver := colors.NewResolver(table, colors.DefaultMetroColor, colorOpts...)
	return NewNormalizer(TrainFields, resolver, opts...)
}

// BusPolicy builds the bus normalizer; every route is drawn in busColor.
func BusPolicy(busColor colors.Color) *Normalizer {
	return NewNormalizer(BusFields, colors.NewResolver(nil, busColor))
}
