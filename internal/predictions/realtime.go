package predictions

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/OneBusAway/go-gtfs"
	"github.com/metrosign/metrosign/internal/clock"
)

// ArrivingText is shown for predictions less than arrivingWithin away.
const ArrivingText = "ARR"

const (
	arrivingWithin = 30 * time.Second
	// Predictions further in the past than this are dropped as stale.
	staleAfter = time.Minute
)

// RealtimeDecoder reads a GTFS-Realtime TripUpdates feed and produces one
// entry per trip that will call at StopID, ordered by arrival time. Entries use
// the RealtimeFields keys.
type RealtimeDecoder struct {
	StopID string
	// Headsigns maps route ids to the destination text shown on the sign.
	// Routes without a headsign show their route id.
	Headsigns map[string]string
	Clock     clock.Clock
}

type timedEntry struct {
	at    time.Time
	entry RawEntry
}

func (d *RealtimeDecoder) Decode(body []byte) ([]RawEntry, error) {
	realtime, err := gtfs.ParseRealtime(body, &gtfs.ParseRealtimeOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse GTFS-RT feed: %w", err)
	}

	now := d.now()
	var timed []timedEntry
	for _, trip := range realtime.Trips {
		for _, stu := range trip.StopTimeUpdates {
			if stu.StopID == nil || *stu.StopID != d.StopID {
				continue
			}
			at, ok := eventTime(stu.Arrival)
			if !ok {
				at, ok = eventTime(stu.Departure)
			}
			if !ok || now.Sub(at) > staleAfter {
				break
			}
			timed = append(timed, timedEntry{
				at: at,
				entry: RawEntry{
					RealtimeFields.Line:        trip.ID.RouteID,
					RealtimeFields.Destination: d.headsign(trip.ID.RouteID),
					RealtimeFields.Arrival:     minutesUntil(now, at),
					RealtimeFields.Location:    *stu.StopID,
				},
			})
			break
		}
	}

	sort.SliceStable(timed, func(i, j int) bool {
		return timed[i].at.Before(timed[j].at)
	})

	entries := make([]RawEntry, 0, len(timed))
	for _, t := range timed {
		entries = append(entries, t.entry)
	}
	return entries, nil
}

func (d *RealtimeDecoder) now() time.Time {
	if d.Clock == nil {
		return time.Now()
	}
	return d.Clock.Now()
}

func (d *RealtimeDecoder) headsign(routeID string) string {
	if h, ok := d.Headsigns[routeID]; ok {
		return h
	}
	return routeID
}

func eventTime(ev *gtfs.StopTimeEvent) (time.Time, bool) {
	if ev == nil || ev.Time == nil {
		return time.Time{}, false
	}
	return *ev.Time, true
}

func minutesUntil(now, at time.Time) string {
	d := at.Sub(now)
	if d < arrivingWithin {
		return ArrivingText
	}
	minutes := int(d / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return strconv.Itoa(minutes)
}
