package predictions

import (
	"testing"
	"time"

	gtfsproto "github.com/OneBusAway/go-gtfs/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"github.com/metrosign/metrosign/internal/clock"
)

// emptyFeedBytes is FeedMessage { header { gtfs_realtime_version: "2.0" } }.
var emptyFeedBytes = []byte{0x0a, 0x05, 0x0a, 0x03, 0x32, 0x2e, 0x30}

func stopTimeUpdate(stopID string, at time.Time) *gtfsproto.TripUpdate_StopTimeUpdate {
	return &gtfsproto.TripUpdate_StopTimeUpdate{
		StopId:  proto.String(stopID),
		Arrival: &gtfsproto.TripUpdate_StopTimeEvent{Time: proto.Int64(at.Unix())},
	}
}

func tripUpdateEntity(id, routeID string, updates ...*gtfsproto.TripUpdate_StopTimeUpdate) *gtfsproto.FeedEntity {
	return &gtfsproto.FeedEntity{
		Id: proto.String(id),
		TripUpdate: &gtfsproto.TripUpdate{
			Trip: &gtfsproto.TripDescriptor{
				TripId:  proto.String(id),
				RouteId: proto.String(routeID),
			},
			StopTimeUpdate: updates,
		},
	}
}

func buildFeed(t *testing.T, now time.Time, entities ...*gtfsproto.FeedEntity) []byte {
	t.Helper()
	feed := &gtfsproto.FeedMessage{
		Header: &gtfsproto.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(uint64(now.Unix())),
		},
		Entity: entities,
	}
	b, err := proto.Marshal(feed)
	require.NoError(t, err)
	return b
}

func TestRealtimeDecoder_EmptyFeed(t *testing.T) {
	d := &RealtimeDecoder{StopID: "1001344", Clock: clock.NewMockClock(time.Now())}

	entries, err := d.Decode(emptyFeedBytes)

	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestRealtimeDecoder_InvalidBody(t *testing.T) {
	d := &RealtimeDecoder{StopID: "1001344"}

	_, err := d.Decode([]byte("definitely not protobuf"))

	assert.Error(t, err)
}

func TestRealtimeDecoder_SelectsStopAndSortsByArrival(t *testing.T) {
	now := time.Date(2024, 6, 15, 8, 30, 0, 0, time.UTC)
	body := buildFeed(t, now,
		tripUpdateEntity("late", "70",
			stopTimeUpdate("other", now.Add(2*time.Minute)),
			stopTimeUpdate("1001344", now.Add(9*time.Minute+10*time.Second)),
		),
		tripUpdateEntity("soon", "79", stopTimeUpdate("1001344", now.Add(10*time.Second))),
		tripUpdateEntity("elsewhere", "S2", stopTimeUpdate("other", now.Add(time.Minute))),
		tripUpdateEntity("gone", "70", stopTimeUpdate("1001344", now.Add(-5*time.Minute))),
	)
	d := &RealtimeDecoder{
		StopID:    "1001344",
		Headsigns: map[string]string{"70": "Silver Spring"},
		Clock:     clock.NewMockClock(now),
	}

	entries, err := d.Decode(body)

	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "79", entries[0].String(RealtimeFields.Line))
	assert.Equal(t, "79", entries[0].String(RealtimeFields.Destination))
	assert.Equal(t, ArrivingText, entries[0].String(RealtimeFields.Arrival))

	assert.Equal(t, "70", entries[1].String(RealtimeFields.Group))
	assert.Equal(t, "Silver Spring", entries[1].String(RealtimeFields.Destination))
	assert.Equal(t, "9", entries[1].String(RealtimeFields.Arrival))
	assert.Equal(t, "1001344", entries[1].String(RealtimeFields.Location))
}

func TestMinutesUntil(t *testing.T) {
	now := time.Date(2024, 6, 15, 8, 30, 0, 0, time.UTC)

	assert.Equal(t, ArrivingText, minutesUntil(now, now))
	assert.Equal(t, ArrivingText, minutesUntil(now, now.Add(29*time.Second)))
	assert.Equal(t, "1", minutesUntil(now, now.Add(45*time.Second)))
	assert.Equal(t, "1", minutesUntil(now, now.Add(61*time.Second)))
	assert.Equal(t, "15", minutesUntil(now, now.Add(15*time.Minute)))
}
