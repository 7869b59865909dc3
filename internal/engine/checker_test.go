package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/ibs-source/pricefeed-consumer/internal/protocol"
	"github.com/ibs-source/pricefeed-consumer/internal/state"
)

var testChecker = Checker{Channel: protocol.ChannelRealTime, FeedID: 2}

func payload(channel protocol.Channel, ts uint64, feeds ...protocol.Feed) protocol.Payload {
	return protocol.Payload{Channel: channel, TimestampUs: ts, Feeds: feeds}
}

func priceFeed(id protocol.FeedID, props ...protocol.Property) protocol.Feed {
	return protocol.Feed{ID: id, Properties: props}
}

func TestChecker_Accepts(t *testing.T) {
	cur := state.ConsumerState{FeedID: 2}
	next, err := testChecker.Check(cur, payload(protocol.ChannelRealTime, 1728479312975644,
		priceFeed(2, protocol.PriceProperty(100000000))))
	require.NoError(t, err)
	assert.Equal(t, state.ConsumerState{
		FeedID:            2,
		LatestTimestampUs: 1728479312975644,
		LatestPrice:       100000000,
	}, next)
}

func TestChecker_Gates(t *testing.T) {
	cur := state.ConsumerState{FeedID: 2, LatestTimestampUs: 100, LatestPrice: 7}
	price := protocol.PriceProperty(42)

	tests := []struct {
		name  string
		p     protocol.Payload
		want  *Error
		stage Stage
	}{
		{
			name:  "wrong channel",
			p:     payload(protocol.ChannelFixedRate200, 200, priceFeed(2, price)),
			want:  ErrInvalidChannel,
			stage: StageChannelChecked,
		},
		{
			name:  "channel is checked before feed",
			p:     payload(protocol.ChannelFixedRate50, 200, priceFeed(3, price)),
			want:  ErrInvalidChannel,
			stage: StageChannelChecked,
		},
		{
			name:  "no feeds",
			p:     payload(protocol.ChannelRealTime, 200),
			want:  ErrInvalidPayloadFeedID,
			stage: StageFeedMatched,
		},
		{
			name:  "other feed",
			p:     payload(protocol.ChannelRealTime, 200, priceFeed(3, price)),
			want:  ErrInvalidPayloadFeedID,
			stage: StageFeedMatched,
		},
		{
			name:  "two feeds",
			p:     payload(protocol.ChannelRealTime, 200, priceFeed(2, price), priceFeed(2, price)),
			want:  ErrInvalidPayloadFeedID,
			stage: StageFeedMatched,
		},
		{
			name:  "no properties",
			p:     payload(protocol.ChannelRealTime, 200, priceFeed(2)),
			want:  ErrInvalidPayloadProperty,
			stage: StagePropertyShapeChecked,
		},
		{
			name:  "two properties",
			p:     payload(protocol.ChannelRealTime, 200, priceFeed(2, price, price)),
			want:  ErrInvalidPayloadProperty,
			stage: StagePropertyShapeChecked,
		},
		{
			name:  "price without value",
			p:     payload(protocol.ChannelRealTime, 200, priceFeed(2, protocol.EmptyPriceProperty())),
			want:  ErrInvalidPayloadProperty,
			stage: StagePropertyShapeChecked,
		},
		{
			name:  "shape is checked before timestamp",
			p:     payload(protocol.ChannelRealTime, 0, priceFeed(2)),
			want:  ErrInvalidPayloadProperty,
			stage: StagePropertyShapeChecked,
		},
		{
			name:  "equal timestamp",
			p:     payload(protocol.ChannelRealTime, 100, priceFeed(2, price)),
			want:  ErrInvalidPayloadTimestamp,
			stage: StageTimestampFresh,
		},
		{
			name:  "older timestamp",
			p:     payload(protocol.ChannelRealTime, 99, priceFeed(2, price)),
			want:  ErrInvalidPayloadTimestamp,
			stage: StageTimestampFresh,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := testChecker.Check(cur, tt.p)
			require.ErrorIs(t, err, tt.want)
			var e *Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, tt.stage, e.Stage)
			assert.Equal(t, cur, got, "rejection must return the input state")
		})
	}
}

func TestChecker_ZeroTimestampOnFreshRecord(t *testing.T) {
	cur := state.ConsumerState{FeedID: 2}
	got, err := testChecker.Check(cur, payload(protocol.ChannelRealTime, 0, priceFeed(2, protocol.PriceProperty(1))))
	require.ErrorIs(t, err, ErrInvalidPayloadTimestamp)
	assert.Equal(t, cur, got)
}

func TestChecker_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cur := state.ConsumerState{
			FeedID:            2,
			LatestTimestampUs: rapid.Uint64().Draw(t, "cur_ts").(uint64),
			LatestPrice:       protocol.Price(rapid.Int64().Draw(t, "cur_price").(int64)),
		}
		p := payload(
			protocol.Channel(rapid.Uint16Range(1, 3).Draw(t, "channel").(uint16)),
			rapid.Uint64().Draw(t, "ts").(uint64),
			priceFeed(protocol.FeedID(rapid.Uint32Range(1, 3).Draw(t, "feed").(uint32)),
				protocol.PriceProperty(protocol.Price(rapid.Int64().Draw(t, "price").(int64)))),
		)

		next, err := testChecker.Check(cur, p)
		if err != nil {
			if next != cur {
				t.Fatalf("rejected update changed state: %+v -> %+v", cur, next)
			}
			return
		}
		if next.LatestTimestampUs <= cur.LatestTimestampUs {
			t.Fatalf("timestamp did not advance: %d -> %d", cur.LatestTimestampUs, next.LatestTimestampUs)
		}
		if next.FeedID != cur.FeedID {
			t.Fatalf("feed changed: %d -> %d", cur.FeedID, next.FeedID)
		}
		if p.Channel != protocol.ChannelRealTime {
			t.Fatalf("accepted channel %s", p.Channel)
		}
	})
}
