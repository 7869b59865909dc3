package engine

import (
	"github.com/ibs-source/pricefeed-consumer/internal/protocol"
	"github.com/ibs-source/pricefeed-consumer/internal/state"
)

// Stage is a gate of the update state machine.
type Stage uint8

// Gates in the order they are evaluated.
const (
	StageNone Stage = iota
	StageDecoded
	StageChannelChecked
	StageFeedMatched
	StagePropertyShapeChecked
	StageTimestampFresh
	StageApplied
)

var stageNames = [...]string{
	StageNone:                 "none",
	StageDecoded:              "decoded",
	StageChannelChecked:       "channel",
	StageFeedMatched:          "feed",
	StagePropertyShapeChecked: "property",
	StageTimestampFresh:       "timestamp",
	StageApplied:              "applied",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "unknown"
}

// Checker enforces the update invariants of one consumer instance.
type Checker struct {
	Channel protocol.Channel
	FeedID  protocol.FeedID
}

// Check runs p through every gate against the current state and returns
// the next state. On rejection the current state is returned unchanged
// together with an *Error naming the failed gate.
func (c Checker) Check(cur state.ConsumerState, p protocol.Payload) (state.ConsumerState, error) {
	if p.Channel != c.Channel {
		return cur, reject(CodeInvalidChannel, StageChannelChecked,
			"payload channel %s, want %s", p.Channel, c.Channel)
	}

	if len(p.Feeds) != 1 || p.Feeds[0].ID != c.FeedID {
		return cur, reject(CodeInvalidPayloadFeedID, StageFeedMatched,
			"payload feeds %v, want exactly [%d]", feedIDs(p.Feeds), c.FeedID)
	}

	props := p.Feeds[0].Properties
	if len(props) != 1 {
		return cur, reject(CodeInvalidPayloadProperty, StagePropertyShapeChecked,
			"feed carries %d properties, want 1", len(props))
	}
	if props[0].Tag != protocol.TagPrice || !props[0].Present {
		return cur, reject(CodeInvalidPayloadProperty, StagePropertyShapeChecked,
			"property is not a present price")
	}

	if p.TimestampUs <= cur.LatestTimestampUs {
		return cur, reject(CodeInvalidPayloadTimestamp, StageTimestampFresh,
			"timestamp %d is not after %d", p.TimestampUs, cur.LatestTimestampUs)
	}

	next := cur
	next.LatestPrice = props[0].Price
	next.LatestTimestampUs = p.TimestampUs
	return next, nil
}

func feedIDs(feeds []protocol.Feed) []protocol.FeedID {
	out := make([]protocol.FeedID, len(feeds))
	for i, f := range feeds {
		out[i] = f.ID
	}
	return out
}
