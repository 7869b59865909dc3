// Package protocol implements the binary wire formats of signed price updates:
// the payload codec and the per-scheme signed envelopes that carry it.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidPayload is wrapped by every payload decode or encode failure.
var ErrInvalidPayload = errors.New("invalid payload")

// Channel identifies the update cadence a payload was produced for.
type Channel uint16

// Known channels.
const (
	ChannelRealTime     Channel = 1
	ChannelFixedRate50  Channel = 2
	ChannelFixedRate200 Channel = 3
)

var channelNames = map[Channel]string{
	ChannelRealTime:     "real_time",
	ChannelFixedRate50:  "fixed_rate@50ms",
	ChannelFixedRate200: "fixed_rate@200ms",
}

func (c Channel) String() string {
	if name, ok := channelNames[c]; ok {
		return name
	}
	return fmt.Sprintf("channel(%d)", uint16(c))
}

// Known reports whether c is one of the defined channels.
func (c Channel) Known() bool {
	_, ok := channelNames[c]
	return ok
}

// ParseChannel parses the textual channel name used in configuration.
func ParseChannel(s string) (Channel, error) {
	for c, name := range channelNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown channel %q", s)
}

// FeedID identifies a tracked market.
type FeedID uint32

// PropertyTag selects the kind of value a Property carries.
type PropertyTag uint8

// TagPrice is the only property tag this consumer recognizes.
const TagPrice PropertyTag = 0

// Property is a tagged feed value. A Price property may be present with no
// value, which is distinct from the property being absent. A property with
// no value must have a zero Price.
type Property struct {
	Tag     PropertyTag
	Present bool
	Price   Price
}

// PriceProperty returns a present Price property.
func PriceProperty(p Price) Property {
	return Property{Tag: TagPrice, Present: true, Price: p}
}

// EmptyPriceProperty returns a Price property carrying no value.
func EmptyPriceProperty() Property {
	return Property{Tag: TagPrice}
}

// Feed is one market entry of a payload.
type Feed struct {
	ID         FeedID
	Properties []Property
}

// Payload is a decoded price update.
type Payload struct {
	Channel     Channel
	TimestampUs uint64
	Feeds       []Feed
}

const (
	payloadHeaderSize = 2 + 8 + 2
	feedHeaderSize    = 4 + 1
	priceValueSize    = 8
)

// Decode parses a payload. Any truncation, unknown tag, malformed presence
// flag or trailing byte is an error wrapping ErrInvalidPayload.
func Decode(b []byte) (Payload, error) {
	return decode(b, false)
}

// DecodeNonEmpty is Decode that additionally rejects payloads with no feeds
// and feeds with no properties.
func DecodeNonEmpty(b []byte) (Payload, error) {
	return decode(b, true)
}

func decode(b []byte, nonEmpty bool) (Payload, error) {
	r := reader{buf: b}

	var p Payload
	channel, err := r.u16("channel_id")
	if err != nil {
		return Payload{}, err
	}
	p.Channel = Channel(channel)
	if p.TimestampUs, err = r.u64("timestamp_us"); err != nil {
		return Payload{}, err
	}
	feedCount, err := r.u16("feed_count")
	if err != nil {
		return Payload{}, err
	}
	if nonEmpty && feedCount == 0 {
		return Payload{}, fmt.Errorf("%w: no feeds", ErrInvalidPayload)
	}

	if feedCount > 0 {
		p.Feeds = make([]Feed, 0, feedCount)
	}
	for i := 0; i < int(feedCount); i++ {
		feed, err := r.feed(nonEmpty)
		if err != nil {
			return Payload{}, fmt.Errorf("feed %d: %w", i, err)
		}
		p.Feeds = append(p.Feeds, feed)
	}

	if r.remaining() != 0 {
		return Payload{}, fmt.Errorf("%w: %d trailing bytes", ErrInvalidPayload, r.remaining())
	}
	return p, nil
}

// Encode serializes p in the wire format accepted by Decode.
func Encode(p Payload) ([]byte, error) {
	if len(p.Feeds) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d feeds exceed u16", ErrInvalidPayload, len(p.Feeds))
	}

	size := payloadHeaderSize
	for _, f := range p.Feeds {
		if len(f.Properties) > math.MaxUint8 {
			return nil, fmt.Errorf("%w: feed %d has %d properties", ErrInvalidPayload, f.ID, len(f.Properties))
		}
		size += feedHeaderSize
		for _, prop := range f.Properties {
			if prop.Tag != TagPrice {
				return nil, fmt.Errorf("%w: unknown property tag %d", ErrInvalidPayload, prop.Tag)
			}
			if !prop.Present && prop.Price != 0 {
				return nil, fmt.Errorf("%w: feed %d carries price %d without a value", ErrInvalidPayload, f.ID, prop.Price)
			}
			size += 2
			if prop.Present {
				size += priceValueSize
			}
		}
	}

	out := make([]byte, 0, size)
	out = binary.LittleEndian.AppendUint16(out, uint16(p.Channel))
	out = binary.LittleEndian.AppendUint64(out, p.TimestampUs)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(p.Feeds)))
	for _, f := range p.Feeds {
		out = binary.LittleEndian.AppendUint32(out, uint32(f.ID))
		out = append(out, uint8(len(f.Properties)))
		for _, prop := range f.Properties {
			out = append(out, uint8(prop.Tag))
			if !prop.Present {
				out = append(out, 0)
				continue
			}
			out = append(out, 1)
			out = binary.LittleEndian.AppendUint64(out, uint64(prop.Price))
		}
	}
	return out, nil
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

func (r *reader) take(n int, field string) ([]byte, error) {
	if r.remaining() < n {
		return nil, fmt.Errorf("%w: truncated at %s (offset %d)", ErrInvalidPayload, field, r.off)
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) u8(field string) (uint8, error) {
	b, err := r.take(1, field)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u16(field string) (uint16, error) {
	b, err := r.take(2, field)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) u32(field string) (uint32, error) {
	b, err := r.take(4, field)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) u64(field string) (uint64, error) {
	b, err := r.take(8, field)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) feed(nonEmpty bool) (Feed, error) {
	id, err := r.u32("feed_id")
	if err != nil {
		return Feed{}, err
	}
	count, err := r.u8("property_count")
	if err != nil {
		return Feed{}, err
	}
	if nonEmpty && count == 0 {
		return Feed{}, fmt.Errorf("%w: feed %d has no properties", ErrInvalidPayload, id)
	}

	f := Feed{ID: FeedID(id)}
	if count > 0 {
		f.Properties = make([]Property, 0, count)
	}
	for i := 0; i < int(count); i++ {
		prop, err := r.property()
		if err != nil {
			return Feed{}, err
		}
		f.Properties = append(f.Properties, prop)
	}
	return f, nil
}

func (r *reader) property() (Property, error) {
	tag, err := r.u8("tag")
	if err != nil {
		return Property{}, err
	}
	if PropertyTag(tag) != TagPrice {
		return Property{}, fmt.Errorf("%w: unknown property tag %d", ErrInvalidPayload, tag)
	}
	present, err := r.u8("present")
	if err != nil {
		return Property{}, err
	}
	switch present {
	case 0:
		return EmptyPriceProperty(), nil
	case 1:
		v, err := r.u64("price")
		if err != nil {
			return Property{}, err
		}
		return PriceProperty(Price(int64(v))), nil
	default:
		return Property{}, fmt.Errorf("%w: presence flag %d", ErrInvalidPayload, present)
	}
}
