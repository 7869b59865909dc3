// Package state persists the fixed-layout record a price consumer owns and
// enforces its create-once semantics.
package state

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/ibs-source/pricefeed-consumer/internal/protocol"
)

// RecordSize is the encoded size of a ConsumerState.
const RecordSize = 4 + 8 + 8

// ConsumerState is the persisted state of one consumer instance.
type ConsumerState struct {
	FeedID            protocol.FeedID
	LatestTimestampUs uint64
	LatestPrice       protocol.Price
}

// MarshalBinary encodes s as feed_id u32 | latest_timestamp_us u64 |
// latest_price i64, little-endian.
func (s ConsumerState) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, RecordSize)
	out = binary.LittleEndian.AppendUint32(out, uint32(s.FeedID))
	out = binary.LittleEndian.AppendUint64(out, s.LatestTimestampUs)
	out = binary.LittleEndian.AppendUint64(out, uint64(s.LatestPrice))
	return out, nil
}

// UnmarshalBinary decodes a record produced by MarshalBinary.
func (s *ConsumerState) UnmarshalBinary(b []byte) error {
	if len(b) != RecordSize {
		return fmt.Errorf("%w: record is %d bytes, want %d", ErrCorrupt, len(b), RecordSize)
	}
	s.FeedID = protocol.FeedID(binary.LittleEndian.Uint32(b[0:4]))
	s.LatestTimestampUs = binary.LittleEndian.Uint64(b[4:12])
	s.LatestPrice = protocol.Price(int64(binary.LittleEndian.Uint64(b[12:20])))
	return nil
}

// Key addresses a record. It is derived from configuration only.
type Key [32]byte

func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

var keySeed = []byte("data")

// DeriveKey returns the record key owned by program for feed.
func DeriveKey(program [32]byte, feed protocol.FeedID) Key {
	h := sha256.New()
	h.Write(keySeed)
	h.Write(program[:])
	var id [4]byte
	binary.LittleEndian.PutUint32(id[:], uint32(feed))
	h.Write(id[:])

	var k Key
	copy(k[:], h.Sum(nil))
	return k
}
