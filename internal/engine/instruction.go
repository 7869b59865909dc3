package engine

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/ibs-source/pricefeed-consumer/internal/ledger"
	"github.com/ibs-source/pricefeed-consumer/internal/protocol"
)

// Tag selects the operation of a consumer instruction.
type Tag uint8

// Operations of the consumer program.
const (
	TagCreate Tag = 0
	TagUpdate Tag = 1
)

func (t Tag) String() string {
	switch t {
	case TagCreate:
		return "create"
	case TagUpdate:
		return "update"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

// Wire sizes of instruction data.
const (
	TagSize        = 1
	CreateArgsSize = 4
	UpdateArgsSize = 4
	// EnvelopeOffset is where an update's envelope starts within the
	// instruction data.
	EnvelopeOffset = TagSize + UpdateArgsSize
)

// Instruction is a decoded consumer instruction. The set of variants is
// closed: each one carries its own handler.
type Instruction interface {
	Tag() Tag
	execute(ctx context.Context, p *Program, inv *ledger.Invocation) (Outcome, error)
}

// CreateArgs initialises the record of a feed.
type CreateArgs struct {
	FeedID protocol.FeedID
}

// Tag implements Instruction.
func (CreateArgs) Tag() Tag { return TagCreate }

// UpdateArgs applies a signed envelope carried after the arguments.
type UpdateArgs struct {
	VerifierIndex  uint16
	SignatureIndex uint16
	Envelope       []byte
}

// Tag implements Instruction.
func (UpdateArgs) Tag() Tag { return TagUpdate }

var (
	_ Instruction = CreateArgs{}
	_ Instruction = UpdateArgs{}
)

// DecodeInstruction parses consumer instruction data.
func DecodeInstruction(data []byte) (Instruction, error) {
	if len(data) < TagSize {
		return nil, reject(CodeInvalidInstruction, StageNone, "empty instruction data")
	}
	args := data[TagSize:]
	switch Tag(data[0]) {
	case TagCreate:
		if len(args) != CreateArgsSize {
			return nil, reject(CodeInvalidInstruction, StageNone,
				"create args are %d bytes, want %d", len(args), CreateArgsSize)
		}
		return CreateArgs{FeedID: protocol.FeedID(binary.LittleEndian.Uint32(args))}, nil
	case TagUpdate:
		if len(args) < UpdateArgsSize {
			return nil, reject(CodeInvalidInstruction, StageNone,
				"update args are %d bytes, want at least %d", len(args), UpdateArgsSize)
		}
		return UpdateArgs{
			VerifierIndex:  binary.LittleEndian.Uint16(args[0:2]),
			SignatureIndex: binary.LittleEndian.Uint16(args[2:4]),
			Envelope:       args[UpdateArgsSize:],
		}, nil
	default:
		return nil, reject(CodeInvalidInstruction, StageNone, "unknown tag %d", data[0])
	}
}

// EncodeCreate returns the instruction data of a create.
func EncodeCreate(feed protocol.FeedID) []byte {
	b := make([]byte, TagSize+CreateArgsSize)
	b[0] = byte(TagCreate)
	binary.LittleEndian.PutUint32(b[TagSize:], uint32(feed))
	return b
}

// EncodeUpdate returns the instruction data of an update carrying envelope.
func EncodeUpdate(verifierIndex, signatureIndex uint16, envelope []byte) []byte {
	b := make([]byte, EnvelopeOffset, EnvelopeOffset+len(envelope))
	b[0] = byte(TagUpdate)
	binary.LittleEndian.PutUint16(b[1:3], verifierIndex)
	binary.LittleEndian.PutUint16(b[3:5], signatureIndex)
	return append(b, envelope...)
}
