// Package txbuild assembles consumer transactions the way a producer must:
// the verifier instruction at index 0 and the consumer instruction at
// index 1, linked through signature slot 0.
package txbuild

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/ibs-source/pricefeed-consumer/internal/engine"
	"github.com/ibs-source/pricefeed-consumer/internal/ledger"
	"github.com/ibs-source/pricefeed-consumer/internal/linkage"
	"github.com/ibs-source/pricefeed-consumer/internal/protocol"
)

// Positions of the linked instructions.
const (
	VerifierIndex  uint16 = 0
	ConsumerIndex  uint16 = 1
	SignatureIndex uint16 = 0
)

// NewID returns a fresh transaction id.
func NewID() string {
	return uuid.NewString()
}

// Create builds the transaction initialising the record of feed.
func Create(program ledger.ProgramID, feed protocol.FeedID) *ledger.Transaction {
	return &ledger.Transaction{
		ID: NewID(),
		Instructions: []ledger.Instruction{
			{Program: program, Data: engine.EncodeCreate(feed)},
		},
	}
}

// Ed25519Update builds an update carrying an ed25519 envelope.
func Ed25519Update(program ledger.ProgramID, envelope []byte) (*ledger.Transaction, error) {
	env, err := protocol.ParseEd25519Envelope(envelope)
	if err != nil {
		return nil, err
	}
	slot, err := linkage.ExpectedEd25519Offsets(ConsumerIndex, engine.EnvelopeOffset, len(env.Payload))
	if err != nil {
		return nil, err
	}
	return &ledger.Transaction{
		ID: NewID(),
		Instructions: []ledger.Instruction{
			{Program: ledger.Ed25519VerifierID, Data: linkage.EncodeEd25519Args([]linkage.Ed25519Offsets{slot})},
			{Program: program, Data: engine.EncodeUpdate(VerifierIndex, SignatureIndex, envelope)},
		},
	}, nil
}

// ECDSAUpdate builds an update carrying a secp256k1 envelope signed by
// the key behind address. The address travels after the verifier's
// offsets table.
func ECDSAUpdate(program ledger.ProgramID, envelope []byte, address [linkage.AddressSize]byte) (*ledger.Transaction, error) {
	env, err := protocol.ParseECDSAEnvelope(envelope)
	if err != nil {
		return nil, err
	}
	slot, err := linkage.ExpectedSecp256k1Offsets(ConsumerIndex, engine.EnvelopeOffset, len(env.Payload))
	if err != nil {
		return nil, err
	}
	slot.AddressOffset = uint16(linkage.Secp256k1ArgsHeaderSize(1))
	slot.AddressInstructionIndex = uint8(VerifierIndex)
	return &ledger.Transaction{
		ID: NewID(),
		Instructions: []ledger.Instruction{
			{Program: ledger.Secp256k1VerifierID, Data: linkage.EncodeSecp256k1Args([]linkage.Secp256k1Offsets{slot}, address[:])},
			{Program: program, Data: engine.EncodeUpdate(VerifierIndex, SignatureIndex, envelope)},
		},
	}, nil
}

// Update dispatches on scheme. address is ignored for ed25519.
func Update(scheme protocol.Scheme, program ledger.ProgramID, envelope []byte, address [linkage.AddressSize]byte) (*ledger.Transaction, error) {
	switch scheme {
	case protocol.SchemeEd25519:
		return Ed25519Update(program, envelope)
	case protocol.SchemeECDSA:
		return ECDSAUpdate(program, envelope, address)
	default:
		return nil, fmt.Errorf("txbuild: unsupported scheme %s", scheme)
	}
}
