// Package linkage proves that the bytes a consumer is about to trust were
// the exact input of a signature check performed by a sibling verifier
// instruction of the same transaction. It never performs signature math.
package linkage

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/ibs-source/pricefeed-consumer/internal/ledger"
	"github.com/ibs-source/pricefeed-consumer/internal/protocol"
)

// ErrInvalidMessage is wrapped by every linkage failure.
var ErrInvalidMessage = errors.New("invalid message")

// AddressSize is the size of a derived secp256k1 signer address.
const AddressSize = 20

// TrustStore answers whether a signer is currently an authority. Expiry and
// rotation are its concern.
type TrustStore interface {
	TrustedKey(key [protocol.PublicKeySize]byte) (bool, error)
	TrustedAddress(addr [AddressSize]byte) (bool, error)
}

// Request names the envelope a consumer instruction wants to trust and the
// verifier slot that must have covered it.
type Request struct {
	// VerifierIndex is the transaction index of the verifier instruction.
	VerifierIndex uint16
	// SignatureIndex is the slot within the verifier instruction.
	SignatureIndex uint16
	// MessageOffset is the offset of Message in the current instruction data.
	MessageOffset uint16
	// Message is the encoded envelope.
	Message []byte
}

// Validator links an envelope to a verifier instruction and returns the
// payload bytes whose signature coverage it proved.
type Validator interface {
	Scheme() protocol.Scheme
	Link(tx ledger.Introspector, req Request) ([]byte, error)
}

// New returns the Validator for scheme.
func New(scheme protocol.Scheme, trust TrustStore) (Validator, error) {
	if trust == nil {
		return nil, errors.New("linkage: nil trust store")
	}
	switch scheme {
	case protocol.SchemeEd25519:
		return &ed25519Validator{trust: trust}, nil
	case protocol.SchemeECDSA:
		return &ecdsaValidator{trust: trust}, nil
	default:
		return nil, fmt.Errorf("linkage: unsupported scheme %s", scheme)
	}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidMessage, fmt.Sprintf(format, args...))
}

// ExpectedEd25519Offsets returns the slot an ed25519 verifier must declare
// for an envelope at messageOffset of instruction current carrying
// payloadLen bytes of payload.
func ExpectedEd25519Offsets(current, messageOffset uint16, payloadLen int) (Ed25519Offsets, error) {
	start := int(messageOffset)
	if start+protocol.Ed25519HeaderSize+payloadLen > math.MaxUint16 {
		return Ed25519Offsets{}, invalid("envelope ends past u16 range")
	}
	return Ed25519Offsets{
		SignatureOffset:           uint16(start + protocol.Ed25519SigOffset),
		SignatureInstructionIndex: current,
		PublicKeyOffset:           uint16(start + protocol.Ed25519KeyOffset),
		PublicKeyInstructionIndex: current,
		MessageOffset:             uint16(start + protocol.Ed25519HeaderSize),
		MessageSize:               uint16(payloadLen),
		MessageInstructionIndex:   current,
	}, nil
}

// ExpectedSecp256k1Offsets is ExpectedEd25519Offsets for the ECDSA scheme.
// The address location is not constrained and is returned zeroed.
func ExpectedSecp256k1Offsets(current, messageOffset uint16, payloadLen int) (Secp256k1Offsets, error) {
	if current > math.MaxUint8 {
		return Secp256k1Offsets{}, invalid("instruction index %d does not fit the secp256k1 verifier", current)
	}
	start := int(messageOffset)
	if start+protocol.ECDSAHeaderSize+payloadLen > math.MaxUint16 {
		return Secp256k1Offsets{}, invalid("envelope ends past u16 range")
	}
	return Secp256k1Offsets{
		SignatureOffset:           uint16(start + protocol.ECDSASigOffset),
		SignatureInstructionIndex: uint8(current),
		MessageOffset:             uint16(start + protocol.ECDSAHeaderSize),
		MessageSize:               uint16(payloadLen),
		MessageInstructionIndex:   uint8(current),
	}, nil
}

// verifierInstruction loads the instruction at index and checks that it was
// run by program.
func verifierInstruction(tx ledger.Introspector, index uint16, program ledger.ProgramID) (ledger.Instruction, error) {
	if index == tx.CurrentIndex() {
		return ledger.Instruction{}, invalid("verifier index %d is the consumer instruction", index)
	}
	ix, err := tx.InstructionAt(index)
	if err != nil {
		return ledger.Instruction{}, invalid("no verifier instruction at %d: %v", index, err)
	}
	if ix.Program != program {
		return ledger.Instruction{}, invalid("instruction %d is run by %s, not the verifier", index, ix.Program)
	}
	return ix, nil
}

// checkEnvelopePlacement confirms that message sits at req.MessageOffset of
// the current instruction, so the offsets the verifier declared point at
// these exact bytes.
func checkEnvelopePlacement(tx ledger.Introspector, req Request) error {
	cur, err := tx.InstructionAt(tx.CurrentIndex())
	if err != nil {
		return invalid("current instruction: %v", err)
	}
	start := int(req.MessageOffset)
	end := start + len(req.Message)
	if end > len(cur.Data) || !bytes.Equal(cur.Data[start:end], req.Message) {
		return invalid("envelope is not at offset %d of the current instruction", start)
	}
	return nil
}

type ed25519Validator struct {
	trust TrustStore
}

func (v *ed25519Validator) Scheme() protocol.Scheme {
	return protocol.SchemeEd25519
}

func (v *ed25519Validator) Link(tx ledger.Introspector, req Request) ([]byte, error) {
	env, err := protocol.ParseEd25519Envelope(req.Message)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := checkEnvelopePlacement(tx, req); err != nil {
		return nil, err
	}
	want, err := ExpectedEd25519Offsets(tx.CurrentIndex(), req.MessageOffset, len(env.Payload))
	if err != nil {
		return nil, err
	}

	ix, err := verifierInstruction(tx, req.VerifierIndex, ledger.Ed25519VerifierID)
	if err != nil {
		return nil, err
	}
	slots, err := ParseEd25519Args(ix.Data)
	if err != nil {
		return nil, invalid("verifier data: %v", err)
	}
	if int(req.SignatureIndex) >= len(slots) {
		return nil, invalid("verifier has %d signatures, slot %d requested", len(slots), req.SignatureIndex)
	}
	if got := slots[req.SignatureIndex]; got != want {
		return nil, invalid("verifier covered %+v, expected %+v", got, want)
	}

	ok, err := v.trust.TrustedKey(env.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("trust lookup: %w", err)
	}
	if !ok {
		return nil, invalid("signer %x is not trusted", env.PublicKey)
	}
	return env.Payload, nil
}

type ecdsaValidator struct {
	trust TrustStore
}

func (v *ecdsaValidator) Scheme() protocol.Scheme {
	return protocol.SchemeECDSA
}

func (v *ecdsaValidator) Link(tx ledger.Introspector, req Request) ([]byte, error) {
	env, err := protocol.ParseECDSAEnvelope(req.Message)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := checkEnvelopePlacement(tx, req); err != nil {
		return nil, err
	}
	want, err := ExpectedSecp256k1Offsets(tx.CurrentIndex(), req.MessageOffset, len(env.Payload))
	if err != nil {
		return nil, err
	}

	ix, err := verifierInstruction(tx, req.VerifierIndex, ledger.Secp256k1VerifierID)
	if err != nil {
		return nil, err
	}
	slots, err := ParseSecp256k1Args(ix.Data)
	if err != nil {
		return nil, invalid("verifier data: %v", err)
	}
	if int(req.SignatureIndex) >= len(slots) {
		return nil, invalid("verifier has %d signatures, slot %d requested", len(slots), req.SignatureIndex)
	}
	got := slots[req.SignatureIndex]
	addrOffset, addrIndex := got.AddressOffset, got.AddressInstructionIndex
	got.AddressOffset, got.AddressInstructionIndex = 0, 0
	if got != want {
		return nil, invalid("verifier covered %+v, expected %+v", got, want)
	}

	addr, err := readAddress(tx, uint16(addrIndex), addrOffset)
	if err != nil {
		return nil, err
	}
	ok, err := v.trust.TrustedAddress(addr)
	if err != nil {
		return nil, fmt.Errorf("trust lookup: %w", err)
	}
	if !ok {
		return nil, invalid("signer address %x is not trusted", addr)
	}
	return env.Payload, nil
}

// readAddress returns the 20 bytes the verifier compared the recovered
// signer against.
func readAddress(tx ledger.Introspector, index, offset uint16) ([AddressSize]byte, error) {
	var addr [AddressSize]byte
	ix, err := tx.InstructionAt(index)
	if err != nil {
		return addr, invalid("address instruction %d: %v", index, err)
	}
	end := int(offset) + AddressSize
	if end > len(ix.Data) {
		return addr, invalid("address at %d overruns instruction %d", offset, index)
	}
	copy(addr[:], ix.Data[offset:end])
	return addr, nil
}
