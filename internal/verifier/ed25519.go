package verifier

import (
	"context"
	"fmt"

	"golang.org/x/crypto/ed25519"

	"github.com/ibs-source/pricefeed-consumer/internal/ledger"
	"github.com/ibs-source/pricefeed-consumer/internal/linkage"
	"github.com/ibs-source/pricefeed-consumer/internal/protocol"
)

// Ed25519Program checks every ed25519 signature slot declared in its
// instruction data.
type Ed25519Program struct{}

var _ ledger.Program = Ed25519Program{}

// Process verifies each slot against the ranges it names.
func (Ed25519Program) Process(_ context.Context, inv *ledger.Invocation, data []byte) error {
	slots, err := linkage.ParseEd25519Args(data)
	if err != nil {
		return err
	}
	if len(slots) == 0 {
		return fmt.Errorf("%w: no signatures", ErrSignature)
	}
	for i, s := range slots {
		sig, err := slice(inv.Tx, s.SignatureInstructionIndex, s.SignatureOffset, ed25519.SignatureSize)
		if err != nil {
			return fmt.Errorf("slot %d signature: %w", i, err)
		}
		key, err := slice(inv.Tx, s.PublicKeyInstructionIndex, s.PublicKeyOffset, ed25519.PublicKeySize)
		if err != nil {
			return fmt.Errorf("slot %d public key: %w", i, err)
		}
		msg, err := slice(inv.Tx, s.MessageInstructionIndex, s.MessageOffset, int(s.MessageSize))
		if err != nil {
			return fmt.Errorf("slot %d message: %w", i, err)
		}
		if !ed25519.Verify(ed25519.PublicKey(key), msg, sig) {
			return fmt.Errorf("%w: ed25519 slot %d", ErrSignature, i)
		}
	}
	return nil
}

// SignEd25519Envelope signs payload and returns the encoded envelope.
func SignEd25519Envelope(priv ed25519.PrivateKey, payload []byte) ([]byte, error) {
	env := &protocol.Ed25519Envelope{Payload: payload}
	copy(env.Signature[:], ed25519.Sign(priv, payload))
	copy(env.PublicKey[:], priv.Public().(ed25519.PublicKey))
	return env.Bytes()
}
