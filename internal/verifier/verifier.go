// Package verifier implements the host's built-in signature verifier
// programs. They run as ordinary instructions of a transaction; a failed
// check aborts the whole transaction.
package verifier

import (
	"errors"
	"fmt"

	"github.com/ibs-source/pricefeed-consumer/internal/ledger"
)

// ErrSignature is wrapped by every failed signature check.
var ErrSignature = errors.New("signature verification failed")

// slice returns size bytes at offset of the instruction at index.
func slice(tx ledger.Introspector, index, offset uint16, size int) ([]byte, error) {
	ix, err := tx.InstructionAt(index)
	if err != nil {
		return nil, err
	}
	end := int(offset) + size
	if end > len(ix.Data) {
		return nil, fmt.Errorf("range [%d,%d) overruns instruction %d of %d bytes", offset, end, index, len(ix.Data))
	}
	return ix.Data[offset:end], nil
}
