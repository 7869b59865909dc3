// Package ledger hosts programs the way an atomic transaction ledger does:
// instructions of a transaction run in order, may inspect their siblings,
// and either all state writes commit or none do.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ProgramID identifies a program that can be the target of an instruction.
type ProgramID [32]byte

func (p ProgramID) String() string {
	return hex.EncodeToString(p[:])
}

// IsZero reports whether p is the zero id.
func (p ProgramID) IsZero() bool {
	return p == ProgramID{}
}

// ParseProgramID parses a hex encoded program id, with or without 0x.
func ParseProgramID(s string) (ProgramID, error) {
	var p ProgramID
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return p, fmt.Errorf("program id: %w", err)
	}
	if len(b) != len(p) {
		return p, fmt.Errorf("program id is %d bytes, want %d", len(b), len(p))
	}
	copy(p[:], b)
	return p, nil
}

// ProgramIDFromName derives a stable program id from a human readable name.
func ProgramIDFromName(name string) ProgramID {
	return ProgramID(sha256.Sum256([]byte("program:" + name)))
}

// Built-in signature verifier programs.
var (
	Ed25519VerifierID   = ProgramIDFromName("ed25519-verifier")
	Secp256k1VerifierID = ProgramIDFromName("secp256k1-verifier")
)

// Instruction is one operation of a transaction.
type Instruction struct {
	Program ProgramID
	Data    []byte
}

// Transaction is an ordered list of instructions executed atomically.
type Transaction struct {
	ID           string
	Instructions []Instruction
}

// MaxInstructions bounds the size of a transaction.
const MaxInstructions = 64

// Errors returned by the runtime itself.
var (
	ErrEmptyTransaction   = errors.New("transaction has no instructions")
	ErrTooManyInstruction = fmt.Errorf("transaction has more than %d instructions", MaxInstructions)
	ErrUnknownProgram     = errors.New("unknown program")
	ErrInstructionIndex   = errors.New("instruction index out of range")
)

// ExecError reports the instruction that aborted a transaction.
type ExecError struct {
	Index   int
	Program ProgramID
	Err     error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("instruction %d (program %s): %v", e.Index, e.Program, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}
