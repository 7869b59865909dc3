package engine

import (
	"errors"
	"fmt"
)

// Code is the caller-visible failure code of a rejected instruction.
type Code uint32

// Failure codes. Every rejection maps to exactly one of them.
const (
	CodeInvalidMessage          Code = 6000
	CodeInvalidChannel          Code = 6001
	CodeInvalidPayload          Code = 6002
	CodeInvalidPayloadFeedID    Code = 6003
	CodeInvalidPayloadProperty  Code = 6004
	CodeInvalidPayloadTimestamp Code = 6005
	CodeAlreadyExists           Code = 6006
	CodeInvalidInstruction      Code = 6007
	CodeStateNotFound           Code = 6008
)

var codeNames = map[Code]string{
	CodeInvalidMessage:          "InvalidMessage",
	CodeInvalidChannel:          "InvalidChannel",
	CodeInvalidPayload:          "InvalidPayload",
	CodeInvalidPayloadFeedID:    "InvalidPayloadFeedId",
	CodeInvalidPayloadProperty:  "InvalidPayloadProperty",
	CodeInvalidPayloadTimestamp: "InvalidPayloadTimestamp",
	CodeAlreadyExists:           "AlreadyExists",
	CodeInvalidInstruction:      "InvalidInstruction",
	CodeStateNotFound:           "StateNotFound",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Code(%d)", uint32(c))
}

// Sentinels for errors.Is; each matches any *Error carrying its code.
var (
	ErrInvalidMessage          = &Error{Code: CodeInvalidMessage}
	ErrInvalidChannel          = &Error{Code: CodeInvalidChannel}
	ErrInvalidPayload          = &Error{Code: CodeInvalidPayload}
	ErrInvalidPayloadFeedID    = &Error{Code: CodeInvalidPayloadFeedID}
	ErrInvalidPayloadProperty  = &Error{Code: CodeInvalidPayloadProperty}
	ErrInvalidPayloadTimestamp = &Error{Code: CodeInvalidPayloadTimestamp}
	ErrAlreadyExists           = &Error{Code: CodeAlreadyExists}
	ErrInvalidInstruction      = &Error{Code: CodeInvalidInstruction}
	ErrStateNotFound           = &Error{Code: CodeStateNotFound}
)

// Error is a terminal rejection.
type Error struct {
	Code  Code
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	msg := e.Code.String()
	if e.Stage != StageNone {
		msg += " at " + e.Stage.String()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on code only.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func reject(code Code, stage Stage, format string, args ...interface{}) *Error {
	return &Error{Code: code, Stage: stage, Err: fmt.Errorf(format, args...)}
}

func wrap(code Code, err error) *Error {
	return &Error{Code: code, Err: err}
}

// CodeOf extracts the failure code of err, if it carries one.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}
