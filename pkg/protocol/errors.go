package protocol

import (
	"errors"
	"fmt"
)

var errMissingRole = errors.New("message has no role")

// MessageDecodeError reports a storage record that could not be restored
// into a Message. Conversation history is the source of truth, so callers
// treat this as fatal rather than skipping the record.
type MessageDecodeError struct {
	Err error
}

func (e *MessageDecodeError) Error() string {
	return fmt.Sprintf("message decode failed: %v", e.Err)
}

func (e *MessageDecodeError) Unwrap() error { return e.Err }

// ArgumentDecodeError reports tool-call arguments that were not valid JSON.
// It carries the call identity so the loop can record an error result for
// that call and continue the run.
type ArgumentDecodeError struct {
	CallID   string
	ToolName string
	Err      error
}

func (e *ArgumentDecodeError) Error() string {
	return fmt.Sprintf("tool call %s (%s): invalid arguments: %v", e.CallID, e.ToolName, e.Err)
}

func (e *ArgumentDecodeError) Unwrap() error { return e.Err }

// ToolCallParseError reports a tool-call payload whose overall shape was
// not recognized at all.
type ToolCallParseError struct {
	Reason string
}

func (e *ToolCallParseError) Error() string {
	return fmt.Sprintf("unrecognized tool call shape: %s", e.Reason)
}
