package lifterrors

import (
	"errors"
	"fmt"
	"strings"
)

// Translation errors. Every one of them aborts the whole translation pass.
var (
	ErrDecodeFailed      = errors.New("L1|DecodeFailed: instruction could not be decoded")
	ErrUnknownOpcode     = errors.New("L2|UnknownOpcode: no translator registered for opcode")
	ErrPrecondition      = errors.New("L3|Precondition: instruction shape not supported by translator")
	ErrNoFunctionContext = errors.New("L4|NoFunctionContext: function not registered with the unit cache")
	ErrIncompleteEnv     = errors.New("L5|IncompleteEnv: environment is missing a tracked slot")
	ErrEntryOutOfRange   = errors.New("L6|EntryOutOfRange: entry point is outside every valid range")
	ErrBadRequest        = errors.New("L7|BadRequest: translation request is malformed")
	ErrBlockTerminated   = errors.New("L8|BlockTerminated: predecessor block already has a terminator")
)

// Backend errors.
var (
	ErrNoCodeSection        = errors.New("B1|NoCodeSection: compiled object has no code section")
	ErrMultipleCodeSections = errors.New("B2|MultipleCodeSections: compiled object has more than one code section")
	ErrDataSection          = errors.New("B3|DataSection: compiled object has a data section")
	ErrUnsupported          = errors.New("B4|Unsupported: IR construct not supported by the backend")
)

// Code cache errors.
var (
	ErrCacheMiss = errors.New("C1|CacheMiss: no compiled code for request")
)

// DecodeError reports a decoder failure at PC that could not be repaired.
type DecodeError struct {
	PC  uint32
	Raw []byte
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v (pc=0x%08x raw=%x)", ErrDecodeFailed, e.PC, e.Raw)
}

func (e *DecodeError) Unwrap() error { return ErrDecodeFailed }

// UnknownOpcodeError carries the decoded instruction for diagnostics.
type UnknownOpcodeError struct {
	PC     uint32
	Opcode string
	Text   string
}

func (e *UnknownOpcodeError) Error() string {
	return fmt.Sprintf("%v (%s %q at 0x%08x)", ErrUnknownOpcode, e.Opcode, e.Text, e.PC)
}

func (e *UnknownOpcodeError) Unwrap() error { return ErrUnknownOpcode }

// PreconditionError is raised by a translator whose structural checks fail.
type PreconditionError struct {
	PC     uint32
	Opcode string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%v (%s at 0x%08x: %s)", ErrPrecondition, e.Opcode, e.PC, e.Reason)
}

func (e *PreconditionError) Unwrap() error { return ErrPrecondition }

func GetErrorName(err error) string {
	if err == nil {
		return "No Error"
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "|") || !strings.Contains(errStr, ":") {
		return errStr
	}
	parts := strings.SplitN(errStr, "|", 2)
	// Split on ':' to separate the error name from its description.
	nameParts := strings.SplitN(parts[1], ":", 2)
	return strings.TrimSpace(nameParts[0])
}

// GetErrorCode extracts the error code from the error message.
func GetErrorCode(err error) string {
	if err == nil {
		return ""
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "|") {
		return ""
	}
	parts := strings.SplitN(errStr, "|", 2)
	return strings.TrimSpace(parts[0])
}

// GetErrorCodeWithName returns the error code and name in the format "Code_ErrorName".
func GetErrorCodeWithName(err error) string {
	code := GetErrorCode(err)
	name := GetErrorName(err)
	if code == "" || name == "" {
		return ""
	}
	return code + "_" + name
}

// GetErrorDesc extracts the error description from the error message.
func GetErrorDesc(err error) string {
	if err == nil {
		return ""
	}
	parts := strings.SplitN(err.Error(), ":", 2)
	if len(parts) < 2 {
		return "DESC NOT SET"
	}
	return strings.TrimSpace(parts[1])
}
