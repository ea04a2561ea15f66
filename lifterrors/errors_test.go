package lifterrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorParts(t *testing.T) {
	assert.Equal(t, "L1", GetErrorCode(ErrDecodeFailed))
	assert.Equal(t, "DecodeFailed", GetErrorName(ErrDecodeFailed))
	assert.Equal(t, "L1_DecodeFailed", GetErrorCodeWithName(ErrDecodeFailed))
	assert.Equal(t, "instruction could not be decoded", GetErrorDesc(ErrDecodeFailed))
	assert.Equal(t, "No Error", GetErrorName(nil))
	assert.Equal(t, "", GetErrorCode(errors.New("plain")))
}

func TestTypedErrorsUnwrap(t *testing.T) {
	var err error = &UnknownOpcodeError{PC: 0x1000, Opcode: "T_ASR_RI", Text: "asrs r0, r1, #2"}
	wrapped := fmt.Errorf("translate: %w", err)
	assert.ErrorIs(t, wrapped, ErrUnknownOpcode)
	assert.Equal(t, "B2", GetErrorCode(ErrMultipleCodeSections))

	var uo *UnknownOpcodeError
	assert.True(t, errors.As(wrapped, &uo))
	assert.Equal(t, uint32(0x1000), uo.PC)

	pe := &PreconditionError{PC: 4, Opcode: "T_PUSH", Reason: "empty register list"}
	assert.ErrorIs(t, pe, ErrPrecondition)
	assert.Equal(t, "Precondition", GetErrorName(pe))

	de := &DecodeError{PC: 8, Raw: []byte{0xff, 0xff}}
	assert.ErrorIs(t, de, ErrDecodeFailed)
	assert.Contains(t, de.Error(), "pc=0x00000008")
}
