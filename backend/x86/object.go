package x86

import (
	"fmt"

	"github.com/colorfulnotion/armlift/lifterrors"
)

type SectionKind uint8

const (
	SectionCode SectionKind = iota
	SectionData
)

func (k SectionKind) String() string {
	if k == SectionCode {
		return "code"
	}
	return "data"
}

// Section is one contiguous piece of generated output.
type Section struct {
	Name string
	Kind SectionKind
	Data []byte
}

// Object is the output of a code generator before it is mapped.
type Object struct {
	Base     uint64
	Entry    uint64 // offset of the function entry in the code section
	Sections []Section
	// Blocks maps block names to their offsets in the code section.
	Blocks map[string]int
}

// Compile extracts the code of obj. The object must hold exactly one code
// section and no data section.
func Compile(obj *Object) (*Section, error) {
	var code *Section
	for i := range obj.Sections {
		s := &obj.Sections[i]
		switch s.Kind {
		case SectionData:
			return nil, fmt.Errorf("%w: %s", lifterrors.ErrDataSection, s.Name)
		case SectionCode:
			if code != nil {
				return nil, fmt.Errorf("%w: %s and %s", lifterrors.ErrMultipleCodeSections, code.Name, s.Name)
			}
			code = s
		}
	}
	if code == nil {
		return nil, lifterrors.ErrNoCodeSection
	}
	return code, nil
}
