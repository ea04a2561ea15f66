package ir

import (
	"errors"
	"fmt"
)

// Verify checks the structural rules of f: every block ends in exactly one
// terminator, phis lead their block and have one input per predecessor edge,
// and operands are defined in f.
func Verify(f *Function) error {
	var errs []error
	inFunc := make(map[*Block]bool, len(f.Blocks))
	for _, b := range f.Blocks {
		inFunc[b] = true
	}
	for _, b := range f.Blocks {
		if len(b.Instrs) == 0 {
			errs = append(errs, fmt.Errorf("block %s is empty", b.Name))
			continue
		}
		seenNonPhi := false
		for i, v := range b.Instrs {
			if v.Block != b {
				errs = append(errs, fmt.Errorf("%s: %s has wrong parent", b.Name, v.Ref()))
			}
			if v.Op.IsTerminator() && i != len(b.Instrs)-1 {
				errs = append(errs, fmt.Errorf("%s: terminator %s is not last", b.Name, v.Op))
			}
			if v.Op == OpPhi {
				if seenNonPhi {
					errs = append(errs, fmt.Errorf("%s: phi %s after non-phi", b.Name, v.Ref()))
				}
				if len(v.Incoming) != len(b.Preds) {
					errs = append(errs, fmt.Errorf("%s: phi %s has %d inputs for %d predecessors",
						b.Name, v.Ref(), len(v.Incoming), len(b.Preds)))
				}
				for _, e := range v.Incoming {
					if !containsBlock(b.Preds, e.Pred) {
						errs = append(errs, fmt.Errorf("%s: phi %s input from non-predecessor %s", b.Name, v.Ref(), e.Pred.Name))
					}
					if err := checkOperand(f, e.Value); err != nil {
						errs = append(errs, fmt.Errorf("%s: phi %s: %w", b.Name, v.Ref(), err))
					}
				}
			} else {
				seenNonPhi = true
			}
			for _, a := range v.Args {
				if err := checkOperand(f, a); err != nil {
					errs = append(errs, fmt.Errorf("%s: %s: %w", b.Name, v.Op, err))
				}
			}
			for _, s := range v.Succs {
				if !inFunc[s] {
					errs = append(errs, fmt.Errorf("%s: branch to foreign block %s", b.Name, s.Name))
				}
			}
		}
		if !b.Terminated() {
			errs = append(errs, fmt.Errorf("block %s has no terminator", b.Name))
		}
	}
	return errors.Join(errs...)
}

func checkOperand(f *Function, v *Value) error {
	if v == nil {
		return errors.New("nil operand")
	}
	switch v.Op {
	case OpConst:
		return nil
	case OpParam:
		for _, p := range f.Params {
			if p == v {
				return nil
			}
		}
		return fmt.Errorf("parameter %s of another function", v.Ref())
	}
	if v.Block == nil || v.Block.Func != f {
		return fmt.Errorf("operand %s is not defined in %s", v.Ref(), f.Name)
	}
	return nil
}

func containsBlock(list []*Block, b *Block) bool {
	for _, x := range list {
		if x == b {
			return true
		}
	}
	return false
}
