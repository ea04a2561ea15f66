package ir

import (
	"fmt"
	"strings"
)

func (m *Module) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "; module %s\n", m.Name)
	for _, f := range m.Functions {
		sb.WriteString("\n")
		sb.WriteString(f.String())
	}
	return sb.String()
}

func (f *Function) String() string {
	var sb strings.Builder
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.Type.String() + " " + p.Ref()
	}
	fmt.Fprintf(&sb, "define %s @%s(%s) {\n", f.Ret, f.Name, strings.Join(params, ", "))
	for i, b := range f.Blocks {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(b.Name + ":")
		if len(b.Preds) > 0 {
			names := make([]string, len(b.Preds))
			for j, p := range b.Preds {
				names[j] = "%" + p.Name
			}
			fmt.Fprintf(&sb, "%*s; preds = %s", max(1, 40-len(b.Name)), "", strings.Join(names, ", "))
		}
		sb.WriteString("\n")
		for _, v := range b.Instrs {
			sb.WriteString("  ")
			sb.WriteString(v.LongString())
			sb.WriteString("\n")
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

func typed(v *Value) string {
	return v.Type.String() + " " + v.Ref()
}

// LongString prints v as a full instruction.
func (v *Value) LongString() string {
	var s string
	switch v.Op {
	case OpPhi:
		edges := make([]string, len(v.Incoming))
		for i, e := range v.Incoming {
			edges[i] = fmt.Sprintf("[ %s, %%%s ]", e.Value.Ref(), e.Pred.Name)
		}
		s = fmt.Sprintf("%s = phi %s %s", v.Ref(), v.Type, strings.Join(edges, ", "))
	case OpAdd, OpSub, OpAnd, OpOr, OpXor, OpShl, OpLShr, OpAShr:
		s = fmt.Sprintf("%s = %s %s, %s", v.Ref(), v.Op, typed(v.Args[0]), v.Args[1].Ref())
	case OpNot:
		s = fmt.Sprintf("%s = not %s", v.Ref(), typed(v.Args[0]))
	case OpICmp:
		s = fmt.Sprintf("%s = icmp %s %s, %s", v.Ref(), v.Pred, typed(v.Args[0]), v.Args[1].Ref())
	case OpZExt, OpSExt, OpTrunc, OpIntToPtr:
		s = fmt.Sprintf("%s = %s %s to %s", v.Ref(), v.Op, typed(v.Args[0]), v.Type)
	case OpSelect:
		s = fmt.Sprintf("%s = select %s, %s, %s", v.Ref(), typed(v.Args[0]), typed(v.Args[1]), typed(v.Args[2]))
	case OpFieldPtr:
		s = fmt.Sprintf("%s = fieldptr %s, %d", v.Ref(), typed(v.Args[0]), v.Aux)
	case OpLoad:
		s = fmt.Sprintf("%s = load %s, %s", v.Ref(), v.Type, typed(v.Args[0]))
	case OpStore:
		s = fmt.Sprintf("store %s, %s", typed(v.Args[1]), typed(v.Args[0]))
	case OpCall:
		args := make([]string, len(v.Args)-1)
		for i, a := range v.Args[1:] {
			args[i] = typed(a)
		}
		s = fmt.Sprintf("call %s %s(%s)", v.Type, v.Args[0].Ref(), strings.Join(args, ", "))
		if v.Type != Void {
			s = v.Ref() + " = " + s
		}
	case OpBr:
		s = fmt.Sprintf("br label %%%s", v.Succs[0].Name)
	case OpCondBr:
		s = fmt.Sprintf("br %s, label %%%s, label %%%s", typed(v.Args[0]), v.Succs[0].Name, v.Succs[1].Name)
	case OpRet:
		if len(v.Args) == 0 {
			s = "ret void"
		} else {
			s = "ret " + typed(v.Args[0])
		}
	default:
		s = fmt.Sprintf("%s = %s %s", v.Ref(), v.Op, v.Type)
	}
	if v.Tags.Has(TagMemoryAccess) {
		s += ", !translated_memory_access"
	}
	return s
}
