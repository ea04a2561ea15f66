package ir

import (
	"fmt"
	"strings"

	"github.com/xlab/treeprint"
)

// ToDot returns a Graphviz DOT representation of the CFG of f.
func (f *Function) ToDot() string {
	var sb strings.Builder
	sb.WriteString("digraph CFG {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, fontname=\"Courier\"];\n")

	const maxInstrShown = 20
	for _, b := range f.Blocks {
		label := fmt.Sprintf("%s\\nphis=%d instrs=%d", b.Name, len(b.Phis()), len(b.Instrs))
		for i, v := range b.Instrs {
			if i >= maxInstrShown {
				label += "\\n..."
				break
			}
			if v.Op == OpPhi {
				continue
			}
			label += "\\l" + strings.ReplaceAll(v.LongString(), "\"", "\\\"")
		}
		fmt.Fprintf(&sb, "  b%d [label=\"%s\\l\"];\n", b.ID, label)
		if t := b.Terminator(); t != nil && t.Op == OpCondBr {
			fmt.Fprintf(&sb, "  b%d -> b%d [label=\"T\"];\n", b.ID, t.Succs[0].ID)
			fmt.Fprintf(&sb, "  b%d -> b%d [label=\"F\"];\n", b.ID, t.Succs[1].ID)
			continue
		}
		for _, s := range b.Succs() {
			fmt.Fprintf(&sb, "  b%d -> b%d;\n", b.ID, s.ID)
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

// Tree renders the module as function -> block -> instruction.
func (m *Module) Tree() string {
	tree := treeprint.New()
	tree.SetValue(m.Name)
	for _, f := range m.Functions {
		fn := tree.AddBranch(fmt.Sprintf("@%s (%d blocks)", f.Name, len(f.Blocks)))
		for _, b := range f.Blocks {
			bn := fn.AddBranch(fmt.Sprintf("%s preds=%d", b.Name, len(b.Preds)))
			for _, v := range b.Instrs {
				bn.AddNode(v.LongString())
			}
		}
	}
	return tree.String()
}
