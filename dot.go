package hsm

import (
	"github.com/enetx/g"
)

// ToDOT renders the statechart in the Graphviz DOT language. Composite
// states become clusters; current, if valid, is highlighted.
func (c *Statechart) ToDOT(current StateID) g.String {
	b := g.NewBuilder()

	b.WriteString(g.Format("digraph \"{}\" ", dotEscape(c.Name)))
	b.WriteString("{\n")
	b.WriteString("  compound=true;\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString(
		"  node [shape=box, style=\"rounded,filled\", fillcolor=\"#f8f8f8\", color=\"#444444\", fontname=\"Helvetica\"];\n",
	)
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n\n")

	children := make([][]StateID, len(c.States))
	for i := range c.States {
		if p := c.States[i].Parent; p != StateInvalid {
			children[p] = append(children[p], StateID(i))
		}
	}

	c.writeDOTState(b, children, c.Top, current, "  ")
	b.WriteString("\n")

	for i := range c.States {
		from := StateID(i)
		for _, t := range c.States[i].Transitions {
			var label g.Slice[g.String]
			label.Push(dotEscape(c.EventName(t.Event)))
			if t.Guard != GuardInvalid {
				label.Push(g.Format("[{}]", dotEscape(c.GuardName(t.Guard))))
			}

			var edge g.Slice[g.String]
			to := from
			if t.IsInternal() {
				label.Push(g.Format("/ {}", dotEscape(c.ActionName(t.Steps[0]))))
				edge.Push("style=dotted")
			} else {
				to = t.Target
			}
			edge.Push(g.Format("label=\" {} \"", label.Join(" ")))
			if t.Guard != GuardInvalid {
				edge.Push("style=dashed", "color=red", "arrowhead=odiamond")
			}

			b.WriteString(g.Format("  \"{}\" -> \"{}\" [{}];\n",
				dotEscape(c.StateName(from)), dotEscape(c.StateName(to)), edge.Join(", ")))
		}
	}

	b.WriteString("}\n")

	return b.String()
}

func (c *Statechart) writeDOTState(b *g.Builder, children [][]StateID, id, current StateID, indent g.String) {
	st := &c.States[id]
	name := dotEscape(c.StateName(id))

	var attrs g.Slice[g.String]
	attrs.Push(g.Format("label=\"{}\"", name))
	if id == current {
		attrs.Push("fillcolor=\"#90ee90\"", "penwidth=2")
	}

	var tooltips g.Slice[g.String]
	if st.Entry != ActionInvalid {
		tooltips.Push(g.Format("entry / {}", dotEscape(c.ActionName(st.Entry))))
	}
	if st.Exit != ActionInvalid {
		tooltips.Push(g.Format("exit / {}", dotEscape(c.ActionName(st.Exit))))
	}
	if tooltips.NotEmpty() {
		attrs.Push(g.Format("tooltip=\"{}\"", tooltips.Join("\\n")))
	}

	if len(children[id]) == 0 {
		b.WriteString(g.Format("{}\"{}\" [{}];\n", indent, name, attrs.Join(", ")))
		return
	}

	b.WriteString(g.Format("{}subgraph \"cluster_{}\" ", indent, name))
	b.WriteString("{\n")
	b.WriteString(g.Format("{}  label=\"{}\";\n", indent, name))
	b.WriteString(g.Format("{}  style=rounded;\n", indent))
	attrs.Push("shape=plaintext")
	b.WriteString(g.Format("{}  \"{}\" [{}];\n", indent, name, attrs.Join(", ")))
	if st.Init != StateInvalid {
		b.WriteString(g.Format("{}  \"{}\" -> \"{}\" [style=bold, arrowhead=dot];\n",
			indent, name, dotEscape(c.StateName(st.Init))))
	}
	for _, child := range children[id] {
		c.writeDOTState(b, children, child, current, indent+"  ")
	}
	b.WriteString(indent)
	b.WriteString("}\n")
}

// dotEscape makes s safe inside a quoted DOT string.
func dotEscape(s string) g.String {
	return g.String(s).ReplaceMulti(`\`, `\\`, `"`, `\"`)
}
