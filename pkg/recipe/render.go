package recipe

import (
	"fmt"
	"strings"
)

// render writes the canonical body of a normalized graph. Views and slots are
// named by their canonical position.
func render(g *graph) string {
	var sb strings.Builder

	for i, v := range g.views {
		parts := []string{"  " + string(v.fate)}
		if v.id != "" {
			parts = append(parts, "'"+v.id+"'")
		}
		for _, t := range v.tags {
			parts = append(parts, "#"+t)
		}
		parts = append(parts, fmt.Sprintf("as view%d", i))
		if v.typ != nil {
			parts = append(parts, "// "+v.typ.String())
		} else if v.mapped != nil {
			parts = append(parts, "// "+v.mapped.String())
		}
		sb.WriteString(strings.Join(parts, " "))
		sb.WriteByte('\n')
	}

	for i, s := range g.slots {
		if s.hasSource {
			continue
		}
		line := "  slot"
		if s.id != "" {
			line += " '" + s.id + "'"
		}
		line += fmt.Sprintf(" %s as slot%d", s.name, i)
		if s.formFactor != "" {
			line += " // " + s.formFactor
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}

	for _, p := range g.particles {
		sb.WriteString("  " + p.name)
		if p.spec == nil {
			sb.WriteString(" // unresolved")
		}
		sb.WriteByte('\n')

		for _, name := range sortedNames(p.conns) {
			c := p.conns[name]
			target := "?"
			if c.view >= 0 {
				target = fmt.Sprintf("view%d", c.view)
			}
			line := fmt.Sprintf("    %s %s %s", name, c.direction.Arrow(), target)
			if c.typ != nil {
				line += " // " + c.typ.String()
			}
			for _, t := range c.tags {
				line += " #" + t
			}
			sb.WriteString(line)
			sb.WriteByte('\n')
		}

		for _, name := range sortedNames(p.slotConns) {
			sc := p.slotConns[name]
			line := "    consume " + name
			if sc.target >= 0 {
				line += fmt.Sprintf(" as slot%d", sc.target)
			}
			if sc.spec == nil {
				line += " // undeclared"
			}
			sb.WriteString(line)
			sb.WriteByte('\n')

			for _, ps := range sortedNames(sc.provided) {
				idx := sc.provided[ps]
				fmt.Fprintf(&sb, "      provide %s as slot%d\n", ps, idx)
				for _, vc := range g.slots[idx].viewConns {
					fmt.Fprintf(&sb, "        view %s\n", vc.name)
				}
			}
		}
	}

	for _, c := range g.constraints {
		sb.WriteString("  constraint " + c.String())
		sb.WriteByte('\n')
	}

	return sb.String()
}
