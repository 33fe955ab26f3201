package model

import (
	"strconv"
	"strings"
)

// Fingerprint renders the subtree owned by uuid canonically. Instances inside the
// subtree are named by their depth-first position, so two subtrees built
// independently with identical content have identical fingerprints.
func (g *Graph) Fingerprint(s *Schema, uuid string) string {
	members := g.Subtree(s, uuid)
	local := make(map[string]string, len(members))
	for i, id := range members {
		local[id] = "#" + strconv.Itoa(i)
	}

	var sb strings.Builder
	for _, id := range members {
		inst := g.Insts[id]
		sb.WriteString(local[id])
		sb.WriteByte(' ')
		sb.WriteString(inst.Type)
		sb.WriteByte('{')
		for _, name := range inst.FieldNames(s) {
			v, ok := inst.Fields[name]
			if !ok {
				continue
			}
			v = v.Rewrite(func(ref string) (string, bool) {
				if l, in := local[ref]; in {
					return l, true
				}
				return ref, true
			})
			sb.WriteString(name)
			sb.WriteByte('=')
			sb.WriteString(v.Key())
			sb.WriteByte(';')
		}
		sb.WriteString("}\n")
	}
	return sb.String()
}

// ListFingerprint fingerprints every subtree referenced by an owned list field
func (g *Graph) ListFingerprint(s *Schema, v Value) string {
	var sb strings.Builder
	for _, ref := range v.RefIDs() {
		sb.WriteString(g.Fingerprint(s, ref))
		sb.WriteString("--\n")
	}
	return sb.String()
}
