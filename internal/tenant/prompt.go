package tenant

import (
	"sort"
	"strings"
)

// SystemPrompt composes the tenant persona, knowledge-base facts and the
// user's remembered context into one system prompt. Facts are emitted in
// sorted key order so the prompt is stable across calls.
func (p *Profile) SystemPrompt(firstName, longTermMemory string) string {
	var b strings.Builder
	b.WriteString(p.Persona)

	if len(p.Facts) > 0 {
		b.WriteString("\n\nKnown facts:\n")
		keys := make([]string, 0, len(p.Facts))
		for k := range p.Facts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString("- ")
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(p.Facts[k])
			b.WriteString("\n")
		}
	}

	if firstName != "" {
		b.WriteString("\nThe user's name is ")
		b.WriteString(firstName)
		b.WriteString(".")
	}
	if longTermMemory != "" {
		b.WriteString("\nWhat you remember about this user: ")
		b.WriteString(longTermMemory)
	}
	return b.String()
}
