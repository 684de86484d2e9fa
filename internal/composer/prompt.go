package composer

import (
	"sort"
	"strings"
)

// DefaultExcerptCap bounds the document excerpt included in a single prompt.
// Roughly 12,500 tokens at 4 chars per token; tune per token-cost constraints
// of the generation backend.
const DefaultExcerptCap = 50000

// Builder assembles the full prompt sent to the generative backend from a
// user instruction and the stored document text. Pure and deterministic.
type Builder struct {
	ExcerptCap int
}

// New creates a Builder with the given excerpt cap in characters. If
// excerptCap <= 0, DefaultExcerptCap is used.
func New(excerptCap int) *Builder {
	if excerptCap <= 0 {
		excerptCap = DefaultExcerptCap
	}
	return &Builder{ExcerptCap: excerptCap}
}

// Build composes the prompt: the document excerpt (truncated from character
// zero to the cap, silently), the literal instruction, and framing that
// directs the model to answer from the document context.
func (b *Builder) Build(instruction, docText string) string {
	excerpt := truncateRunes(docText, b.ExcerptCap)

	var sb strings.Builder
	sb.Grow(len(excerpt) + len(instruction) + 256)
	sb.WriteString("PDF Document Context:\n")
	sb.WriteString(excerpt)
	sb.WriteString("\n\nUser's Specific Request:\n")
	sb.WriteString(instruction)
	sb.WriteString("\n\nPlease provide a comprehensive and precise response based on the document and the user's request.")
	return sb.String()
}

// truncateRunes keeps the first n characters of s. The cap counts runes, not
// bytes, so a multi-byte document is never cut mid-rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// intentTemplates maps each named analysis intent to its instruction text.
// The set is fixed; free-form requests bypass it entirely.
var intentTemplates = map[string]string{
	"summarize": "Provide a clear, concise summary of the document, covering its main points, " +
		"arguments, and conclusions.",
	"document_information": "Describe this document: its type, apparent purpose and audience, " +
		"structure, and overall subject matter.",
	"step_by_step_explanation": "Explain the content of the document step by step, walking " +
		"through each part in the order it appears and clarifying how the pieces relate.",
	"key_insights": "Extract the key insights, findings, and takeaways from the document as a " +
		"concise list, with a short explanation of why each one matters.",
}

// InstructionFor returns the instruction template for a named intent. The
// second result is false for names outside the fixed set.
func InstructionFor(intent string) (string, bool) {
	tpl, ok := intentTemplates[intent]
	return tpl, ok
}

// Intents returns the fixed intent names in sorted order.
func Intents() []string {
	names := make([]string, 0, len(intentTemplates))
	for name := range intentTemplates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
