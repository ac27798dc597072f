package openai

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/joseph-ayodele/contracts-desk/constants"
	"github.com/joseph-ayodele/contracts-desk/internal/extract"
	"github.com/joseph-ayodele/contracts-desk/internal/model"
)

// buildSystemPrompt composes the system message: output contract, date and
// number formatting rules, and the fixed-field rules for corrected passes.
func buildSystemPrompt(ct constants.ContractType, prior *extract.Context) string {
	parts := []string{
		"You are a contract data extractor. Return ONLY JSON that matches the provided JSON Schema.",
		"The document is a " + strings.ReplaceAll(string(ct), "_", " ") + ".",
		"Use ISO-8601 dates (YYYY-MM-DD).",
		"Monetary amounts and quantities are JSON numbers, never formatted strings.",
		"Line items go under 'line_items' as an array of objects.",
		"Never output null. If a field is not present in the document, omit it.",
	}

	if prior != nil && len(prior.Pinned) > 0 {
		names := make([]string, 0, len(prior.Pinned))
		for n := range prior.Pinned {
			names = append(names, n)
		}
		sort.Strings(names)
		var fixed []string
		for _, n := range names {
			fixed = append(fixed, fmt.Sprintf("%s=%s", n, renderPinned(prior.Pinned[n])))
		}
		parts = append(parts,
			"The user has fixed the following fields. Return them EXACTLY as given and never change them: "+
				strings.Join(fixed, "; ")+".")
	}
	if prior != nil && strings.TrimSpace(prior.Instructions) != "" {
		parts = append(parts,
			"Apply these user corrections to the remaining fields: "+strings.TrimSpace(prior.Instructions))
	}
	return strings.Join(parts, " ")
}

// buildUserPrompt packages the filename hint and, on corrected passes, the
// previous pass output so the model produces a revision rather than a cold
// extraction.
func buildUserPrompt(doc extract.DocumentRef, prior *extract.Context) string {
	var b strings.Builder
	b.WriteString("Filename: ")
	b.WriteString(doc.Filename)
	b.WriteString("\nFormat: ")
	b.WriteString(string(doc.Format))
	b.WriteString("\n")

	if prior != nil && prior.Previous != nil {
		b.WriteString("\nPrevious extraction (generation ")
		fmt.Fprintf(&b, "%d", prior.Previous.Generation)
		b.WriteString("):\n")
		b.WriteString(renderPrevious(prior.Previous))
		b.WriteString("\n")
	}
	return b.String()
}

func renderPrevious(r *model.ExtractionResult) string {
	m := make(map[string]any, len(r.Fields))
	for _, f := range r.Fields {
		m[f.Name] = flatten(f.Value)
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func renderPinned(v model.FieldValue) string {
	b, _ := json.Marshal(flatten(v))
	return string(b)
}

// flatten turns a tagged FieldValue back into the plain JSON shape the
// model emits.
func flatten(v model.FieldValue) any {
	if v.Null {
		return nil
	}
	switch v.Kind {
	case model.KindNumber:
		return v.Num
	case model.KindDate:
		return v.Date
	case model.KindList:
		out := make([]map[string]any, 0, len(v.List))
		for _, item := range v.List {
			entry := make(map[string]any, len(item))
			for k, iv := range item {
				entry[k] = flatten(iv)
			}
			out = append(out, entry)
		}
		return out
	default:
		return v.Str
	}
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
