package textclean

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

const redactionMark = "*"

// Filter finds blocked terms in text.
type Filter struct {
	terms []string
}

// NewFilter builds a filter from terms, ignoring empty ones.
func NewFilter(terms []string) *Filter {
	kept := make([]string, 0, len(terms))

	for _, term := range terms {
		if strings.TrimSpace(term) != "" {
			kept = append(kept, term)
		}
	}

	// Longest first so Redact masks whole variants before their substrings.
	sort.SliceStable(kept, func(i, j int) bool {
		return len(kept[i]) > len(kept[j])
	})

	return &Filter{terms: kept}
}

// LoadFilter reads a JSON list of terms. An object is accepted too; its
// first list value is used.
func LoadFilter(path string) (*Filter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read filter file %s: %w", path, err)
	}

	var terms []string

	err = json.Unmarshal(data, &terms)
	if err == nil {
		return NewFilter(terms), nil
	}

	var grouped map[string]json.RawMessage

	err = json.Unmarshal(data, &grouped)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal filter file %s: %w", path, err)
	}

	keys := make([]string, 0, len(grouped))
	for key := range grouped {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		listErr := json.Unmarshal(grouped[key], &terms)
		if listErr == nil {
			return NewFilter(terms), nil
		}
	}

	return NewFilter(nil), nil
}

// Find returns the terms present in text.
func (f *Filter) Find(text string) []string {
	var found []string

	for _, term := range f.terms {
		if strings.Contains(text, term) {
			found = append(found, term)
		}
	}

	return found
}

// Safe reports whether text contains none of the terms.
func (f *Filter) Safe(text string) bool {
	return len(f.Find(text)) == 0
}

// Redact masks every occurrence of every term, one mark per rune.
func (f *Filter) Redact(text string) string {
	for _, term := range f.terms {
		text = strings.ReplaceAll(text, term, strings.Repeat(redactionMark, len([]rune(term))))
	}

	return text
}
