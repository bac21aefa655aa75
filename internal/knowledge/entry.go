// Package knowledge holds the curated problem set, its embedding index and the
// nearest-neighbour retriever built on top of both.
package knowledge

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// Entry is one solved problem. JSON keys follow the dataset the knowledge base
// is exported from.
type Entry struct {
	Problem          string `json:"Problem"`
	Category         string `json:"category,omitempty"`
	AnnotatedFormula string `json:"annotated_formula,omitempty"`
	LinearFormula    string `json:"linear_formula,omitempty"`
	Rationale        string `json:"Rationale"`
}

var ErrEmptyKnowledgeBase = errors.New("knowledge base has no entries")

func LoadEntries(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open knowledge base: %w", err)
	}
	defer file.Close()
	entries, err := ParseEntries(file)
	if err != nil {
		return nil, fmt.Errorf("knowledge base %s: %w", path, err)
	}
	return entries, nil
}

func ParseEntries(r io.Reader) ([]Entry, error) {
	var entries []Entry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode entries: %w", err)
	}
	if len(entries) == 0 {
		return nil, ErrEmptyKnowledgeBase
	}
	return entries, nil
}

func problems(entries []Entry) []string {
	texts := make([]string, len(entries))
	for i, entry := range entries {
		texts[i] = entry.Problem
	}
	return texts
}
