// Package classify decides whether a question is about mathematics and whether
// it is simple enough to answer without retrieval.
package classify

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
)

//go:embed math_words.txt
var defaultKeywords string

var (
	numericPattern    = regexp.MustCompile(`\d+\.?\d*`)
	arithmeticPattern = regexp.MustCompile(`^[\d\s+\-*/().]+$`)
)

// Classifier holds the keyword set and theory openers. It is immutable after
// construction and safe for concurrent use.
type Classifier struct {
	keywords []string
	openers  []string
}

func New(keywords []string, openers []string) *Classifier {
	return &Classifier{
		keywords: normalize(keywords),
		openers:  normalize(openers),
	}
}

// NewDefault uses the embedded keyword list.
func NewDefault(openers []string) *Classifier {
	keywords, _ := ParseKeywords(strings.NewReader(defaultKeywords))
	return New(keywords, openers)
}

// Load reads keywords from path, or falls back to the embedded list when path
// is empty.
func Load(path string, openers []string) (*Classifier, error) {
	if strings.TrimSpace(path) == "" {
		return NewDefault(openers), nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keywords: %w", err)
	}
	defer file.Close()
	keywords, err := ParseKeywords(file)
	if err != nil {
		return nil, fmt.Errorf("read keywords %s: %w", path, err)
	}
	return New(keywords, openers), nil
}

// ParseKeywords reads one keyword per line. A trailing CSV column separator is
// tolerated so single-column CSV exports load unchanged.
func ParseKeywords(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	keywords := []string{}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimSpace(strings.TrimSuffix(line, ","))
		line = strings.Trim(line, `"`)
		if line == "" {
			continue
		}
		keywords = append(keywords, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return keywords, nil
}

func (c *Classifier) IsMathQuestion(text string) bool {
	if numericPattern.MatchString(text) {
		return true
	}
	lower := strings.ToLower(text)
	for _, keyword := range c.keywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

func (c *Classifier) IsBasicArithmeticOrTheory(text string) bool {
	trimmed := strings.TrimSpace(text)
	if arithmeticPattern.MatchString(trimmed) {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, opener := range c.openers {
		if strings.HasPrefix(lower, opener) {
			return true
		}
	}
	return false
}

func (c *Classifier) Keywords() []string {
	return append([]string{}, c.keywords...)
}

func normalize(values []string) []string {
	seen := map[string]struct{}{}
	results := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.ToLower(strings.TrimSpace(value))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		results = append(results, trimmed)
	}
	sort.Strings(results)
	return results
}
