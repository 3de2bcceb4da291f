package transcript

import (
	"fmt"
	"os"
	"strings"
)

// LoadTerms reads a vocabulary file: one term per line, blank lines and lines
// starting with '#' skipped, surrounding whitespace trimmed.
func LoadTerms(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("transcript: read vocabulary: %w", err)
	}

	var terms []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		terms = append(terms, line)
	}
	return terms, nil
}

// MergeTerms combines vocabulary lists in order, dropping duplicates
// case-insensitively. The first spelling of a term wins.
func MergeTerms(lists ...[]string) []string {
	var merged []string
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, term := range list {
			term = strings.TrimSpace(term)
			if term == "" {
				continue
			}
			key := strings.ToLower(term)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, term)
		}
	}
	return merged
}
