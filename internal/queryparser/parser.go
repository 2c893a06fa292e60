// Package queryparser implements the query parser (C6): parsing,
// term extraction, and validation. Pure — no I/O, no dependency on any
// other component.
package queryparser

import (
	"strings"
)

// MatchType selects how a parsed query should be matched against storage.
type MatchType string

const (
	MatchExact  MatchType = "exact"
	MatchPrefix MatchType = "prefix"
	MatchFuzzy  MatchType = "fuzzy" // default
)

// ParsedQuery is the result of Parse.
type ParsedQuery struct {
	Query        string
	MatchType    MatchType
	HasOperators bool
	IsValid      bool
	Error        string
}

// operatorChars are stripped by ExtractTerms and detected by HasOperators.
const operatorChars = `'"*(){}[]`

const maxQueryLength = 2048

// Parse builds a ParsedQuery for the given raw query and optional match
// type (defaults to fuzzy). The returned query text reflects the
// requested match type: exact wraps in quotes, prefix appends a
// trailing "*".
func Parse(query string, matchType MatchType) ParsedQuery {
	if matchType == "" {
		matchType = MatchFuzzy
	}

	v := Validate(query)
	if !v.IsValid {
		return ParsedQuery{Query: query, MatchType: matchType, IsValid: false, Error: v.Error}
	}

	trimmed := strings.TrimSpace(query)
	hasOperators := strings.ContainsAny(trimmed, operatorChars)

	formatted := trimmed
	switch matchType {
	case MatchExact:
		formatted = `"` + trimmed + `"`
	case MatchPrefix:
		formatted = trimmed + "*"
	}

	return ParsedQuery{
		Query:        formatted,
		MatchType:    matchType,
		HasOperators: hasOperators,
		IsValid:      true,
	}
}

// ExtractTerms splits query into search terms: quoted phrases are
// preserved whole (quotes stripped), operator characters are stripped
// from unquoted tokens, tokens split on whitespace, empty tokens
// discarded.
func ExtractTerms(query string) []string {
	var terms []string
	var buf strings.Builder
	inQuote := false

	flush := func() {
		t := strings.TrimSpace(buf.String())
		buf.Reset()
		if t != "" {
			terms = append(terms, t)
		}
	}

	for _, r := range query {
		switch {
		case r == '"':
			if inQuote {
				flush()
				inQuote = false
			} else {
				flush()
				inQuote = true
			}
		case !inQuote && (r == ' ' || r == '\t' || r == '\n'):
			flush()
		case !inQuote && strings.ContainsRune(`'*(){}[]`, r):
			// operator characters are dropped outside quotes
		default:
			buf.WriteRune(r)
		}
	}
	flush()

	return terms
}

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	IsValid bool
	Error   string
}

// Validate rejects an empty query, one longer than 2,048 characters, or
// one with unmatched quotes.
func Validate(query string) ValidationResult {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return ValidationResult{IsValid: false, Error: "query must not be empty"}
	}
	if len(query) > maxQueryLength {
		return ValidationResult{IsValid: false, Error: "query exceeds maximum length of 2048 characters"}
	}
	if strings.Count(trimmed, `"`)%2 != 0 {
		return ValidationResult{IsValid: false, Error: "query contains an unmatched quote"}
	}
	return ValidationResult{IsValid: true}
}
