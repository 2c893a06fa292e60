// Package resultformat implements the result formatter (C7): snippet
// extraction, highlighting, and boundary-preserving truncation for search
// results.
package resultformat

import (
	"regexp"
	"sort"
	"strings"
)

// Options controls snippet extraction and highlighting.
type Options struct {
	ContextLength  int
	MaxLength      int
	PreserveWords  bool
	MaxHighlights  int
	HighlightStart string
	HighlightEnd   string
}

// DefaultOptions mirrors the spec's defaults.
func DefaultOptions() Options {
	return Options{
		ContextLength:  40,
		MaxLength:      200,
		PreserveWords:  true,
		MaxHighlights:  10,
		HighlightStart: "<mark>",
		HighlightEnd:   "</mark>",
	}
}

// Snippet is the metadata Format produces for one (content, terms) pair.
type Snippet struct {
	Snippet         string
	MatchCount      int
	HighlightedTerms []string
	Start           int
	End             int
}

type match struct {
	start, end int
	term       string
}

// Format finds every case-insensitive occurrence of each term in content,
// picks the highest-scoring window of opts.MaxLength bytes (widened to
// word boundaries when opts.PreserveWords is set), then highlights and
// ellipsis-decorates it.
func Format(content string, terms []string, opts Options) Snippet {
	if opts.MaxLength <= 0 {
		opts = DefaultOptions()
	}

	matches := findMatches(content, terms)
	if len(matches) == 0 {
		return emptySnippet(content, opts)
	}

	region := bestRegion(content, matches, opts)
	region = extendToWordBoundary(content, region, opts)

	text := content[region.start:region.end]
	inRegion := matchesInRegion(matches, region)
	text, highlighted := highlight(text, inRegion, region.start, opts)

	if region.start > 0 {
		text = "…" + text
	}
	if region.end < len(content) {
		text = text + "…"
	}

	return Snippet{
		Snippet:          text,
		MatchCount:       len(inRegion),
		HighlightedTerms: highlighted,
		Start:            region.start,
		End:              region.end,
	}
}

func emptySnippet(content string, opts Options) Snippet {
	text := content
	truncated := false
	if len(text) > opts.MaxLength {
		text = text[:opts.MaxLength]
		truncated = true
	}
	if opts.PreserveWords && truncated {
		if idx := lastWhitespaceWithinTail(text, opts.MaxLength/5); idx > 0 {
			text = text[:idx]
		}
	}
	if truncated {
		text += "…"
	}
	return Snippet{Snippet: text, Start: 0, End: len(text)}
}

func findMatches(content string, terms []string) []match {
	var out []match
	lower := strings.ToLower(content)
	for _, term := range terms {
		if term == "" {
			continue
		}
		re, err := regexp.Compile(regexp.QuoteMeta(strings.ToLower(term)))
		if err != nil {
			continue
		}
		for _, loc := range re.FindAllStringIndex(lower, -1) {
			out = append(out, match{start: loc[0], end: loc[1], term: term})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}

type window struct {
	start, end int
}

func bestRegion(content string, matches []match, opts Options) window {
	n := len(matches)
	if n > 5 {
		n = 5
	}

	best := window{start: 0, end: minInt(opts.MaxLength, len(content))}
	bestScore := -1.0

	for i := 0; i < n; i++ {
		start := matches[i].start - opts.ContextLength
		if start < 0 {
			start = 0
		}
		end := start + opts.MaxLength
		if end > len(content) {
			end = len(content)
			start = maxInt(0, end-opts.MaxLength)
		}

		score := 0.0
		for _, m := range matches {
			if m.start >= start && m.end <= end {
				score += 1
				score += float64(m.end-m.start) / float64(opts.MaxLength)
			}
		}
		if score > bestScore {
			bestScore = score
			best = window{start: start, end: end}
		}
	}
	return best
}

func extendToWordBoundary(content string, w window, opts Options) window {
	if !opts.PreserveWords {
		return w
	}
	start := w.start
	for start > 0 && !isBoundaryRune(rune(content[start-1])) {
		start--
	}
	end := w.end
	for end < len(content) && !isBoundaryRune(rune(content[end])) {
		end++
	}
	return window{start: start, end: end}
}

func isBoundaryRune(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n'
}

func lastWhitespaceWithinTail(s string, tail int) int {
	limit := len(s) - tail
	if limit < 0 {
		limit = 0
	}
	for i := len(s) - 1; i >= limit; i-- {
		if isBoundaryRune(rune(s[i])) {
			return i
		}
	}
	return -1
}

func matchesInRegion(matches []match, w window) []match {
	var out []match
	for _, m := range matches {
		if m.start >= w.start && m.end <= w.end {
			out = append(out, m)
		}
	}
	return out
}

// highlight wraps up to opts.MaxHighlights matches within text (already
// relative to region.start) with opts.HighlightStart/End, applied
// last-to-first so earlier indices stay valid, and returns the distinct
// terms that were actually highlighted.
func highlight(text string, matches []match, regionStart int, opts Options) (string, []string) {
	n := len(matches)
	if n > opts.MaxHighlights {
		n = opts.MaxHighlights
	}
	applied := matches[:n]

	termSet := map[string]bool{}
	var terms []string
	for _, m := range applied {
		if !termSet[m.term] {
			termSet[m.term] = true
			terms = append(terms, m.term)
		}
	}

	for i := len(applied) - 1; i >= 0; i-- {
		m := applied[i]
		relStart := m.start - regionStart
		relEnd := m.end - regionStart
		if relStart < 0 || relEnd > len(text) || relStart >= relEnd {
			continue
		}
		text = text[:relStart] + opts.HighlightStart + text[relStart:relEnd] + opts.HighlightEnd + text[relEnd:]
	}
	return text, terms
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
