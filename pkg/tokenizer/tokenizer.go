// Package tokenizer estimates token counts for text and message lists
// against a named model's configuration. Counts are deterministic for a
// given input and configuration; when no exact tokenizer is available for
// a model, a heuristic proportional to character length is used, biased
// to over-estimate rather than under-estimate so budgets stay safe.
package tokenizer

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Message is the minimal shape the counter needs — role and content —
// kept independent of any higher-level conversation model so this
// package stays a leaf dependency.
type Message struct {
	Role    string
	Content string
}

// ModelConfig exposes the constants a token estimate was derived from.
type ModelConfig struct {
	AvgCharsPerToken   float64
	ContextWindow      int
	PerMessageOverhead int // fixed tokens added per message (role/separator tokens)
}

// knownModels mirrors the chars-per-token/context-window constants used
// across the major model families. Unlisted models fall back to
// defaultModelConfig.
var knownModels = map[string]ModelConfig{
	"gpt-4":                  {AvgCharsPerToken: 4.0, ContextWindow: 8192, PerMessageOverhead: 4},
	"gpt-4o":                 {AvgCharsPerToken: 4.0, ContextWindow: 128000, PerMessageOverhead: 4},
	"gpt-4o-mini":            {AvgCharsPerToken: 4.0, ContextWindow: 128000, PerMessageOverhead: 4},
	"gpt-3.5-turbo":          {AvgCharsPerToken: 4.0, ContextWindow: 16385, PerMessageOverhead: 4},
	"text-embedding-3-small": {AvgCharsPerToken: 4.0, ContextWindow: 8191, PerMessageOverhead: 0},
	"claude-3-opus":          {AvgCharsPerToken: 3.7, ContextWindow: 200000, PerMessageOverhead: 3},
	"claude-3-5-sonnet":      {AvgCharsPerToken: 3.7, ContextWindow: 200000, PerMessageOverhead: 3},
	"claude-3-haiku":         {AvgCharsPerToken: 3.7, ContextWindow: 200000, PerMessageOverhead: 3},
}

var defaultModelConfig = ModelConfig{AvgCharsPerToken: 4.0, ContextWindow: 8192, PerMessageOverhead: 4}

// tiktokenModels lists the model families tiktoken-go can encode exactly.
// Anything else uses the heuristic unconditionally.
var tiktokenModels = map[string]bool{
	"gpt-4": true, "gpt-4o": true, "gpt-4o-mini": true, "gpt-3.5-turbo": true,
}

var encodingCache sync.Map // model -> *tiktoken.Tiktoken

// Counter estimates token counts for a specific target model.
type Counter struct {
	model    string
	config   ModelConfig
	encoding *tiktoken.Tiktoken // nil when falling back to the heuristic
}

// NewCounter builds a Counter for model. If model is recognized and
// tiktoken-go ships an exact encoder for it, that encoder is used;
// otherwise CountText falls back to the chars-per-token heuristic.
func NewCounter(model string) *Counter {
	cfg, ok := knownModels[model]
	if !ok {
		cfg = defaultModelConfig
	}

	c := &Counter{model: model, config: cfg}
	if tiktokenModels[model] {
		c.encoding = loadEncoding(model)
	}
	return c
}

func loadEncoding(model string) *tiktoken.Tiktoken {
	if v, ok := encodingCache.Load(model); ok {
		enc, _ := v.(*tiktoken.Tiktoken)
		return enc
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encodingCache.Store(model, (*tiktoken.Tiktoken)(nil))
		return nil
	}
	encodingCache.Store(model, enc)
	return enc
}

// CountText returns the estimated token count for text along with the
// chars-per-token ratio the estimate implies (with an exact encoder, the
// text's length in bytes divided by the encoded token count).
func (c *Counter) CountText(text string) (count int, charsPerToken float64) {
	if text == "" {
		return 0, c.config.AvgCharsPerToken
	}
	if c.encoding != nil {
		n := len(c.encoding.Encode(text, nil, nil))
		return n, float64(len(text)) / float64(max(n, 1))
	}
	return heuristicCount(text, c.config.AvgCharsPerToken), c.config.AvgCharsPerToken
}

// CountMessages sums per-message token counts plus a fixed per-message
// overhead approximating role/separator tokens the underlying model adds.
func (c *Counter) CountMessages(messages []Message) int {
	total := 0
	for _, m := range messages {
		n, _ := c.CountText(m.Content)
		total += n + c.config.PerMessageOverhead
	}
	return total
}

// GetModelConfig exposes the constants backing this counter's estimates.
func (c *Counter) GetModelConfig() ModelConfig {
	return c.config
}

// heuristicCount over-estimates slightly (ceil division) rather than
// under-counts, per the "over-estimation is preferred" contract.
func heuristicCount(text string, avgCharsPerToken float64) int {
	if avgCharsPerToken <= 0 {
		avgCharsPerToken = defaultModelConfig.AvgCharsPerToken
	}
	chars := len([]rune(text))
	byChar := int((float64(chars) + avgCharsPerToken - 1) / avgCharsPerToken)

	words := len(strings.Fields(text))
	byWord := (words*4 + 2) / 3 // ~4 tokens per 3 words, rounded up

	if byWord > byChar {
		return max(byWord, 1)
	}
	return max(byChar, 1)
}

// CountTokens is a package-level convenience using the default model
// configuration — kept for call sites that don't need per-model
// precision (e.g. quick UI-side estimates).
func CountTokens(text string) int {
	n, _ := NewCounter("").CountText(text)
	return n
}

// CountTokensForModel estimates token count for a specific named model.
func CountTokensForModel(text, model string) int {
	n, _ := NewCounter(model).CountText(text)
	return n
}
