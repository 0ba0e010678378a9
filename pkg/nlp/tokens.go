package nlp

import (
	"log/slog"
	"strings"
	"sync"
	"unicode"

	"github.com/pkoukk/tiktoken-go"

	"github.com/soundprediction/kgroute/pkg/types"
)

// DefaultEncoding is the tokenizer used for estimates.
const DefaultEncoding = "o200k_base"

// messageOverhead approximates role and separator tokens per chat message.
const messageOverhead = 4

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

func encoding() *tiktoken.Tiktoken {
	encOnce.Do(func() {
		var err error
		enc, err = tiktoken.GetEncoding(DefaultEncoding)
		if err != nil {
			slog.Warn("tiktoken encoding unavailable, falling back to word estimate", "encoding", DefaultEncoding, "error", err)
		}
	})
	return enc
}

// CountTokens estimates the number of tokens in text.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if e := encoding(); e != nil {
		return len(e.Encode(text, nil, nil))
	}
	return estimateWords(text)
}

// CountMessageTokens estimates the prompt size of a chat request.
func CountMessageTokens(messages []types.Message) int {
	total := 0
	for _, m := range messages {
		total += CountTokens(m.Content) + messageOverhead
	}
	return total
}

// estimateUsage fills in usage for providers that do not report it.
func estimateUsage(messages []types.Message, completion string) *types.TokenUsage {
	prompt := CountMessageTokens(messages)
	out := CountTokens(completion)
	return &types.TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: out,
		TotalTokens:      prompt + out,
	}
}

func estimateWords(text string) int {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	return int(float64(len(words)) * 1.3)
}
