package usecase

import (
	"log/slog"

	"github.com/pkoukk/tiktoken-go"

	"canvaschat/internal/domain"
)

// TokenCounter estimates the token cost of a piece of text.
type TokenCounter interface {
	CountText(text string) int
}

// TiktokenCounter counts with a real BPE encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTokenCounter returns a tiktoken-backed counter for the named encoding,
// falling back to a bytes/4 heuristic when the encoding cannot be loaded
// (tiktoken fetches encoding data on first use, which can fail offline).
func NewTokenCounter(encoding string, logger *slog.Logger) TokenCounter {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		logger.Warn("tiktoken encoding unavailable, using heuristic counter", "encoding", encoding, "error", err)
		return HeuristicCounter{}
	}
	return &TiktokenCounter{enc: enc}
}

func (c *TiktokenCounter) CountText(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// HeuristicCounter approximates one token per four bytes.
type HeuristicCounter struct{}

func (HeuristicCounter) CountText(text string) int {
	return (len(text) + 3) / 4
}

// TrimHistory drops the oldest history pairs until the remainder fits the
// token budget. The newest pairs always survive; a budget of 0 disables
// trimming. A single over-budget pair is kept rather than sending no history
// at all.
func TrimHistory(pairs []domain.HistoryPair, budget int, counter TokenCounter) []domain.HistoryPair {
	if budget <= 0 || len(pairs) == 0 {
		return pairs
	}

	total := 0
	// Walk newest to oldest, keeping pairs while they fit.
	keepFrom := len(pairs)
	for i := len(pairs) - 1; i >= 0; i-- {
		cost := counter.CountText(pairs[i].Content)
		if total+cost > budget && keepFrom < len(pairs) {
			break
		}
		total += cost
		keepFrom = i
	}
	return pairs[keepFrom:]
}
