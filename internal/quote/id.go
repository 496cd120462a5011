package quote

import (
	"context"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// quoteAlphabet omits the easily confused I, O, 0 and 1.
const (
	quoteAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	quoteIDLength = 8
	quoteIDPrefix = "Q-"
)

// NewQuoteID returns a random identifier such as Q-7K2M9GX4.
func NewQuoteID() (string, error) {
	id, err := gonanoid.Generate(quoteAlphabet, quoteIDLength)
	if err != nil {
		return "", fmt.Errorf("quote id: %w", err)
	}
	return quoteIDPrefix + id, nil
}

// ValidQuoteID reports whether id has the shape NewQuoteID produces.
func ValidQuoteID(id string) bool {
	if len(id) != len(quoteIDPrefix)+quoteIDLength || id[:len(quoteIDPrefix)] != quoteIDPrefix {
		return false
	}
	for i := len(quoteIDPrefix); i < len(id); i++ {
		found := false
		for j := 0; j < len(quoteAlphabet); j++ {
			if id[i] == quoteAlphabet[j] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

type idChecker interface {
	QuoteIDExists(ctx context.Context, quoteID string) (bool, error)
}

// idAllocator picks quote IDs that are not yet taken.
type idAllocator struct {
	checker  idChecker
	generate func() (string, error)
	maxTries int
	logger   zerolog.Logger
}

// Allocate checks up to maxTries candidates. A failed lookup is retried once;
// if it fails again the candidate is used unchecked. When every candidate is
// taken a fresh one is returned. In both cases the unique constraint on insert
// has the final say.
func (a idAllocator) Allocate(ctx context.Context) (string, error) {
	tries := a.maxTries
	if tries <= 0 {
		tries = 5
	}
	for i := 0; i < tries; i++ {
		candidate, err := a.generate()
		if err != nil {
			return "", err
		}
		taken, err := a.checker.QuoteIDExists(ctx, candidate)
		if err != nil {
			taken, err = a.checker.QuoteIDExists(ctx, candidate)
		}
		if err != nil {
			a.logger.Warn().Err(err).Str("candidate", candidate).Msg("quote id lookup failed, using unchecked")
			return candidate, nil
		}
		if !taken {
			return candidate, nil
		}
	}
	return a.generate()
}
