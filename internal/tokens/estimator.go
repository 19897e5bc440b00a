// Package tokens provides conservative token estimation for context-fit
// decisions. Counts are heuristics across vendors, not exact accounting.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	. "github.com/modelrelay/modelrelay/internal/logging"
)

// DefaultEncoding approximates tokenization well enough across vendors
// for admission-control purposes.
const DefaultEncoding = "cl100k_base"

// Estimator estimates token counts for text.
type Estimator struct {
	encoding *tiktoken.Tiktoken
	mu       sync.RWMutex
}

var (
	globalEstimator     *Estimator
	globalEstimatorOnce sync.Once
)

// Get returns the global token estimator.
func Get() *Estimator {
	globalEstimatorOnce.Do(func() {
		var err error
		globalEstimator, err = New()
		if err != nil {
			L_warn("tokens: estimator init failed, using char fallback", "error", err)
			globalEstimator = &Estimator{}
		}
	})
	return globalEstimator
}

// New creates a token estimator.
func New() (*Estimator, error) {
	enc, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		return nil, err
	}
	return &Estimator{encoding: enc}, nil
}

// Estimate returns the approximate token count for text. Falls back to
// a 4-chars-per-token heuristic when no encoding is available.
func (e *Estimator) Estimate(text string) int {
	if e == nil || e.encoding == nil {
		return len(text) / 4
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.encoding.Encode(text, nil, nil))
}
