package search

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"voterlist-backend/internal/documents"
)

var (
	ErrEmptyQuery = errors.New("search query is empty")
	ErrNotReady   = errors.New("document extraction not complete")
)

const (
	maxResults = 4
	maxPage    = 10
	maxOffset  = 500
)

// Result is one hit inside a document.
type Result struct {
	Page    int    `json:"page"`
	Snippet string `json:"snippet"`
	Offset  int    `json:"offset"`
}

// Navigation acknowledges a selected result.
type Navigation struct {
	Page    int    `json:"page"`
	Offset  int    `json:"offset"`
	Message string `json:"message"`
}

// Capabilities describes what an engine really does.
type Capabilities struct {
	Simulated bool `json:"simulated"`
}

// Engine searches the extracted text of a document.
type Engine interface {
	Search(ctx context.Context, query string, doc documents.Document) ([]Result, error)
	SelectResult(r Result) Navigation
	Capabilities() Capabilities
}

// MockEngine fabricates results after a fixed latency. Output is random and
// unrelated to the document content; it stands in for a real index.
type MockEngine struct {
	Latency time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMockEngine returns a mock engine seeded from seed.
func NewMockEngine(latency time.Duration, seed uint64) *MockEngine {
	return &MockEngine{
		Latency: latency,
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Search waits Latency and returns between one and four fabricated hits that
// quote query.
func (e *MockEngine) Search(ctx context.Context, query string, doc documents.Document) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if doc.Status != documents.StatusOCRComplete {
		return nil, ErrNotReady
	}

	if e.Latency > 0 {
		timer := time.NewTimer(e.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	count := max(1, e.intN(maxResults+1))
	results := make([]Result, 0, count)
	for i := 0; i < count; i++ {
		results = append(results, Result{
			Page:    e.intN(maxPage) + 1,
			Snippet: fmt.Sprintf("...%s নামীয় ভোটার তালিকাভুক্ত...", query),
			Offset:  e.intN(maxOffset),
		})
	}
	return results, nil
}

// SelectResult reports where the viewer should jump. No navigation happens.
func (e *MockEngine) SelectResult(r Result) Navigation {
	return Navigation{
		Page:    r.Page,
		Offset:  r.Offset,
		Message: fmt.Sprintf("পিডিএফ এর পৃষ্ঠা %d এ যাওয়া হচ্ছে...", r.Page),
	}
}

// Capabilities marks the engine as simulated.
func (e *MockEngine) Capabilities() Capabilities {
	return Capabilities{Simulated: true}
}

func (e *MockEngine) intN(n int) int {
	if e.rng == nil {
		return rand.IntN(n)
	}
	return e.rng.IntN(n)
}

var _ Engine = (*MockEngine)(nil)
