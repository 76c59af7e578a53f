package station

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Finder is the directory lookup a Searcher runs. *Client satisfies it.
type Finder interface {
	SearchByName(ctx context.Context, query string, limit int) ([]Station, error)
}

// Searcher runs directory lookups off the caller's goroutine and
// guarantees that only the latest query's results are delivered: a new
// Search invalidates every lookup still in flight, no matter how the
// network interleaves their completions.
type Searcher struct {
	finder Finder
	limit  int

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc

	onResults func(query string, stations []Station)
	onError   func(query string, err error)
}

// NewSearcher wraps a directory finder. limit caps results per query.
func NewSearcher(finder Finder, limit int) *Searcher {
	return &Searcher{finder: finder, limit: limit}
}

// SetOnResults registers the delivery callback. It runs on the lookup
// goroutine; register before the first Search.
func (s *Searcher) SetOnResults(fn func(query string, stations []Station)) { s.onResults = fn }

// SetOnError registers the failure callback.
func (s *Searcher) SetOnError(fn func(query string, err error)) { s.onError = fn }

// Search starts a lookup for query, cancelling any lookup still in
// flight. Results from superseded lookups are silently dropped.
func (s *Searcher) Search(ctx context.Context, query string) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	if s.cancel != nil {
		s.cancel()
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	go func() {
		stations, err := s.finder.SearchByName(ctx, query, s.limit)

		s.mu.Lock()
		stale := gen != s.gen
		s.mu.Unlock()
		if stale {
			log.Debug().Str("query", query).Msg("dropping stale search results")
			return
		}

		if err != nil {
			if ctx.Err() == nil && s.onError != nil {
				s.onError(query, err)
			}
			return
		}
		if s.onResults != nil {
			s.onResults(query, stations)
		}
	}()
}

// Cancel invalidates any lookup in flight without starting a new one.
func (s *Searcher) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
