package station

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// blockingFinder parks lookups until the test releases them, so tests
// control exactly how in-flight queries interleave.
type blockingFinder struct {
	mu      sync.Mutex
	waiting map[string]chan []Station
	err     error
}

func newBlockingFinder() *blockingFinder {
	return &blockingFinder{waiting: make(map[string]chan []Station)}
}

func (f *blockingFinder) SearchByName(ctx context.Context, query string, limit int) ([]Station, error) {
	f.mu.Lock()
	if f.err != nil {
		defer f.mu.Unlock()
		return nil, f.err
	}
	ch := make(chan []Station, 1)
	f.waiting[query] = ch
	f.mu.Unlock()

	select {
	case stations := <-ch:
		return stations, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *blockingFinder) release(query string, stations []Station) {
	for {
		f.mu.Lock()
		ch := f.waiting[query]
		f.mu.Unlock()
		if ch != nil {
			ch <- stations
			return
		}
		time.Sleep(time.Millisecond)
	}
}

type searchRecorder struct {
	mu      sync.Mutex
	queries []string
}

func (r *searchRecorder) record(query string, _ []Station) {
	r.mu.Lock()
	r.queries = append(r.queries, query)
	r.mu.Unlock()
}

func (r *searchRecorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.queries...)
}

func TestSearcherDeliversResults(t *testing.T) {
	finder := newBlockingFinder()
	s := NewSearcher(finder, 10)

	results := make(chan []Station, 1)
	s.SetOnResults(func(_ string, stations []Station) { results <- stations })

	s.Search(context.Background(), "jazz")
	finder.release("jazz", []Station{{Name: "Jazz24"}})

	select {
	case got := <-results:
		if len(got) != 1 || got[0].Name != "Jazz24" {
			t.Errorf("results = %v, want [Jazz24]", got)
		}
	case <-time.After(time.Second):
		t.Fatal("results never delivered")
	}
}

func TestSearcherDropsSupersededResults(t *testing.T) {
	finder := newBlockingFinder()
	s := NewSearcher(finder, 10)

	rec := &searchRecorder{}
	delivered := make(chan struct{}, 2)
	s.SetOnResults(func(query string, stations []Station) {
		rec.record(query, stations)
		delivered <- struct{}{}
	})

	s.Search(context.Background(), "first")
	s.Search(context.Background(), "second")

	// The stale lookup completes after the newer one started; its
	// results must be dropped even though it finishes "successfully".
	finder.release("second", []Station{{Name: "B"}})
	<-delivered
	finder.release("first", []Station{{Name: "A"}})

	time.Sleep(50 * time.Millisecond)
	if got := rec.got(); len(got) != 1 || got[0] != "second" {
		t.Errorf("delivered queries = %v, want [second]", got)
	}
}

func TestSearcherErrorCallback(t *testing.T) {
	finder := newBlockingFinder()
	finder.err = errors.New("directory down")
	s := NewSearcher(finder, 10)

	errs := make(chan error, 1)
	s.SetOnError(func(_ string, err error) { errs <- err })

	s.Search(context.Background(), "anything")

	select {
	case err := <-errs:
		if err.Error() != "directory down" {
			t.Errorf("err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("error never delivered")
	}
}

func TestSearcherCancelSuppressesDelivery(t *testing.T) {
	finder := newBlockingFinder()
	s := NewSearcher(finder, 10)

	rec := &searchRecorder{}
	s.SetOnResults(rec.record)

	s.Search(context.Background(), "doomed")
	s.Cancel()
	finder.release("doomed", []Station{{Name: "X"}})

	time.Sleep(50 * time.Millisecond)
	if got := rec.got(); len(got) != 0 {
		t.Errorf("delivered queries = %v, want none", got)
	}
}
