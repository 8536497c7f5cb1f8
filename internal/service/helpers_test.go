package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/voyagen/playlistvault/internal/logging"
	"github.com/voyagen/playlistvault/internal/models"
	"github.com/voyagen/playlistvault/internal/store"
)

func discardLogger() *slog.Logger {
	return logging.Discard()
}

func newTestStore(t *testing.T) *store.SQLite {
	t.Helper()
	path := filepath.Join(t.TempDir(), "service.db")
	if err := store.RunMigrations(store.DriverSQLite, path); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	s, err := store.NewSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fetcherFunc adapts a function to fetcher.Fetcher.
type fetcherFunc func(ctx context.Context, url string) ([]byte, error)

func (f fetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) { return f(ctx, url) }

func staticFetcher(body string) fetcherFunc {
	return func(context.Context, string) ([]byte, error) { return []byte(body), nil }
}

// recorder collects observer states.
type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) Notify(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

// probeStore wraps a Store to observe and sabotage InsertChannels.
type probeStore struct {
	store.Store

	// failOn is the 1-based InsertChannels call that fails; 0 never fails.
	failOn int
	// onInsert runs before each insert with the call number.
	onInsert func(call int)

	mu       sync.Mutex
	calls    int
	maxBatch int
	sizes    []int
}

var errInjected = errors.New("disk full")

func (p *probeStore) InsertChannels(ctx context.Context, chs []models.Channel) error {
	p.mu.Lock()
	p.calls++
	call := p.calls
	p.sizes = append(p.sizes, len(chs))
	if len(chs) > p.maxBatch {
		p.maxBatch = len(chs)
	}
	p.mu.Unlock()

	if p.onInsert != nil {
		p.onInsert(call)
	}
	if call == p.failOn {
		return errInjected
	}
	return p.Store.InsertChannels(ctx, chs)
}

// m3u builds a playlist of n entries named "Channel 0".."Channel n-1".
func m3u(n int, group func(i int) string) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	for i := 0; i < n; i++ {
		attrs := ""
		if group != nil {
			if g := group(i); g != "" {
				attrs = fmt.Sprintf(` group-title="%s"`, g)
			}
		}
		fmt.Fprintf(&b, "#EXTINF:-1%s,Channel %d\nhttp://stream.example/%d\n", attrs, i, i)
	}
	return b.String()
}
