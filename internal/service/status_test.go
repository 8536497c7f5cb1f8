package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/voyagen/playlistvault/internal/cache"
)

func TestStatusBoardTracksImports(t *testing.T) {
	board := NewStatusBoard(2)
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	board.Track(a, "a").Notify(State{IsLoading: true})
	board.Track(a, "a").Notify(State{})
	board.Track(b, "b").Notify(State{IsLoading: true})

	snap := board.Snapshot()
	if !snap.IsLoading {
		t.Error("latest state should be b loading")
	}
	if len(snap.Imports) != 2 || snap.Imports[0].PlaylistID != a || snap.Imports[0].IsLoading {
		t.Fatalf("imports = %+v", snap.Imports)
	}

	board.Track(c, "c").Notify(State{Error: "failed to fetch playlist: HTTP 500"})
	snap = board.Snapshot()
	if len(snap.Imports) != 2 || snap.Imports[0].PlaylistID != b || snap.Imports[1].PlaylistID != c {
		t.Fatalf("oldest import not evicted: %+v", snap.Imports)
	}
	if snap.Error == "" || snap.IsLoading {
		t.Errorf("latest = %+v", snap.State)
	}

	// Updates keep their slot.
	board.Track(b, "b").Notify(State{})
	snap = board.Snapshot()
	if snap.Imports[0].PlaylistID != b || snap.Imports[0].IsLoading {
		t.Errorf("update of b = %+v", snap.Imports)
	}
}

func TestAsyncDispatcherReportsToBoard(t *testing.T) {
	s := newTestStore(t)
	board := NewStatusBoard(0)
	imp := NewImporter(s, staticFetcher(m3u(2, nil)), WithLocker(cache.NewLocalLocker()), WithLogger(discardLogger()))
	d := NewAsyncDispatcher(context.Background(), imp, board)

	id, err := d.Dispatch(context.Background(), Request{Name: "Async", URL: "http://example.com/a.m3u"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatalf("import did not finish: %+v", board.Snapshot())
		}
		snap := board.Snapshot()
		if len(snap.Imports) == 1 && !snap.Imports[0].IsLoading {
			if snap.Imports[0].PlaylistID != id || snap.Imports[0].Error != "" {
				t.Fatalf("import status = %+v", snap.Imports[0])
			}
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := s.GetPlaylist(context.Background(), id); err != nil {
		t.Errorf("GetPlaylist: %v", err)
	}
}

func TestRequestFromJob(t *testing.T) {
	id := uuid.New()
	req, err := requestFromJob(&cache.ImportJob{PlaylistID: id.String(), Name: "n", URL: "http://x/a.m3u", Type: "m3u"})
	if err != nil {
		t.Fatalf("requestFromJob: %v", err)
	}
	if req.ID != id || req.Name != "n" || req.URL != "http://x/a.m3u" || req.Type != "m3u" {
		t.Errorf("req = %+v", req)
	}
	if _, err := requestFromJob(&cache.ImportJob{PlaylistID: "nope"}); err == nil {
		t.Error("malformed id accepted")
	}
}

func TestQueuedJobReportsToBoard(t *testing.T) {
	s := newTestStore(t)
	board := NewStatusBoard(0)
	imp := NewImporter(s, staticFetcher(m3u(3, nil)), WithLogger(discardLogger()))
	ctx := context.Background()

	ok := uuid.New()
	runJob(ctx, imp, board, &cache.ImportJob{PlaylistID: ok.String(), Name: "Queued", URL: "http://x/a.m3u", Type: "m3u"}, discardLogger())
	runJob(ctx, imp, board, &cache.ImportJob{PlaylistID: "nope", URL: "http://x/b.m3u"}, discardLogger())

	failing := NewImporter(s, fetcherFunc(func(context.Context, string) ([]byte, error) {
		return nil, errInjected
	}), WithLogger(discardLogger()))
	bad := uuid.New()
	runJob(ctx, failing, board, &cache.ImportJob{PlaylistID: bad.String(), Name: "Broken", URL: "http://x/c.m3u", Type: "m3u"}, discardLogger())

	snap := board.Snapshot()
	if len(snap.Imports) != 2 {
		t.Fatalf("imports = %+v", snap.Imports)
	}
	if got := snap.Imports[0]; got.PlaylistID != ok || got.Name != "Queued" || got.IsLoading || got.Error != "" {
		t.Errorf("queued import status = %+v", got)
	}
	if got := snap.Imports[1]; got.PlaylistID != bad || got.IsLoading || !strings.HasPrefix(got.Error, "failed to fetch playlist") {
		t.Errorf("failed import status = %+v", got)
	}
	if p, err := s.GetPlaylist(ctx, ok); err != nil || p.ChannelCount != 3 {
		t.Errorf("GetPlaylist = %+v, %v", p, err)
	}
}
