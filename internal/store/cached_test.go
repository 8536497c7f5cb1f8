package store

import (
	"context"
	"os"
	"testing"

	"github.com/voyagen/playlistvault/internal/cache"
)

func newTestCached(t *testing.T) *CachedStore {
	t.Helper()
	url := os.Getenv("PLAYLISTVAULT_TEST_REDIS_URL")
	if url == "" {
		t.Skip("PLAYLISTVAULT_TEST_REDIS_URL not set")
	}
	r, err := cache.New(url)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	ctx := context.Background()
	if err := r.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := cache.DelPattern(ctx, r, "*"); err != nil {
		t.Fatalf("flush cache: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return NewCachedStore(newTestSQLite(t), r, nil)
}

func TestCachedStore(t *testing.T) {
	testStore(t, func(t *testing.T) Store { return newTestCached(t) })
}

func TestCachedStoreInvalidatesOnToggle(t *testing.T) {
	s := newTestCached(t)
	ctx := context.Background()
	p := publishedPlaylist(t, s, "Cached", 1)

	chs, _, err := s.ListChannels(ctx, ChannelFilter{PlaylistID: &p.ID})
	if err != nil {
		t.Fatalf("ListChannels: %v", err)
	}
	if _, err := s.GetChannel(ctx, chs[0].ID); err != nil {
		t.Fatalf("GetChannel: %v", err)
	}
	if _, err := s.ToggleChannelFavorite(ctx, chs[0].ID); err != nil {
		t.Fatalf("ToggleChannelFavorite: %v", err)
	}

	got, err := s.GetChannel(ctx, chs[0].ID)
	if err != nil {
		t.Fatalf("GetChannel: %v", err)
	}
	if !got.IsFavorite {
		t.Error("GetChannel served a stale cached channel")
	}
	list, _, _ := s.ListChannels(ctx, ChannelFilter{PlaylistID: &p.ID})
	if !list[0].IsFavorite {
		t.Error("ListChannels served a stale cached page")
	}
}

func TestFilterHashDistinguishesFilters(t *testing.T) {
	g := "News"
	yes := true
	filters := []ChannelFilter{
		{},
		{Group: &g},
		{Favorite: &yes},
		{Search: "bbc"},
		{Sort: SortByPosition},
		{Limit: 10},
		{Offset: 10},
	}
	seen := make(map[string]int)
	for i, f := range filters {
		h := filterHash(f)
		if j, ok := seen[h]; ok {
			t.Errorf("filters %d and %d share hash %s", i, j, h)
		}
		seen[h] = i
	}
	for _, v := range []string{"-", "nil", "", `"nil"`} {
		if filterHash(ChannelFilter{Group: &v}) == filterHash(ChannelFilter{}) {
			t.Errorf("group %q hashes like an unset group", v)
		}
	}
	if filterHash(ChannelFilter{Search: "a|b"}) == filterHash(ChannelFilter{Search: "a", Sort: "b"}) {
		t.Error("search and sort run together")
	}
	if filterHash(ChannelFilter{Search: "x"}) != filterHash(ChannelFilter{Search: "x"}) {
		t.Error("filterHash is not deterministic")
	}
}
