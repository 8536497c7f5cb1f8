package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/voyagen/playlistvault/internal/models"
)

// testStore runs the behaviour every Store implementation must share.
func testStore(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("staged playlist is invisible until published", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		p := stagePlaylist(t, s, "Staged", 3)

		if _, err := s.GetPlaylist(ctx, p.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("GetPlaylist before publish: err = %v, want ErrNotFound", err)
		}
		if got, _ := s.ListPlaylists(ctx); len(got) != 0 {
			t.Fatalf("ListPlaylists before publish = %d playlists, want 0", len(got))
		}
		chs, total, err := s.ListChannels(ctx, ChannelFilter{PlaylistID: &p.ID})
		if err != nil {
			t.Fatalf("ListChannels: %v", err)
		}
		if total != 0 || len(chs) != 0 {
			t.Fatalf("ListChannels before publish = %d/%d, want 0", len(chs), total)
		}
		if groups, _ := s.CountGroups(ctx, p.ID); len(groups) != 0 {
			t.Fatalf("CountGroups before publish = %v, want none", groups)
		}

		if err := s.PublishPlaylist(ctx, p.ID, 3); err != nil {
			t.Fatalf("PublishPlaylist: %v", err)
		}
		got, err := s.GetPlaylist(ctx, p.ID)
		if err != nil {
			t.Fatalf("GetPlaylist: %v", err)
		}
		if got.ChannelCount != 3 || got.Name != "Staged" || got.Type != models.PlaylistTypeM3U {
			t.Errorf("GetPlaylist = %+v", got)
		}
		if _, total, _ := s.ListChannels(ctx, ChannelFilter{PlaylistID: &p.ID}); total != 3 {
			t.Errorf("ListChannels after publish: total = %d, want 3", total)
		}
	})

	t.Run("publish twice is not found", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		p := stagePlaylist(t, s, "Once", 0)
		if err := s.PublishPlaylist(ctx, p.ID, 0); err != nil {
			t.Fatalf("PublishPlaylist: %v", err)
		}
		if err := s.PublishPlaylist(ctx, p.ID, 0); !errors.Is(err, ErrNotFound) {
			t.Errorf("second PublishPlaylist: err = %v, want ErrNotFound", err)
		}
	})

	t.Run("delete cascades to channels", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		p := publishedPlaylist(t, s, "Cascade", 5)
		chs, _, err := s.ListChannels(ctx, ChannelFilter{PlaylistID: &p.ID})
		if err != nil || len(chs) != 5 {
			t.Fatalf("ListChannels = %d, %v", len(chs), err)
		}

		if err := s.DeletePlaylist(ctx, p.ID); err != nil {
			t.Fatalf("DeletePlaylist: %v", err)
		}
		if _, err := s.GetChannel(ctx, chs[0].ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetChannel after delete: err = %v, want ErrNotFound", err)
		}
		if _, total, _ := s.ListChannels(ctx, ChannelFilter{}); total != 0 {
			t.Errorf("channels left after delete = %d, want 0", total)
		}
		if err := s.DeletePlaylist(ctx, p.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("second DeletePlaylist: err = %v, want ErrNotFound", err)
		}
	})

	t.Run("delete removes only the target playlist", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		a := publishedPlaylist(t, s, "A", 2)
		b := publishedPlaylist(t, s, "B", 4)
		if err := s.DeletePlaylist(ctx, a.ID); err != nil {
			t.Fatalf("DeletePlaylist: %v", err)
		}
		if _, total, _ := s.ListChannels(ctx, ChannelFilter{PlaylistID: &b.ID}); total != 4 {
			t.Errorf("playlist B channels = %d, want 4", total)
		}
	})

	t.Run("toggle favorite twice restores the flag", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		p := publishedPlaylist(t, s, "Fav", 2)
		chs, _, _ := s.ListChannels(ctx, ChannelFilter{PlaylistID: &p.ID, Sort: SortByPosition})
		id := chs[0].ID

		fav, err := s.ToggleChannelFavorite(ctx, id)
		if err != nil || !fav {
			t.Fatalf("first toggle = %v, %v; want true", fav, err)
		}
		yes := true
		favs, total, _ := s.ListChannels(ctx, ChannelFilter{Favorite: &yes})
		if total != 1 || favs[0].ID != id {
			t.Fatalf("favorites = %v (total %d), want only %s", favs, total, id)
		}
		fav, err = s.ToggleChannelFavorite(ctx, id)
		if err != nil || fav {
			t.Fatalf("second toggle = %v, %v; want false", fav, err)
		}
		got, err := s.GetChannel(ctx, id)
		if err != nil {
			t.Fatalf("GetChannel: %v", err)
		}
		if got.IsFavorite {
			t.Error("channel still favorite after two toggles")
		}
		if _, err := s.ToggleChannelFavorite(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
			t.Errorf("toggle unknown channel: err = %v, want ErrNotFound", err)
		}
	})

	t.Run("count groups", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		p := stagePlaylist(t, s, "Groups", 0)
		insert(t, s, p.ID,
			channel("One", "Sports"), channel("Two", "Sports"),
			channel("Three", "News"), channel("Four", models.UndefinedGroup))
		if err := s.PublishPlaylist(ctx, p.ID, 4); err != nil {
			t.Fatalf("PublishPlaylist: %v", err)
		}

		groups, err := s.CountGroups(ctx, p.ID)
		if err != nil {
			t.Fatalf("CountGroups: %v", err)
		}
		got := make(map[string]int)
		for _, g := range groups {
			got[g.Name] = g.Count
		}
		want := map[string]int{"Sports": 2, "News": 1, models.UndefinedGroup: 1}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Errorf("CountGroups = %v, want %v", got, want)
		}
	})

	t.Run("filters sort and page", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		p := stagePlaylist(t, s, "Filters", 0)
		insert(t, s, p.ID,
			channel("bbc one", "UK"), channel("CNN", "News"),
			channel("BBC News", "News"), channel("100%_Hits", "Music"))
		if err := s.PublishPlaylist(ctx, p.ID, 4); err != nil {
			t.Fatalf("PublishPlaylist: %v", err)
		}

		news := "News"
		names := func(f ChannelFilter) ([]string, int) {
			t.Helper()
			f.PlaylistID = &p.ID
			chs, total, err := s.ListChannels(ctx, f)
			if err != nil {
				t.Fatalf("ListChannels(%+v): %v", f, err)
			}
			out := make([]string, len(chs))
			for i, ch := range chs {
				out[i] = ch.Name
			}
			return out, total
		}

		got, _ := names(ChannelFilter{Sort: SortByPosition})
		if fmt.Sprint(got) != "[bbc one CNN BBC News 100%_Hits]" {
			t.Errorf("position order = %v", got)
		}
		got, total := names(ChannelFilter{Search: "bbc"})
		if total != 2 {
			t.Errorf("search bbc total = %d, want 2 (%v)", total, got)
		}
		got, _ = names(ChannelFilter{Search: "%_"})
		if fmt.Sprint(got) != "[100%_Hits]" {
			t.Errorf("search with wildcards = %v, want literal match", got)
		}
		got, total = names(ChannelFilter{Group: &news})
		if total != 2 || fmt.Sprint(got) != "[BBC News CNN]" {
			t.Errorf("group News = %v (total %d)", got, total)
		}
		got, total = names(ChannelFilter{Sort: SortByPosition, Limit: 2, Offset: 1})
		if total != 4 || fmt.Sprint(got) != "[CNN BBC News]" {
			t.Errorf("page = %v (total %d)", got, total)
		}
		got, _ = names(ChannelFilter{Sort: SortByPosition, Offset: 3})
		if fmt.Sprint(got) != "[100%_Hits]" {
			t.Errorf("offset only = %v", got)
		}
	})

	t.Run("purge staged", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		old := stagePlaylist(t, s, "Abandoned", 2)
		keep := publishedPlaylist(t, s, "Kept", 1)

		n, err := s.PurgeStaged(ctx, time.Now().Add(time.Minute))
		if err != nil {
			t.Fatalf("PurgeStaged: %v", err)
		}
		if n != 1 {
			t.Errorf("PurgeStaged removed %d, want 1", n)
		}
		if err := s.DeletePlaylist(ctx, old.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("staged playlist still present: %v", err)
		}
		if _, err := s.GetPlaylist(ctx, keep.ID); err != nil {
			t.Errorf("published playlist purged: %v", err)
		}
	})

	t.Run("unknown ids", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if _, err := s.GetPlaylist(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetPlaylist: err = %v", err)
		}
		if _, err := s.GetChannel(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetChannel: err = %v", err)
		}
		if err := s.DeletePlaylist(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
			t.Errorf("DeletePlaylist: err = %v", err)
		}
	})
}

func stagePlaylist(t *testing.T, s Store, name string, channels int) *models.Playlist {
	t.Helper()
	p := &models.Playlist{
		ID:        uuid.New(),
		Name:      name,
		SourceURL: "http://example.com/" + name + ".m3u",
		Type:      models.PlaylistTypeM3U,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := s.CreatePlaylist(context.Background(), p); err != nil {
		t.Fatalf("CreatePlaylist: %v", err)
	}
	var chs []models.Channel
	for i := 0; i < channels; i++ {
		chs = append(chs, channel(fmt.Sprintf("%s %d", name, i), "Group"))
	}
	insert(t, s, p.ID, chs...)
	return p
}

func publishedPlaylist(t *testing.T, s Store, name string, channels int) *models.Playlist {
	t.Helper()
	p := stagePlaylist(t, s, name, channels)
	if err := s.PublishPlaylist(context.Background(), p.ID, channels); err != nil {
		t.Fatalf("PublishPlaylist: %v", err)
	}
	return p
}

func channel(name, group string) models.Channel {
	return models.Channel{
		ID:        uuid.New(),
		Name:      name,
		StreamURL: "http://example.com/" + uuid.NewString(),
		GroupName: group,
	}
}

// insert assigns playlist id and positions in argument order and stores chs as one sub-batch.
func insert(t *testing.T, s Store, playlistID uuid.UUID, chs ...models.Channel) {
	t.Helper()
	for i := range chs {
		chs[i].PlaylistID = playlistID
		chs[i].Position = i
	}
	if err := s.InsertChannels(context.Background(), chs); err != nil {
		t.Fatalf("InsertChannels: %v", err)
	}
}

func TestLikePattern(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"bbc", "%bbc%"},
		{"100%", `%100\%%`},
		{"a_b", `%a\_b%`},
		{`c:\tv`, `%c:\\tv%`},
	}
	for _, tt := range tests {
		if got := likePattern(tt.in); got != tt.want {
			t.Errorf("likePattern(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestChannelQueriesAlwaysFilterPublished(t *testing.T) {
	q := postgresDialect.channelQueries(ChannelFilter{Search: "x", Limit: 10, Offset: 5})
	if len(q.countArgs) != 1 || len(q.listArgs) != 3 {
		t.Fatalf("args = %v / %v", q.countArgs, q.listArgs)
	}
	for _, stmt := range []string{q.countSQL, q.listSQL} {
		if !strings.Contains(stmt, "p.published = TRUE") {
			t.Errorf("query %q does not filter published playlists", stmt)
		}
	}
	if !strings.Contains(q.listSQL, "LIMIT $2 OFFSET $3") {
		t.Errorf("list query = %q", q.listSQL)
	}
}
