package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the observable loading state of an import.
type State struct {
	IsLoading bool   `json:"is_loading"`
	Error     string `json:"error,omitempty"`
}

// Observer receives import state transitions. Notify may be called from any goroutine.
type Observer interface {
	Notify(State)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(State)

func (f ObserverFunc) Notify(s State) { f(s) }

type nopObserver struct{}

func (nopObserver) Notify(State) {}

// ImportStatus is one import's latest state as kept by StatusBoard.
type ImportStatus struct {
	PlaylistID uuid.UUID `json:"playlist_id"`
	Name       string    `json:"name"`
	State
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot is what GET /api/imports/status returns.
type Snapshot struct {
	State
	Imports []ImportStatus `json:"imports"`
}

// StatusBoard keeps the most recent State across all imports plus bounded
// per-import history, newest last.
type StatusBoard struct {
	mu      sync.Mutex
	latest  State
	imports []ImportStatus
	index   map[uuid.UUID]int
	limit   int
	now     func() time.Time
}

// NewStatusBoard keeps at most limit imports (50 when limit <= 0).
func NewStatusBoard(limit int) *StatusBoard {
	if limit <= 0 {
		limit = 50
	}
	return &StatusBoard{index: make(map[uuid.UUID]int), limit: limit, now: time.Now}
}

// Notify records s as the latest state without attributing it to an import.
func (b *StatusBoard) Notify(s State) {
	b.mu.Lock()
	b.latest = s
	b.mu.Unlock()
}

// Track returns an Observer that records states for one import.
func (b *StatusBoard) Track(playlistID uuid.UUID, name string) Observer {
	return ObserverFunc(func(s State) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.latest = s
		st := ImportStatus{PlaylistID: playlistID, Name: name, State: s, UpdatedAt: b.now()}
		if i, ok := b.index[playlistID]; ok {
			b.imports[i] = st
			return
		}
		if len(b.imports) == b.limit {
			delete(b.index, b.imports[0].PlaylistID)
			b.imports = b.imports[1:]
			for id, i := range b.index {
				b.index[id] = i - 1
			}
		}
		b.index[playlistID] = len(b.imports)
		b.imports = append(b.imports, st)
	})
}

// Snapshot returns a copy of the board.
func (b *StatusBoard) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{State: b.latest, Imports: append([]ImportStatus(nil), b.imports...)}
}

// multiObserver fans a state out to every observer in order.
type multiObserver []Observer

func (m multiObserver) Notify(s State) {
	for _, o := range m {
		o.Notify(s)
	}
}
