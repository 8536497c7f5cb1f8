package models

import (
	"strings"

	"github.com/google/uuid"
)

// Channel is a single playable entry owned by a playlist.
type Channel struct {
	ID         uuid.UUID `json:"id"`
	PlaylistID uuid.UUID `json:"playlist_id"`
	Position   int       `json:"position"` // import order within the playlist
	Name       string    `json:"name"`
	StreamURL  string    `json:"stream_url"`
	LogoURL    *string   `json:"logo_url,omitempty"`
	GroupName  string    `json:"group_name"`
	IsFavorite bool      `json:"is_favorite"`
}

// NormalizeGroup returns the stored group name for a parsed group value.
func NormalizeGroup(group *string) string {
	if group == nil {
		return UndefinedGroup
	}
	g := strings.TrimSpace(*group)
	if g == "" {
		return UndefinedGroup
	}
	return g
}
