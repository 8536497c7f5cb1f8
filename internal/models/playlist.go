package models

import (
	"time"

	"github.com/google/uuid"
)

// Playlist is one user-added channel list (e.g. one M3U URL).
type Playlist struct {
	ID           uuid.UUID    `json:"id"`
	Name         string       `json:"name"`
	SourceURL    string       `json:"source_url"`
	Type         PlaylistType `json:"type"`
	ChannelCount int          `json:"channel_count"`
	CreatedAt    time.Time    `json:"created_at"`
}
