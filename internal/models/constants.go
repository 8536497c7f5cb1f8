package models

// PlaylistType tags how a playlist's channels are ingested.
type PlaylistType string

// Playlist type constants.
const (
	PlaylistTypeM3U    PlaylistType = "m3u"
	PlaylistTypeXtream PlaylistType = "xtream"
)

// Valid reports whether t is a known playlist type.
func (t PlaylistType) Valid() bool {
	return t == PlaylistTypeM3U || t == PlaylistTypeXtream
}

// Group names with special meaning.
const (
	// UndefinedGroup replaces an empty or missing group-title.
	UndefinedGroup = "Undefined"
	// AllChannelsGroup is the synthetic group prepended to group listings.
	AllChannelsGroup = "All Channels"
)
