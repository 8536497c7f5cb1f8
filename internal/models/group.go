package models

// GroupCount is one row of a playlist's group listing.
type GroupCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}
