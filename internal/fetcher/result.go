package fetcher

// Record is one playable entry parsed from a playlist document.
// Logo and Group are nil when the directive line did not carry them.
type Record struct {
	Name  string
	URL   string
	Logo  *string
	Group *string
}
