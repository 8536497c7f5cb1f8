package store

import (
	"fmt"
	"strings"

	"github.com/voyagen/playlistvault/internal/models"
)

// dialect captures the few SQL differences between SQLite and Postgres.
type dialect struct {
	placeholder func(n int) string
	like        string // case-insensitive LIKE operator
	noLimit     string // LIMIT value that means "all rows" when only OFFSET is set; empty if OFFSET stands alone
}

var (
	sqliteDialect = dialect{
		placeholder: func(int) string { return "?" },
		like:        "LIKE",
		noLimit:     "-1",
	}
	postgresDialect = dialect{
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		like:        "ILIKE",
	}
)

const channelColumns = `c.id, c.playlist_id, c.position, c.name, c.stream_url, c.logo_url, c.group_name, c.is_favorite`

const channelFrom = `FROM channels c JOIN playlists p ON p.id = c.playlist_id`

// channelQuery is the pair of statements behind ListChannels.
type channelQuery struct {
	countSQL  string
	countArgs []any
	listSQL   string
	listArgs  []any
}

// channelQueries builds the count and page queries for ListChannels.
func (d dialect) channelQueries(f ChannelFilter) channelQuery {
	var args []any
	where := []string{"p.published = TRUE"}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, d.placeholder(len(args))))
	}
	if f.PlaylistID != nil {
		add("c.playlist_id = %s", *f.PlaylistID)
	}
	if f.Group != nil {
		add("c.group_name = %s", *f.Group)
	}
	if f.Favorite != nil {
		add("c.is_favorite = %s", *f.Favorite)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		add("c.name "+d.like+" %s ESCAPE '\\'", likePattern(s))
	}
	cond := strings.Join(where, " AND ")

	countSQL := "SELECT COUNT(*) " + channelFrom + " WHERE " + cond
	listSQL := "SELECT " + channelColumns + " " + channelFrom + " WHERE " + cond + " ORDER BY " + orderClause(f.Sort)

	pageArgs := append([]any(nil), args...)
	switch {
	case f.Limit > 0:
		pageArgs = append(pageArgs, f.Limit)
		listSQL += " LIMIT " + d.placeholder(len(pageArgs))
	case f.Offset > 0 && d.noLimit != "":
		listSQL += " LIMIT " + d.noLimit
	}
	if f.Offset > 0 {
		pageArgs = append(pageArgs, f.Offset)
		listSQL += " OFFSET " + d.placeholder(len(pageArgs))
	}
	return channelQuery{countSQL: countSQL, countArgs: args, listSQL: listSQL, listArgs: pageArgs}
}

// groupCountSQL is the single grouped-count query behind CountGroups.
func (d dialect) groupCountSQL() string {
	return `SELECT COALESCE(NULLIF(c.group_name, ''), ` + d.placeholder(1) + `) AS group_name, COUNT(*) ` +
		channelFrom + ` WHERE c.playlist_id = ` + d.placeholder(2) + ` AND p.published = TRUE GROUP BY 1`
}

// undefinedGroupArg is bound to the first placeholder of groupCountSQL.
const undefinedGroupArg = models.UndefinedGroup
