package datasource

import (
	"encoding/json"
	"net/url"
	"sort"
	"strings"
	"time"
)

type Resource string

const (
	ResourceGameLog        Resource = "game_log"
	ResourceTeamProfile    Resource = "team_profile"
	ResourceSchedule       Resource = "schedule"
	ResourceSeasonAverages Resource = "season_averages"
	ResourcePlayerPool     Resource = "player_pool"
)

type Request struct {
	Resource Resource
	Params   map[string]string
}

// CacheKey is stable for equal requests regardless of param insertion order.
func (r Request) CacheKey() string {
	keys := make([]string, 0, len(r.Params))
	for k := range r.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("source:")
	b.WriteString(string(r.Resource))
	for i, k := range keys {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(r.Params[k]))
	}
	return b.String()
}

// Result is what Fetch hands back. Stale marks data served from an expired
// cache entry after every source failed.
type Result struct {
	Data      json.RawMessage `json:"data"`
	Source    string          `json:"source"`
	Stale     bool            `json:"stale"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// envelope is the cached form of a successful fetch. The store keeps it for
// the stale-retention period; freshness is judged from FetchedAt.
type envelope struct {
	Data      json.RawMessage `json:"data"`
	Source    string          `json:"source"`
	FetchedAt time.Time       `json:"fetched_at"`
}
