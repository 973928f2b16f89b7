package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/nba-projections/internal/datasource"
	"github.com/stitts-dev/nba-projections/internal/ingestion"
	"github.com/stitts-dev/nba-projections/internal/models"
	"github.com/stitts-dev/nba-projections/internal/valuation"
)

const (
	perPage  = 100
	maxPages = 50
)

// BallDontLieSource serves game logs, schedules, season averages and the
// active player pool from a BALLDONTLIE-compatible stats API. Rate limiting,
// retries and breaking are the data client's job; this only speaks HTTP.
type BallDontLieSource struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logrus.Entry
}

func NewBallDontLieSource(name, baseURL, apiKey string, timeout time.Duration, logger *logrus.Logger) *BallDontLieSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &BallDontLieSource{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.WithFields(logrus.Fields{"component": "provider", "source": name}),
	}
}

func (s *BallDontLieSource) Name() string {
	return s.name
}

func (s *BallDontLieSource) Fetch(ctx context.Context, req datasource.Request) (json.RawMessage, error) {
	var (
		out interface{}
		err error
	)
	switch req.Resource {
	case datasource.ResourceGameLog:
		out, err = s.gameLog(ctx, req.Params["player_id"], req.Params["season"])
	case datasource.ResourceSchedule:
		out, err = s.schedule(ctx, req.Params["date"])
	case datasource.ResourceSeasonAverages:
		out, err = s.seasonAverages(ctx, req.Params["season"], req.Params["player_ids"])
	case datasource.ResourcePlayerPool:
		out, err = s.playerPool(ctx)
	default:
		return nil, fmt.Errorf("%s %s: %w", s.name, req.Resource, datasource.ErrUnsupported)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

// API response structures
type bdlMeta struct {
	NextCursor json.Number `json:"next_cursor"`
	PerPage    int         `json:"per_page"`
}

type bdlTeam struct {
	ID           int    `json:"id"`
	Abbreviation string `json:"abbreviation"`
}

type bdlPlayer struct {
	ID        int     `json:"id"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Position  string  `json:"position"`
	Team      bdlTeam `json:"team"`
}

type bdlGame struct {
	ID               int     `json:"id"`
	Date             string  `json:"date"`
	Season           int     `json:"season"`
	HomeTeamID       int     `json:"home_team_id"`
	VisitorTeamID    int     `json:"visitor_team_id"`
	HomeTeam         bdlTeam `json:"home_team"`
	VisitorTeam      bdlTeam `json:"visitor_team"`
	Postseason       bool    `json:"postseason"`
	HomeTeamScore    int     `json:"home_team_score"`
	VisitorTeamScore int     `json:"visitor_team_score"`
}

type bdlStat struct {
	ID        int       `json:"id"`
	Player    bdlPlayer `json:"player"`
	Game      bdlGame   `json:"game"`
	Team      bdlTeam   `json:"team"`
	Min       string    `json:"min"`
	Fgm       int       `json:"fgm"`
	Fga       int       `json:"fga"`
	Fg3m      int       `json:"fg3m"`
	Fg3a      int       `json:"fg3a"`
	Ftm       int       `json:"ftm"`
	Fta       int       `json:"fta"`
	Oreb      int       `json:"oreb"`
	Dreb      int       `json:"dreb"`
	Reb       int       `json:"reb"`
	Ast       int       `json:"ast"`
	Stl       int       `json:"stl"`
	Blk       int       `json:"blk"`
	Turnover  int       `json:"turnover"`
	Pf        int       `json:"pf"`
	Pts       int       `json:"pts"`
	PlusMinus int       `json:"plus_minus"`
}

type bdlSeasonAverage struct {
	PlayerID    int     `json:"player_id"`
	Season      int     `json:"season"`
	GamesPlayed int     `json:"games_played"`
	Min         string  `json:"min"`
	Fgm         float64 `json:"fgm"`
	Fga         float64 `json:"fga"`
	Fg3m        float64 `json:"fg3m"`
	Ftm         float64 `json:"ftm"`
	Fta         float64 `json:"fta"`
	Reb         float64 `json:"reb"`
	Ast         float64 `json:"ast"`
	Stl         float64 `json:"stl"`
	Blk         float64 `json:"blk"`
	Turnover    float64 `json:"turnover"`
	Pts         float64 `json:"pts"`
	FgPct       float64 `json:"fg_pct"`
	FtPct       float64 `json:"ft_pct"`
}

type page[T any] struct {
	Data []T     `json:"data"`
	Meta bdlMeta `json:"meta"`
}

func (s *BallDontLieSource) gameLog(ctx context.Context, playerID, season string) ([]models.GameStatLine, error) {
	if playerID == "" {
		return nil, datasource.Permanent(fmt.Errorf("%s game log: player_id is required", s.name))
	}
	params := url.Values{}
	params.Add("player_ids[]", playerID)
	if season != "" {
		year, err := seasonYear(season)
		if err != nil {
			return nil, datasource.Permanent(err)
		}
		params.Add("seasons[]", strconv.Itoa(year))
	}

	stats, err := paginate[bdlStat](ctx, s, "/stats", params)
	if err != nil {
		return nil, err
	}

	validator := ingestion.NewValidator()
	lines := make([]models.GameStatLine, 0, len(stats))
	for _, st := range stats {
		line, ok := s.convertStat(st, season)
		if !ok {
			continue
		}
		if _, err := validator.Validate(&line); err != nil {
			s.logger.WithError(err).Warn("Dropping invalid stat line")
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (s *BallDontLieSource) convertStat(st bdlStat, season string) (models.GameStatLine, bool) {
	date, err := parseDate(st.Game.Date)
	if err != nil {
		s.logger.WithField("game_id", st.Game.ID).Warn("Skipping stat line with unreadable game date")
		return models.GameStatLine{}, false
	}
	minutes := parseMinutes(st.Min)
	if minutes == 0 && st.Pts == 0 && st.Reb == 0 && st.Ast == 0 {
		// did not play
		return models.GameStatLine{}, false
	}

	team := strconv.Itoa(st.Team.ID)
	home := st.Team.ID == st.Game.HomeTeamID
	opponent := strconv.Itoa(st.Game.HomeTeamID)
	if home {
		opponent = strconv.Itoa(st.Game.VisitorTeamID)
	}
	if season == "" {
		season = seasonLabel(st.Game.Season)
	}

	return models.GameStatLine{
		PlayerID:      strconv.Itoa(st.Player.ID),
		GameID:        strconv.Itoa(st.Game.ID),
		GameDate:      date,
		Season:        season,
		PlayerName:    strings.TrimSpace(st.Player.FirstName + " " + st.Player.LastName),
		Position:      st.Player.Position,
		Team:          team,
		Opponent:      opponent,
		IsHome:        home,
		Minutes:       minutes,
		Points:        st.Pts,
		OffRebounds:   st.Oreb,
		DefRebounds:   st.Dreb,
		Rebounds:      st.Reb,
		Assists:       st.Ast,
		Steals:        st.Stl,
		Blocks:        st.Blk,
		Turnovers:     st.Turnover,
		PersonalFouls: st.Pf,
		FGM:           st.Fgm,
		FGA:           st.Fga,
		FG3M:          st.Fg3m,
		FG3A:          st.Fg3a,
		FTM:           st.Ftm,
		FTA:           st.Fta,
		PlusMinus:     st.PlusMinus,
	}, true
}

func (s *BallDontLieSource) schedule(ctx context.Context, date string) ([]models.ScheduledGame, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, datasource.Permanent(fmt.Errorf("%s schedule: invalid date %q", s.name, date))
	}
	params := url.Values{}
	params.Add("dates[]", date)

	games, err := paginate[bdlGame](ctx, s, "/games", params)
	if err != nil {
		return nil, err
	}

	out := make([]models.ScheduledGame, 0, len(games))
	for _, g := range games {
		home, away := g.HomeTeam.ID, g.VisitorTeam.ID
		if home == 0 {
			home, away = g.HomeTeamID, g.VisitorTeamID
		}
		out = append(out, models.ScheduledGame{
			GameID:   strconv.Itoa(g.ID),
			GameDate: day,
			HomeTeam: strconv.Itoa(home),
			AwayTeam: strconv.Itoa(away),
		})
	}
	return out, nil
}

func (s *BallDontLieSource) seasonAverages(ctx context.Context, season, playerIDs string) ([]models.StatLine, error) {
	year, err := seasonYear(season)
	if err != nil {
		return nil, datasource.Permanent(err)
	}
	params := url.Values{}
	params.Add("season", strconv.Itoa(year))
	for _, id := range strings.Split(playerIDs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			params.Add("player_ids[]", id)
		}
	}

	var resp page[bdlSeasonAverage]
	if err := s.get(ctx, "/season_averages", params, &resp); err != nil {
		return nil, err
	}

	out := make([]models.StatLine, 0, len(resp.Data))
	for _, a := range resp.Data {
		out = append(out, models.StatLine{
			PlayerID:    strconv.Itoa(a.PlayerID),
			Season:      season,
			GamesPlayed: a.GamesPlayed,
			Values: map[string]float64{
				valuation.CatPoints:    a.Pts,
				valuation.CatRebounds:  a.Reb,
				valuation.CatAssists:   a.Ast,
				valuation.CatSteals:    a.Stl,
				valuation.CatBlocks:    a.Blk,
				valuation.CatThrees:    a.Fg3m,
				valuation.CatTurnovers: a.Turnover,
				valuation.CatFGPct:     a.FgPct,
				valuation.CatFTPct:     a.FtPct,
				valuation.KeyFGM:       a.Fgm,
				valuation.KeyFGA:       a.Fga,
				valuation.KeyFTM:       a.Ftm,
				valuation.KeyFTA:       a.Fta,
				valuation.KeyMinutes:   parseMinutes(a.Min),
			},
		})
	}
	return out, nil
}

func (s *BallDontLieSource) playerPool(ctx context.Context) ([]models.PlayerStatus, error) {
	players, err := paginate[bdlPlayer](ctx, s, "/players/active", url.Values{})
	if err != nil {
		return nil, err
	}
	out := make([]models.PlayerStatus, 0, len(players))
	for _, p := range players {
		out = append(out, models.PlayerStatus{
			PlayerID: strconv.Itoa(p.ID),
			Name:     strings.TrimSpace(p.FirstName + " " + p.LastName),
			Team:     strconv.Itoa(p.Team.ID),
			Position: p.Position,
		})
	}
	return out, nil
}

// paginate follows next_cursor until the API stops returning one.
func paginate[T any](ctx context.Context, s *BallDontLieSource, path string, params url.Values) ([]T, error) {
	var all []T
	params.Set("per_page", strconv.Itoa(perPage))

	for i := 0; i < maxPages; i++ {
		var resp page[T]
		if err := s.get(ctx, path, params, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Data...)

		next := resp.Meta.NextCursor.String()
		if next == "" || next == "0" {
			return all, nil
		}
		params.Set("cursor", next)
	}
	s.logger.WithField("path", path).Warn("Stopped paginating at page limit")
	return all, nil
}

func (s *BallDontLieSource) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	apiURL := fmt.Sprintf("%s%s?%s", s.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return datasource.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", s.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", s.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s failed to read response: %w", s.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return &datasource.StatusError{Source: s.name, Code: resp.StatusCode, Body: truncate(string(body), 256)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s %s: %v: %w", s.name, path, err, datasource.ErrMalformedResponse)
	}
	return nil
}

// seasonYear maps "2024-25" (or "2024") to the API's starting-year form.
func seasonYear(season string) (int, error) {
	head := season
	if i := strings.Index(season, "-"); i > 0 {
		head = season[:i]
	}
	year, err := strconv.Atoi(head)
	if err != nil || year < 1946 {
		return 0, fmt.Errorf("invalid season %q", season)
	}
	return year, nil
}

func seasonLabel(year int) string {
	if year == 0 {
		return ""
	}
	return fmt.Sprintf("%d-%02d", year, (year+1)%100)
}

// parseMinutes accepts "34", "34:12" and "34.5".
func parseMinutes(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if mm, ss, ok := strings.Cut(s, ":"); ok {
		m, err1 := strconv.Atoi(mm)
		sec, err2 := strconv.Atoi(ss)
		if err1 != nil || err2 != nil {
			return 0
		}
		return float64(m) + float64(sec)/60
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseDate(s string) (time.Time, error) {
	if len(s) >= 10 {
		s = s[:10]
	}
	return time.Parse("2006-01-02", s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
