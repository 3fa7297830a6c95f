package source

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/XavierBriggs/fortuna/services/sheet-engine/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/pkg/models"
)

// PostgresSource reads sheet rows from the sheet_rows table. Each row's
// payload is a denormalized JSON document produced by the stats pipeline.
type PostgresSource struct {
	db      *sqlx.DB
	timeout time.Duration
	logger  zerolog.Logger
}

// Connect opens and pings a Postgres connection pool
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// NewPostgresSource creates a row source over db
func NewPostgresSource(db *sqlx.DB, timeout time.Duration, logger zerolog.Logger) *PostgresSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PostgresSource{
		db:      db,
		timeout: timeout,
		logger:  logger.With().Str("component", "row_source").Logger(),
	}
}

// sheetRow is one sheet_rows record
type sheetRow struct {
	ID       string    `db:"id"`
	SportKey string    `db:"sport_key"`
	GameDate time.Time `db:"game_date"`
	Payload  []byte    `db:"payload"`
}

// payload is the JSON document stored per row
type payload struct {
	PlayerID        string   `json:"player_id"`
	PlayerName      string   `json:"player_name"`
	TeamAbbr        string   `json:"team"`
	EventID         string   `json:"event_id"`
	Market          string   `json:"market"`
	Line            *float64 `json:"line"`
	SelectionID     string   `json:"selection_id"`
	Window          string   `json:"window"`
	Hits            int      `json:"hits"`
	Attempts        int      `json:"attempts"`
	Streak          int      `json:"streak"`
	MatchupRank     int      `json:"matchup_rank"`
	InjuryStatus    string   `json:"injury_status"`
	BackToBack      bool     `json:"back_to_back"`
	TrendTags       []string `json:"trend_tags"`
	TeammatesOut    []string `json:"teammates_out"`
	TeammateMinutes float64  `json:"teammate_minutes"`

	Stats struct {
		Primary    models.StatTriple `json:"primary"`
		Minutes    models.StatTriple `json:"minutes"`
		Usage      models.StatTriple `json:"usage"`
		ShotVolume models.StatTriple `json:"shot_volume"`
		Rebounds   models.StatTriple `json:"rebounds"`
		Playmaking models.StatTriple `json:"playmaking"`
	} `json:"stats"`
}

// Load implements contracts.RowSource. Rows whose payload cannot be
// denormalized are skipped and counted; only query failures are returned.
func (s *PostgresSource) Load(ctx context.Context, scope contracts.Scope) (contracts.Batch, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		SELECT id, sport_key, game_date, payload
		FROM sheet_rows
		WHERE sport_key = $1 AND sheet = $2
	`
	args := []interface{}{scope.SportKey, scope.Sheet}
	argIdx := 3

	if !scope.Date.IsZero() {
		query += fmt.Sprintf(" AND game_date = $%d", argIdx)
		args = append(args, scope.Date.Format("2006-01-02"))
		argIdx++
	}

	if len(scope.Markets) > 0 {
		query += fmt.Sprintf(" AND payload->>'market' = ANY($%d)", argIdx)
		args = append(args, pq.Array(scope.Markets))
		argIdx++
	}

	query += " ORDER BY game_date, id"

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return contracts.Batch{}, fmt.Errorf("failed to query sheet rows: %w", err)
	}
	defer rows.Close()

	var batch contracts.Batch
	for rows.Next() {
		var rec sheetRow
		if err := rows.StructScan(&rec); err != nil {
			return contracts.Batch{}, fmt.Errorf("failed to scan sheet row: %w", err)
		}

		row, err := denormalize(rec)
		if err != nil {
			batch.Skipped++
			s.logger.Warn().Err(err).Str("row_id", rec.ID).Msg("skipping malformed row")
			continue
		}
		batch.Rows = append(batch.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return contracts.Batch{}, fmt.Errorf("failed to iterate sheet rows: %w", err)
	}

	s.logger.Debug().
		Str("sport", scope.SportKey).
		Str("sheet", scope.Sheet).
		Int("loaded", len(batch.Rows)).
		Int("skipped", batch.Skipped).
		Msg("loaded sheet rows")

	return batch, nil
}

func denormalize(rec sheetRow) (models.StatRow, error) {
	var p payload
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		return models.StatRow{}, fmt.Errorf("decode payload: %w", err)
	}
	if p.Line == nil {
		return models.StatRow{}, fmt.Errorf("payload has no line")
	}

	row := models.StatRow{
		RowID:        rec.ID,
		SportKey:     rec.SportKey,
		PlayerID:     p.PlayerID,
		PlayerName:   p.PlayerName,
		TeamAbbr:     p.TeamAbbr,
		EventID:      p.EventID,
		GameDate:     rec.GameDate,
		Market:       p.Market,
		Line:         *p.Line,
		SelectionID:  p.SelectionID,
		Window:       p.Window,
		MatchupRank:  p.MatchupRank,
		InjuryStatus: strings.ToLower(p.InjuryStatus),
		BackToBack:   p.BackToBack,
		TrendTags:    p.TrendTags,
		Stats: models.DerivedStats{
			Hits:       p.Hits,
			Attempts:   p.Attempts,
			Streak:     p.Streak,
			Primary:    p.Stats.Primary,
			Minutes:    p.Stats.Minutes,
			Usage:      p.Stats.Usage,
			ShotVolume: p.Stats.ShotVolume,
			Rebounds:   p.Stats.Rebounds,
			Playmaking: p.Stats.Playmaking,
		},
		TeammatesOut:    p.TeammatesOut,
		TeammateMinutes: p.TeammateMinutes,
	}

	if err := row.Validate(); err != nil {
		return models.StatRow{}, err
	}
	return row, nil
}

// identityRow is one identity record before its line is parsed
type identityRow struct {
	ID       string         `db:"id"`
	EventID  string         `db:"event_id"`
	EntityID string         `db:"entity_id"`
	Market   string         `db:"market"`
	Line     sql.NullString `db:"line"`
}

// ListIdentities implements contracts.IdentityStore over the same table.
// Game-level markets carry no player and audit under the game sentinel.
// A missing line reads as 0; a line that is not a number skips the row.
func (s *PostgresSource) ListIdentities(ctx context.Context, sportKey, market string) ([]contracts.IdentityRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		SELECT id,
		       COALESCE(payload->>'event_id', '') AS event_id,
		       COALESCE(payload->>'player_id', '') AS entity_id,
		       COALESCE(payload->>'market', '') AS market,
		       payload->>'line' AS line
		FROM sheet_rows
		WHERE sport_key = $1
	`
	args := []interface{}{sportKey}

	if market != "" {
		query += " AND payload->>'market' = $2"
		args = append(args, market)
	}

	query += " ORDER BY id"

	var rows []identityRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}

	records := make([]contracts.IdentityRecord, 0, len(rows))
	for _, r := range rows {
		line, err := parseLine(r.Line)
		if err != nil {
			s.logger.Warn().Err(err).Str("row_id", r.ID).Msg("skipping identity with malformed line")
			continue
		}
		records = append(records, contracts.IdentityRecord{
			StorageID: r.ID,
			EventID:   r.EventID,
			EntityID:  r.EntityID,
			Market:    r.Market,
			Line:      line,
		})
	}

	return records, nil
}

func parseLine(v sql.NullString) (float64, error) {
	if !v.Valid || v.String == "" {
		return 0, nil
	}
	line, err := strconv.ParseFloat(strings.TrimSpace(v.String), 64)
	if err != nil || math.IsNaN(line) || math.IsInf(line, 0) {
		return 0, fmt.Errorf("line %q is not a number", v.String)
	}
	return line, nil
}

// Ping checks the connection
func (s *PostgresSource) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
