// Package journal persists finished sessions: the reasoning steps and the
// final answer. Postgres and SQLite are supported.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	_ "modernc.org/sqlite"

	contractx "github.com/yixiaowang2001/game-sage-agent/agent/contract"
	statex "github.com/yixiaowang2001/game-sage-agent/agent/state"
)

var ErrNotFound = errors.New("session not found")

type Config struct {
	DSN string `envconfig:"DSN"`
}

type SessionRecord struct {
	bun.BaseModel `bun:"table:sessions,alias:s"`

	ID                   string               `bun:"id,pk" json:"id"`
	Query                string               `bun:"query,notnull" json:"query"`
	Lang                 string               `bun:"lang" json:"lang"`
	Domain               string               `bun:"domain" json:"domain,omitempty"`
	Answer               string               `bun:"answer" json:"answer"`
	Citations            []contractx.Citation `bun:"citations" json:"citations"`
	InsufficientEvidence bool                 `bun:"insufficient_evidence,notnull" json:"insufficient_evidence"`
	StopReason           string               `bun:"stop_reason" json:"stop_reason"`
	Turns                int                  `bun:"turns,notnull" json:"turns"`
	StartedAt            time.Time            `bun:"started_at,notnull" json:"started_at"`
	FinishedAt           time.Time            `bun:"finished_at,notnull" json:"finished_at"`
}

type StepRecord struct {
	bun.BaseModel `bun:"table:session_steps,alias:st"`

	ID           int64                   `bun:"id,pk,autoincrement" json:"-"`
	SessionID    string                  `bun:"session_id,notnull" json:"session_id"`
	Turn         int                     `bun:"turn,notnull" json:"turn"`
	Thought      string                  `bun:"thought" json:"thought,omitempty"`
	Action       []contractx.PlanEntry   `bun:"action" json:"action,omitempty"`
	Observations []contractx.Observation `bun:"observations" json:"observations,omitempty"`
}

type Journal struct {
	db *bun.DB
}

// Open connects to dsn and creates the tables when missing. postgres:// and
// postgresql:// use pgdriver; file:, sqlite: and :memory: use SQLite.
func Open(ctx context.Context, dsn string) (*Journal, error) {
	dsn = strings.TrimSpace(dsn)
	var db *bun.DB
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		db = bun.NewDB(sqldb, pgdialect.New())
	case strings.HasPrefix(dsn, "file:"), strings.HasPrefix(dsn, "sqlite:"), dsn == ":memory:":
		sqldb, err := sql.Open("sqlite", strings.TrimPrefix(dsn, "sqlite:"))
		if err != nil {
			return nil, fmt.Errorf("open sqlite journal: %w", err)
		}
		// SQLite serialises writers; one connection also keeps :memory: databases alive.
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	default:
		return nil, fmt.Errorf("%w: unsupported journal dsn %q", contractx.ErrValidation, redact(dsn))
	}

	j := New(db)
	if err := j.Init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func New(db *bun.DB) *Journal {
	return &Journal{db: db}
}

func (j *Journal) Init(ctx context.Context) error {
	if err := j.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping journal: %w", err)
	}
	for _, model := range []any{(*SessionRecord)(nil), (*StepRecord)(nil)} {
		if _, err := j.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create journal table: %w", err)
		}
	}
	if _, err := j.db.NewCreateIndex().
		Model((*StepRecord)(nil)).
		Index("session_steps_session_id_idx").
		Column("session_id").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create journal index: %w", err)
	}
	return nil
}

// Record stores the session and its steps in one transaction.
func (j *Journal) Record(ctx context.Context, state *statex.AgentState, answer contractx.FinalAnswer) error {
	if err := state.Validate(); err != nil {
		return fmt.Errorf("%w: %v", contractx.ErrValidation, err)
	}

	session := SessionRecord{
		ID:                   state.SessionID,
		Query:                state.Query.Text,
		Lang:                 state.Query.Lang,
		Domain:               state.Query.Domain,
		Answer:               answer.Text,
		Citations:            answer.Citations,
		InsufficientEvidence: answer.InsufficientEvidence,
		StopReason:           string(answer.StopReason),
		Turns:                answer.Turns,
		StartedAt:            state.StartedAt,
		FinishedAt:           state.UpdatedAt,
	}
	steps := make([]StepRecord, 0, len(state.Steps))
	for _, s := range state.History() {
		steps = append(steps, StepRecord{
			SessionID:    state.SessionID,
			Turn:         s.Turn,
			Thought:      s.Thought,
			Action:       s.Action,
			Observations: s.Observations,
		})
	}

	return j.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&session).Exec(ctx); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		if len(steps) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&steps).Exec(ctx); err != nil {
			return fmt.Errorf("insert session steps: %w", err)
		}
		return nil
	})
}

func (j *Journal) Session(ctx context.Context, id string) (SessionRecord, []StepRecord, error) {
	var session SessionRecord
	err := j.db.NewSelect().Model(&session).Where("id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, nil, ErrNotFound
	}
	if err != nil {
		return SessionRecord{}, nil, fmt.Errorf("select session: %w", err)
	}

	var steps []StepRecord
	if err := j.db.NewSelect().Model(&steps).Where("session_id = ?", id).Order("turn ASC").Scan(ctx); err != nil {
		return SessionRecord{}, nil, fmt.Errorf("select session steps: %w", err)
	}
	return session, steps, nil
}

// Recent lists the latest sessions, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var sessions []SessionRecord
	if err := j.db.NewSelect().Model(&sessions).Order("finished_at DESC").Limit(limit).Scan(ctx); err != nil {
		return nil, fmt.Errorf("select recent sessions: %w", err)
	}
	return sessions, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func redact(dsn string) string {
	if i := strings.Index(dsn, "@"); i >= 0 {
		if j := strings.Index(dsn, "://"); j >= 0 && j < i {
			return dsn[:j+3] + "***" + dsn[i:]
		}
	}
	return dsn
}
