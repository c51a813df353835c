// Package sideindex is an optional, asynchronous read-side index. It
// denormalizes agent positions, conversation membership, and per-tick
// summaries into Postgres so list/filter queries ("who's at the
// library", "conversations near the workshop this hour") don't have to
// walk the event log. The observer HTTP API does not query it; its
// handlers read the engine's in-memory state. It is never consulted
// for recovery: the event log and snapshots remain the only source of
// truth, and a side index outage never blocks a tick.
package sideindex

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/codeready-toolchain/tarsy/internal/domain"
)

//go:embed migrations
var migrationsFS embed.FS

// Config configures a connection to the side index's Postgres database.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns int
	MaxIdleConns int
}

func (c Config) dsn() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// Index is what the engine needs to record a committed tick. A nil
// Index is a valid no-op: RecordAsync checks for nil and does nothing.
type Index interface {
	Record(ctx context.Context, summary TickSummary) error
	Close() error
}

// TickSummary is the denormalized view of village state the engine
// hands the side index once a tick has been durably committed.
type TickSummary struct {
	Tick      int
	WorldTime time.Time
	Weather   domain.Weather
	Agents    []domain.AgentSnapshot
	Convos    []domain.Conversation
}

// PostgresIndex implements Index against a Postgres database reached
// through database/sql with the pgx stdlib driver, the same
// registration pattern the teacher's primary store uses, minus the ent
// generated client: the side index issues its own SQL directly.
type PostgresIndex struct {
	db *sql.DB
}

// NewPostgresIndex opens a connection pool, runs pending migrations,
// and returns a ready PostgresIndex.
func NewPostgresIndex(ctx context.Context, cfg Config) (*PostgresIndex, error) {
	db, err := sql.Open("pgx", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("open side index database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping side index database: %w", err)
	}

	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate side index schema: %w", err)
	}

	return &PostgresIndex{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// Record upserts summary's agent positions and conversation membership,
// and inserts one row summarizing the tick as a whole. All writes run
// in a single transaction; a failure here is logged by the caller and
// never propagates back into the tick pipeline.
func (p *PostgresIndex) Record(ctx context.Context, summary TickSummary) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin side index transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()

	for _, agent := range summary.Agents {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO agent_positions (agent_name, location_id, mood, energy, is_sleeping, session_tokens, updated_at_tick, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (agent_name) DO UPDATE SET
				location_id = EXCLUDED.location_id,
				mood = EXCLUDED.mood,
				energy = EXCLUDED.energy,
				is_sleeping = EXCLUDED.is_sleeping,
				session_tokens = EXCLUDED.session_tokens,
				updated_at_tick = EXCLUDED.updated_at_tick,
				updated_at = EXCLUDED.updated_at
		`, string(agent.Name), string(agent.Location), agent.Mood, agent.Energy, agent.IsSleeping,
			agent.TokenUsage.SessionTokens, summary.Tick, now)
		if err != nil {
			return fmt.Errorf("upsert agent position %s: %w", agent.Name, err)
		}
	}

	activeConvos := 0
	for _, convo := range summary.Convos {
		activeConvos++
		for _, participant := range convo.ParticipantNames() {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO conversation_membership (conversation_id, agent_name, location_id, started_at_tick, ended_at_tick)
				VALUES ($1, $2, $3, $4, NULL)
				ON CONFLICT (conversation_id, agent_name) DO UPDATE SET
					location_id = EXCLUDED.location_id
			`, string(convo.ID), string(participant), string(convo.Location), convo.StartedAtTick)
			if err != nil {
				return fmt.Errorf("upsert conversation membership %s/%s: %w", convo.ID, participant, err)
			}
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tick_summaries (tick, world_time, weather, agent_count, active_conversation_count, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tick) DO NOTHING
	`, summary.Tick, summary.WorldTime, string(summary.Weather), len(summary.Agents), activeConvos, now)
	if err != nil {
		return fmt.Errorf("insert tick summary: %w", err)
	}

	return tx.Commit()
}

// MarkConversationEnded records that conversationID is no longer active
// as of endedAtTick, for agents already tracked as members.
func (p *PostgresIndex) MarkConversationEnded(ctx context.Context, conversationID domain.ConversationID, endedAtTick int) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE conversation_membership SET ended_at_tick = $2 WHERE conversation_id = $1 AND ended_at_tick IS NULL
	`, string(conversationID), endedAtTick)
	if err != nil {
		return fmt.Errorf("mark conversation %s ended: %w", conversationID, err)
	}
	return nil
}

// AgentsAtLocation returns the agent names the side index last recorded
// at location.
func (p *PostgresIndex) AgentsAtLocation(ctx context.Context, location domain.LocationID) ([]domain.AgentName, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT agent_name FROM agent_positions WHERE location_id = $1`, string(location))
	if err != nil {
		return nil, fmt.Errorf("query agents at location %s: %w", location, err)
	}
	defer rows.Close()

	var names []domain.AgentName
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan agent position row: %w", err)
		}
		names = append(names, domain.AgentName(name))
	}
	return names, rows.Err()
}

// ConversationsSince returns the distinct conversation IDs recorded at
// location with a started_at_tick of sinceTick or later.
func (p *PostgresIndex) ConversationsSince(ctx context.Context, location domain.LocationID, sinceTick int) ([]domain.ConversationID, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT DISTINCT conversation_id FROM conversation_membership
		WHERE location_id = $1 AND started_at_tick >= $2
		ORDER BY conversation_id
	`, string(location), sinceTick)
	if err != nil {
		return nil, fmt.Errorf("query conversations at location %s: %w", location, err)
	}
	defer rows.Close()

	var ids []domain.ConversationID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan conversation membership row: %w", err)
		}
		ids = append(ids, domain.ConversationID(id))
	}
	return ids, rows.Err()
}

// Close releases the underlying connection pool.
func (p *PostgresIndex) Close() error {
	return p.db.Close()
}

// RecordAsync runs idx.Record in a detached goroutine, logging failure
// rather than propagating it: the side index must never slow down or
// fail a tick.
func RecordAsync(idx Index, summary TickSummary) {
	if idx == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := idx.Record(ctx, summary); err != nil {
			slog.Warn("side index record failed", "tick", summary.Tick, "error", err)
		}
	}()
}
