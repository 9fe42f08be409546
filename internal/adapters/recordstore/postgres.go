package recordstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/okian/meetstake/internal/domain/model"
	"github.com/shopspring/decimal"
)

// schemaSQL is embedded so the service can self-bootstrap its schema.
//
//go:embed schema.sql
var schemaSQL string

const connectTimeout = 10 * time.Second

// PostgresStore implements Store on a pgx connection pool. Uniqueness of
// (event_id, user_address) and of event ids is enforced by the database,
// which is the final guard behind the orchestrator's precondition checks.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a connection pool and fails fast when the
// database is unreachable.
func NewPostgresStore(ctx context.Context, dbURL string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema applies schema.sql. Safe to run multiple times.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schemaSQL)
	return err
}

// Ping validates database connectivity for the readiness endpoint.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

// CreateUser inserts a user row.
func (p *PostgresStore) CreateUser(ctx context.Context, u model.User) error {
	// RETURNING yields a row only when inserted; a conflict yields no rows.
	var one int
	err := p.pool.QueryRow(ctx, `
		INSERT INTO users (id, name, address, created_at, last_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
		RETURNING 1
	`, u.ID, u.Name, u.Address, u.CreatedAt, u.LastActive).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicate
	}
	return err
}

// GetUser returns a user by chat id.
func (p *PostgresStore) GetUser(ctx context.Context, id int64) (model.User, error) {
	var u model.User
	err := p.pool.QueryRow(ctx, `
		SELECT id, name, address, created_at, last_active
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Name, &u.Address, &u.CreatedAt, &u.LastActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	return u, err
}

// TouchUser updates display name and last-active.
func (p *PostgresStore) TouchUser(ctx context.Context, id int64, name string, at time.Time) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE users SET name = $2, last_active = $3 WHERE id = $1
	`, id, name, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertEvent mirrors a ledger-created event.
func (p *PostgresStore) InsertEvent(ctx context.Context, e model.Event) error {
	var lat, lng *float64
	if e.Anchor != nil {
		lat, lng = &e.Anchor.Lat, &e.Anchor.Lng
	}
	var one int
	err := p.pool.QueryRow(ctx, `
		INSERT INTO events (id, name, scheduled, stake, creator, anchor_lat, anchor_lng, venue, finalized, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
		RETURNING 1
	`, e.ID, e.Name, e.When, e.Stake, e.Creator, lat, lng, e.Venue, e.Finalized, e.CreatedAt).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicate
	}
	return err
}

// GetEvent returns an event by ledger id.
func (p *PostgresStore) GetEvent(ctx context.Context, id int64) (model.Event, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, name, scheduled, stake, creator, anchor_lat, anchor_lng, venue, finalized, created_at
		FROM events WHERE id = $1
	`, id)
	e, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Event{}, ErrNotFound
	}
	return e, err
}

// SetFinalized flips the one-way finalized flag.
func (p *PostgresStore) SetFinalized(ctx context.Context, id int64) error {
	tag, err := p.pool.Exec(ctx, `UPDATE events SET finalized = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindEventsByName returns events matching q, case-insensitive.
func (p *PostgresStore) FindEventsByName(ctx context.Context, q string) ([]model.Event, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, name, scheduled, stake, creator, anchor_lat, anchor_lng, venue, finalized, created_at
		FROM events WHERE name ILIKE '%' || $1 || '%'
		ORDER BY scheduled
	`, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListEvents returns events matching the filter.
func (p *PostgresStore) ListEvents(ctx context.Context, f EventFilter) ([]model.Event, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, name, scheduled, stake, creator, anchor_lat, anchor_lng, venue, finalized, created_at
		FROM events
		WHERE ($1 = '' OR creator = $1)
		  AND (NOT $2 OR NOT finalized)
		ORDER BY scheduled
	`, f.Creator, f.ActiveOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// InsertParticipant records a confirmed stake.
func (p *PostgresStore) InsertParticipant(ctx context.Context, pt model.Participant) error {
	var lat, lng *float64
	if pt.CheckIn != nil {
		lat, lng = &pt.CheckIn.Lat, &pt.CheckIn.Lng
	}
	var one int
	err := p.pool.QueryRow(ctx, `
		INSERT INTO participants (event_id, user_address, has_staked, attended, checkin_lat, checkin_lng, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id, user_address) DO NOTHING
		RETURNING 1
	`, pt.EventID, pt.Address, pt.HasStaked, pt.Attended, lat, lng, pt.JoinedAt).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicate
	}
	return err
}

// GetParticipant returns the row for (eventID, address).
func (p *PostgresStore) GetParticipant(ctx context.Context, eventID int64, address string) (model.Participant, error) {
	var (
		pt       model.Participant
		lat, lng *float64
		at       *time.Time
	)
	err := p.pool.QueryRow(ctx, `
		SELECT event_id, user_address, has_staked, attended, checkin_lat, checkin_lng, checkin_at, joined_at
		FROM participants WHERE event_id = $1 AND user_address = $2
	`, eventID, address).Scan(&pt.EventID, &pt.Address, &pt.HasStaked, &pt.Attended, &lat, &lng, &at, &pt.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Participant{}, ErrNotFound
	}
	if err != nil {
		return model.Participant{}, err
	}
	if lat != nil && lng != nil {
		pt.CheckIn = &model.Location{Lat: *lat, Lng: *lng}
	}
	if at != nil {
		pt.CheckInAt = *at
	}
	return pt, nil
}

// SetAttended marks a participant attended.
func (p *PostgresStore) SetAttended(ctx context.Context, eventID int64, address string, loc *model.Location, at time.Time) error {
	var lat, lng *float64
	if loc != nil {
		lat, lng = &loc.Lat, &loc.Lng
	}
	tag, err := p.pool.Exec(ctx, `
		UPDATE participants
		SET attended = TRUE, checkin_lat = $3, checkin_lng = $4, checkin_at = $5
		WHERE event_id = $1 AND user_address = $2
	`, eventID, address, lat, lng, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListParticipants returns all participants of an event.
func (p *PostgresStore) ListParticipants(ctx context.Context, eventID int64) ([]model.Participant, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT event_id, user_address, has_staked, attended, checkin_lat, checkin_lng, checkin_at, joined_at
		FROM participants WHERE event_id = $1
		ORDER BY joined_at
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Participant
	for rows.Next() {
		var (
			pt       model.Participant
			lat, lng *float64
			at       *time.Time
		)
		if err := rows.Scan(&pt.EventID, &pt.Address, &pt.HasStaked, &pt.Attended, &lat, &lng, &at, &pt.JoinedAt); err != nil {
			return nil, err
		}
		if lat != nil && lng != nil {
			pt.CheckIn = &model.Location{Lat: *lat, Lng: *lng}
		}
		if at != nil {
			pt.CheckInAt = *at
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}

// AttendableEvents returns joined, active, not-yet-attended events.
func (p *PostgresStore) AttendableEvents(ctx context.Context, address string) ([]model.Event, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT e.id, e.name, e.scheduled, e.stake, e.creator, e.anchor_lat, e.anchor_lng, e.venue, e.finalized, e.created_at
		FROM events e
		JOIN participants pt ON pt.event_id = e.id
		WHERE pt.user_address = $1 AND NOT pt.attended AND NOT e.finalized
		ORDER BY e.scheduled
	`, address)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// InsertMemory stores a memory asset row.
func (p *PostgresStore) InsertMemory(ctx context.Context, m model.MemoryAsset) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO memories (id, event_id, blob_id, created_at)
		VALUES ($1, $2, $3, $4)
	`, m.ID, m.EventID, m.BlobID, m.CreatedAt)
	return err
}

// ListMemories returns an event's memory assets, newest first.
func (p *PostgresStore) ListMemories(ctx context.Context, eventID int64) ([]model.MemoryAsset, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, event_id, blob_id, created_at
		FROM memories WHERE event_id = $1
		ORDER BY created_at DESC
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MemoryAsset
	for rows.Next() {
		var m model.MemoryAsset
		if err := rows.Scan(&m.ID, &m.EventID, &m.BlobID, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (model.Event, error) {
	var (
		e        model.Event
		stake    decimal.Decimal
		lat, lng *float64
	)
	err := row.Scan(&e.ID, &e.Name, &e.When, &stake, &e.Creator, &lat, &lng, &e.Venue, &e.Finalized, &e.CreatedAt)
	if err != nil {
		return model.Event{}, err
	}
	e.Stake = stake
	if lat != nil && lng != nil {
		e.Anchor = &model.Location{Lat: *lat, Lng: *lng}
	}
	return e, nil
}

func scanEvents(rows pgx.Rows) ([]model.Event, error) {
	var out []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
