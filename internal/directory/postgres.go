package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	room_id      TEXT PRIMARY KEY,
	owner        TEXT NOT NULL,
	participants TEXT[] NOT NULL DEFAULT '{}',
	language     TEXT NOT NULL DEFAULT 'javascript',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const roomColumns = `room_id, owner, participants, language, created_at, updated_at`

// Postgres is a Directory backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// Connect opens a pool for url and makes sure the rooms table exists.
func Connect(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	p := &Postgres{pool: pool}
	if err := p.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate rooms: %w", err)
	}
	return nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) Create(ctx context.Context, owner string) (Room, error) {
	row := p.pool.QueryRow(ctx,
		`INSERT INTO rooms (room_id, owner, participants, language)
		 VALUES ($1, $2, ARRAY[$2::TEXT], $3)
		 RETURNING `+roomColumns,
		NewRoomID(), owner, DefaultLanguage)
	r, err := scanRoom(row)
	if err != nil {
		return Room{}, fmt.Errorf("create room: %w", err)
	}
	return r, nil
}

func (p *Postgres) Get(ctx context.Context, roomID string) (Room, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE room_id = $1`, roomID)
	r, err := scanRoom(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Room{}, ErrNotFound
	}
	if err != nil {
		return Room{}, fmt.Errorf("get room %s: %w", roomID, err)
	}
	return r, nil
}

func (p *Postgres) AddParticipant(ctx context.Context, roomID, userID string) (Room, error) {
	row := p.pool.QueryRow(ctx,
		`UPDATE rooms
		 SET participants = CASE WHEN $2 = ANY(participants) THEN participants ELSE array_append(participants, $2) END,
		     updated_at   = CASE WHEN $2 = ANY(participants) THEN updated_at ELSE now() END
		 WHERE room_id = $1
		 RETURNING `+roomColumns,
		roomID, userID)
	r, err := scanRoom(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Room{}, ErrNotFound
	}
	if err != nil {
		return Room{}, fmt.Errorf("add participant to %s: %w", roomID, err)
	}
	return r, nil
}

func (p *Postgres) Exists(ctx context.Context, roomID string) (bool, error) {
	var ok bool
	err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rooms WHERE room_id = $1)`, roomID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("lookup room %s: %w", roomID, err)
	}
	return ok, nil
}

func scanRoom(row pgx.Row) (Room, error) {
	var r Room
	err := row.Scan(&r.ID, &r.Owner, &r.Participants, &r.Language, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}
