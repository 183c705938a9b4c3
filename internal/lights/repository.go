package lights

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-fastcon/internal/mesh/protocol"
)

// Repository defines light registry persistence.
type Repository interface {
	// Get returns one light. Returns ErrLightNotFound if the id has no row.
	Get(ctx context.Context, id uint32) (*Light, error)

	// List returns all known lights ordered by id.
	List(ctx context.Context) ([]Light, error)

	// MarkPaired records that a pair command for id was transmitted into group.
	// The row is created if needed.
	MarkPaired(ctx context.Context, id, group uint32, at time.Time) error

	// MarkReset records that a factory reset for id was transmitted. Pairing
	// and last state are cleared; the row (and its name) is kept.
	MarkReset(ctx context.Context, id uint32, at time.Time) error

	// RecordState stores the last transmitted state for id.
	RecordState(ctx context.Context, id uint32, state protocol.LightState, at time.Time) error

	// Rename sets a display name. Returns ErrLightNotFound if the id has no row.
	Rename(ctx context.Context, id uint32, name string) error

	// Delete removes a light row. Returns ErrLightNotFound if the id has no row.
	Delete(ctx context.Context, id uint32) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed light registry.
// The db must have the lights migration applied.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const lightColumns = `id, name, group_id, paired_at, last_state, last_seen_at, created_at, updated_at`

// Get returns one light.
func (r *SQLiteRepository) Get(ctx context.Context, id uint32) (*Light, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+lightColumns+` FROM lights WHERE id = ?`, id)
	light, err := scanLight(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLightNotFound
		}
		return nil, fmt.Errorf("querying light by id: %w", err)
	}
	return light, nil
}

// List returns all known lights ordered by id.
func (r *SQLiteRepository) List(ctx context.Context) ([]Light, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+lightColumns+` FROM lights ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying lights: %w", err)
	}
	defer rows.Close()

	lights := []Light{}
	for rows.Next() {
		light, err := scanLight(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning light: %w", err)
		}
		lights = append(lights, *light)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating lights: %w", err)
	}
	return lights, nil
}

// MarkPaired upserts the light with its group and pairing time.
func (r *SQLiteRepository) MarkPaired(ctx context.Context, id, group uint32, at time.Time) error {
	if err := validateID(id); err != nil {
		return err
	}
	ts := formatTime(at)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lights (id, group_id, paired_at, last_seen_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			group_id = excluded.group_id,
			paired_at = excluded.paired_at,
			last_seen_at = excluded.last_seen_at,
			updated_at = excluded.updated_at`,
		id, group, ts, ts, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("marking light paired: %w", err)
	}
	return nil
}

// MarkReset clears pairing and state, creating the row if needed so the
// reset is visible in the registry.
func (r *SQLiteRepository) MarkReset(ctx context.Context, id uint32, at time.Time) error {
	if err := validateID(id); err != nil {
		return err
	}
	ts := formatTime(at)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lights (id, group_id, paired_at, last_state, last_seen_at, created_at, updated_at)
		VALUES (?, ?, NULL, NULL, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			group_id = excluded.group_id,
			paired_at = NULL,
			last_state = NULL,
			last_seen_at = excluded.last_seen_at,
			updated_at = excluded.updated_at`,
		id, protocol.DefaultGroup, ts, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("marking light reset: %w", err)
	}
	return nil
}

// RecordState upserts the light's last transmitted state.
func (r *SQLiteRepository) RecordState(ctx context.Context, id uint32, state protocol.LightState, at time.Time) error {
	if err := validateID(id); err != nil {
		return err
	}
	blob, err := encodeState(&state)
	if err != nil {
		return err
	}
	ts := formatTime(at)
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO lights (id, group_id, last_state, last_seen_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_state = excluded.last_state,
			last_seen_at = excluded.last_seen_at,
			updated_at = excluded.updated_at`,
		id, protocol.DefaultGroup, blob, ts, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("recording light state: %w", err)
	}
	return nil
}

// Rename sets a display name.
func (r *SQLiteRepository) Rename(ctx context.Context, id uint32, name string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE lights SET name = ?, updated_at = ? WHERE id = ?`,
		name, formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("renaming light: %w", err)
	}
	return requireRow(result)
}

// Delete removes a light row.
func (r *SQLiteRepository) Delete(ctx context.Context, id uint32) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM lights WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting light: %w", err)
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrLightNotFound
	}
	return nil
}

func validateID(id uint32) error {
	if id > protocol.MaxLightID {
		return fmt.Errorf("%w: %d exceeds %d", ErrInvalidLight, id, protocol.MaxLightID)
	}
	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanLight(row rowScanner) (*Light, error) {
	var (
		l                    Light
		pairedAt, lastSeenAt sql.NullString
		createdAt, updatedAt string
		stateBlob            []byte
	)
	if err := row.Scan(&l.ID, &l.Name, &l.GroupID, &pairedAt, &stateBlob, &lastSeenAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if l.LastState, err = decodeState(stateBlob); err != nil {
		return nil, err
	}
	if l.PairedAt, err = parseNullTime(pairedAt); err != nil {
		return nil, err
	}
	if l.LastSeenAt, err = parseNullTime(lastSeenAt); err != nil {
		return nil, err
	}
	if l.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if l.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
