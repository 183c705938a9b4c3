package lights

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultJournalLimit bounds Recent when no limit is given.
const DefaultJournalLimit = 100

// MaxJournalLimit is the largest page Recent returns.
const MaxJournalLimit = 1000

// Journal defines command journal persistence.
type Journal interface {
	// Append stores e, assigning an id and creation time when unset, and
	// returns the stored entry.
	Append(ctx context.Context, e Entry) (Entry, error)

	// Resolve moves the oldest queued entry for (lightID, opcode) to status.
	// Commands leave the queue in FIFO order, so the oldest queued entry is
	// the one the scheduler just reported on. seq is recorded for
	// StatusTransmitted. Returns ErrEntryNotFound when nothing is queued.
	Resolve(ctx context.Context, lightID uint32, opcode string, status Status, seq *uint8, errMsg string, at time.Time) (string, error)

	// SetStatus moves the entry with id from queued to a terminal status.
	// Returns ErrEntryNotFound when no queued entry has that id.
	SetStatus(ctx context.Context, id string, status Status, errMsg string) error

	// DropQueued marks the newest n queued entries dropped. Cleared
	// commands are always the most recently queued ones, so a queue clear
	// of n commands maps onto them. A non-positive n drops every queued
	// entry.
	DropQueued(ctx context.Context, n int, reason string) (int64, error)

	// Recent returns the newest entries first. lightID filters when non-nil.
	Recent(ctx context.Context, limit int, lightID *uint32) ([]Entry, error)
}

// SQLiteJournal implements Journal using SQLite.
type SQLiteJournal struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteJournal creates a command journal on db.
func NewSQLiteJournal(db *sql.DB) *SQLiteJournal {
	return &SQLiteJournal{db: db, now: time.Now}
}

// Append stores a journal entry.
func (j *SQLiteJournal) Append(ctx context.Context, e Entry) (Entry, error) {
	if !e.Status.Valid() {
		return Entry{}, fmt.Errorf("%w: %q", ErrInvalidStatus, e.Status)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = j.now().UTC()
	}

	payload, err := encodeState(e.State)
	if err != nil {
		return Entry{}, err
	}

	var transmittedAt any
	if e.TransmittedAt != nil {
		transmittedAt = formatTime(*e.TransmittedAt)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO command_journal (
			id, light_id, group_id, opcode, payload, status, sequence, error, source,
			created_at, transmitted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.LightID, e.GroupID, e.Opcode, payload, string(e.Status),
		nullableSequence(e.Sequence), nullableString(e.Error), e.Source,
		formatTime(e.CreatedAt), transmittedAt,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("inserting journal entry: %w", err)
	}
	return e, nil
}

// Resolve updates the oldest queued entry for the light and opcode.
func (j *SQLiteJournal) Resolve(ctx context.Context, lightID uint32, opcode string, status Status, seq *uint8, errMsg string, at time.Time) (string, error) {
	if !status.Valid() || status == StatusQueued {
		return "", fmt.Errorf("%w: cannot resolve to %q", ErrInvalidStatus, status)
	}

	var transmittedAt any
	if status == StatusTransmitted {
		transmittedAt = formatTime(at)
	}

	var id string
	err := j.db.QueryRowContext(ctx, `
		UPDATE command_journal
		SET status = ?, sequence = ?, error = ?, transmitted_at = ?
		WHERE id = (
			SELECT id FROM command_journal
			WHERE status = 'queued' AND light_id = ? AND opcode = ?
			ORDER BY rowid
			LIMIT 1
		)
		RETURNING id`,
		string(status), nullableSequence(seq), nullableString(errMsg), transmittedAt,
		lightID, opcode,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrEntryNotFound
		}
		return "", fmt.Errorf("resolving journal entry: %w", err)
	}
	return id, nil
}

// SetStatus resolves a single queued entry by id.
func (j *SQLiteJournal) SetStatus(ctx context.Context, id string, status Status, errMsg string) error {
	if !status.Valid() || status == StatusQueued {
		return fmt.Errorf("%w: cannot resolve to %q", ErrInvalidStatus, status)
	}

	result, err := j.db.ExecContext(ctx,
		`UPDATE command_journal SET status = ?, error = ? WHERE id = ? AND status = 'queued'`,
		string(status), nullableString(errMsg), id,
	)
	if err != nil {
		return fmt.Errorf("updating journal entry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// DropQueued marks queued entries dropped, newest first.
func (j *SQLiteJournal) DropQueued(ctx context.Context, n int, reason string) (int64, error) {
	limit := -1 // SQLite: no limit
	if n > 0 {
		limit = n
	}

	result, err := j.db.ExecContext(ctx, `
		UPDATE command_journal SET status = 'dropped', error = ?
		WHERE id IN (
			SELECT id FROM command_journal
			WHERE status = 'queued'
			ORDER BY rowid DESC
			LIMIT ?
		)`,
		nullableString(reason), limit,
	)
	if err != nil {
		return 0, fmt.Errorf("dropping queued journal entries: %w", err)
	}
	dropped, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return dropped, nil
}

// Recent returns the newest entries first.
func (j *SQLiteJournal) Recent(ctx context.Context, limit int, lightID *uint32) ([]Entry, error) {
	switch {
	case limit <= 0:
		limit = DefaultJournalLimit
	case limit > MaxJournalLimit:
		limit = MaxJournalLimit
	}

	query := `
		SELECT id, light_id, group_id, opcode, payload, status, sequence, error, source,
			created_at, transmitted_at
		FROM command_journal`
	args := []any{}
	if lightID != nil {
		query += ` WHERE light_id = ?`
		args = append(args, *lightID)
	}
	query += ` ORDER BY rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal: %w", err)
	}
	return entries, nil
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		e             Entry
		payload       []byte
		status        string
		sequence      sql.NullInt64
		errMsg        sql.NullString
		createdAt     string
		transmittedAt sql.NullString
	)
	if err := row.Scan(&e.ID, &e.LightID, &e.GroupID, &e.Opcode, &payload, &status,
		&sequence, &errMsg, &e.Source, &createdAt, &transmittedAt); err != nil {
		return nil, err
	}

	var err error
	e.Status = Status(status)
	e.Error = errMsg.String
	if sequence.Valid {
		seq := uint8(sequence.Int64) //nolint:gosec // Stored from a uint8
		e.Sequence = &seq
	}
	if e.State, err = decodeState(payload); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if e.TransmittedAt, err = parseNullTime(transmittedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func nullableSequence(seq *uint8) any {
	if seq == nil {
		return nil
	}
	return int64(*seq)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
