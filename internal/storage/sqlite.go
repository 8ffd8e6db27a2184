package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tazhate/dosebot/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

// Storage is the document store for medications, dose events, reminder
// policies and users. Instants are kept as epoch milliseconds and returned
// in the configured location.
type Storage struct {
	db  *sql.DB
	loc *time.Location
}

func New(dbPath string, loc *time.Location) (*Storage, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	if loc == nil {
		loc = time.Local
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer keeps remove/insert pairs and transactions serialized.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Storage{db: db, loc: loc}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Storage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			telegram_id INTEGER,
			name TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_telegram_id ON users(telegram_id) WHERE telegram_id IS NOT NULL`,
		`CREATE TABLE IF NOT EXISTS medications (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			dose_amount REAL NOT NULL DEFAULT 0,
			dose_unit TEXT NOT NULL DEFAULT '',
			frequency TEXT NOT NULL DEFAULT 'custom',
			instructions TEXT NOT NULL DEFAULT '',
			active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_medications_owner ON medications(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_medications_active ON medications(active)`,
		// Occurrence set; the primary key rejects duplicate instants
		`CREATE TABLE IF NOT EXISTS medication_occurrences (
			medication_id TEXT NOT NULL,
			at_ms INTEGER NOT NULL,
			PRIMARY KEY (medication_id, at_ms),
			FOREIGN KEY (medication_id) REFERENCES medications(id)
		)`,
		`CREATE TABLE IF NOT EXISTS dose_events (
			id TEXT PRIMARY KEY,
			medication_id TEXT NOT NULL,
			medication_name TEXT NOT NULL,
			owner_id TEXT NOT NULL DEFAULT '',
			taken_at_ms INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dose_events_owner ON dose_events(owner_id, taken_at_ms)`,
		`CREATE TABLE IF NOT EXISTS reminder_policies (
			user_id TEXT PRIMARY KEY,
			reminders_enabled INTEGER NOT NULL,
			advance_minutes INTEGER NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// Ignore "duplicate column" errors for ALTER TABLE
			if !strings.Contains(err.Error(), "duplicate column") {
				return fmt.Errorf("exec migration: %w", err)
			}
		}
	}
	return nil
}

func (s *Storage) instant(ms int64) time.Time {
	return time.UnixMilli(ms).In(s.loc)
}

// === Users ===

func (s *Storage) CreateUser(ctx context.Context, u *domain.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, telegram_id, name, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, nullableTelegramID(u.TelegramID), u.Name, u.CreatedAt,
	)
	return err
}

func (s *Storage) GetUserByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, telegram_id, name, created_at FROM users WHERE telegram_id = ?`,
		telegramID,
	))
}

func (s *Storage) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, telegram_id, name, created_at FROM users WHERE id = ?`,
		id,
	))
}

// ListUsers returns all users
func (s *Storage) ListUsers(ctx context.Context) ([]*domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, telegram_id, name, created_at FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u := &domain.User{}
		var tg sql.NullInt64
		if err := rows.Scan(&u.ID, &tg, &u.Name, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.TelegramID = tg.Int64
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Storage) scanUser(row *sql.Row) (*domain.User, error) {
	u := &domain.User{}
	var tg sql.NullInt64
	err := row.Scan(&u.ID, &tg, &u.Name, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.TelegramID = tg.Int64
	return u, nil
}

func nullableTelegramID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

// === Medications ===

const medicationColumns = `id, owner_id, name, dose_amount, dose_unit, frequency, instructions, active, created_at, updated_at`

func (s *Storage) CreateMedication(ctx context.Context, m *domain.Medication) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now()
	m.CreatedAt, m.UpdatedAt = now, now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO medications (`+medicationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.OwnerID, m.Name, m.DoseAmount, m.DoseUnit, string(m.Frequency), m.Instructions, m.Active, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert medication: %w", err)
	}
	if err := insertOccurrences(ctx, tx, m.ID, m.Occurrences); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Storage) GetMedication(ctx context.Context, id string) (*domain.Medication, error) {
	m := &domain.Medication{}
	var freq string
	err := s.db.QueryRowContext(ctx,
		`SELECT `+medicationColumns+` FROM medications WHERE id = ?`,
		id,
	).Scan(&m.ID, &m.OwnerID, &m.Name, &m.DoseAmount, &m.DoseUnit, &freq, &m.Instructions, &m.Active, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.Frequency = domain.ParseFrequencyKind(freq)

	m.Occurrences, err = s.occurrences(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListMedications returns medications matching filter, oldest first.
func (s *Storage) ListMedications(ctx context.Context, filter domain.MedicationFilter) ([]*domain.Medication, error) {
	query := `SELECT ` + medicationColumns + ` FROM medications WHERE 1 = 1`
	var args []any
	if filter.OwnerID != "" {
		if filter.IncludeLegacy {
			query += ` AND (owner_id = ? OR owner_id = '')`
		} else {
			query += ` AND owner_id = ?`
		}
		args = append(args, filter.OwnerID)
	}
	if filter.ActiveOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY created_at, rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var meds []*domain.Medication
	for rows.Next() {
		m := &domain.Medication{}
		var freq string
		if err := rows.Scan(&m.ID, &m.OwnerID, &m.Name, &m.DoseAmount, &m.DoseUnit, &freq, &m.Instructions, &m.Active, &m.CreatedAt, &m.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		m.Frequency = domain.ParseFrequencyKind(freq)
		meds = append(meds, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// Release the only connection before loading occurrences.
	rows.Close()

	for _, m := range meds {
		if m.Occurrences, err = s.occurrences(ctx, m.ID); err != nil {
			return nil, err
		}
	}
	return meds, nil
}

// UpdateMedication overwrites the medication fields and its occurrence set.
func (s *Storage) UpdateMedication(ctx context.Context, m *domain.Medication) error {
	m.UpdatedAt = time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE medications SET owner_id = ?, name = ?, dose_amount = ?, dose_unit = ?, frequency = ?, instructions = ?, active = ?, updated_at = ?
		 WHERE id = ?`,
		m.OwnerID, m.Name, m.DoseAmount, m.DoseUnit, string(m.Frequency), m.Instructions, m.Active, m.UpdatedAt, m.ID,
	)
	if err != nil {
		return fmt.Errorf("update medication: %w", err)
	}
	if err := expectRow(res, m.ID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM medication_occurrences WHERE medication_id = ?`, m.ID); err != nil {
		return fmt.Errorf("clear occurrences: %w", err)
	}
	if err := insertOccurrences(ctx, tx, m.ID, m.Occurrences); err != nil {
		return err
	}
	return tx.Commit()
}

// ClaimMedication assigns an owner to a legacy medication. Owned records
// are left untouched; the returned flag reports whether a claim happened.
func (s *Storage) ClaimMedication(ctx context.Context, id, ownerID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE medications SET owner_id = ?, updated_at = ? WHERE id = ? AND owner_id = ''`,
		ownerID, time.Now(), id,
	)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Storage) SetMedicationActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE medications SET active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now(), id,
	)
	if err != nil {
		return err
	}
	return expectRow(res, id)
}

// === Occurrences ===

// AddOccurrence is a set-union insert; it reports false when the instant
// was already present.
func (s *Storage) AddOccurrence(ctx context.Context, medicationID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO medication_occurrences (medication_id, at_ms) VALUES (?, ?)`,
		medicationID, at.UnixMilli(),
	)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, s.touch(ctx, medicationID)
}

// RemoveOccurrence reports false when the instant was not present.
func (s *Storage) RemoveOccurrence(ctx context.Context, medicationID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM medication_occurrences WHERE medication_id = ? AND at_ms = ?`,
		medicationID, at.UnixMilli(),
	)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, s.touch(ctx, medicationID)
}

// ReplaceOccurrence removes old and adds next in one transaction, so a
// reader never observes the set without either.
func (s *Storage) ReplaceOccurrence(ctx context.Context, medicationID string, old, next time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM medication_occurrences WHERE medication_id = ? AND at_ms = ?`,
		medicationID, old.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("remove occurrence: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("occurrence %d of %s: %w", old.UnixMilli(), medicationID, domain.ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO medication_occurrences (medication_id, at_ms) VALUES (?, ?)`,
		medicationID, next.UnixMilli(),
	); err != nil {
		return fmt.Errorf("add occurrence: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE medications SET updated_at = ? WHERE id = ?`,
		time.Now(), medicationID,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Storage) occurrences(ctx context.Context, medicationID string) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT at_ms FROM medication_occurrences WHERE medication_id = ? ORDER BY rowid`,
		medicationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []time.Time
	for rows.Next() {
		var ms int64
		if err := rows.Scan(&ms); err != nil {
			return nil, err
		}
		list = append(list, s.instant(ms))
	}
	return list, rows.Err()
}

func insertOccurrences(ctx context.Context, tx *sql.Tx, medicationID string, list []time.Time) error {
	for _, at := range list {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO medication_occurrences (medication_id, at_ms) VALUES (?, ?)`,
			medicationID, at.UnixMilli(),
		); err != nil {
			return fmt.Errorf("insert occurrence: %w", err)
		}
	}
	return nil
}

func (s *Storage) touch(ctx context.Context, medicationID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE medications SET updated_at = ? WHERE id = ?`, time.Now(), medicationID)
	return err
}

func expectRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("medication %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// === Dose events ===

func (s *Storage) InsertDoseEvent(ctx context.Context, e *domain.DoseEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dose_events (id, medication_id, medication_name, owner_id, taken_at_ms) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.MedicationID, e.MedicationName, e.OwnerID, e.TakenAt.UnixMilli(),
	)
	return err
}

// ListDoseEvents returns the owner's events within [from, to], newest first.
func (s *Storage) ListDoseEvents(ctx context.Context, ownerID string, from, to time.Time) ([]*domain.DoseEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, medication_id, medication_name, owner_id, taken_at_ms FROM dose_events
		 WHERE owner_id = ? AND taken_at_ms >= ? AND taken_at_ms <= ?
		 ORDER BY taken_at_ms DESC, rowid DESC`,
		ownerID, from.UnixMilli(), to.UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.DoseEvent
	for rows.Next() {
		e := &domain.DoseEvent{}
		var ms int64
		if err := rows.Scan(&e.ID, &e.MedicationID, &e.MedicationName, &e.OwnerID, &ms); err != nil {
			return nil, err
		}
		e.TakenAt = s.instant(ms)
		events = append(events, e)
	}
	return events, rows.Err()
}

// === Reminder policies ===

func (s *Storage) GetReminderPolicy(ctx context.Context, userID string) (*domain.ReminderPolicy, error) {
	p := &domain.ReminderPolicy{}
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, reminders_enabled, advance_minutes, updated_at FROM reminder_policies WHERE user_id = ?`,
		userID,
	).Scan(&p.UserID, &p.RemindersEnabled, &p.AdvanceMinutes, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (s *Storage) SaveReminderPolicy(ctx context.Context, p *domain.ReminderPolicy) error {
	p.UpdatedAt = time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminder_policies (user_id, reminders_enabled, advance_minutes, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			reminders_enabled = excluded.reminders_enabled,
			advance_minutes = excluded.advance_minutes,
			updated_at = excluded.updated_at`,
		p.UserID, p.RemindersEnabled, p.AdvanceMinutes, p.UpdatedAt,
	)
	return err
}
