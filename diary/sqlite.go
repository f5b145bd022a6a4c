package diary

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"voicediary/analysis"
	"voicediary/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	identity     TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	age          TEXT NOT NULL,
	gender       TEXT NOT NULL,
	phone        TEXT NOT NULL,
	phone_key    TEXT NOT NULL,
	diseases     TEXT NOT NULL,
	medications  TEXT NOT NULL,
	pairing_code TEXT NOT NULL,
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS profiles_pairing_code ON profiles(pairing_code);
CREATE INDEX IF NOT EXISTS profiles_phone_key ON profiles(phone_key);

CREATE TABLE IF NOT EXISTS entries (
	id               TEXT PRIMARY KEY,
	identity         TEXT NOT NULL,
	pairing_code     TEXT NOT NULL,
	transcript       TEXT NOT NULL,
	clinical_summary TEXT NOT NULL,
	severity         TEXT NOT NULL,
	severity_label   TEXT NOT NULL,
	severity_color   TEXT NOT NULL,
	mood             TEXT NOT NULL,
	advice           TEXT NOT NULL,
	fallback         INTEGER NOT NULL DEFAULT 0,
	created_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS entries_pairing_code ON entries(pairing_code, created_at);
`

// SQLiteStore persists the diary in a local SQLite file.
type SQLiteStore struct {
	db  *sql.DB
	hub *hub
	now func() time.Time
}

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db, hub: newHub(), now: time.Now}, nil
}

func (s *SQLiteStore) SetClock(now func() time.Time) { s.now = now }

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveProfile(ctx context.Context, identity string, p Profile, pairingCode string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (identity, name, age, gender, phone, phone_key, diseases, medications, pairing_code, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			name = excluded.name,
			age = excluded.age,
			gender = excluded.gender,
			phone = excluded.phone,
			phone_key = excluded.phone_key,
			diseases = excluded.diseases,
			medications = excluded.medications,
			pairing_code = excluded.pairing_code
	`, identity, p.Name, p.Age, p.Gender, p.Phone, PhoneKey(p.Phone), p.Diseases, p.Medications,
		pairingCode, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveEntry(ctx context.Context, identity, pairingCode string, r analysis.Result) (Entry, error) {
	e := newEntry(uuid.NewString(), identity, pairingCode, r, s.now())
	fallback := 0
	if e.Fallback {
		fallback = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (id, identity, pairing_code, transcript, clinical_summary,
			severity, severity_label, severity_color, mood, advice, fallback, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Identity, e.PairingCode, e.Transcript, e.ClinicalSummary,
		string(e.Severity), e.SeverityLabel, e.SeverityColor, e.Mood, e.Advice, fallback, e.CreatedAt.UnixMilli())
	if err != nil {
		return Entry{}, fmt.Errorf("save entry: %w", err)
	}

	if s.hub.has(pairingCode) {
		// The entry is committed; a failed refresh only skips this publish.
		entries, err := s.Entries(ctx, pairingCode)
		if err != nil {
			log.Warnf("diary: publishing entries for %s: %v", pairingCode, err)
			return e, nil
		}
		s.hub.publish(pairingCode, entries)
	}
	return e, nil
}

const profileColumns = `identity, name, age, gender, phone, diseases, medications, pairing_code, created_at`

func scanProfile(row *sql.Row) (*Profile, error) {
	var p Profile
	var createdAt int64
	if err := row.Scan(&p.Identity, &p.Name, &p.Age, &p.Gender, &p.Phone,
		&p.Diseases, &p.Medications, &p.PairingCode, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	p.CreatedAt = time.UnixMilli(createdAt)
	return &p, nil
}

func (s *SQLiteStore) QueryByPairingCode(ctx context.Context, code string) (*Profile, error) {
	return scanProfile(s.db.QueryRowContext(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		WHERE pairing_code = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, code))
}

func (s *SQLiteStore) QueryByPhone(ctx context.Context, phone string) (*Profile, error) {
	key := PhoneKey(phone)
	if key == "" {
		return nil, nil
	}
	return scanProfile(s.db.QueryRowContext(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		WHERE phone_key = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, key))
}

// Entries returns all entries for code, newest first.
func (s *SQLiteStore) Entries(ctx context.Context, code string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, identity, pairing_code, transcript, clinical_summary,
			severity, severity_label, severity_color, mood, advice, fallback, created_at
		FROM entries
		WHERE pairing_code = ?
		ORDER BY created_at DESC, rowid DESC
	`, code)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var severity string
		var fallback int
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.Identity, &e.PairingCode, &e.Transcript, &e.ClinicalSummary,
			&severity, &e.SeverityLabel, &e.SeverityColor, &e.Mood, &e.Advice, &fallback, &createdAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Severity = analysis.Severity(severity)
		e.Fallback = fallback != 0
		e.CreatedAt = time.UnixMilli(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) Subscribe(code string, onChange func([]Entry)) func() {
	unsubscribe := s.hub.add(code, onChange)
	entries, err := s.Entries(context.Background(), code)
	if err != nil {
		log.Warnf("diary: initial entries for %s: %v", code, err)
	}
	onChange(entries)
	return unsubscribe
}
