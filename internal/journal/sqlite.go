package journal

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ducminhle1904/orb-breakout-bot/internal/session"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	symbol TEXT NOT NULL,
	date TEXT NOT NULL,
	outcome TEXT NOT NULL,
	reason TEXT NOT NULL,
	direction TEXT NOT NULL,
	entry REAL NOT NULL,
	stop_loss REAL NOT NULL,
	take_profit REAL NOT NULL,
	volume REAL NOT NULL,
	ticket_id TEXT NOT NULL,
	closed_at DATETIME NOT NULL,
	PRIMARY KEY (symbol, date)
);

CREATE TABLE IF NOT EXISTS transitions (
	symbol TEXT NOT NULL,
	date TEXT NOT NULL,
	from_state TEXT NOT NULL,
	to_state TEXT NOT NULL,
	detail TEXT NOT NULL,
	at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transitions_session ON transitions(symbol, date);
`

// SQLite is a file-backed journal.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordSession(rec SessionRecord) error {
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO sessions
		(symbol, date, outcome, reason, direction, entry, stop_loss, take_profit, volume, ticket_id, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Symbol, rec.Date, string(rec.Outcome), rec.Reason, rec.Direction,
		rec.Entry, rec.StopLoss, rec.TakeProfit, rec.Volume, rec.TicketID, rec.ClosedAt,
	)
	return err
}

func (j *SQLite) RecordTransition(rec TransitionRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO transitions (symbol, date, from_state, to_state, detail, at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Symbol, rec.Date, rec.From, rec.To, rec.Detail, rec.At,
	)
	return err
}

func (j *SQLite) Session(symbol, date string) (SessionRecord, bool, error) {
	row := j.db.QueryRow(`
		SELECT symbol, date, outcome, reason, direction, entry, stop_loss, take_profit, volume, ticket_id, closed_at
		FROM sessions WHERE symbol = ? AND date = ?`, symbol, date)

	var rec SessionRecord
	var outcome string
	err := row.Scan(&rec.Symbol, &rec.Date, &outcome, &rec.Reason, &rec.Direction,
		&rec.Entry, &rec.StopLoss, &rec.TakeProfit, &rec.Volume, &rec.TicketID, &rec.ClosedAt)
	if err == sql.ErrNoRows {
		return SessionRecord{}, false, nil
	}
	if err != nil {
		return SessionRecord{}, false, err
	}
	rec.Outcome = session.Outcome(outcome)
	return rec, true, nil
}

func (j *SQLite) Sessions() ([]SessionRecord, error) {
	rows, err := j.db.Query(`
		SELECT symbol, date, outcome, reason, direction, entry, stop_loss, take_profit, volume, ticket_id, closed_at
		FROM sessions ORDER BY date, symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var outcome string
		if err := rows.Scan(&rec.Symbol, &rec.Date, &outcome, &rec.Reason, &rec.Direction,
			&rec.Entry, &rec.StopLoss, &rec.TakeProfit, &rec.Volume, &rec.TicketID, &rec.ClosedAt); err != nil {
			return nil, err
		}
		rec.Outcome = session.Outcome(outcome)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
