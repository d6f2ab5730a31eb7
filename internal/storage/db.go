package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"fomm/internal"
)

const (
	ReportPacked     = "packed"
	ReportDeviations = "deviations"
)

var ErrNotFound = errors.New("not found")

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS emails (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  source TEXT NOT NULL,
  emailId INTEGER,
  files INTEGER NOT NULL,
  packedRows INTEGER NOT NULL,
  deviationRows INTEGER NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(emailId) REFERENCES emails(id)
);
CREATE INDEX IF NOT EXISTS idx_runs_emailId ON runs(emailId);

CREATE TABLE IF NOT EXISTS outcomes (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  runId INTEGER NOT NULL,
  seq INTEGER NOT NULL,
  file TEXT NOT NULL,
  sheet TEXT,
  status TEXT NOT NULL,
  reason TEXT,
  detail TEXT,
  packedRows INTEGER NOT NULL DEFAULT 0,
  deviationRows INTEGER NOT NULL DEFAULT 0,
  FOREIGN KEY(runId) REFERENCES runs(id)
);

CREATE TABLE IF NOT EXISTS reports (
  runId INTEGER NOT NULL,
  kind TEXT NOT NULL,
  columnsJson TEXT NOT NULL,
  PRIMARY KEY(runId, kind),
  FOREIGN KEY(runId) REFERENCES runs(id)
);

CREATE TABLE IF NOT EXISTS report_rows (
  runId INTEGER NOT NULL,
  kind TEXT NOT NULL,
  rowNo INTEGER NOT NULL,
  cellsJson TEXT NOT NULL,
  PRIMARY KEY(runId, kind, rowNo),
  FOREIGN KEY(runId) REFERENCES runs(id)
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// storedCell keeps the cell kind so numbers come back as numbers.
type storedCell struct {
	K internal.CellKind `json:"k"`
	T string            `json:"t,omitempty"`
	N float64           `json:"n,omitempty"`
}

// SaveRun stores a run with its outcomes and both reports in one transaction.
// A run for an email replaces that email's earlier runs in the same
// transaction, so a failed save keeps the previous run.
func (d *DB) SaveRun(traceID, source string, emailID *int, files int, packed, deviations internal.Table, outcomes []internal.Outcome) (int, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if emailID != nil {
		if err := clearEmailRuns(tx, *emailID); err != nil {
			return 0, fmt.Errorf("clear email runs: %w", err)
		}
	}

	res, err := tx.Exec(`
INSERT INTO runs (traceId, source, emailId, files, packedRows, deviationRows)
VALUES (?, ?, ?, ?, ?, ?)
`, traceID, source, emailID, files, len(packed.Rows), len(deviations.Rows))
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id64, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	runID := int(id64)

	for i, o := range outcomes {
		if _, err := tx.Exec(`
INSERT INTO outcomes (runId, seq, file, sheet, status, reason, detail, packedRows, deviationRows)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`, runID, i, o.File, o.Sheet, string(o.Status), string(o.Reason), o.Detail, o.PackedRows, o.DeviationRows); err != nil {
			return 0, fmt.Errorf("insert outcome: %w", err)
		}
	}

	for kind, t := range map[string]internal.Table{ReportPacked: packed, ReportDeviations: deviations} {
		if err := saveReport(tx, runID, kind, t); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return runID, nil
}

func saveReport(tx *sql.Tx, runID int, kind string, t internal.Table) error {
	columnsJSON, err := json.Marshal(t.Columns)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO reports (runId, kind, columnsJson) VALUES (?, ?, ?)`, runID, kind, string(columnsJSON)); err != nil {
		return fmt.Errorf("insert report %s: %w", kind, err)
	}

	stmt, err := tx.Prepare(`INSERT INTO report_rows (runId, kind, rowNo, cellsJson) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, row := range t.Rows {
		cells := make([]storedCell, len(row))
		for j, c := range row {
			cells[j] = storedCell{K: c.Kind, T: c.Text, N: c.Num}
		}
		blob, err := json.Marshal(cells)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(runID, kind, i, string(blob)); err != nil {
			return fmt.Errorf("insert report row: %w", err)
		}
	}
	return nil
}

func (d *DB) GetReport(runID int, kind string) (internal.Table, error) {
	var columnsJSON string
	err := d.conn.QueryRow(`SELECT columnsJson FROM reports WHERE runId = ? AND kind = ?`, runID, kind).Scan(&columnsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return internal.Table{}, fmt.Errorf("report %s for run %d: %w", kind, runID, ErrNotFound)
	}
	if err != nil {
		return internal.Table{}, err
	}

	var t internal.Table
	if err := json.Unmarshal([]byte(columnsJSON), &t.Columns); err != nil {
		return internal.Table{}, err
	}

	rows, err := d.conn.Query(`SELECT cellsJson FROM report_rows WHERE runId = ? AND kind = ? ORDER BY rowNo ASC`, runID, kind)
	if err != nil {
		return internal.Table{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return internal.Table{}, err
		}
		var stored []storedCell
		if err := json.Unmarshal([]byte(blob), &stored); err != nil {
			return internal.Table{}, err
		}
		row := make([]internal.Cell, len(stored))
		for i, c := range stored {
			row[i] = internal.Cell{Kind: c.K, Text: c.T, Num: c.N}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, rows.Err()
}

func (d *DB) GetOutcomes(runID int) ([]internal.Outcome, error) {
	rows, err := d.conn.Query(`
SELECT file, COALESCE(sheet, ''), status, COALESCE(reason, ''), COALESCE(detail, ''), packedRows, deviationRows
FROM outcomes WHERE runId = ? ORDER BY seq ASC
`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.Outcome
	for rows.Next() {
		var o internal.Outcome
		var status, reason string
		if err := rows.Scan(&o.File, &o.Sheet, &status, &reason, &o.Detail, &o.PackedRows, &o.DeviationRows); err != nil {
			return nil, err
		}
		o.Status = internal.OutcomeStatus(status)
		o.Reason = internal.SkipReason(reason)
		out = append(out, o)
	}
	return out, rows.Err()
}

const runColumns = `id, traceId, source, emailId, files, packedRows, deviationRows, createdAt`

func scanRun(scan func(dest ...any) error) (internal.RunRow, error) {
	var r internal.RunRow
	var emailID sql.NullInt64
	if err := scan(&r.ID, &r.TraceID, &r.Source, &emailID, &r.Files, &r.PackedRows, &r.DeviationRows, &r.CreatedAt); err != nil {
		return internal.RunRow{}, err
	}
	if emailID.Valid {
		id := int(emailID.Int64)
		r.EmailID = &id
	}
	return r, nil
}

func (d *DB) GetRun(id int) (*internal.RunRow, error) {
	r, err := scanRun(d.conn.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (d *DB) MustRun(id int) (internal.RunRow, error) {
	r, err := d.GetRun(id)
	if err != nil {
		return internal.RunRow{}, err
	}
	if r == nil {
		return internal.RunRow{}, fmt.Errorf("run %d: %w", id, ErrNotFound)
	}
	return *r, nil
}

func (d *DB) ListRuns(limit int) ([]internal.RunRow, error) {
	rows, err := d.conn.Query(`SELECT `+runColumns+` FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.RunRow
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) LatestRunForEmail(emailID int) (*internal.RunRow, error) {
	r, err := scanRun(d.conn.QueryRow(`SELECT `+runColumns+` FROM runs WHERE emailId = ? ORDER BY id DESC LIMIT 1`, emailID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ClearEmailRuns removes earlier runs of an email so reprocessing replaces them.
func (d *DB) ClearEmailRuns(emailID int) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := clearEmailRuns(tx, emailID); err != nil {
		return err
	}
	return tx.Commit()
}

func clearEmailRuns(tx *sql.Tx, emailID int) error {
	rows, err := tx.Query(`SELECT id FROM runs WHERE emailId = ?`, emailID)
	if err != nil {
		return err
	}
	var runIDs []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return err
		}
		runIDs = append(runIDs, id)
	}
	_ = rows.Close()

	for _, id := range runIDs {
		for _, stmt := range []string{
			`DELETE FROM report_rows WHERE runId = ?`,
			`DELETE FROM reports WHERE runId = ?`,
			`DELETE FROM outcomes WHERE runId = ?`,
			`DELETE FROM runs WHERE id = ?`,
		} {
			if _, err := tx.Exec(stmt, id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *DB) UpsertEmail(provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.EmailRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO emails (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, rawRef)
	if err != nil {
		return internal.EmailRow{}, err
	}

	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, errors.New("failed to upsert email")
	}
	return *row, nil
}

const emailColumns = `id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef`

func scanEmail(scan func(dest ...any) error) (internal.EmailRow, error) {
	var row internal.EmailRow
	err := scan(&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef)
	return row, err
}

func (d *DB) GetEmailByProviderMessageID(provider, messageID string) (*internal.EmailRow, error) {
	row, err := scanEmail(d.conn.QueryRow(`SELECT `+emailColumns+` FROM emails WHERE provider = ? AND messageId = ?`, provider, messageID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) GetEmailByID(id int) (*internal.EmailRow, error) {
	row, err := scanEmail(d.conn.QueryRow(`SELECT `+emailColumns+` FROM emails WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ListEmailsByStatus returns the oldest mails in status. An empty provider
// matches every provider.
func (d *DB) ListEmailsByStatus(status, provider string, limit int) ([]internal.EmailRow, error) {
	rows, err := d.conn.Query(`
SELECT `+emailColumns+` FROM emails
WHERE status = ? AND (? = '' OR provider = ?)
ORDER BY receivedAt ASC, id ASC
LIMIT ?
`, status, provider, provider, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.EmailRow
	for rows.Next() {
		row, err := scanEmail(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateEmailStatus(emailID int, status string) error {
	_, err := d.conn.Exec(`UPDATE emails SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, emailID)
	return err
}

func (d *DB) MustEmailByProviderMessageID(provider, messageID string) (internal.EmailRow, error) {
	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, fmt.Errorf("email provider=%s messageId=%s: %w", provider, messageID, ErrNotFound)
	}
	return *row, nil
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
