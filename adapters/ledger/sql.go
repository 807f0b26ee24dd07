package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"goprep/domain/core"
	"goprep/domain/preprocess"
	"goprep/internal/errors"
	"goprep/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Open connects to the ledger database. driver is "sqlite" or "postgres".
func Open(driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s ledger", driver)
	}
	if driver == "sqlite" {
		// one writer avoids SQLITE_BUSY and keeps :memory: databases shared
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.WithCode(errors.CodeDatabaseError, fmt.Errorf("ping %s ledger: %w", driver, err))
	}
	return db, nil
}

// SQLLedger stores submissions in preprocess_submissions. Queries are
// written with ? placeholders and rebound for the connected driver.
type SQLLedger struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLLedger creates a ledger over an open, migrated database
func NewSQLLedger(db *sqlx.DB) *SQLLedger {
	return &SQLLedger{db: db, now: time.Now}
}

var _ ports.SubmissionLedger = (*SQLLedger)(nil)

type submissionRow struct {
	ID          string         `db:"id"`
	Status      string         `db:"status"`
	Snapshot    string         `db:"snapshot"`
	DatasetIDs  string         `db:"dataset_ids"`
	Result      sql.NullString `db:"result"`
	Error       sql.NullString `db:"error_message"`
	StartedAt   time.Time      `db:"started_at"`
	CompletedAt sql.NullTime   `db:"completed_at"`
}

const selectColumns = `id, status, snapshot, dataset_ids, result, error_message, started_at, completed_at`

func (l *SQLLedger) Create(ctx context.Context, sub *preprocess.Submission) error {
	snapshot, err := json.Marshal(sub.Snapshot)
	if err != nil {
		return errors.Wrap(err, "failed to encode snapshot")
	}
	ids, err := json.Marshal(sub.DatasetIDs)
	if err != nil {
		return errors.Wrap(err, "failed to encode dataset ids")
	}

	_, err = l.db.ExecContext(ctx, l.db.Rebind(`
		INSERT INTO preprocess_submissions (id, status, snapshot, dataset_ids, started_at)
		VALUES (?, ?, ?, ?, ?)
	`), sub.ID.String(), string(sub.Status), string(snapshot), string(ids), sub.StartedAt.UTC())
	if err != nil {
		return errors.WithCode(errors.CodeDatabaseError, fmt.Errorf("insert submission %s: %w", sub.ID, err))
	}
	return nil
}

func (l *SQLLedger) MarkSucceeded(ctx context.Context, id core.SubmissionID, result preprocess.Result) error {
	encoded, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, "failed to encode result")
	}
	return l.complete(ctx, id, `
		UPDATE preprocess_submissions
		SET status = ?, result = ?, completed_at = ?
		WHERE id = ?
	`, string(preprocess.StatusSucceeded), string(encoded), l.now().UTC(), id.String())
}

func (l *SQLLedger) MarkFailed(ctx context.Context, id core.SubmissionID, message string) error {
	return l.complete(ctx, id, `
		UPDATE preprocess_submissions
		SET status = ?, error_message = ?, completed_at = ?
		WHERE id = ?
	`, string(preprocess.StatusFailed), message, l.now().UTC(), id.String())
}

func (l *SQLLedger) complete(ctx context.Context, id core.SubmissionID, query string, args ...interface{}) error {
	res, err := l.db.ExecContext(ctx, l.db.Rebind(query), args...)
	if err != nil {
		return errors.WithCode(errors.CodeDatabaseError, fmt.Errorf("update submission %s: %w", id, err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NotFound("submission " + id.String())
	}
	return nil
}

func (l *SQLLedger) Get(ctx context.Context, id core.SubmissionID) (*preprocess.Submission, error) {
	var row submissionRow
	err := l.db.GetContext(ctx, &row, l.db.Rebind(`
		SELECT `+selectColumns+`
		FROM preprocess_submissions
		WHERE id = ?
	`), id.String())
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("submission " + id.String())
	}
	if err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, fmt.Errorf("get submission %s: %w", id, err))
	}
	return row.toSubmission()
}

// List returns the most recent submissions first. limit <= 0 means all.
func (l *SQLLedger) List(ctx context.Context, limit int) ([]*preprocess.Submission, error) {
	query := `SELECT ` + selectColumns + ` FROM preprocess_submissions ORDER BY started_at DESC, id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []submissionRow
	if err := l.db.SelectContext(ctx, &rows, l.db.Rebind(query), args...); err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, fmt.Errorf("list submissions: %w", err))
	}

	out := make([]*preprocess.Submission, 0, len(rows))
	for _, row := range rows {
		sub, err := row.toSubmission()
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, nil
}

func (r submissionRow) toSubmission() (*preprocess.Submission, error) {
	sub := &preprocess.Submission{
		ID:        core.SubmissionID(r.ID),
		Status:    preprocess.SubmissionStatus(r.Status),
		Error:     r.Error.String,
		StartedAt: r.StartedAt.UTC(),
	}
	if err := json.Unmarshal([]byte(r.Snapshot), &sub.Snapshot); err != nil {
		return nil, errors.Wrapf(err, "corrupt snapshot for submission %s", r.ID)
	}
	if err := json.Unmarshal([]byte(r.DatasetIDs), &sub.DatasetIDs); err != nil {
		return nil, errors.Wrapf(err, "corrupt dataset ids for submission %s", r.ID)
	}
	if r.Result.Valid && r.Result.String != "" {
		if err := json.Unmarshal([]byte(r.Result.String), &sub.Result); err != nil {
			return nil, errors.Wrapf(err, "corrupt result for submission %s", r.ID)
		}
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time.UTC()
		sub.CompletedAt = &t
	}
	return sub, nil
}
