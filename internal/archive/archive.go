package archive

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"fetch404/internal/components/assert"
	"fetch404/internal/components/chrono"
	"fetch404/internal/components/telemetry"
	"fetch404/internal/fault"
	"fetch404/internal/publish"
)

//go:embed schema.sql
var Schema string

const report_store_publish = "store.publish"

// Record is an archived envelope.
type Record struct {
	ID        int64
	RunID     string
	Type      string
	Indicator string
	Success   bool
	Kind      fault.Kind
	Body      json.RawMessage
	CreatedAt time.Time
}

// Store keeps a copy of every envelope it is given, it is a publish.Publisher.
type Store struct {
	db   *sql.DB
	time chrono.API
	tel  telemetry.API
}

func Open(ctx context.Context, db *sql.DB, clock chrono.API, tel telemetry.API) (Store, error) {
	assert.NotNil(db)
	assert.NotNil(clock)
	assert.NotNil(tel)

	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return Store{}, fmt.Errorf("apply schema: %w", err)
	}
	return Store{
		db:   db,
		time: clock,
		tel:  telemetry.NewScopedAPI("archive", tel),
	}, nil
}

func (s Store) Record(ctx context.Context, envelope publish.Envelope) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(
		ctx,
		`insert into envelopes (run_id, type, indicator, success, kind, body, created_at)
		values (?, ?, ?, ?, ?, ?, ?)`,
		envelope.RunID,
		envelope.Type,
		envelope.Indicator,
		envelope.Success,
		string(envelope.Kind()),
		string(body),
		s.time.Now().UnixMilli(),
	)
	return err
}

func (s Store) Publish(ctx context.Context, envelope publish.Envelope) {
	if err := s.Record(ctx, envelope); err != nil {
		s.tel.ReportBroken(report_store_publish, err, envelope.RunID)
	}
}

// Recent returns up to limit records, newest first.
func (s Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`select id, run_id, type, indicator, success, kind, body, created_at
		from envelopes order by id desc limit ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var kind, body string
		var created int64
		if err := rows.Scan(&r.ID, &r.RunID, &r.Type, &r.Indicator, &r.Success, &kind, &body, &created); err != nil {
			return nil, err
		}
		r.Kind = fault.Kind(kind)
		r.Body = json.RawMessage(body)
		r.CreatedAt = time.UnixMilli(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Seen reports whether a successful envelope was already archived for
// indicator. Failed jobs may be submitted again.
func (s Store) Seen(ctx context.Context, indicator string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(
		ctx,
		`select count(*) from envelopes where indicator = ? and success = 1`,
		indicator,
	).Scan(&n)
	return n > 0, err
}

func (s Store) Close() error {
	return s.db.Close()
}
