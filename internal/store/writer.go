package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"planharvest/internal/components/assert"
	"planharvest/internal/components/telemetry"
	"planharvest/internal/db"
	"planharvest/internal/records"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const report_writer_persist = "writer.persist"

// ErrMissingKey is returned for records without a council reference, they cannot be
// deduplicated and are never stored.
var ErrMissingKey = errors.New("record has no council reference")

type Status int

const (
	Inserted Status = iota + 1
	Skipped
)

func (s Status) String() string {
	switch s {
	case Inserted:
		return "inserted"
	case Skipped:
		return "skipped"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

type Reason int

const (
	NoReason Reason = iota
	DuplicateKey
)

func (r Reason) String() string {
	switch r {
	case NoReason:
		return ""
	case DuplicateKey:
		return "duplicate key"
	}
	return fmt.Sprintf("Reason(%d)", int(r))
}

// Outcome is the result of Persist. A skipped duplicate is an outcome, not an error.
type Outcome struct {
	Status Status
	Reason Reason
}

func (o Outcome) String() string {
	if o.Reason == NoReason {
		return o.Status.String()
	}
	return fmt.Sprintf("%s (%s)", o.Status, o.Reason)
}

// Writer stores records, skipping any whose council reference is already present.
type Writer struct {
	store *Store
	tel   telemetry.API
	locks keyedMutex
}

func NewWriter(store *Store, tel telemetry.API) *Writer {
	assert.NotNil(store)
	assert.NotNil(tel)
	return &Writer{
		store: store,
		tel:   telemetry.NewScopedAPI("store", tel),
	}
}

// Persist inserts rec unless a row with the same council reference exists. The lookup and the
// insert share a transaction and calls for the same key are serialized.
func (w *Writer) Persist(ctx context.Context, rec records.ApplicationRecord) (Outcome, error) {
	key := rec.CouncilReference
	if key == "" {
		return Outcome{}, ErrMissingKey
	}

	unlock := w.locks.lock(key)
	defer unlock()

	tx, err := w.store.db.BeginTx(ctx, nil)
	if err != nil {
		w.tel.ReportBroken(report_writer_persist, key, err)
		return Outcome{}, fmt.Errorf("persist %s: begin: %w", key, err)
	}
	defer tx.Rollback()
	txqry := db.New(w.store.wrap(tx))

	count, err := txqry.CountApplicationsByReference(ctx, key)
	if err != nil {
		w.tel.ReportBroken(report_writer_persist, key, err)
		return Outcome{}, fmt.Errorf("persist %s: lookup: %w", key, err)
	}
	if count > 0 {
		w.tel.ReportDebug(report_writer_persist, key, "duplicate")
		return Outcome{Status: Skipped, Reason: DuplicateKey}, nil
	}

	err = txqry.CreateApplication(ctx, createParams(rec))
	if isUniqueViolation(err) {
		// another writer got there first
		w.tel.ReportWarning(report_writer_persist, key, err)
		return Outcome{Status: Skipped, Reason: DuplicateKey}, nil
	}
	if err != nil {
		w.tel.ReportBroken(report_writer_persist, key, err)
		return Outcome{}, fmt.Errorf("persist %s: insert: %w", key, err)
	}

	err = tx.Commit()
	if isUniqueViolation(err) {
		w.tel.ReportWarning(report_writer_persist, key, err)
		return Outcome{Status: Skipped, Reason: DuplicateKey}, nil
	}
	if err != nil {
		w.tel.ReportBroken(report_writer_persist, key, err)
		return Outcome{}, fmt.Errorf("persist %s: commit: %w", key, err)
	}

	w.tel.ReportDebug(report_writer_persist, key, "inserted")
	return Outcome{Status: Inserted}, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
			(code == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE"))
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	// libsql reports constraint failures as plain text
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type refMutex struct {
	sync.Mutex
	refs int
}

// keyedMutex hands out one mutex per key, entries are dropped once nobody holds them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = map[string]*refMutex{}
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()

		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
