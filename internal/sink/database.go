package sink

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"coffeeshop/internal/database"
	"coffeeshop/internal/sale"

	"github.com/sirupsen/logrus"
)

// Database inserts the JSON payload of every record as a blob into a single
// column, committing once per batch.
//
// The pending batch belongs to the owning worker; nothing is shared across
// workers, so no locking is needed.
type Database struct {
	session   *database.Session
	insert    string
	threshold int

	pending [][]byte
	// Counters mirrored for readers on other goroutines.
	buffered  atomic.Int64
	committed atomic.Int64
	flushes   atomic.Int64
}

// NewDatabase prepares a sink writing into table(column) through session.
// Table and column are spliced into the statement and must already be
// validated identifiers.
func NewDatabase(session *database.Session, table, column string, batchSize int) *Database {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Database{
		session:   session,
		insert:    fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, column, session.Placeholder(1)),
		threshold: batchSize,
		pending:   make([][]byte, 0, batchSize),
	}
}

func (s *Database) Name() string { return "database" }

// Write adds the record to the pending batch. When the batch reaches the
// threshold it is executed and committed in one transaction. Any failure
// there wraps ErrPersistence and leaves the batch pending.
func (s *Database) Write(ctx context.Context, rec *sale.Record) error {
	payload, err := rec.Marshal()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	s.pending = append(s.pending, payload)
	s.buffered.Store(int64(len(s.pending)))
	if len(s.pending) < s.threshold {
		return nil
	}
	return s.flush(ctx)
}

func (s *Database) flush(ctx context.Context) error {
	tx, err := s.session.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrPersistence, err)
	}
	if err := s.execute(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logrus.Debugf("rollback after failed batch: %v", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrPersistence, err)
	}

	logrus.Debugf("committed batch of %d rows", len(s.pending))
	s.committed.Add(int64(len(s.pending)))
	s.pending = s.pending[:0]
	s.buffered.Store(0)
	s.flushes.Add(1)
	return nil
}

func (s *Database) execute(ctx context.Context, tx *sql.Tx) error {
	stmt, err := tx.PrepareContext(ctx, s.insert)
	if err != nil {
		return fmt.Errorf("%w: prepare: %v", ErrPersistence, err)
	}
	defer stmt.Close()
	for _, payload := range s.pending {
		if _, err := stmt.ExecContext(ctx, payload); err != nil {
			return fmt.Errorf("%w: execute batch: %v", ErrPersistence, err)
		}
	}
	return nil
}

// Pending is the number of records waiting for the next commit.
func (s *Database) Pending() int { return int(s.buffered.Load()) }

// Committed is the number of rows made durable so far.
func (s *Database) Committed() int64 { return s.committed.Load() }

// Flushes is the number of successful commits.
func (s *Database) Flushes() int { return int(s.flushes.Load()) }

// Close releases the session. Records still pending are discarded.
func (s *Database) Close() error {
	if n := len(s.pending); n > 0 {
		logrus.Warnf("discarding %d uncommitted rows", n)
	}
	return s.session.Close()
}
