package cassandra

import (
	"github.com/gocql/gocql"
	"github.com/pkg/errors"
)

var ErrNilSession = errors.New("cassandra session is nil")

// Executor runs a single statement against the store.
type Executor interface {
	Execute(stmt *Statement) error
}

// BatchExecutor additionally runs several statements as one batch.
type BatchExecutor interface {
	Executor
	ExecuteBatch(batchType BatchType, stmts []*Statement) error
}

// Template executes statements on a Session, applying the statement's
// consistency or the configured default.
type Template struct {
	session     Session
	consistency gocql.Consistency
}

func NewTemplate(session Session, defaultConsistency string) *Template {
	return &Template{
		session:     session,
		consistency: ParseConsistency(defaultConsistency),
	}
}

// Execute returns the driver error as is.
func (t *Template) Execute(stmt *Statement) error {
	if t.session == nil {
		return ErrNilSession
	}
	return t.session.Query(stmt.CQL, stmt.Values...).
		Consistency(t.consistencyOf(stmt)).
		Idempotent(stmt.Idempotent).
		Exec()
}

// ExecuteBatch runs stmts as one batch at the consistency of the first
// statement. Callers batch statements of equal consistency only.
func (t *Template) ExecuteBatch(batchType BatchType, stmts []*Statement) error {
	if len(stmts) == 0 {
		return nil
	}
	if t.session == nil {
		return ErrNilSession
	}

	batch := t.session.NewBatch(batchType)
	batch.SetConsistency(t.consistencyOf(stmts[0]))
	for _, stmt := range stmts {
		batch.Query(stmt.CQL, stmt.Values...)
	}
	return batch.ExecuteBatch()
}

func (t *Template) Close() {
	if t.session != nil {
		t.session.Close()
	}
}

func (t *Template) consistencyOf(stmt *Statement) gocql.Consistency {
	if stmt.Consistency == "" {
		return t.consistency
	}
	return ParseConsistency(stmt.Consistency)
}
