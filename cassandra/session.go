package cassandra

import (
	"strings"

	"github.com/gocql/gocql"
)

type BatchType int

const (
	LoggedBatch BatchType = iota
	UnloggedBatch
	CounterBatch
)

func ParseBatchType(batchType string) BatchType {
	switch strings.ToLower(batchType) {
	case "unlogged":
		return UnloggedBatch
	case "counter":
		return CounterBatch
	case "logged":
		fallthrough
	default:
		return LoggedBatch
	}
}

func (t BatchType) String() string {
	switch t {
	case UnloggedBatch:
		return "unlogged"
	case CounterBatch:
		return "counter"
	default:
		return "logged"
	}
}

// Session is the subset of gocql.Session used to run statements.
type Session interface {
	Query(string, ...interface{}) Query
	NewBatch(BatchType) Batch
	Close()
}

type Query interface {
	Consistency(gocql.Consistency) Query
	Idempotent(bool) Query
	Exec() error
}

type Batch interface {
	Query(string, ...interface{})
	SetConsistency(gocql.Consistency)
	Size() int
	ExecuteBatch() error
}

type GocqlSessionAdapter struct {
	*gocql.Session
}

func NewGocqlSessionAdapter(session *gocql.Session) *GocqlSessionAdapter {
	return &GocqlSessionAdapter{Session: session}
}

// Query relies on the driver's own prepared statement cache, bounded by
// MaxPreparedStmts.
func (s *GocqlSessionAdapter) Query(stmt string, values ...interface{}) Query {
	return &GocqlQueryAdapter{q: s.Session.Query(stmt, values...)}
}

func (s *GocqlSessionAdapter) NewBatch(batchType BatchType) Batch {
	var gocqlBatchType gocql.BatchType
	switch batchType {
	case LoggedBatch:
		gocqlBatchType = gocql.LoggedBatch
	case UnloggedBatch:
		gocqlBatchType = gocql.UnloggedBatch
	case CounterBatch:
		gocqlBatchType = gocql.CounterBatch
	default:
		gocqlBatchType = gocql.LoggedBatch
	}

	return &GocqlBatchAdapter{
		batch:   s.Session.NewBatch(gocqlBatchType),
		session: s.Session,
	}
}

type GocqlQueryAdapter struct {
	q *gocql.Query
}

func (q *GocqlQueryAdapter) Consistency(c gocql.Consistency) Query {
	q.q = q.q.Consistency(c)
	return q
}

func (q *GocqlQueryAdapter) Idempotent(value bool) Query {
	q.q = q.q.Idempotent(value)
	return q
}

func (q *GocqlQueryAdapter) Exec() error {
	return q.q.Exec()
}

type GocqlBatchAdapter struct {
	batch   *gocql.Batch
	session *gocql.Session
}

func (b *GocqlBatchAdapter) Query(stmt string, values ...interface{}) {
	b.batch.Query(stmt, values...)
}

func (b *GocqlBatchAdapter) SetConsistency(c gocql.Consistency) {
	b.batch.SetConsistency(c)
}

func (b *GocqlBatchAdapter) Size() int {
	return b.batch.Size()
}

func (b *GocqlBatchAdapter) ExecuteBatch() error {
	return b.session.ExecuteBatch(b.batch)
}
