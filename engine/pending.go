// Package engine holds the pending operations a session queues until flush.
//
// A pending operation is one write decided earlier and executed later by a
// flush pass. Operations reference their entity descriptor and executor; the
// registry and template that own those outlive every operation created from
// them.
package engine

import (
	"github.com/pkg/errors"

	"go-datastore-cassandra/cassandra"
	"go-datastore-cassandra/mapping"
)

var (
	ErrNilEntity    = errors.New("pending operation requires an entity")
	ErrNilExecutor  = errors.New("pending operation requires an executor")
	ErrNilStatement = errors.New("pending operation has no statement")
)

// PendingOperation is a write queued for execution at flush time.
type PendingOperation interface {
	Entity() *mapping.PersistentEntity
	// Key returns the native key, used to recognise writes to the same row.
	Key() interface{}
	PreOperations() []PendingOperation
	CascadeOperations() []PendingOperation
	Vetoed() bool
	Execute() error
}

// CassandraPendingOperation is a PendingOperation backed by a replaceable
// statement.
type CassandraPendingOperation interface {
	PendingOperation
	Statement() *cassandra.Statement
	SetStatement(stmt *cassandra.Statement)
}

// PendingOperationAdapter carries the state shared by all pending operations.
// It is embedded by concrete operations, which provide Execute.
type PendingOperationAdapter[K comparable] struct {
	entity     *mapping.PersistentEntity
	nativeKey  K
	preOps     []PendingOperation
	cascadeOps []PendingOperation
	vetoed     bool
}

func NewPendingOperationAdapter[K comparable](entity *mapping.PersistentEntity, nativeKey K) PendingOperationAdapter[K] {
	return PendingOperationAdapter[K]{
		entity:    entity,
		nativeKey: nativeKey,
	}
}

func (a *PendingOperationAdapter[K]) Entity() *mapping.PersistentEntity {
	return a.entity
}

func (a *PendingOperationAdapter[K]) NativeKey() K {
	return a.nativeKey
}

func (a *PendingOperationAdapter[K]) Key() interface{} {
	return a.nativeKey
}

// AddPreOperation registers an operation that runs right before this one.
func (a *PendingOperationAdapter[K]) AddPreOperation(op PendingOperation) {
	a.preOps = append(a.preOps, op)
}

func (a *PendingOperationAdapter[K]) PreOperations() []PendingOperation {
	return a.preOps
}

// AddCascadeOperation registers an operation that runs after this one.
func (a *PendingOperationAdapter[K]) AddCascadeOperation(op PendingOperation) {
	a.cascadeOps = append(a.cascadeOps, op)
}

func (a *PendingOperationAdapter[K]) CascadeOperations() []PendingOperation {
	return a.cascadeOps
}

func (a *PendingOperationAdapter[K]) Vetoed() bool {
	return a.vetoed
}

// SetVetoed marks the operation as cancelled; flush skips it.
func (a *PendingOperationAdapter[K]) SetVetoed(vetoed bool) {
	a.vetoed = vetoed
}

// PendingUpdate is one not yet executed Cassandra write for a row of entity
// identified by a native key.
//
// It has no locking and no guard against repeated execution: each Execute
// call submits the current statement once more. Callers own ordering,
// retries and single use.
type PendingUpdate[K comparable] struct {
	PendingOperationAdapter[K]

	statement *cassandra.Statement
	executor  cassandra.Executor
}

var _ CassandraPendingOperation = (*PendingUpdate[string])(nil)

// NewPendingUpdate does no I/O. statement may be nil and set later with
// SetStatement, but must be present when Execute runs.
func NewPendingUpdate[K comparable](entity *mapping.PersistentEntity, nativeKey K, statement *cassandra.Statement, executor cassandra.Executor) (*PendingUpdate[K], error) {
	if entity == nil {
		return nil, ErrNilEntity
	}
	if executor == nil {
		return nil, ErrNilExecutor
	}
	return &PendingUpdate[K]{
		PendingOperationAdapter: NewPendingOperationAdapter(entity, nativeKey),
		statement:               statement,
		executor:                executor,
	}, nil
}

// Execute submits the held statement to the executor once. Executor errors
// are returned unchanged.
func (p *PendingUpdate[K]) Execute() error {
	if p.statement == nil {
		return ErrNilStatement
	}
	return p.executor.Execute(p.statement)
}

func (p *PendingUpdate[K]) Statement() *cassandra.Statement {
	return p.statement
}

func (p *PendingUpdate[K]) SetStatement(stmt *cassandra.Statement) {
	p.statement = stmt
}
