package cassandra

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/scylladb/gocqlx/v2/qb"

	"go-datastore-cassandra/mapping"
)

type StatementKind string

const (
	Insert StatementKind = "insert"
	Update StatementKind = "update"
	Delete StatementKind = "delete"
)

var ErrInvalidStatement = errors.New("invalid statement")

// Statement is one pre-built write. Values are bound positionally, in the
// order of Names.
type Statement struct {
	Kind        StatementKind
	Keyspace    string
	Table       string
	CQL         string
	Names       []string
	Values      []interface{}
	Consistency string
	Idempotent  bool
}

func (s *Statement) String() string {
	return s.CQL
}

type StatementOption func(*statementOptions)

type statementOptions struct {
	consistency string
	lwt         bool
}

func WithConsistency(consistency string) StatementOption {
	return func(o *statementOptions) {
		o.consistency = consistency
	}
}

// IfNotExists turns an insert into a lightweight transaction. For updates
// and deletes it requires the row to exist.
func IfNotExists() StatementOption {
	return func(o *statementOptions) {
		o.lwt = true
	}
}

type cachedStatement struct {
	cql   string
	names []string
}

// StatementBuilder turns entity rows into statements. CQL text is cached by
// statement shape.
type StatementBuilder struct {
	cache map[string]cachedStatement
	mutex sync.RWMutex
}

func NewStatementBuilder() *StatementBuilder {
	return &StatementBuilder{cache: make(map[string]cachedStatement)}
}

func (b *StatementBuilder) Insert(entity *mapping.PersistentEntity, row map[string]interface{}, opts ...StatementOption) (*Statement, error) {
	o := applyOptions(opts)
	if err := requirePrimaryKey(entity, row); err != nil {
		return nil, err
	}
	columns, err := sortedColumns(entity, row, nil)
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("INSERT:%s:%s:%t", entity.QualifiedName(), strings.Join(columns, ","), o.lwt)
	cached := b.cached(cacheKey, func() (string, []string) {
		builder := qb.Insert(entity.QualifiedName()).Columns(columns...)
		if entity.TTL > 0 {
			builder = builder.TTL(entity.TTL)
		}
		if o.lwt {
			builder = builder.Unique()
		}
		return builder.ToCql()
	})

	return newStatement(Insert, entity, cached, row, o)
}

func (b *StatementBuilder) Update(entity *mapping.PersistentEntity, row map[string]interface{}, opts ...StatementOption) (*Statement, error) {
	o := applyOptions(opts)
	if err := requirePrimaryKey(entity, row); err != nil {
		return nil, err
	}
	columns, err := sortedColumns(entity, row, entity.IsPrimaryKey)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, errors.Wrapf(ErrInvalidStatement, "entity %s: nothing to update", entity.Name)
	}

	cacheKey := fmt.Sprintf("UPDATE:%s:%s:%t", entity.QualifiedName(), strings.Join(columns, ","), o.lwt)
	cached := b.cached(cacheKey, func() (string, []string) {
		builder := qb.Update(entity.QualifiedName()).
			Set(columns...).
			Where(entity.Table().PrimaryKeyCmp()...)
		if entity.TTL > 0 {
			builder = builder.TTL(entity.TTL)
		}
		if o.lwt {
			builder = builder.Existing()
		}
		return builder.ToCql()
	})

	return newStatement(Update, entity, cached, row, o)
}

func (b *StatementBuilder) Delete(entity *mapping.PersistentEntity, row map[string]interface{}, opts ...StatementOption) (*Statement, error) {
	o := applyOptions(opts)
	if err := requirePrimaryKey(entity, row); err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("DELETE:%s:%t", entity.QualifiedName(), o.lwt)
	cached := b.cached(cacheKey, func() (string, []string) {
		builder := qb.Delete(entity.QualifiedName()).
			Where(entity.Table().PrimaryKeyCmp()...)
		if o.lwt {
			builder = builder.Existing()
		}
		return builder.ToCql()
	})

	return newStatement(Delete, entity, cached, row, o)
}

func (b *StatementBuilder) cached(cacheKey string, build func() (string, []string)) cachedStatement {
	b.mutex.RLock()
	if stmt, exists := b.cache[cacheKey]; exists {
		b.mutex.RUnlock()
		return stmt
	}
	b.mutex.RUnlock()

	b.mutex.Lock()
	defer b.mutex.Unlock()

	if stmt, exists := b.cache[cacheKey]; exists {
		return stmt
	}
	cql, names := build()
	stmt := cachedStatement{cql: cql, names: names}
	b.cache[cacheKey] = stmt
	return stmt
}

func applyOptions(opts []StatementOption) statementOptions {
	var o statementOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func requirePrimaryKey(entity *mapping.PersistentEntity, row map[string]interface{}) error {
	for _, column := range entity.PrimaryKey() {
		if v, ok := row[column]; !ok || v == nil {
			return errors.Wrapf(mapping.ErrMissingKey, "entity %s: primary key column %q", entity.Name, column)
		}
	}
	return nil
}

// sortedColumns returns the row's columns in a stable order, leaving out
// those matched by skip.
func sortedColumns(entity *mapping.PersistentEntity, row map[string]interface{}, skip func(string) bool) ([]string, error) {
	columns := make([]string, 0, len(row))
	for column := range row {
		if !entity.HasColumn(column) {
			return nil, errors.Wrapf(ErrInvalidStatement, "entity %s: unknown column %q", entity.Name, column)
		}
		if skip != nil && skip(column) {
			continue
		}
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return columns, nil
}

func newStatement(kind StatementKind, entity *mapping.PersistentEntity, cached cachedStatement, row map[string]interface{}, o statementOptions) (*Statement, error) {
	values := make([]interface{}, 0, len(cached.names))
	for _, name := range cached.names {
		v, ok := row[name]
		if !ok {
			return nil, errors.Wrapf(ErrInvalidStatement, "entity %s: no value bound for %q", entity.Name, name)
		}
		values = append(values, v)
	}

	return &Statement{
		Kind:        kind,
		Keyspace:    entity.Keyspace,
		Table:       entity.TableName,
		CQL:         cached.cql,
		Names:       cached.names,
		Values:      values,
		Consistency: o.consistency,
		// Conditional writes are not safe to replay.
		Idempotent: !o.lwt,
	}, nil
}
