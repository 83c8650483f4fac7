package mapping

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/scylladb/go-set/strset"
	"github.com/scylladb/gocqlx/v2/table"

	config "go-datastore-cassandra/configs"
)

type IdentityStrategy string

const (
	Assigned IdentityStrategy = "assigned"
	UUID     IdentityStrategy = "uuid"
	TimeUUID IdentityStrategy = "timeuuid"
)

var (
	ErrUnknownEntity   = errors.New("unknown entity")
	ErrMissingKey      = errors.New("missing primary key value")
	ErrInvalidKey      = errors.New("key can't identify a row")
	ErrInvalidDocument = errors.New("invalid source document")
)

// PersistentEntity describes a persistent type and the table it maps to.
// Instances are owned by a Registry and shared read-only by pending writes.
type PersistentEntity struct {
	Name             string
	Keyspace         string
	TableName        string
	IdentityStrategy IdentityStrategy
	PartitionKeys    []string
	ClusteringKeys   []string
	Columns          []string
	FieldMappings    map[string]string
	TTL              time.Duration

	columns *strset.Set
	table   *table.Table
}

func NewPersistentEntity(m config.EntityMapping, defaultKeyspace string) (*PersistentEntity, error) {
	if m.Name == "" {
		return nil, errors.New("entity name is required")
	}
	if m.Table == "" {
		return nil, errors.Errorf("entity %s: table is required", m.Name)
	}
	if len(m.PartitionKeys) == 0 {
		return nil, errors.Errorf("entity %s: at least one partition key is required", m.Name)
	}

	strategy := IdentityStrategy(strings.ToLower(m.IdentityStrategy))
	switch strategy {
	case "":
		strategy = Assigned
	case Assigned, UUID, TimeUUID:
	default:
		return nil, errors.Errorf("entity %s: unknown identity strategy %q", m.Name, m.IdentityStrategy)
	}

	keyspace := m.Keyspace
	if keyspace == "" {
		keyspace = defaultKeyspace
	}

	seen := strset.NewWithSize(len(m.Columns))
	columns := make([]string, 0, len(m.Columns)+len(m.PartitionKeys)+len(m.ClusteringKeys))
	for _, c := range m.Columns {
		if seen.Has(c) {
			return nil, errors.Errorf("entity %s: duplicate column %q", m.Name, c)
		}
		seen.Add(c)
		columns = append(columns, c)
	}

	keys := strset.New()
	for _, k := range append(append([]string{}, m.PartitionKeys...), m.ClusteringKeys...) {
		if keys.Has(k) {
			return nil, errors.Errorf("entity %s: key column %q declared twice", m.Name, k)
		}
		keys.Add(k)
		if !seen.Has(k) {
			seen.Add(k)
			columns = append(columns, k)
		}
	}

	for column := range m.FieldMappings {
		if !seen.Has(column) {
			seen.Add(column)
			columns = append(columns, column)
		}
	}

	e := &PersistentEntity{
		Name:             m.Name,
		Keyspace:         keyspace,
		TableName:        m.Table,
		IdentityStrategy: strategy,
		PartitionKeys:    append([]string{}, m.PartitionKeys...),
		ClusteringKeys:   append([]string{}, m.ClusteringKeys...),
		Columns:          columns,
		FieldMappings:    m.FieldMappings,
		TTL:              m.TTL,
		columns:          seen,
	}
	e.table = table.New(table.Metadata{
		Name:    e.QualifiedName(),
		Columns: e.Columns,
		PartKey: e.PartitionKeys,
		SortKey: e.ClusteringKeys,
	})
	return e, nil
}

func (e *PersistentEntity) QualifiedName() string {
	if e.Keyspace == "" {
		return e.TableName
	}
	return e.Keyspace + "." + e.TableName
}

// Identity is the column the native key of a pending write is bound to.
func (e *PersistentEntity) Identity() string {
	return e.PartitionKeys[0]
}

func (e *PersistentEntity) PrimaryKey() []string {
	pk := make([]string, 0, len(e.PartitionKeys)+len(e.ClusteringKeys))
	pk = append(pk, e.PartitionKeys...)
	return append(pk, e.ClusteringKeys...)
}

// CompoundKey chains the primary key values of a row with more than one key
// column. It stays comparable for any number of columns.
type CompoundKey struct {
	Head interface{}
	Tail interface{}
}

// RowKey identifies the row in row by its full primary key. Single column
// keys are returned as is.
func (e *PersistentEntity) RowKey(row map[string]interface{}) (interface{}, error) {
	pk := e.PrimaryKey()
	var key interface{}
	for i := len(pk) - 1; i >= 0; i-- {
		value := row[pk[i]]
		if value == nil {
			return nil, errors.Wrapf(ErrMissingKey, "entity %s: primary key column %q", e.Name, pk[i])
		}
		if !reflect.TypeOf(value).Comparable() {
			return nil, errors.Wrapf(ErrInvalidKey, "entity %s: column %q of type %T", e.Name, pk[i], value)
		}
		if i == len(pk)-1 {
			key = value
			continue
		}
		key = CompoundKey{Head: value, Tail: key}
	}
	return key, nil
}

func (e *PersistentEntity) IsPrimaryKey(column string) bool {
	for _, k := range e.PrimaryKey() {
		if k == column {
			return true
		}
	}
	return false
}

func (e *PersistentEntity) HasColumn(column string) bool {
	if e.columns == nil {
		return false
	}
	return e.columns.Has(column)
}

func (e *PersistentEntity) Table() *table.Table {
	return e.table
}

// NewIdentity generates a key for entities whose identity is not assigned by
// the caller.
func (e *PersistentEntity) NewIdentity() (interface{}, error) {
	switch e.IdentityStrategy {
	case UUID:
		return uuid.New().String(), nil
	case TimeUUID:
		return gocql.TimeUUID().String(), nil
	default:
		return nil, errors.Wrapf(ErrMissingKey, "entity %s uses assigned identity", e.Name)
	}
}

func (e *PersistentEntity) String() string {
	return fmt.Sprintf("%s(%s)", e.Name, e.QualifiedName())
}

type Registry struct {
	entities map[string]*PersistentEntity
}

func NewRegistry(mappings []config.EntityMapping, defaultKeyspace string) (*Registry, error) {
	r := &Registry{entities: make(map[string]*PersistentEntity, len(mappings))}
	for _, m := range mappings {
		e, err := NewPersistentEntity(m, defaultKeyspace)
		if err != nil {
			return nil, err
		}
		if _, exists := r.entities[e.Name]; exists {
			return nil, errors.Errorf("entity %s registered twice", e.Name)
		}
		r.entities[e.Name] = e
	}
	return r, nil
}

func (r *Registry) Get(name string) (*PersistentEntity, error) {
	if e, ok := r.entities[name]; ok {
		return e, nil
	}
	return nil, errors.Wrapf(ErrUnknownEntity, "entity %q", name)
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
