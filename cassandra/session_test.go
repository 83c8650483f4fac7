package cassandra

import (
	"testing"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"
)

type mockSession struct {
	queries []*mockQuery
	batches []*mockBatch
	execErr error
	closed  bool
}

func (m *mockSession) Query(stmt string, values ...interface{}) Query {
	q := &mockQuery{stmt: stmt, values: values, err: m.execErr}
	m.queries = append(m.queries, q)
	return q
}

func (m *mockSession) NewBatch(batchType BatchType) Batch {
	b := &mockBatch{batchType: batchType, err: m.execErr}
	m.batches = append(m.batches, b)
	return b
}

func (m *mockSession) Close() {
	m.closed = true
}

type mockQuery struct {
	stmt        string
	values      []interface{}
	consistency gocql.Consistency
	idempotent  bool
	execCount   int
	err         error
}

func (m *mockQuery) Consistency(c gocql.Consistency) Query {
	m.consistency = c
	return m
}

func (m *mockQuery) Idempotent(value bool) Query {
	m.idempotent = value
	return m
}

func (m *mockQuery) Exec() error {
	m.execCount++
	return m.err
}

type mockBatch struct {
	batchType   BatchType
	consistency gocql.Consistency
	queries     []string
	values      [][]interface{}
	executed    bool
	err         error
}

func (m *mockBatch) Query(stmt string, values ...interface{}) {
	m.queries = append(m.queries, stmt)
	m.values = append(m.values, values)
}

func (m *mockBatch) SetConsistency(c gocql.Consistency) {
	m.consistency = c
}

func (m *mockBatch) Size() int {
	return len(m.queries)
}

func (m *mockBatch) ExecuteBatch() error {
	m.executed = true
	return m.err
}

func TestSessionInterfaceImplementation(t *testing.T) {
	var _ Session = &GocqlSessionAdapter{}
	var _ Session = &mockSession{}
}

func TestQueryInterfaceImplementation(t *testing.T) {
	var _ Query = &GocqlQueryAdapter{}
}

func TestBatchInterfaceImplementation(t *testing.T) {
	var _ Batch = &GocqlBatchAdapter{}
	var _ Batch = &mockBatch{}
}

func TestParseBatchType(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected BatchType
	}{
		{name: "logged batch", input: "logged", expected: LoggedBatch},
		{name: "unlogged batch", input: "unlogged", expected: UnloggedBatch},
		{name: "counter batch", input: "counter", expected: CounterBatch},
		{name: "empty defaults to logged", input: "", expected: LoggedBatch},
		{name: "invalid defaults to logged", input: "invalid", expected: LoggedBatch},
		{name: "case insensitive", input: "UNLOGGED", expected: UnloggedBatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseBatchType(tt.input)
			assert.Equal(t, tt.expected, result)
			assert.Equal(t, ParseBatchType(result.String()), result)
		})
	}
}
