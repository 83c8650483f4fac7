package cassandra

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "go-datastore-cassandra/configs"
	"go-datastore-cassandra/mapping"
)

func newBookEntity(t *testing.T, mutate ...func(m *config.EntityMapping)) *mapping.PersistentEntity {
	t.Helper()
	m := config.EntityMapping{
		Name:          "Book",
		Table:         "books",
		PartitionKeys: []string{"id"},
		Columns:       []string{"title", "author"},
	}
	for _, fn := range mutate {
		fn(&m)
	}
	e, err := mapping.NewPersistentEntity(m, "library")
	require.NoError(t, err)
	return e
}

func TestStatementBuilder_Insert(t *testing.T) {
	b := NewStatementBuilder()
	entity := newBookEntity(t)

	stmt, err := b.Insert(entity, map[string]interface{}{"title": "Dune", "id": "b-1"})
	require.NoError(t, err)

	assert.Equal(t, Insert, stmt.Kind)
	assert.Equal(t, "library", stmt.Keyspace)
	assert.Equal(t, "books", stmt.Table)
	assert.Contains(t, stmt.CQL, "INSERT INTO library.books")
	assert.Equal(t, []string{"id", "title"}, stmt.Names)
	assert.Equal(t, []interface{}{"b-1", "Dune"}, stmt.Values)
	assert.True(t, stmt.Idempotent)
	assert.Equal(t, stmt.CQL, stmt.String())
}

func TestStatementBuilder_InsertWithTTLAndLWT(t *testing.T) {
	b := NewStatementBuilder()
	entity := newBookEntity(t, func(m *config.EntityMapping) { m.TTL = time.Hour })

	stmt, err := b.Insert(entity, map[string]interface{}{"id": "b-1"}, IfNotExists(), WithConsistency("ONE"))
	require.NoError(t, err)

	assert.Contains(t, stmt.CQL, "USING TTL 3600")
	assert.Contains(t, stmt.CQL, "IF NOT EXISTS")
	assert.Equal(t, "ONE", stmt.Consistency)
	assert.False(t, stmt.Idempotent)
}

func TestStatementBuilder_Update(t *testing.T) {
	b := NewStatementBuilder()
	entity := newBookEntity(t)

	stmt, err := b.Update(entity, map[string]interface{}{"id": "b-1", "title": "Dune", "author": "Herbert"})
	require.NoError(t, err)

	assert.Equal(t, Update, stmt.Kind)
	assert.Contains(t, stmt.CQL, "UPDATE library.books")
	assert.Contains(t, stmt.CQL, "WHERE id=?")
	assert.Equal(t, []string{"author", "title", "id"}, stmt.Names)
	assert.Equal(t, []interface{}{"Herbert", "Dune", "b-1"}, stmt.Values)
}

func TestStatementBuilder_UpdateWithoutColumns(t *testing.T) {
	b := NewStatementBuilder()
	entity := newBookEntity(t)

	_, err := b.Update(entity, map[string]interface{}{"id": "b-1"})
	assert.True(t, errors.Is(err, ErrInvalidStatement))
}

func TestStatementBuilder_Delete(t *testing.T) {
	b := NewStatementBuilder()
	entity := newBookEntity(t, func(m *config.EntityMapping) { m.ClusteringKeys = []string{"edition"} })

	stmt, err := b.Delete(entity, map[string]interface{}{"id": "b-1", "edition": 2})
	require.NoError(t, err)

	assert.Equal(t, Delete, stmt.Kind)
	assert.Contains(t, stmt.CQL, "DELETE FROM library.books")
	assert.Contains(t, stmt.CQL, "id=? AND edition=?")
	assert.Equal(t, []interface{}{"b-1", 2}, stmt.Values)
}

func TestStatementBuilder_MissingPrimaryKey(t *testing.T) {
	b := NewStatementBuilder()
	entity := newBookEntity(t, func(m *config.EntityMapping) { m.ClusteringKeys = []string{"edition"} })

	_, err := b.Insert(entity, map[string]interface{}{"id": "b-1", "title": "Dune"})
	assert.True(t, errors.Is(err, mapping.ErrMissingKey))

	_, err = b.Delete(entity, map[string]interface{}{"id": nil, "edition": 1})
	assert.True(t, errors.Is(err, mapping.ErrMissingKey))
}

func TestStatementBuilder_UnknownColumn(t *testing.T) {
	b := NewStatementBuilder()
	entity := newBookEntity(t)

	_, err := b.Insert(entity, map[string]interface{}{"id": "b-1", "isbn": "0441013597"})
	assert.True(t, errors.Is(err, ErrInvalidStatement))
}

func TestStatementBuilder_Caching(t *testing.T) {
	b := NewStatementBuilder()
	entity := newBookEntity(t)

	first, err := b.Insert(entity, map[string]interface{}{"id": "b-1", "title": "Dune"})
	require.NoError(t, err)
	second, err := b.Insert(entity, map[string]interface{}{"id": "b-2", "title": "Emma"})
	require.NoError(t, err)

	assert.Equal(t, first.CQL, second.CQL)
	assert.Len(t, b.cache, 1)

	_, err = b.Insert(entity, map[string]interface{}{"id": "b-3", "author": "Austen"})
	require.NoError(t, err)
	assert.Len(t, b.cache, 2, "a different column set is a different shape")
}

func TestStatementBuilder_ConcurrentAccess(t *testing.T) {
	b := NewStatementBuilder()
	entity := newBookEntity(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			stmt, err := b.Insert(entity, map[string]interface{}{"id": fmt.Sprintf("b-%d", id), "title": "t"})
			assert.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("b-%d", id), stmt.Values[0])
		}(i)
	}
	wg.Wait()

	assert.Len(t, b.cache, 1)
}
