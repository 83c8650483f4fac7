package mapping

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "go-datastore-cassandra/configs"
)

func bookMapping() config.EntityMapping {
	return config.EntityMapping{
		Name:           "Book",
		Table:          "books",
		PartitionKeys:  []string{"id"},
		ClusteringKeys: []string{"edition"},
		Columns:        []string{"title", "author"},
	}
}

func TestNewPersistentEntity(t *testing.T) {
	e, err := NewPersistentEntity(bookMapping(), "library")
	require.NoError(t, err)

	assert.Equal(t, "library.books", e.QualifiedName())
	assert.Equal(t, Assigned, e.IdentityStrategy)
	assert.Equal(t, "id", e.Identity())
	if diff := cmp.Diff([]string{"title", "author", "id", "edition"}, e.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"id", "edition"}, e.PrimaryKey())
	assert.True(t, e.IsPrimaryKey("edition"))
	assert.False(t, e.IsPrimaryKey("title"))
	assert.True(t, e.HasColumn("author"))
	assert.False(t, e.HasColumn("isbn"))
	assert.Equal(t, "library.books", e.Table().Name())
}

func TestNewPersistentEntity_KeyspaceOverride(t *testing.T) {
	m := bookMapping()
	m.Keyspace = "archive"
	e, err := NewPersistentEntity(m, "library")
	require.NoError(t, err)
	assert.Equal(t, "archive.books", e.QualifiedName())
}

func TestNewPersistentEntity_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *config.EntityMapping)
	}{
		{name: "no name", mutate: func(m *config.EntityMapping) { m.Name = "" }},
		{name: "no table", mutate: func(m *config.EntityMapping) { m.Table = "" }},
		{name: "no partition key", mutate: func(m *config.EntityMapping) { m.PartitionKeys = nil }},
		{name: "duplicate column", mutate: func(m *config.EntityMapping) { m.Columns = []string{"title", "title"} }},
		{name: "key declared twice", mutate: func(m *config.EntityMapping) { m.ClusteringKeys = []string{"id"} }},
		{name: "unknown strategy", mutate: func(m *config.EntityMapping) { m.IdentityStrategy = "sequence" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := bookMapping()
			tt.mutate(&m)
			_, err := NewPersistentEntity(m, "library")
			assert.Error(t, err)
		})
	}
}

func TestPersistentEntity_NewIdentity(t *testing.T) {
	m := bookMapping()

	m.IdentityStrategy = "uuid"
	e, err := NewPersistentEntity(m, "library")
	require.NoError(t, err)
	id, err := e.NewIdentity()
	require.NoError(t, err)
	_, err = uuid.Parse(id.(string))
	assert.NoError(t, err)

	m.IdentityStrategy = "timeuuid"
	e, err = NewPersistentEntity(m, "library")
	require.NoError(t, err)
	id, err = e.NewIdentity()
	require.NoError(t, err)
	parsed, err := uuid.Parse(id.(string))
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(1), parsed.Version())

	m.IdentityStrategy = "assigned"
	e, err = NewPersistentEntity(m, "library")
	require.NoError(t, err)
	_, err = e.NewIdentity()
	assert.True(t, errors.Is(err, ErrMissingKey))
}

func TestRegistry(t *testing.T) {
	author := config.EntityMapping{Name: "Author", Table: "authors", PartitionKeys: []string{"id"}, TTL: time.Hour}
	r, err := NewRegistry([]config.EntityMapping{bookMapping(), author}, "library")
	require.NoError(t, err)

	assert.Equal(t, []string{"Author", "Book"}, r.Names())

	e, err := r.Get("Author")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, e.TTL)

	_, err = r.Get("Publisher")
	assert.True(t, errors.Is(err, ErrUnknownEntity))

	_, err = NewRegistry([]config.EntityMapping{author, author}, "library")
	assert.Error(t, err)
}

func TestPersistentEntity_RowKey(t *testing.T) {
	single, err := NewPersistentEntity(config.EntityMapping{Name: "Author", Table: "authors", PartitionKeys: []string{"id"}}, "library")
	require.NoError(t, err)

	key, err := single.RowKey(map[string]interface{}{"id": "a-1", "name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "a-1", key)

	compound, err := NewPersistentEntity(config.EntityMapping{
		Name:           "Chapter",
		Table:          "chapters",
		PartitionKeys:  []string{"book_id", "volume"},
		ClusteringKeys: []string{"number"},
	}, "library")
	require.NoError(t, err)

	first, err := compound.RowKey(map[string]interface{}{"book_id": "b-1", "volume": 1, "number": 1, "title": "one"})
	require.NoError(t, err)
	assert.Equal(t, CompoundKey{Head: "b-1", Tail: CompoundKey{Head: 1, Tail: 1}}, first)

	second, err := compound.RowKey(map[string]interface{}{"book_id": "b-1", "volume": 1, "number": 2})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	again, err := compound.RowKey(map[string]interface{}{"book_id": "b-1", "volume": 1, "number": 1, "title": "other"})
	require.NoError(t, err)
	assert.True(t, first == again)

	_, err = compound.RowKey(map[string]interface{}{"book_id": "b-1", "volume": 1})
	assert.True(t, errors.Is(err, ErrMissingKey))

	_, err = compound.RowKey(map[string]interface{}{"book_id": "b-1", "volume": []int{1}, "number": 1})
	assert.True(t, errors.Is(err, ErrInvalidKey))
}
