package datastore

import (
	"os"
	"reflect"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"go-datastore-cassandra/cassandra"
	config "go-datastore-cassandra/configs"
	"go-datastore-cassandra/engine"
	"go-datastore-cassandra/flush"
	"go-datastore-cassandra/mapping"
)

type Datastore interface {
	Save(entityName string, key interface{}, document map[string]interface{}) (interface{}, error)
	SaveSource(entityName string, key interface{}, source []byte) (interface{}, error)
	Update(entityName string, key interface{}, document map[string]interface{}) error
	Delete(entityName string, key interface{}, keyColumns map[string]interface{}) error
	Flush() error
	Start()
	Close() error
	GetFlusher() *flush.Flusher
	Registry() *mapping.Registry
}

type datastore struct {
	config   *config.Config
	registry *mapping.Registry
	template *cassandra.Template
	builder  *cassandra.StatementBuilder
	flusher  *flush.Flusher
}

type DatastoreBuilder struct {
	config     any
	session    cassandra.Session
	afterFlush func()
}

func newConfigFromPath(path string) (*config.Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c config.Config
	err = yaml.Unmarshal(file, &c)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func newConfig(cf any) (*config.Config, error) {
	switch v := cf.(type) {
	case *config.Config:
		if v == nil {
			return nil, errors.New("invalid config")
		}
		return v, nil
	case config.Config:
		return &v, nil
	case string:
		return newConfigFromPath(v)
	default:
		return nil, errors.New("invalid config")
	}
}

func newDatastore(cf any, session cassandra.Session, afterFlush func()) (Datastore, error) {
	cfg, err := newConfig(cf)
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	registry, err := mapping.NewRegistry(cfg.Entities, cfg.Cassandra.Keyspace)
	if err != nil {
		return nil, errors.Wrap(err, "can't build entity registry")
	}

	if session == nil {
		session, err = cassandra.NewCassandraSession(cfg.Cassandra)
		if err != nil {
			return nil, err
		}
	}
	template := cassandra.NewTemplate(session, cfg.Cassandra.Consistency)

	var opts []flush.Option
	if afterFlush != nil {
		opts = append(opts, flush.WithAfterFlush(afterFlush))
	}
	flusher, err := flush.NewFlusher(cfg.Flush, template, opts...)
	if err != nil {
		template.Close()
		return nil, err
	}

	klog.InfoS("Datastore ready", "keyspace", cfg.Cassandra.Keyspace, "entities", registry.Names())

	return &datastore{
		config:   cfg,
		registry: registry,
		template: template,
		builder:  cassandra.NewStatementBuilder(),
		flusher:  flusher,
	}, nil
}

// NewDatastoreBuilder accepts a *config.Config, a config.Config or the path
// of a YAML config file.
func NewDatastoreBuilder(config any) DatastoreBuilder {
	return DatastoreBuilder{config: config}
}

// SetSession replaces the session otherwise opened from the Cassandra config.
func (b DatastoreBuilder) SetSession(session cassandra.Session) DatastoreBuilder {
	b.session = session
	return b
}

func (b DatastoreBuilder) SetAfterFlush(fn func()) DatastoreBuilder {
	b.afterFlush = fn
	return b
}

func (b DatastoreBuilder) Build() (Datastore, error) {
	return newDatastore(b.config, b.session, b.afterFlush)
}

// Save queues an insert of document. A nil key is taken from the identity
// column of document, or generated when the entity's identity strategy
// allows it. The key the row is stored under is returned.
func (d *datastore) Save(entityName string, key interface{}, document map[string]interface{}) (interface{}, error) {
	entity, err := d.registry.Get(entityName)
	if err != nil {
		return nil, err
	}

	row := copyRow(document)
	key, err = resolveKey(entity, key, row)
	if err != nil {
		return nil, err
	}

	stmt, err := d.builder.Insert(entity, row)
	if err != nil {
		return nil, err
	}
	return key, d.enqueue(entity, row, stmt)
}

func (d *datastore) SaveSource(entityName string, key interface{}, source []byte) (interface{}, error) {
	entity, err := d.registry.Get(entityName)
	if err != nil {
		return nil, err
	}
	row, err := mapping.MapDocument(entity, key, source)
	if err != nil {
		return nil, err
	}
	return d.Save(entityName, key, row)
}

func (d *datastore) Update(entityName string, key interface{}, document map[string]interface{}) error {
	entity, err := d.registry.Get(entityName)
	if err != nil {
		return err
	}
	if key == nil {
		return errors.Wrapf(mapping.ErrMissingKey, "entity %s: update needs a key", entity.Name)
	}

	row := copyRow(document)
	if _, err = resolveKey(entity, key, row); err != nil {
		return err
	}

	stmt, err := d.builder.Update(entity, row)
	if err != nil {
		return err
	}
	return d.enqueue(entity, row, stmt)
}

// Delete queues a delete of the row identified by key. keyColumns carries
// the remaining primary key columns of entities with a compound key.
func (d *datastore) Delete(entityName string, key interface{}, keyColumns map[string]interface{}) error {
	entity, err := d.registry.Get(entityName)
	if err != nil {
		return err
	}
	if key == nil {
		return errors.Wrapf(mapping.ErrMissingKey, "entity %s: delete needs a key", entity.Name)
	}

	row := copyRow(keyColumns)
	if _, err = resolveKey(entity, key, row); err != nil {
		return err
	}

	stmt, err := d.builder.Delete(entity, row)
	if err != nil {
		return err
	}
	return d.enqueue(entity, row, stmt)
}

// enqueue replaces the statement of an already queued write to the same row,
// keeping whatever is attached to it, or queues a new pending update. Rows
// are told apart by their full primary key.
func (d *datastore) enqueue(entity *mapping.PersistentEntity, row map[string]interface{}, stmt *cassandra.Statement) error {
	key, err := entity.RowKey(row)
	if err != nil {
		return err
	}

	if d.flusher.Replace(entity.Name, key, stmt) {
		klog.V(4).InfoS("Replaced pending statement", "entity", entity.Name, "key", key, "kind", stmt.Kind)
		return nil
	}

	op, err := engine.NewPendingUpdate[interface{}](entity, key, stmt, d.template)
	if err != nil {
		return err
	}
	return d.flusher.Add(op)
}

func (d *datastore) Flush() error {
	return d.flusher.Flush()
}

func (d *datastore) Start() {
	go d.flusher.Start()
}

func (d *datastore) Close() error {
	err := d.flusher.Close()
	d.template.Close()
	return err
}

func (d *datastore) GetFlusher() *flush.Flusher {
	return d.flusher
}

func (d *datastore) Registry() *mapping.Registry {
	return d.registry
}

func resolveKey(entity *mapping.PersistentEntity, key interface{}, row map[string]interface{}) (interface{}, error) {
	identity := entity.Identity()
	if key == nil {
		key = row[identity]
	}
	if key == nil {
		generated, err := entity.NewIdentity()
		if err != nil {
			return nil, err
		}
		key = generated
	}
	if !reflect.TypeOf(key).Comparable() {
		return nil, errors.Wrapf(mapping.ErrInvalidKey, "entity %s: key of type %T", entity.Name, key)
	}
	row[identity] = key
	return key, nil
}

func copyRow(document map[string]interface{}) map[string]interface{} {
	row := make(map[string]interface{}, len(document)+1)
	for column, value := range document {
		row[column] = value
	}
	return row
}
