package main

import (
	datastore "go-datastore-cassandra"

	"k8s.io/klog/v2"
)

func main() {
	store, err := datastore.NewDatastoreBuilder("config.yml").Build()
	if err != nil {
		panic(err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			klog.ErrorS(err, "Close failed")
		}
	}()

	key, err := store.Save("example", nil, map[string]interface{}{"value": "first"})
	if err != nil {
		panic(err)
	}

	// Replaces the queued insert, only the update reaches Cassandra.
	if err := store.Update("example", key, map[string]interface{}{"value": "second"}); err != nil {
		panic(err)
	}

	if err := store.Flush(); err != nil {
		panic(err)
	}
	klog.InfoS("Flushed", "key", key)
}
