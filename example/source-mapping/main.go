package main

import (
	datastore "go-datastore-cassandra"
)

var orders = [][]byte{
	[]byte(`{"id":"o-1","customer":{"name":"Ada"},"total":12.5}`),
	[]byte(`{"id":"o-2","customer":{"name":"Alan"},"total":7}`),
}

func main() {
	store, err := datastore.NewDatastoreBuilder("config.yml").Build()
	if err != nil {
		panic(err)
	}
	defer store.Close()

	store.Start()
	for _, order := range orders {
		if _, err := store.SaveSource("order", nil, order); err != nil {
			panic(err)
		}
	}
}
