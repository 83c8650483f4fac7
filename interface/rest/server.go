package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"

	"go-datastore-cassandra/cassandra"
	"go-datastore-cassandra/mapping"
)

// Store is the write side of the datastore exposed over HTTP.
type Store interface {
	Save(entityName string, key interface{}, document map[string]interface{}) (interface{}, error)
	SaveSource(entityName string, key interface{}, source []byte) (interface{}, error)
	Update(entityName string, key interface{}, document map[string]interface{}) error
	Delete(entityName string, key interface{}, keyColumns map[string]interface{}) error
	Flush() error
}

type WriteRequest struct {
	Operation string                 `json:"operation" binding:"required,oneof=insert update delete"`
	Key       interface{}            `json:"key"`
	Document  map[string]interface{} `json:"document"`
	Source    json.RawMessage        `json:"source"`
}

type server struct {
	store Store
}

func NewServer(store Store) Server {
	return &server{store: store}
}

type Server interface {
	SetupRouter() *gin.Engine
}

func (server server) SetupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gzip.Gzip(gzip.BestCompression))
	router.Use(gin.Recovery())

	pprof.Register(router)
	router.GET("/_monitoring/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})
	router.GET("/metrics", prometheusHandler())

	v1 := router.Group("/v1")
	v1.POST("/entities/:entity/writes", server.write)
	v1.POST("/flush", server.flush)
	return router
}

func (server server) write(c *gin.Context) {
	var req WriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entity := c.Param("entity")
	key := req.Key
	var err error
	switch req.Operation {
	case "insert":
		if len(req.Source) > 0 {
			key, err = server.store.SaveSource(entity, req.Key, req.Source)
		} else {
			key, err = server.store.Save(entity, req.Key, req.Document)
		}
	case "update":
		err = server.store.Update(entity, req.Key, req.Document)
	case "delete":
		err = server.store.Delete(entity, req.Key, req.Document)
	}
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "PENDING", "key": key})
}

func (server server) flush(c *gin.Context) {
	if err := server.store.Flush(); err != nil {
		klog.ErrorS(err, "Flush requested over HTTP failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "FLUSHED"})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, mapping.ErrUnknownEntity):
		return http.StatusNotFound
	case errors.Is(err, mapping.ErrMissingKey), errors.Is(err, mapping.ErrInvalidKey),
		errors.Is(err, mapping.ErrInvalidDocument), errors.Is(err, cassandra.ErrInvalidStatement):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func prometheusHandler() gin.HandlerFunc {
	h := promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{DisableCompression: true})

	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
