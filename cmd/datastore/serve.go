package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	datastore "go-datastore-cassandra"
	config "go-datastore-cassandra/configs"
	"go-datastore-cassandra/interface/rest"
	"go-datastore-cassandra/metrics"
)

const shutdownTimeout = 30 * time.Second

type ServeOptions struct {
	ConfigPath string

	config *config.Config
}

func NewServeOptions() *ServeOptions {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yml"
	}
	return &ServeOptions{ConfigPath: path}
}

func NewServeCommand(ctx context.Context) *cobra.Command {
	o := NewServeOptions()

	cmd := &cobra.Command{
		Use:   "datastore",
		Short: "Serves deferred Cassandra writes over HTTP.",
		Long: `Accepts entity writes over HTTP, queues them as pending updates and
flushes them to Cassandra on a ticker, when the queue is full or on request.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Validate(); err != nil {
				return err
			}

			if err := o.Complete(); err != nil {
				return err
			}

			return o.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&o.ConfigPath, "config", o.ConfigPath, "Path to the YAML config file.")

	return cmd
}

func (o *ServeOptions) Validate() error {
	if o.ConfigPath == "" {
		return errors.New("config path can't be empty")
	}
	return nil
}

func (o *ServeOptions) Complete() error {
	cfg, err := config.LoadAppConfig(o.ConfigPath)
	if err != nil {
		return err
	}
	o.config = cfg
	return nil
}

func (o *ServeOptions) Run(ctx context.Context) error {
	store, err := datastore.NewDatastoreBuilder(o.config).Build()
	if err != nil {
		return errors.Wrap(err, "can't build datastore")
	}

	metricCollector := metrics.NewMetricCollector(store.GetFlusher())
	prometheus.MustRegister(metricCollector)

	srv := &http.Server{
		Addr:    o.config.AppPort,
		Handler: rest.NewServer(store).SetupRouter(),
	}

	go func() {
		klog.InfoS("Starting HTTP server", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			klog.ErrorS(err, "HTTP server error")
		}
	}()

	store.Start()
	<-ctx.Done()
	klog.InfoS("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	metricCollector.Unregister()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		klog.ErrorS(err, "HTTP server shutdown error")
	}

	return store.Close()
}
