package cassandra

import (
	"crypto/tls"
	"strings"

	"github.com/gocql/gocql"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	config "go-datastore-cassandra/configs"
)

func ParseConsistency(consistency string) gocql.Consistency {
	switch strings.ToUpper(strings.TrimSpace(consistency)) {
	case "ANY":
		return gocql.Any
	case "ONE":
		return gocql.One
	case "TWO":
		return gocql.Two
	case "THREE":
		return gocql.Three
	case "QUORUM":
		return gocql.Quorum
	case "ALL":
		return gocql.All
	case "LOCAL_QUORUM":
		return gocql.LocalQuorum
	case "EACH_QUORUM":
		return gocql.EachQuorum
	case "LOCAL_ONE":
		return gocql.LocalOne
	default:
		return gocql.Quorum
	}
}

func ParseSerialConsistency(consistency string) gocql.SerialConsistency {
	switch strings.ToUpper(strings.TrimSpace(consistency)) {
	case "LOCAL_SERIAL":
		return gocql.LocalSerial
	default:
		return gocql.Serial
	}
}

func NewClusterConfig(cfg config.Cassandra) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = ParseConsistency(cfg.Consistency)
	if cfg.SerialConsistency != "" {
		cluster.SerialConsistency = ParseSerialConsistency(cfg.SerialConsistency)
	}

	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
	}
	if cfg.ConnectTimeout > 0 {
		cluster.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.KeepAlive > 0 {
		cluster.SocketKeepalive = cfg.KeepAlive
	}
	if cfg.NumConns > 0 {
		cluster.NumConns = cfg.NumConns
	}
	if cfg.MaxPreparedStmts > 0 {
		cluster.MaxPreparedStmts = cfg.MaxPreparedStmts
	}
	if cfg.MaxRoutingKeyInfo > 0 {
		cluster.MaxRoutingKeyInfo = cfg.MaxRoutingKeyInfo
	}
	if cfg.PageSize > 0 {
		cluster.PageSize = cfg.PageSize
	}

	if cfg.RetryPolicy.NumRetries > 0 {
		cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
			NumRetries: cfg.RetryPolicy.NumRetries,
			Min:        cfg.RetryPolicy.MinRetryDelay,
			Max:        cfg.RetryPolicy.MaxRetryDelay,
		}
	}

	switch cfg.Compressor {
	case "snappy":
		cluster.Compressor = gocql.SnappyCompressor{}
	case "lz4":
		klog.InfoS("LZ4 compression is not available in gocql, using snappy instead")
		cluster.Compressor = gocql.SnappyCompressor{}
	default:
	}

	if cfg.SSL.Enable {
		cluster.SslOpts = &gocql.SslOptions{
			Config: &tls.Config{
				InsecureSkipVerify: cfg.SSL.InsecureSkipVerify,
			},
			CertPath:               cfg.SSL.CertPath,
			KeyPath:                cfg.SSL.KeyPath,
			CaPath:                 cfg.SSL.CaPath,
			EnableHostVerification: !cfg.SSL.InsecureSkipVerify,
		}
	}

	return cluster
}

func NewCassandraSession(cfg config.Cassandra) (Session, error) {
	session, err := NewClusterConfig(cfg).CreateSession()
	if err != nil {
		return nil, errors.Wrapf(err, "can't create cassandra session for hosts %v", cfg.Hosts)
	}
	klog.InfoS("Connected to Cassandra", "hosts", cfg.Hosts, "keyspace", cfg.Keyspace, "consistency", cfg.Consistency)
	return NewGocqlSessionAdapter(session), nil
}
