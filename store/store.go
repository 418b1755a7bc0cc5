// Package store persists the mapping between source posts and republished
// messages. Every operation runs in its own explicit transaction and is
// retried according to Classify.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lovelive-bluebird/bluebird/retry"
	. "github.com/lovelive-bluebird/bluebird/utils/log"
)

const (
	DefaultMinConns         = 2
	DefaultMaxConns         = 10
	DefaultStatementTimeout = 30 * time.Second
	DefaultApplicationName  = "bluebird"
)

type Config struct {
	DSN              string
	MinConns         int
	MaxConns         int
	StatementTimeout time.Duration
	ApplicationName  string

	// Zero values select retry.DefaultPolicy and retry.PoolPolicy.
	OpPolicy   *retry.Policy
	PoolPolicy *retry.Policy
}

func (c Config) withDefaults() Config {
	if c.MinConns <= 0 {
		c.MinConns = DefaultMinConns
	}
	if c.MaxConns <= 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
	if c.StatementTimeout <= 0 {
		c.StatementTimeout = DefaultStatementTimeout
	}
	if c.ApplicationName == "" {
		c.ApplicationName = DefaultApplicationName
	}
	return c
}

// GormTransaction is the callback function used during db.Transaction in Gorm.
type GormTransaction func(tx *gorm.DB) error

// Store owns the process-wide connection pool. It is safe for concurrent use.
type Store struct {
	db       *gorm.DB
	sqlDB    *sql.DB
	opPolicy retry.Policy
}

// openConn is swapped in tests.
var openConn = func(dsn string) (*sql.DB, error) {
	return sql.Open("postgres", dsn)
}

// Open creates the connection pool and verifies it can reach the database.
// Creation is retried with the pool policy since the database commonly comes
// up after us.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()
	if cfg.DSN == "" {
		return nil, errors.New("store: empty DSN")
	}
	dsn, err := withRuntimeParams(cfg.DSN, map[string]string{
		"application_name":  cfg.ApplicationName,
		"statement_timeout": fmt.Sprintf("%d", cfg.StatementTimeout.Milliseconds()),
	})
	if err != nil {
		return nil, err
	}

	poolPolicy := retry.PoolPolicy()
	if cfg.PoolPolicy != nil {
		poolPolicy = *cfg.PoolPolicy
	}

	var s *Store
	err = retry.Do(ctx, poolPolicy, Classify, func(ctx context.Context) error {
		sqlDB, err := openConn(dsn)
		if err != nil {
			return errors.Wrap(err, "open connection pool")
		}
		sqlDB.SetMaxOpenConns(cfg.MaxConns)
		sqlDB.SetMaxIdleConns(cfg.MinConns)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)

		if err := sqlDB.PingContext(ctx); err != nil {
			sqlDB.Close()
			return errors.Wrap(err, "ping database")
		}

		s, err = newStore(sqlDB, cfg)
		if err != nil {
			sqlDB.Close()
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	Log.WithFields(logrus.Fields{
		"min_conns": cfg.MinConns,
		"max_conns": cfg.MaxConns,
	}).Info("store connection pool ready")
	return s, nil
}

func newStore(sqlDB *sql.DB, cfg Config) (*Store, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:               logger.Default.LogMode(logger.Silent),
		DisableAutomaticPing: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init gorm")
	}
	opPolicy := retry.DefaultPolicy()
	if cfg.OpPolicy != nil {
		opPolicy = *cfg.OpPolicy
	}
	return &Store{db: db, sqlDB: sqlDB, opPolicy: opPolicy}, nil
}

// Close releases every pooled connection. Safe to call more than once.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// transaction runs fn inside one explicit transaction, retrying the whole
// transaction on transient failures.
func (s *Store) transaction(ctx context.Context, op string, fn GormTransaction) error {
	p := s.opPolicy
	p.Name = op
	err := retry.Do(ctx, p, Classify, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(fn)
	})
	return errors.Wrap(err, op)
}

// withRuntimeParams appends connection parameters that are not already set
// in dsn. Both URL and key=value DSNs are supported.
func withRuntimeParams(dsn string, params map[string]string) (string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", errors.Wrap(err, "parse DSN")
		}
		q := u.Query()
		for k, v := range params {
			if q.Get(k) == "" {
				q.Set(k, v)
			}
		}
		u.RawQuery = q.Encode()
		return u.String(), nil
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(dsn))
	for _, k := range sortedKeys(params) {
		if strings.Contains(dsn, k+"=") {
			continue
		}
		fmt.Fprintf(&b, " %s=%s", k, params[k])
	}
	return b.String(), nil
}
