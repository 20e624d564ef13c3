package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"

	"renter-registry/internal/constants"
	errs "renter-registry/pkg/errors"
)

// MySQL error numbers the stores care about.
const (
	ErDupEntry = 1062
)

type DB struct {
	conn         *sql.DB
	stmtMu       sync.Mutex
	stmts        map[string]*sql.Stmt
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func New(databaseURL string) (*DB, error) {
	conn, err := open(databaseURL)
	if err != nil {
		return nil, err
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(10)
	conn.SetConnMaxLifetime(10 * time.Minute)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	return newDB(conn, constants.DBReadTimeoutDefault, constants.DBWriteTimeoutDefault)
}

// PoolConfig holds connection pool and timeout settings.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
}

// NewWithConfig creates a database connection with custom pool settings.
// Zero timeouts fall back to the defaults.
func NewWithConfig(databaseURL string, cfg PoolConfig) (*DB, error) {
	conn, err := open(databaseURL)
	if err != nil {
		return nil, err
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	conn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	rt := cfg.ReadTimeout
	if rt == 0 {
		rt = constants.DBReadTimeoutDefault
	}
	wt := cfg.WriteTimeout
	if wt == 0 {
		wt = constants.DBWriteTimeoutDefault
	}
	return newDB(conn, rt, wt)
}

// open parses the DSN so that timestamps scan into time.Time.
func open(databaseURL string) (*sql.DB, error) {
	dsn, err := mysql.ParseDSN(databaseURL)
	if err != nil {
		return nil, errs.NewDB("database.open", "invalid DSN", err)
	}
	dsn.ParseTime = true
	dsn.Loc = time.UTC
	connector, err := mysql.NewConnector(dsn)
	if err != nil {
		return nil, errs.NewDB("database.open", "failed to build connector", err)
	}
	return sql.OpenDB(connector), nil
}

func newDB(conn *sql.DB, rt, wt time.Duration) (*DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), rt)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, errs.NewDB("database.New", "ping failed", err)
	}
	return &DB{
		conn:         conn,
		stmts:        make(map[string]*sql.Stmt),
		readTimeout:  rt,
		writeTimeout: wt,
	}, nil
}

// Close closes database connection and prepared statements
func (db *DB) Close() error {
	db.stmtMu.Lock()
	for _, stmt := range db.stmts {
		stmt.Close()
	}
	db.stmts = map[string]*sql.Stmt{}
	db.stmtMu.Unlock()
	return db.conn.Close()
}

func (db *DB) Conn() *sql.DB { return db.conn }

// Ping checks connectivity within the read timeout.
func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := db.WithReadTimeout(ctx)
	defer cancel()
	return db.conn.PingContext(ctx)
}

// WithReadTimeout creates a context with standard read timeout.
func (db *DB) WithReadTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, db.readTimeout)
}

// WithWriteTimeout creates a context with standard write timeout.
func (db *DB) WithWriteTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, db.writeTimeout)
}

// Stmt returns a prepared statement cached under name, preparing query on
// first use.
func (db *DB) Stmt(ctx context.Context, name, query string) (*sql.Stmt, error) {
	db.stmtMu.Lock()
	defer db.stmtMu.Unlock()
	if stmt, ok := db.stmts[name]; ok {
		return stmt, nil
	}
	stmt, err := db.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, errs.NewDB("database.Stmt", fmt.Sprintf("failed to prepare statement %s", name), err)
	}
	db.stmts[name] = stmt
	return stmt, nil
}

// InTx runs fn in a transaction, committing when fn returns nil.
func (db *DB) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	ctx, cancel := db.WithWriteTimeout(ctx)
	defer cancel()
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return errs.NewDB("database.InTx", "begin", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errs.NewDB("database.InTx", "commit", err)
	}
	return nil
}

// IsDuplicateKey reports whether err is a MySQL unique key violation.
func IsDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == ErDupEntry
}
