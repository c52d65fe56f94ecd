// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-gorp/gorp"
	"github.com/kramdoss/manila/internal/conf"
	_ "github.com/lib/pq"
	"github.com/sapcc/go-bits/easypg"
)

// Wrapper around gorp.DbMap that adds some convenience functions.
type DB struct {
	*gorp.DbMap
}

type Table interface {
	TableName() string
}

// Create a new postgres database and wait until it is connected.
func NewPostgresDB(ctx context.Context, c conf.DBConfig, monitor Monitor) (DB, error) {
	strip := func(s string) string { return strings.ReplaceAll(s, "\n", "") }
	dbURL, err := easypg.URLFrom(easypg.URLParts{
		HostName:          strip(c.Host),
		Port:              strconv.Itoa(c.Port),
		UserName:          strip(c.User),
		Password:          strip(c.Password),
		ConnectionOptions: "sslmode=disable",
		DatabaseName:      strip(c.Database),
	})
	if err != nil {
		return DB{}, err
	}
	slog.Info("connecting to database", "host", c.Host, "database", c.Database)
	sqlDB, err := sql.Open("postgres", dbURL.String())
	if err != nil {
		return DB{}, err
	}

	// If the wait time exceeds 10 seconds, we give up.
	maxRetries := 10
	for i := range maxRetries {
		err = sqlDB.PingContext(ctx)
		monitor.observeConnectionAttempt(err)
		if err == nil {
			break
		}
		if i == maxRetries-1 {
			return DB{}, errors.New("giving up connecting to database: " + err.Error())
		}
		slog.Error("failed to connect to database, retrying...", "error", err)
		select {
		case <-ctx.Done():
			return DB{}, ctx.Err()
		case <-time.After(time.Second):
		}
	}

	sqlDB.SetMaxOpenConns(16)
	dbMap := &gorp.DbMap{Db: sqlDB, Dialect: gorp.PostgresDialect{}}
	slog.Info("database is ready")
	return DB{DbMap: dbMap}, nil
}

// Adds missing functionality to gorp.DbMap which creates one table.
func (d *DB) CreateTable(table ...*gorp.TableMap) error {
	tx, err := d.Begin()
	if err != nil {
		return err
	}
	for _, t := range table {
		slog.Info("creating table", "table", t.TableName)
		sql := t.SqlForCreate(true) // true means to add IF NOT EXISTS
		if _, err := tx.Exec(sql); err != nil {
			return errors.Join(err, tx.Rollback())
		}
	}
	return tx.Commit()
}

// Adds a Model table to the database.
func (d *DB) AddTable(t Table) *gorp.TableMap {
	slog.Info("adding table", "table", t.TableName())
	return d.AddTableWithName(t, t.TableName())
}

// Convenience function to the database connection.
func (d *DB) Close() {
	if err := d.DbMap.Db.Close(); err != nil {
		slog.Error("failed to close database connection", "error", err)
	}
}

// Database or transaction that supports update and insert methods.
type upsertable interface {
	Update(list ...any) (int64, error)
	Insert(list ...any) error
}

// Upsert a model into the database (Update if possible, otherwise Insert).
func Upsert(u upsertable, model any) error {
	n, err := u.Update(model)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	return u.Insert(model)
}
