// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"os"
	"strconv"
	"testing"

	"github.com/go-gorp/gorp"
	"github.com/kramdoss/manila/internal/conf"
	"github.com/kramdoss/manila/internal/db"
	"github.com/kramdoss/manila/testlib/db/containers"
	_ "github.com/mattn/go-sqlite3"
)

type DBEnv struct {
	*db.DB
	Close func()
}

// Set up a database for a test. Uses sqlite by default, and a real
// postgres container if POSTGRES_CONTAINER=1 is set.
func SetupDBEnv(t *testing.T) DBEnv {
	t.Helper()
	var env DBEnv
	// To run tests faster, the default is running with sqlite.
	if os.Getenv("POSTGRES_CONTAINER") == "1" {
		slog.Info("Using real postgres container")
		container := containers.PostgresContainer{}
		container.Init(t)
		port, err := strconv.Atoi(container.GetPort())
		if err != nil {
			t.Fatal(err)
		}
		pg, err := db.NewPostgresDB(context.Background(), conf.DBConfig{
			Host:     "localhost",
			Port:     port,
			User:     "postgres",
			Password: "secret",
			Database: "postgres",
		}, db.Monitor{})
		if err != nil {
			t.Fatal(err)
		}
		env.DB = &pg
		env.Close = func() {
			env.DB.Close()
			container.Close()
		}
	} else {
		slog.Info("Using sqlite")
		sqlDB, err := sql.Open("sqlite3", t.TempDir()+"/test.db")
		if err != nil {
			t.Fatal(err)
		}
		env.DB = &db.DB{DbMap: &gorp.DbMap{Db: sqlDB, Dialect: gorp.SqliteDialect{}}}
		env.Close = func() {
			env.DB.Close()
		}
	}
	env.DB.DbMap.TraceOn("[gorp]", log.New(os.Stdout, "manila:", log.Lmicroseconds))
	return env
}
