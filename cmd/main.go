// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kramdoss/manila/internal/conf"
	"github.com/kramdoss/manila/internal/db"
	"github.com/kramdoss/manila/internal/keystone"
	"github.com/kramdoss/manila/internal/monitoring"
	"github.com/kramdoss/manila/internal/mqtt"
	"github.com/kramdoss/manila/internal/scheduling/lib"
	"github.com/kramdoss/manila/internal/scheduling/manila"
	manilaAPIHTTP "github.com/kramdoss/manila/internal/scheduling/manila/api/http"
	"github.com/kramdoss/manila/internal/scheduling/manila/hosts"
	"github.com/kramdoss/manila/internal/scheduling/manila/reports"
	"github.com/kramdoss/manila/internal/sync"
	manilaSync "github.com/kramdoss/manila/internal/sync/openstack/manila"
	"github.com/sapcc/go-api-declarations/bininfo"
	"github.com/sapcc/go-bits/httpext"
	"github.com/sapcc/go-bits/must"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"
)

func main() {
	// If called with `--version`, report version and exit (the Dockerfile
	// uses this to check if the binary was built correctly)
	bininfo.HandleVersionArgument()

	config := conf.GetConfigOrDie[*conf.Config]()
	config.LoggingConfig.SetDefaultLogger()
	if err := config.Validate(); err != nil {
		panic("invalid configuration: " + err.Error())
	}

	// Set runtime concurrency to match CPU limit imposed by Kubernetes
	undoMaxprocs := must.Return(maxprocs.Set(maxprocs.Logger(slog.Debug)))
	defer undoMaxprocs()

	// Override User-Agent header for all requests made by this process
	// (logs will show e.g. "manila-scheduler/d0c9faa" instead of "Go-http-client/2.0")
	wrap := httpext.WrapTransport(&http.DefaultTransport)
	wrap.SetOverrideUserAgent(bininfo.Component(), bininfo.VersionOr("rolling"))

	// This context will gracefully shutdown when the process receives the
	// standard shutdown signal SIGINT, with a 10-second delay to allow
	// Kubernetes to stop sending new requests well before the process starts
	// to shut down.
	ctx := httpext.ContextWithSIGINT(context.Background(), 10*time.Second)

	registry := monitoring.NewRegistry(config.MonitoringConfig)
	sc := config.SchedulerConfig
	manager := hosts.NewManager(hosts.NewManagerMonitor(registry))

	// Reports are only persisted if configured, otherwise the cache
	// warms up from the first round of reports after a restart.
	var database db.DB
	var store *hosts.Store
	if sc.PersistReports {
		database = must.Return(db.NewPostgresDB(ctx, config.DBConfig, db.NewDBMonitor(registry)))
		defer database.Close()
		store = must.Return(hosts.NewStore(database))
		restored, err := store.Restore(manager)
		if err != nil {
			slog.Error("failed to restore some host reports", "error", err)
		}
		slog.Info("restored host reports", "count", restored)
	}

	pipelineMonitor := lib.NewPipelineMonitor()
	registry.MustRegister(&pipelineMonitor)
	pipeline := must.Return(manila.NewPipeline(sc, database, pipelineMonitor))

	mqttClient := mqtt.NewClient(config.MQTTConfig, mqtt.NewMQTTMonitor(registry))
	if err := mqttClient.Connect(); err != nil {
		panic("failed to connect to mqtt broker: " + err.Error())
	}
	defer mqttClient.Disconnect()

	ingestor := reports.NewIngestor(manager, store)
	must.Succeed(ingestor.Subscribe(mqttClient, sc.Topic()))
	driver := manila.NewDriver(sc, manager, pipeline, mqttClient)

	// Run an api server that serves some basic endpoints and can be extended.
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	manilaAPIHTTP.NewAPI(sc.API, registry, driver, manager, ingestor).Init(mux)

	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error { return registry.Serve(ctx) })
	sweeper := &reports.Sweeper{
		Manager:  manager,
		Interval: sc.SweepInterval(),
		Timeout:  sc.StalenessTimeout(),
	}
	wg.Go(func() error { return sweeper.Run(ctx) })

	if syncConf := config.SyncConfig.Manila; syncConf.Enabled {
		monitor := sync.NewSyncMonitor(registry)
		keystoneAPI := keystone.NewKeystoneAPI(config.KeystoneConfig)
		api := manilaSync.NewManilaAPI(monitor, keystoneAPI, syncConf)
		syncer := manilaSync.NewSyncer(api, ingestor, syncConf, monitor, mqttClient)
		wg.Go(func() error { return syncer.Run(ctx) })
	}

	// Run the api server after all other tasks have been started and
	// all http handlers have been registered to the mux.
	wg.Go(func() error {
		slog.Info("api listening", "port", config.APIConfig.Port)
		addr := fmt.Sprintf(":%d", config.APIConfig.Port)
		return httpext.ListenAndServeContext(ctx, addr, mux)
	})
	must.Succeed(wg.Wait())
}
