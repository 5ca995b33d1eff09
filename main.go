// Copyright 2025 The Climate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sapcc/go-bits/httpext"
	"golang.org/x/sync/errgroup"

	"github.com/scroiset/climate/internal/alloc"
	"github.com/scroiset/climate/internal/api"
	"github.com/scroiset/climate/internal/conf"
	"github.com/scroiset/climate/internal/db"
	"github.com/scroiset/climate/internal/fleet"
	"github.com/scroiset/climate/internal/hosts"
	"github.com/scroiset/climate/internal/inventory"
	"github.com/scroiset/climate/internal/keystone"
	"github.com/scroiset/climate/internal/manager"
	"github.com/scroiset/climate/internal/monitoring"
	"github.com/scroiset/climate/internal/pool"
	"github.com/scroiset/climate/internal/store"
)

// Run the prometheus metrics server for monitoring.
func runMonitoringServer(ctx context.Context, registry *monitoring.Registry, config conf.MonitoringConfig) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	slog.Info("metrics listening", "port", config.Port)
	addr := fmt.Sprintf(":%d", config.Port)
	return httpext.ListenAndServeContext(ctx, addr, mux)
}

// Build the resource type handlers named in the config.
func buildHandlers(config conf.ManagerConfig, s *store.Store, engine *alloc.Engine, pools *pool.Manager) (manager.Registry, error) {
	var built []manager.Handler
	for _, hc := range config.Handlers {
		switch hc.ResourceType {
		case hosts.ResourceType:
			handler := hosts.NewHandler(s, engine, pools)
			if err := handler.Init(hc.Options); err != nil {
				return nil, fmt.Errorf("initializing handler %q: %w", hc.ResourceType, err)
			}
			built = append(built, handler)
		default:
			return nil, fmt.Errorf("no handler available for resource type %q", hc.ResourceType)
		}
	}
	if len(built) == 0 {
		// Physical host reservations are the reason this service exists.
		built = append(built, hosts.NewHandler(s, engine, pools))
	}
	return manager.NewRegistry(built...)
}

func main() {
	configPath := flag.String("config", "/etc/config/conf.yaml", "path to the config file")
	flag.Parse()

	config := conf.NewConfigFromFile(*configPath)
	if err := config.Validate(); err != nil {
		panic(err)
	}
	config.SetDefaultLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry := monitoring.NewRegistry(config.MonitoringConfig)
	database := db.NewPostgresDB(config.DBConfig, db.NewDBMonitor(registry))
	defer database.Close()
	s := store.New(database)
	if err := s.SetupTables(); err != nil {
		panic(err)
	}

	keystoneAPI := keystone.NewKeystoneAPI(config.KeystoneConfig)
	provider, err := fleet.NewNovaProvider(keystoneAPI, config.KeystoneConfig.Availability)
	if err != nil {
		panic(err)
	}
	pools := pool.NewManager(provider, config.PoolConfig, config.KeystoneConfig.OSProjectName)
	if err := pools.EnsureFreePool(ctx); err != nil {
		panic(err)
	}

	engine := alloc.NewEngine(s)
	inv := inventory.New(s, pools, provider)
	handlers, err := buildHandlers(config.ManagerConfig, s, engine, pools)
	if err != nil {
		panic(err)
	}
	service := manager.NewService(s, handlers, config.ManagerConfig, manager.NewManagerMonitor(registry))

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return service.Run(ctx) })
	group.Go(func() error { return runMonitoringServer(ctx, registry, config.MonitoringConfig) })
	group.Go(func() error {
		mux := http.NewServeMux()
		httpAPI := api.NewAPI(config.APIConfig, service, inv, api.NewAPIMonitor(registry))
		httpAPI.Init(mux)
		addr := fmt.Sprintf(":%d", config.APIConfig.Port)
		slog.Info("api listening", "port", config.APIConfig.Port)
		return httpext.ListenAndServeContext(ctx, addr, mux)
	})
	if err := group.Wait(); err != nil {
		panic(err)
	}
}
