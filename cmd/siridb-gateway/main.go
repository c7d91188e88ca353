// Command siridb-gateway is a long-running process that holds a
// Cluster connection and exposes its status and metrics over HTTP:
// load config, wire the collaborators, start serving, wait for a
// signal, shut down in reverse order.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/siridb/go-siridb-connector"
	"github.com/siridb/go-siridb-connector/internal/api"
	"github.com/siridb/go-siridb-connector/internal/config"
	"github.com/siridb/go-siridb-connector/internal/metrics"
)

func main() {
	configPath := flag.String("config", "configs/siridb-gateway.yaml", "path to configuration file")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("siridb-gateway starting...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	log.Printf("configuration loaded from %s (%d endpoints)", *configPath, len(cfg.Endpoints))

	m := metrics.New()
	cluster := buildCluster(cfg, m)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Tuning.ConnectTimeout)
	if err := cluster.Connect(ctx); err != nil {
		log.Printf("warning: initial connect failed, will keep retrying in background: %v", err)
	}
	cancel()

	apiServer := api.NewServer(cluster, m, cfg.DBName)
	if err := apiServer.Start(cfg.API.Bind, cfg.API.Port); err != nil {
		log.Fatalf("failed to start API server: %v", err)
	}

	var activeCluster = cluster
	configWatcher, err := config.NewWatcher(*configPath, func(newCfg *config.Config) {
		log.Printf("reloading configuration...")
		newCluster := buildCluster(newCfg, m)
		rctx, rcancel := context.WithTimeout(context.Background(), newCfg.Tuning.ConnectTimeout)
		if err := newCluster.Connect(rctx); err != nil {
			log.Printf("warning: reloaded cluster connect failed: %v", err)
		}
		rcancel()
		old := activeCluster
		activeCluster = newCluster
		old.Close()
	})
	if err != nil {
		log.Printf("warning: config hot-reload not available: %v", err)
	}

	log.Printf("siridb-gateway ready - db:%s api:%s:%d", cfg.DBName, cfg.API.Bind, cfg.API.Port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %s, shutting down...", sig)

	if configWatcher != nil {
		configWatcher.Stop()
	}
	apiServer.Stop()
	activeCluster.Close()

	log.Printf("siridb-gateway stopped")
}

func buildCluster(cfg *config.Config, m *metrics.Collector) *siridb.Cluster {
	hostlist := make([]siridb.EndpointSpec, 0, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		hostlist = append(hostlist, siridb.EndpointSpec{
			Host:     ep.Host,
			Port:     ep.Port,
			Weight:   ep.Weight,
			IsBackup: ep.IsBackup,
		})
	}

	cluster, err := siridb.NewCluster(siridb.ClusterConfig{
		Username:          cfg.Username,
		Password:          cfg.Password,
		DBName:            cfg.DBName,
		Hostlist:          hostlist,
		KeepAlive:         cfg.Tuning.KeepAlive,
		ConnectTimeout:    cfg.Tuning.ConnectTimeout,
		InactiveTime:      cfg.Tuning.InactiveTime,
		MaxWaitRetry:      cfg.Tuning.MaxWaitRetry,
		KeepAliveInterval: cfg.Tuning.KeepAliveInterval,
		PingTimeout:       cfg.Tuning.PingTimeout,
		Metrics:           m,
	})
	if err != nil {
		log.Fatalf("failed to build cluster: %v", err)
	}
	return cluster
}
