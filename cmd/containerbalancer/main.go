package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nodefleet/containerbalancer/internal/config"
	"github.com/nodefleet/containerbalancer/pkg/balancer"
	"github.com/nodefleet/containerbalancer/pkg/balancermetrics"
	"github.com/nodefleet/containerbalancer/pkg/consensus"
	"github.com/nodefleet/containerbalancer/pkg/fleet"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "containerbalancer",
		Short: "Runs the container balancer control loop",
		RunE:  run,
	}
	root.Flags().StringVar(&configPath, "config", "config.yaml", "path to configuration file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	log := logrus.NewEntry(logger)

	engine, err := consensus.NewEngine(&cfg.Consensus, cfg.Node.ID)
	if err != nil {
		return fmt.Errorf("starting consensus engine: %w", err)
	}
	if err := engine.Start(); err != nil {
		return fmt.Errorf("starting raft: %w", err)
	}

	watcher := consensus.NewStatusWatcher(engine, cfg.Balancer.NodeReportInterval)
	watcher.Start()
	defer watcher.Stop()

	nodes := fleet.NewNodeManager(cfg.Balancer.NodeReportInterval)
	nodes.Start()
	defer nodes.Stop()

	var metricsServer *balancermetrics.Server
	var metrics *balancermetrics.Metrics
	if cfg.Metrics.Enabled {
		metrics = balancermetrics.New(prometheus.DefaultRegisterer)
		metricsServer = balancermetrics.NewServer(cfg.Metrics.Listen)
		go func() {
			if err := metricsServer.Start(); err != nil {
				log.WithError(err).Error("metrics server stopped")
			}
		}()
	}

	balCfg := balancer.Config{
		Threshold:                              cfg.Balancer.Threshold,
		Iterations:                              cfg.Balancer.Iterations,
		MaxDatanodesRatioToInvolvePerIteration: cfg.Balancer.MaxDatanodesRatioToInvolvePerIteration,
		MaxSizeToMovePerIterationBytes:          cfg.Balancer.MaxSizeToMovePerIterationBytes,
		MaxSizeEnteringTargetBytes:              cfg.Balancer.MaxSizeEnteringTargetBytes,
		MaxSizeLeavingSourceBytes:               cfg.Balancer.MaxSizeLeavingSourceBytes,
		BalancingInterval:                       cfg.Balancer.BalancingInterval,
		MoveTimeout:                             cfg.Balancer.MoveTimeout,
		TriggerDUEnable:                         cfg.Balancer.TriggerDUEnable,
		NetworkTopologyEnable:                   cfg.Balancer.NetworkTopologyEnable,
		NodeReportInterval:                      cfg.Balancer.NodeReportInterval,
		ContainerSizeBytes:                      cfg.Balancer.ContainerSizeBytes,
		IncludeNodes:                            cfg.Balancer.IncludeNodes,
		ExcludeNodes:                            cfg.Balancer.ExcludeNodes,
	}

	containers := fleet.NewContainerCatalogue()
	repl := fleet.NewReplicationManager(containers, log)
	tracker := balancer.NewMoveTracker(repl, log)
	iterEngine := balancer.NewEngine(nodes, containers, tracker, fleet.NewPlacementPolicy(), fleet.NewRackTopology(), balCfg, log)

	onIterationStart := func() {
		if metrics != nil {
			metrics.ResetGauges()
		}
	}

	onIteration := func(stats balancer.IterationStats) {
		log.WithFields(logrus.Fields{
			"result":            stats.Result,
			"sizeMovedBytes":    stats.SizeMovedBytes,
			"datanodesInvolved": stats.DatanodesInvolved,
		}).Info("iteration finished")
		if metrics == nil {
			return
		}
		metrics.RecordIterationTotals(stats.MovesCompleted, stats.MovesTimedOut, float64(stats.SizeMovedBytes)/1e9, stats.DatanodesInvolved)
		metrics.SetUnbalanced(stats.UnbalancedDatanodes, float64(stats.UnbalancedBytes)/1e9)
	}

	svc := balancer.NewService(engine, iterEngine, balCfg, log, onIterationStart, onIteration)
	watcher.Subscribe(svc)

	if err := svc.StartBalancer(); err != nil {
		// Not being leader-ready or in safe mode yet at process startup is
		// an expected precondition failure, not fatal: the process keeps
		// running with the balancer stopped; nothing in it retries the start.
		log.WithError(err).Warn("balancer did not start at launch")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")
	svc.StopBalancer()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if metricsServer != nil {
		_ = metricsServer.Stop(shutdownCtx)
	}
	_ = engine.Shutdown(shutdownCtx)

	return nil
}
