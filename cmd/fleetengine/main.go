package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nodeforge/fleetengine/pkg/actionengine"
	"github.com/nodeforge/fleetengine/pkg/clusterops"
	"github.com/nodeforge/fleetengine/pkg/config"
	"github.com/nodeforge/fleetengine/pkg/coordinator"
	"github.com/nodeforge/fleetengine/pkg/depgraph"
	"github.com/nodeforge/fleetengine/pkg/dispatcher"
	"github.com/nodeforge/fleetengine/pkg/driver"
	"github.com/nodeforge/fleetengine/pkg/driver/nulldriver"
	"github.com/nodeforge/fleetengine/pkg/events"
	"github.com/nodeforge/fleetengine/pkg/health"
	"github.com/nodeforge/fleetengine/pkg/lock"
	"github.com/nodeforge/fleetengine/pkg/log"
	"github.com/nodeforge/fleetengine/pkg/metrics"
	"github.com/nodeforge/fleetengine/pkg/policy"
	"github.com/nodeforge/fleetengine/pkg/storage"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "fleetengine",
	Short:   "fleetengine - a replicated cluster action-execution engine",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"fleetengine version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(voterCmd)
	rootCmd.AddCommand(statusCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	if nodeID, _ := cmd.Flags().GetString("node-id"); nodeID != "" {
		cfg.NodeID = nodeID
	}
	if bindAddr, _ := cmd.Flags().GetString("bind-addr"); bindAddr != "" {
		cfg.BindAddr = bindAddr
	}
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	return cfg, nil
}

// registerDrivers installs every compiled-in ResourceDriver. Only
// nulldriver ships today, standing in for the real infrastructure backends
// a production profile type would resolve to.
func registerDrivers() {
	driver.Register("os.nova.server", "1.0", nulldriver.New())
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine: claim and execute actions, sweep health checks, expose metrics",
	Long: `serve starts one engine process: it opens the local store, joins or
bootstraps the Raft coordination group, then runs the action dispatcher,
health registry sweep, and metrics collector until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		bootstrap, _ := cmd.Flags().GetBool("bootstrap")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		log.Logger.Info().Str("node_id", cfg.NodeID).Str("bind_addr", cfg.BindAddr).Msg("starting fleetengine")

		registerDrivers()

		store, err := storage.NewBoltStore(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer store.Close()

		coord := coordinator.New(coordinator.Config{
			NodeID:   cfg.NodeID,
			BindAddr: cfg.BindAddr,
			DataDir:  cfg.DataDir,
		}, store)

		if bootstrap {
			if err := coord.Bootstrap(); err != nil {
				return fmt.Errorf("failed to bootstrap raft group: %w", err)
			}
			log.Logger.Info().Msg("bootstrapped new coordination group")
		} else {
			if err := coord.Join(); err != nil {
				return fmt.Errorf("failed to start raft: %w", err)
			}
			log.Logger.Info().Msg("started raft; awaiting AddVoter from the group leader")
		}

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()
		graph := depgraph.New(store, broker)
		checker := policy.NewChecker(store)
		locks := lock.New(coord, cfg.LockRetryTimes, cfg.LockRetryInterval)
		engine := actionengine.New(store, locks, checker, graph, broker, cfg.DefaultActionTimeout)

		disp := dispatcher.New(coord, engine, cfg.NodeID, cfg.WorkerPoolSize, cfg.PeriodicInterval)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := disp.Start(ctx); err != nil {
			return fmt.Errorf("failed to start dispatcher: %w", err)
		}

		ops := clusterops.New(coord)
		registry := health.New(coord, ops, cfg.NodeID, cfg.PeriodicInterval, cfg.PeriodicInterval)
		registry.Start(ctx)

		collector := metrics.NewCollector(coord)
		collector.Start()

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		server := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Logger.Error().Err(err).Msg("metrics server error")
			}
		}()
		log.Logger.Info().Str("addr", metricsAddr).Msg("metrics endpoint listening")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		log.Logger.Info().Msg("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)

		registry.Stop()
		collector.Stop()
		disp.Stop()
		if err := coord.Shutdown(); err != nil {
			return fmt.Errorf("failed to shut down coordinator: %w", err)
		}
		log.Logger.Info().Msg("shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("node-id", "", "Unique engine ID (overrides config)")
	serveCmd.Flags().String("bind-addr", "", "Address for Raft communication (overrides config)")
	serveCmd.Flags().String("data-dir", "", "Data directory for local state (overrides config)")
	serveCmd.Flags().Bool("bootstrap", false, "Bootstrap a new single-node coordination group instead of joining one")
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for the Prometheus /metrics endpoint")
}

// voterCmd is run against an already-running leader process's data
// directory to admit a new voter. There is no wire RPC for cluster
// membership changes in this surface, so this command only works when
// co-located with the leader's store, e.g. an operator shelling into
// the leader host.
var voterCmd = &cobra.Command{
	Use:   "voter",
	Short: "Manage Raft group membership from the leader's host",
}

var voterAddCmd = &cobra.Command{
	Use:   "add NODE_ID ADDRESS",
	Short: "Add a voting peer to the coordination group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := storage.NewBoltStore(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer store.Close()

		coord := coordinator.New(coordinator.Config{NodeID: cfg.NodeID, BindAddr: cfg.BindAddr, DataDir: cfg.DataDir}, store)
		if err := coord.Join(); err != nil {
			return fmt.Errorf("failed to attach to local raft: %w", err)
		}
		defer coord.Shutdown()

		if err := coord.AddVoter(args[0], args[1]); err != nil {
			return fmt.Errorf("failed to add voter: %w", err)
		}
		fmt.Printf("added voter %s (%s)\n", args[0], args[1])
		return nil
	},
}

func init() {
	voterCmd.AddCommand(voterAddCmd)
	voterAddCmd.Flags().String("node-id", "", "This process's engine ID (overrides config)")
	voterAddCmd.Flags().String("bind-addr", "", "This process's raft address (overrides config)")
	voterAddCmd.Flags().String("data-dir", "", "Data directory holding the leader's local state (overrides config)")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report cluster count and READY queue depth from the local data directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := storage.NewBoltStore(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer store.Close()

		actions, err := store.ListActions(storage.ListOptions{IsAdmin: true, Filters: map[string]string{"status": "READY"}})
		if err != nil {
			return fmt.Errorf("failed to list actions: %w", err)
		}
		clusters, err := store.ListClusters(storage.ListOptions{IsAdmin: true})
		if err != nil {
			return fmt.Errorf("failed to list clusters: %w", err)
		}

		fmt.Printf("node_id:       %s\n", cfg.NodeID)
		fmt.Printf("data_dir:      %s\n", cfg.DataDir)
		fmt.Printf("clusters:      %d\n", len(clusters))
		fmt.Printf("ready_actions: %d\n", len(actions))
		return nil
	},
}

func init() {
	statusCmd.Flags().String("node-id", "", "Engine ID (overrides config)")
	statusCmd.Flags().String("data-dir", "", "Data directory to inspect (overrides config)")
}
