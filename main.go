package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pthm-cable/hive/cluster"
	"github.com/pthm-cable/hive/config"
	"github.com/pthm-cable/hive/sim"
	"github.com/pthm-cable/hive/store"
	"github.com/pthm-cable/hive/telemetry"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hive",
		Short: "Honeybee foraging simulation",
		Long: `hive simulates a bee colony foraging for nectar. Scouts find flowers,
return to the hive and dance; idle bees pick dances by attractiveness and
forage the advertised flowers. Steps run sequentially, on a shared-memory
worker pool, or partitioned across ranks that exchange state each step.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			verbose, _ := cmd.Flags().GetBool("verbose")
			setupLogging(verbose)
		},
	}

	rootCmd.PersistentFlags().String("config", "", "Path to config.yaml (empty = use defaults)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")

	rootCmd.AddCommand(
		newRunCmd(),
		newCoordinatorCmd(),
		newWorkerCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// setupLogging installs a JSON slog handler on stdout.
func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hive version %s (wire protocol %d)\n", version, cluster.ProtocolVersion)
		},
	}
}

// outputFlags are shared by run and worker.
type outputFlags struct {
	dir       string
	positions string
	results   string
	db        string
}

func addOutputFlags(cmd *cobra.Command, o *outputFlags) {
	cmd.Flags().StringVar(&o.dir, "output-dir", "", "Directory for stats.csv, perf.csv, bookmarks and config (empty = disabled)")
	cmd.Flags().StringVar(&o.positions, "positions", "", "Position export file, .zst to compress (empty = disabled)")
	cmd.Flags().StringVar(&o.results, "results", "", "Results text file (empty = results_<mode>.txt)")
	cmd.Flags().StringVar(&o.db, "db", "", "SQLite database recording the run (empty = disabled)")
}

// loadConfig loads --config and applies command-line overrides.
func loadConfig(cmd *cobra.Command, override func(*config.Config)) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if override != nil {
		override(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func newRunCmd() *cobra.Command {
	var (
		out     outputFlags
		mode    string
		workers int
		steps   int
		seed    int64
		merge   string
		check   bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation in this process",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, func(c *config.Config) {
				if cmd.Flags().Changed("mode") {
					c.Execution.Mode = mode
				}
				if cmd.Flags().Changed("workers") {
					c.Execution.Workers = workers
				}
				if cmd.Flags().Changed("steps") {
					c.Run.MaxTimesteps = steps
				}
				if cmd.Flags().Changed("seed") {
					c.Run.Seed = seed
				}
				if cmd.Flags().Changed("site-merge") {
					c.Execution.SiteMerge = merge
				}
				if cmd.Flags().Changed("check-invariants") {
					c.Execution.CheckInvariants = check
				}
			})
			if err != nil {
				return err
			}

			s, err := sim.New(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return drive(ctx, s, cfg, out, true)
		},
	}
	addOutputFlags(cmd, &out)
	cmd.Flags().StringVar(&mode, "mode", config.ModeSequential, "Execution mode: sequential, shared or distributed")
	cmd.Flags().IntVar(&workers, "workers", 0, "Worker goroutines or ranks (0 = GOMAXPROCS)")
	cmd.Flags().IntVar(&steps, "steps", 0, "Timesteps to run (default from config)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Behavior seed (default from config)")
	cmd.Flags().StringVar(&merge, "site-merge", config.MergeMin, "Distributed flower merge: min or delta")
	cmd.Flags().BoolVar(&check, "check-invariants", true, "Validate the world after every step (false to skip)")
	return cmd
}

func newCoordinatorCmd() *cobra.Command {
	var (
		listen string
		ranks  int
	)
	cmd := &cobra.Command{
		Use:   "coordinator",
		Short: "Relay collectives for distributed workers over websocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			if ranks <= 0 {
				return fmt.Errorf("--ranks must be positive, got %d", ranks)
			}
			hub := cluster.NewHub(ranks)
			mux := http.NewServeMux()
			mux.Handle("/hive", hub)

			ln, err := net.Listen("tcp", listen)
			if err != nil {
				return fmt.Errorf("listening on %s: %w", listen, err)
			}
			srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
			go srv.Serve(ln)
			slog.Info("coordinator listening", "addr", ln.Addr().String(), "path", "/hive", "ranks", ranks)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			select {
			case <-hub.Done():
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Warn("shutdown", "error", err)
			}
			if err := hub.Err(); err != nil {
				return fmt.Errorf("distributed run failed: %w", err)
			}
			slog.Info("all ranks finished")
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":7946", "Address to listen on")
	cmd.Flags().IntVar(&ranks, "ranks", 2, "Number of worker ranks")
	return cmd
}

func newWorkerCmd() *cobra.Command {
	var (
		out     outputFlags
		connect string
		rank    int
		ranks   int
		steps   int
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run one distributed rank against a coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, func(c *config.Config) {
				c.Execution.Mode = config.ModeDistributed
				c.Execution.Workers = ranks
				if cmd.Flags().Changed("steps") {
					c.Run.MaxTimesteps = steps
				}
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			comm, err := cluster.Dial(dialCtx, connect, rank, ranks)
			cancel()
			if err != nil {
				return err
			}

			s, err := sim.NewRank(cfg, comm)
			if err != nil {
				comm.Close()
				return err
			}
			defer s.Close()

			slog.Info("worker joined", "rank", rank, "ranks", ranks, "coordinator", connect)
			return drive(ctx, s, cfg, out, rank == 0)
		},
	}
	addOutputFlags(cmd, &out)
	cmd.Flags().StringVar(&connect, "connect", "ws://localhost:7946/hive", "Coordinator websocket URL")
	cmd.Flags().IntVar(&rank, "rank", 0, "This worker's rank")
	cmd.Flags().IntVar(&ranks, "ranks", 2, "Total number of ranks")
	cmd.Flags().IntVar(&steps, "steps", 0, "Timesteps to run (default from config)")
	return cmd
}

// drive runs s for cfg.Run.MaxTimesteps steps. Only the writer produces
// output files; other ranks still step in lockstep.
func drive(ctx context.Context, s *sim.Simulation, cfg *config.Config, o outputFlags, writer bool) error {
	slog.Info("starting simulation",
		"mode", cfg.Execution.Mode,
		"workers", cfg.Execution.Workers,
		"bees", cfg.Colony.Bees,
		"flowers", cfg.Flowers.Count,
		"steps", cfg.Run.MaxTimesteps,
		"seed", cfg.Run.Seed,
	)

	var hook func(st *store.Store) error
	var (
		om        *telemetry.OutputManager
		positions *telemetry.PositionExporter
		err       error
	)
	if writer {
		if om, err = telemetry.NewOutputManager(o.dir); err != nil {
			return err
		}
		defer om.Close()
		if err := om.WriteConfig(cfg); err != nil {
			return err
		}
		if o.positions != "" {
			positions, err = telemetry.NewPositionExporter(om.Path(o.positions), cfg.Telemetry.ExportEvery, cfg.Telemetry.ExportUntil)
			if err != nil {
				return err
			}
			defer positions.Close()
		}
		hook = telemetry.NewCollector(cfg, om, positions, s.Perf()).Observe
	}

	start := time.Now()
	runErr := s.Run(ctx, cfg.Run.MaxTimesteps, hook)
	elapsed := time.Since(start)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if runErr != nil {
		slog.Warn("interrupted", "timestep", s.Timestep())
	}

	slog.Info("final results",
		"total_nectar", s.TotalNectar(),
		"timesteps", s.Timestep(),
		"elapsed_sec", elapsed.Seconds(),
		"steps_per_sec", float64(s.Timestep())/max(elapsed.Seconds(), 1e-9),
	)
	if !writer {
		return nil
	}
	return writeResults(s, cfg, o, om, elapsed)
}

func writeResults(s *sim.Simulation, cfg *config.Config, o outputFlags, om *telemetry.OutputManager, elapsed time.Duration) error {
	st := s.Store()
	results := o.results
	if results == "" {
		results = fmt.Sprintf("results_%s.txt", cfg.Execution.Mode)
	}
	results = om.Path(results)
	title := fmt.Sprintf("Bee Foraging Simulation Results (%s)", cfg.Execution.Mode)
	if err := telemetry.WriteResults(results, title, st); err != nil {
		return err
	}
	slog.Info("results saved", "path", results)

	if o.db == "" {
		return nil
	}
	if dir := filepath.Dir(o.db); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := telemetry.OpenResultsDB(o.db)
	if err != nil {
		return err
	}
	defer db.Close()
	id, err := db.SaveRun(telemetry.NewRunSummary(cfg, st, elapsed), st)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	slog.Info("run recorded", "db", o.db, "run_id", id)
	return nil
}
