package cmd

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wethinkt/thinkt-live/internal/applog"
	"github.com/wethinkt/thinkt-live/internal/broadcast"
	"github.com/wethinkt/thinkt-live/internal/config"
	"github.com/wethinkt/thinkt-live/internal/eventbuf"
	"github.com/wethinkt/thinkt-live/internal/pipeline"
	"github.com/wethinkt/thinkt-live/internal/processor"
	"github.com/wethinkt/thinkt-live/internal/server"
	"github.com/wethinkt/thinkt-live/internal/state"
	"github.com/wethinkt/thinkt-live/internal/watch"
)

// Serve command flags
var (
	servePort     int
	serveHost     string
	serveWatch    []string
	serveStateDir string
	serveBlockIDs string
	serveToken    string
	serveQuiet    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Watch transcripts and serve live session streams",
	Long: `Watch transcript directories and stream every session over HTTP.

Endpoints:
  GET /v1/sessions                       List known sessions
  GET /v1/sessions/{id}/events           Server-Sent Events stream
  GET /v1/sessions/{id}/ws               WebSocket stream
  GET /v1/health                         Health check
  GET /metrics                           Prometheus metrics

Streams accept a resume cursor in the Last-Event-ID header or the
last_event_id query parameter.

Flags override ~/.thinkt-live/config.toml and THINKT_LIVE_* environment
variables.

Examples:
  thinkt-live serve                          # Serve on localhost:7434
  thinkt-live serve -p 8080                  # Custom port
  thinkt-live serve --watch ~/transcripts    # Custom watch directory
  thinkt-live serve --token $(thinkt-live serve token)`,
	RunE: runServe,
}

var serveTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate a secure authentication token",
	Long: `Generate a random token for API authentication.

Use it with 'thinkt-live serve --token <token>' or THINKT_LIVE_TOKEN. Clients
send it as "Authorization: Bearer <token>" or the token query parameter.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := server.GenerateToken()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", server.DefaultPort, "server port")
	serveCmd.Flags().StringVar(&serveHost, "host", server.DefaultHost, "server host")
	serveCmd.Flags().StringArrayVar(&serveWatch, "watch", nil, "directory to watch (can be specified multiple times)")
	serveCmd.Flags().StringVar(&serveStateDir, "state-dir", "", "directory for saved processing state")
	serveCmd.Flags().StringVar(&serveBlockIDs, "block-ids", "", "block id strategy (random|positional)")
	serveCmd.Flags().StringVar(&serveToken, "token", "", "bearer token for API authentication (default: THINKT_LIVE_TOKEN)")
	serveCmd.Flags().BoolVarP(&serveQuiet, "quiet", "q", false, "suppress startup output and HTTP request logging")

	serveCmd.AddCommand(serveTokenCmd)
}

// applyServeFlags lets explicitly set flags override the configuration.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = servePort
	}
	if flags.Changed("host") {
		cfg.Host = serveHost
	}
	if flags.Changed("watch") {
		cfg.WatchDirs = serveWatch
	}
	if flags.Changed("state-dir") {
		cfg.StateDir = serveStateDir
	}
	if flags.Changed("block-ids") {
		cfg.BlockIDs = serveBlockIDs
	}
	if flags.Changed("token") {
		cfg.Token = serveToken
	}
	if flags.Changed("quiet") {
		cfg.Quiet = serveQuiet
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	defer applog.Log.Close()

	applyServeFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ids, err := processor.NewIDGenerator(cfg.BlockIDs)
	if err != nil {
		return err
	}
	store, err := state.NewStore(cfg.StateDir)
	if err != nil {
		return err
	}
	buffers := eventbuf.NewManager(cfg.BufferCapacity)
	bc := broadcast.New(buffers, broadcast.Options{Keepalive: cfg.Keepalive.Duration})
	defer bc.Close()

	pipe := pipeline.New(pipeline.Config{
		Store:       store,
		Buffers:     buffers,
		Broadcaster: bc,
		IDs:         ids,
		IdleTimeout: cfg.IdleTimeout.Duration,
	})

	watcher, err := watch.NewWatcher(cfg.WatchDirs, cfg.Debounce.Duration)
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	srv := server.New(server.Config{
		Host:  cfg.Host,
		Port:  cfg.Port,
		Token: cfg.Token,
		Quiet: cfg.Quiet,
	}, bc, pipe)
	out := cmd.OutOrStdout()
	srv.OnReady(func(addr string) {
		registerInstance(addr, cfg.StateDir)
		if cfg.Quiet {
			return
		}
		fmt.Fprintf(out, "thinkt-live streaming at http://%s\n", addr)
		for _, dir := range cfg.WatchDirs {
			fmt.Fprintf(out, "Watching %s\n", dir)
		}
	})
	defer config.UnregisterInstance(os.Getpid())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	applog.Log.Info("Starting live server", "host", cfg.Host, "port", cfg.Port,
		"watch_dirs", cfg.WatchDirs, "state_dir", cfg.StateDir, "block_ids", cfg.BlockIDs)

	events, err := watcher.Start(ctx)
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pipe.Run(gctx, events)
	})
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return watcher.Stop()
	})

	err = g.Wait()
	applog.Log.Info("Live server stopped", "error", err)
	return err
}

// registerInstance records the listening address so clients on this machine
// can find the server.
func registerInstance(addr, stateDir string) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return
	}
	port, _ := strconv.Atoi(portStr)
	err = config.RegisterInstance(config.Instance{
		PID:       os.Getpid(),
		Host:      host,
		Port:      port,
		StateDir:  stateDir,
		StartedAt: time.Now(),
	})
	if err != nil {
		applog.Log.Warn("Failed to register instance", "error", err)
	}
}
