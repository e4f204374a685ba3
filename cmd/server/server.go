package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/RogWilco/jacob/pkg/app"
	"github.com/RogWilco/jacob/pkg/config"
)

// stuckJobTimeout is how long a job may stay processing before it is
// handed back to the queue on startup.
const stuckJobTimeout = 10 * time.Minute

// ServerCmd represents the server command
var ServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the todo REST API server",
	Long: `Start the HTTP server for the todo API.

The server provides endpoints for:
- Creating todos from tracked issues
- Listing, updating, ordering and archiving todos
- Research answers, plans and evaluations
- Queued batch imports processed by background workers

Examples:
  jacob server                      # Start on the default port
  jacob server --port 9000          # Start on a custom port
  jacob server --queue-workers 4    # Process imports with four workers`,
	RunE: runServer,
}

func init() {
	ServerCmd.Flags().String(config.KeyPort, "8080", "port to listen on")
	ServerCmd.Flags().Bool(config.KeyAgentEnabled, false, "run research and planning for new todos by default")
	ServerCmd.Flags().Int(config.KeyQueueWorkers, 2, "number of import workers")
	ServerCmd.Flags().Duration(config.KeyQueuePoll, 2*time.Second, "idle poll interval of import workers")

	for _, key := range []string{config.KeyPort, config.KeyAgentEnabled, config.KeyQueueWorkers, config.KeyQueuePoll} {
		_ = viper.BindPFlag(key, ServerCmd.Flags().Lookup(key))
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	log, err := app.NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log, app.Overrides{})
	if err != nil {
		log.Errorf("failed to initialise: %v", err)
		return err
	}
	defer a.Close()

	if n, err := a.Queue.ResetStuck(ctx, stuckJobTimeout); err != nil {
		log.Warnf("failed to reset stuck jobs: %v", err)
	} else if n > 0 {
		log.Infof("reset %d stuck jobs", n)
	}

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           NewRouter(a),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Pool(false).Run(gctx)
	})
	g.Go(func() error {
		log.Infof("starting jacob API server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		log.Info("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
