package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/gridflow/internal/api"
	"github.com/wonny/gridflow/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the status API server",
	Long: `Starts the HTTP status API.

Endpoints:
  GET  /health          - Health check
  POST /api/jobs        - Trigger a collection job
  GET  /api/jobs        - Recent job results
  GET  /api/jobs/{id}   - One job's result
  GET  /api/partitions  - Partition listing with versions
  GET  /api/reports     - Archived quality reports
  GET  /api/rules       - Loaded rule set keys
  GET  /ws/progress     - Websocket job progress feed

Example:
  go run ./cmd/gridflow api
  go run ./cmd/gridflow api --port 8080`,
	RunE: runAPIServer,
}

var apiPort string

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (overrides config)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== gridflow API Server ===")

	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	if apiPort != "" {
		app.cfg.Port = apiPort
	}

	progress := api.NewProgressHub(app.log)
	app.orch.WithNotifier(progress)

	jobsHandler := handlers.NewJobsHandler(app.orch, app.log)
	partitionsHandler := handlers.NewPartitionsHandler(app.store, app.log)
	reportsHandler := handlers.NewReportsHandler(app.reports(), app.rules, app.log)

	router := api.NewRouter(jobsHandler, partitionsHandler, reportsHandler, progress, app.log)
	server := api.New(app.cfg, app.log, router)

	go func() {
		if err := server.Start(); err != nil {
			app.log.WithError(err).Fatal("Failed to start server")
		}
	}()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", app.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}
