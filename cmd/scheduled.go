package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/louiscrc/trakt-to-letterboxd/api"
	"github.com/louiscrc/trakt-to-letterboxd/handlers"
	"github.com/louiscrc/trakt-to-letterboxd/services/scheduler"
)

var scheduledCmd = &cobra.Command{
	Use:   "scheduled",
	Short: "Run syncs on an interval with a status API",
	Long: `Runs the sync pipeline every configured interval and serves a small
status API (GET /api/status, GET /api/history, POST /api/sync). Runs are
serialized; a trigger while one is active returns 409.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgManager, settings, err := loadSettings()
		if err != nil {
			return err
		}

		pipeline, store, err := buildPipeline(cfgManager, settings)
		if err != nil {
			return err
		}

		schedulerService := scheduler.NewService(pipeline, time.Duration(settings.Sync.IntervalHours)*time.Hour)

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		if err := schedulerService.Start(ctx); err != nil {
			return err
		}

		syncHandler := handlers.NewSyncHandler(schedulerService, store)
		router := api.NewRouter(syncHandler)

		addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
		server := &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		}

		go func() {
			log.Printf("[main] status API listening on %s", addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Server error: %v", err)
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("[main] shutdown signal received, cleaning up...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		if err := schedulerService.Stop(shutdownCtx); err != nil {
			log.Printf("Scheduler shutdown error: %v", err)
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(scheduledCmd)
}
