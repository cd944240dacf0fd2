package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrCodeEU/attendface/pkg/attendance"
	"github.com/MrCodeEU/attendface/pkg/auth"
	"github.com/MrCodeEU/attendface/pkg/database"
	"github.com/MrCodeEU/attendface/pkg/logging"
	"github.com/MrCodeEU/attendface/pkg/server"
	"github.com/MrCodeEU/attendface/pkg/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the attendface HTTP API.
Face endpoints are always served. Account and attendance endpoints need a
database (DATABASE_URL) and, for tokens, a JWT secret (JWT_KEY).`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides config)")
	serveCmd.Flags().Bool("auto-migrate", true, "Create or update database tables on start")
}

// healthChecks builds the probes reported by GET /health.
func healthChecks(a *app) []server.HealthCheck {
	checks := []server.HealthCheck{
		{Name: "face_models", Check: func(ctx context.Context) error {
			if !a.recognizer.Ready() {
				return errors.New("face models are not loaded")
			}
			return nil
		}},
		{Name: "data_directory_writable", Check: func(ctx context.Context) error {
			return a.crops.Writable()
		}},
	}

	return append(checks, server.HealthCheck{Name: "embedding_store", Check: storeCheck(a.store)})
}

// faceCounter is implemented by stores that can count rows without loading
// every vector.
type faceCounter interface {
	Count(ctx context.Context) (int64, error)
}

func storeCheck(store storage.EmbeddingStore) func(ctx context.Context) error {
	if c, ok := store.(faceCounter); ok {
		return func(ctx context.Context) error {
			n, err := c.Count(ctx)
			if err != nil {
				return err
			}
			logging.Component("health").Debugf("%d face embedding(s) stored", n)
			return nil
		}
	}
	return func(ctx context.Context) error {
		_, err := store.GetAll(ctx)
		return err
	}
}

// buildServices wires the account and attendance services when a database
// is available.
func buildServices(ctx context.Context, a *app, migrate bool) (server.Services, *attendance.Scheduler, error) {
	services := server.Services{
		Faces:  a.engine,
		Health: healthChecks(a),
	}
	if a.db == nil {
		logging.Warnf("No database configured, account and attendance endpoints are disabled")
		return services, nil, nil
	}

	if migrate {
		if err := a.db.Migrate(ctx); err != nil {
			return services, nil, err
		}
	}

	users := database.NewUserRepository(a.db)
	services.Directory = users

	if a.cfg.Auth.JWTSecret != "" {
		tokens, err := auth.NewTokens(a.cfg.Auth.JWTSecret, time.Duration(a.cfg.Auth.TokenTTLMinutes)*time.Minute)
		if err != nil {
			return services, nil, err
		}
		services.Auth = auth.NewService(users, tokens)
	} else {
		logging.Warnf("JWT_KEY is not set, account endpoints are disabled")
	}

	svc, err := attendance.NewService(database.NewAttendanceRepository(a.db), a.cfg.Attendance.LateAfter)
	if err != nil {
		return services, nil, err
	}
	services.Attendance = svc

	var scheduler *attendance.Scheduler
	if a.cfg.Attendance.AbsentSweepEnabled {
		scheduler, err = attendance.NewScheduler(svc, a.cfg.Attendance.AbsentSweepCron)
		if err != nil {
			return services, nil, err
		}
	}
	return services, scheduler, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	migrate, _ := cmd.Flags().GetBool("auto-migrate")

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, scheduler, err := buildServices(ctx, a, migrate)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg.Server, services)
	if err != nil {
		return err
	}

	if scheduler != nil {
		scheduler.Start()
		defer scheduler.Stop()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.WithError(err).Error("Error during shutdown")
		}
	}()

	fmt.Printf("attendface listening on http://%s (detector: %s)\n", cfg.Addr(), a.recognizer.Backend())
	fmt.Println("Press Ctrl+C to stop")

	return srv.Start()
}
