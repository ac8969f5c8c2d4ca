package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dental/clinic/internal/config"
	"github.com/dental/clinic/internal/domain/scheduling"
	"github.com/dental/clinic/internal/platform/auth"
	"github.com/dental/clinic/internal/platform/cache"
	"github.com/dental/clinic/internal/platform/db"
	"github.com/dental/clinic/internal/platform/metrics"
	"github.com/dental/clinic/internal/platform/middleware"
	"github.com/dental/clinic/internal/platform/websocket"
	"github.com/dental/clinic/migrations"
)

const version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "clinic-server",
		Short: "Dental clinic doctor schedule API",
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(availabilityCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the schedule API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printMigrationStatus(cmd.OutOrStdout(), statuses)
				return nil
			})
		},
	})

	return cmd
}

func withMigrator(ctx context.Context, fn func(context.Context, *db.Migrator) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, db.NewMigrator(pool, migrations.FS))
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func availabilityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "availability",
		Short: "Build the availability index from exported schedule records",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			date, _ := cmd.Flags().GetString("date")
			doctor, _ := cmd.Flags().GetString("doctor")
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			return writeAvailability(cmd.OutOrStdout(), data, date, doctor)
		},
	}
	cmd.Flags().String("file", "", "JSON array of schedule records")
	cmd.Flags().String("date", "", "Only report this date (YYYY-MM-DD)")
	cmd.Flags().String("doctor", "", "Restrict the date report to one doctor id")
	return cmd
}

type availabilityReport struct {
	Calendar []scheduling.DayCount       `json:"calendar,omitempty"`
	Date     string                      `json:"date,omitempty"`
	Doctors  []scheduling.DoctorRef      `json:"doctors,omitempty"`
	Slots    []string                    `json:"timeSlots,omitempty"`
	Records  []*scheduling.DoctorSchedule `json:"records,omitempty"`
	Rejected []*scheduling.RecordError   `json:"rejected,omitempty"`
}

// writeAvailability decodes raw records and prints either the calendar
// summary or, with date set, the doctors, slot labels and matching records
// for that date.
func writeAvailability(w io.Writer, data []byte, date, doctor string) error {
	records, rejected, err := scheduling.DecodeRecords(data)
	if err != nil {
		return err
	}
	ix := scheduling.BuildIndex(records)
	report := availabilityReport{Rejected: rejected}

	if date == "" {
		report.Calendar = ix.Calendar()
	} else {
		if report.Date, err = scheduling.NormalizeDate(date); err != nil {
			return fmt.Errorf("--date: %w", err)
		}
		doctorID, err := scheduling.ExternalID(scheduling.FlexString(doctor))
		if err != nil {
			return fmt.Errorf("--doctor: %w", err)
		}
		report.Doctors = ix.CandidateDoctors(report.Date)
		report.Slots = ix.SlotLabels(report.Date, doctorID)
		report.Records = ix.Search(report.Date, doctorID)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// serverDeps are the pieces newServer wires into the router.
type serverDeps struct {
	cfg      *config.Config
	logger   zerolog.Logger
	handler  *scheduling.Handler
	hub      *websocket.Hub
	gatherer prometheus.Gatherer
	dbHealth echo.HandlerFunc
	rdHealth echo.HandlerFunc
}

func newServer(d serverDeps) *echo.Echo {
	cfg := d.cfg

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(d.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(d.logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RequestTimeout(30 * time.Second))

	// Health and metrics stay outside auth
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if d.dbHealth != nil {
		e.GET("/health/db", d.dbHealth)
	}
	if d.rdHealth != nil {
		e.GET("/health/redis", d.rdHealth)
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(d.gatherer, promhttp.HandlerOpts{})))

	// Auth middleware
	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: []byte(cfg.AuthSigningKey),
	}
	authMW := auth.JWTMiddleware(jwtCfg)
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware(jwtCfg)
	}

	// Rate limiting middleware
	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}

	apiV1 := e.Group("/api/v1", authMW, middleware.RateLimit(rateLimitCfg))
	d.handler.RegisterRoutes(apiV1)

	if d.hub != nil {
		wsGroup := e.Group("", authMW)
		websocket.NewHandler(d.hub, cfg.CORSOrigins).RegisterRoutes(wsGroup)
	}
	return e
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		bootLogger := newLogger(os.Getenv("ENV"))
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg.Env)
	log.Logger = logger
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid clinic timezone")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Draft sessions live in redis when configured
	deps := serverDeps{
		cfg:      cfg,
		logger:   logger,
		gatherer: prometheus.DefaultGatherer,
		dbHealth: db.HealthHandler(pool),
	}
	var sessionStore scheduling.SessionStore
	if cfg.RedisURL != "" {
		client, err := cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer client.Close()
		sessionStore = scheduling.NewRedisSessionStore(client, cfg.DraftTTL)
		deps.rdHealth = cache.HealthHandler(client)
		logger.Info().Msg("connected to redis")
	} else {
		sessionStore = scheduling.NewMemorySessionStore(cfg.DraftTTL)
		logger.Warn().Msg("REDIS_URL not set, draft sessions are kept in memory")
	}

	scheduleMetrics := metrics.NewScheduleMetrics(prometheus.DefaultRegisterer)
	deps.hub = websocket.NewHub(logger)

	svc := scheduling.NewService(scheduling.NewRepoPG(pool), deps.hub, scheduleMetrics, logger).
		WithTransactions(func(ctx context.Context, fn func(ctx context.Context) error) error {
			return db.WithTx(ctx, pool, fn)
		})
	sessions := scheduling.NewSessionManager(sessionStore, svc, scheduleMetrics, logger)
	deps.handler = scheduling.NewHandler(svc, sessions, loc)

	e := newServer(deps)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("timezone", loc.String()).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
