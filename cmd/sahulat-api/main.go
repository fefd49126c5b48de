// Command sahulat-api serves the marketplace HTTP API: accounts, jobs, bids,
// completion, job chat, reviews and the live event stream.
//
// Configuration is read from the environment (and a .env file when present);
// see internal/config for the variables.
//
//	@title						Sahulat Hub API
//	@version					1.0
//	@description				Local services marketplace: customers post jobs, providers bid.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package main

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
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/sahulathub/sahulat-hub/docs"
	"github.com/sahulathub/sahulat-hub/internal/catalog"
	"github.com/sahulathub/sahulat-hub/internal/config"
	"github.com/sahulathub/sahulat-hub/internal/events"
	httpapi "github.com/sahulathub/sahulat-hub/internal/http"
	"github.com/sahulathub/sahulat-hub/internal/observability"
	"github.com/sahulathub/sahulat-hub/internal/repo"
	"github.com/sahulathub/sahulat-hub/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const purgeInterval = 10 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("sahulat-api", pflag.ContinueOnError)
	envFile := flagSet.String("env-file", ".env", "dotenv file to load before reading the environment")
	migrateOnly := flagSet.Bool("migrate-only", false, "apply schema migrations and exit")
	showVersion := flagSet.Bool("version", false, "print version and exit")
	flagSet.BoolP("help", "h", false, "show help")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Printf("sahulat-api %s\n", version)
		return nil
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", *envFile, err)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	sysutil.InitLogging(cfg.LogLevel, cfg.LogPretty, observability.ServiceName(cfg.OTEL))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	db, err := repo.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("opening %s database: %w", cfg.DB.Driver, err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrating: %w", err)
	}
	if *migrateOnly {
		log.Info().Str("driver", cfg.DB.Driver).Msg("migrations applied")
		return nil
	}

	cat := catalog.Default()
	if cfg.Market.CatalogPath != "" {
		if cat, err = catalog.Load(cfg.Market.CatalogPath); err != nil {
			return fmt.Errorf("catalog: %w", err)
		}
	}

	broker := events.NewBroker(cfg.StreamBuffer)
	defer broker.Close()

	docs.SwaggerInfo.BasePath = cfg.APIBasePath
	docs.SwaggerInfo.Version = version

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, broker, cat, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().
			Str("addr", srv.Addr).
			Str("db", cfg.DB.Driver).
			Int("categories", len(cat.Categories())).
			Str("version", version).
			Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		purgeIdempotency(gctx, db)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		// Close streams first so the long-lived websocket handlers return.
		broker.Close()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// purgeIdempotency drops expired Idempotency-Key records until ctx ends.
func purgeIdempotency(ctx context.Context, db *gorm.DB) {
	t := time.NewTicker(purgeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("idempotency purge failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("purged", n).Msg("idempotency keys expired")
			}
		}
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Serve the Sahulat Hub marketplace API.

Usage: sahulat-api [flags]

Settings come from the environment (JWT_SECRET is required); a .env file
is loaded first when present.

Flags:
`)
	flagSet.PrintDefaults()
}
