// Command sahulat-relay runs the realtime messaging relay: a websocket
// endpoint where clients join their user ID and pairwise rooms and push
// direct messages that are fanned out to the room. Nothing is persisted.
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

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/sahulathub/sahulat-hub/internal/http/middleware"
	"github.com/sahulathub/sahulat-hub/internal/relay"
	"github.com/sahulathub/sahulat-hub/internal/sysutil"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	flagSet := pflag.NewFlagSet("sahulat-relay", pflag.ContinueOnError)
	port := flagSet.String("port", sysutil.EnvOr("RELAY_PORT", "3001"), "listen port")
	logLevel := flagSet.String("log-level", sysutil.EnvOr("LOG_LEVEL", "info"), "log level (trace|debug|info|warn|error)")
	pretty := flagSet.Bool("log-pretty", sysutil.IsTruthy(os.Getenv("LOG_PRETTY")), "human-readable console logs")
	maxMessage := flagSet.Int("max-message", 4000, "maximum message length in characters")
	flagSet.BoolP("help", "h", false, "show help")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if *maxMessage < 1 {
		return fmt.Errorf("--max-message must be positive, got %d", *maxMessage)
	}

	logger := sysutil.InitLogging(*logLevel, *pretty, "sahulat-relay")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := relay.NewHub(
		relay.WithLogger(logger.With().Str("component", "relay").Logger()),
		relay.WithMaxMessage(*maxMessage),
	)

	if *pretty {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logger("relay"), middleware.Recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet},
		AllowHeaders:    []string{"Origin", "Content-Type"},
		MaxAge:          12 * time.Hour,
	}))
	r.GET("/ws", gin.WrapH(hub))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "stats": hub.Stats()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:              ":" + *port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Int("max_message", *maxMessage).Msg("relay listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// Shutdown does not wait for hijacked websocket connections; they close
	// with the process.
	if err := srv.Shutdown(sctx); err != nil {
		logger.Warn().Err(err).Msg("shutdown")
		return err
	}
	return nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Run the Sahulat Hub messaging relay.

Usage: sahulat-relay [flags]

Clients connect to /ws and exchange JSON frames {"event": ..., "data": ...}
with events join, joinRoom, sendMessage and receiveMessage.

Flags:
`)
	flagSet.PrintDefaults()
}
