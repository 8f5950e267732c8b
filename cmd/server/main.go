// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/blanksgame/blanks/internal/deck"
	"github.com/blanksgame/blanks/internal/game"
	"github.com/blanksgame/blanks/internal/handlers"
)

type config struct {
	host     string
	frontend string
	cacheDir string
	certFile string
	keyFile  string
}

func main() {
	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(lvl)
	}

	var cfg config
	flag.StringVar(&cfg.frontend, "f", envOr("FRONTEND_ORIGIN", "*"), "frontend origin allowed to call the API")
	flag.StringVar(&cfg.cacheDir, "cache", envOr("CACHE_DIR", "cache"), "directory for cached decks")
	flag.StringVar(&cfg.certFile, "cert", os.Getenv("TLS_CERT_FILE"), "TLS certificate file; requires -key")
	flag.StringVar(&cfg.keyFile, "key", os.Getenv("TLS_KEY_FILE"), "TLS key file; requires -cert")
	flag.Parse()

	cfg.host = envOr("HOST", "localhost:8090")
	if flag.NArg() > 0 {
		cfg.host = flag.Arg(0)
	}

	if err := run(logger, cfg); err != nil {
		logger.Fatalf("server exited: %v", err)
	}
}

func run(logger *logrus.Logger, cfg config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := deck.NewStore(cfg.cacheDir, logger)
	if err != nil {
		return err
	}
	registry := game.NewRegistry(store, logger)
	srv := handlers.NewServer(registry, cfg.frontend, logger)

	httpServer := &http.Server{
		Addr:    cfg.host,
		Handler: srv.Routes(),
	}

	useTLS := cfg.certFile != "" && cfg.keyFile != ""
	if (cfg.certFile != "") != (cfg.keyFile != "") {
		logger.Warn("TLS needs both -cert and -key; serving plain HTTP")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithFields(logrus.Fields{"host": cfg.host, "tls": useTLS}).Info("listening")
		var err error
		if useTLS {
			err = httpServer.ListenAndServeTLS(cfg.certFile, cfg.keyFile)
		} else {
			err = httpServer.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		registry.RunJanitor(ctx, game.TimeoutInterval, game.TimeoutInterval)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
