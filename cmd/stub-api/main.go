package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/digital-land/submit/internal/pkg/httputil"
	"github.com/digital-land/submit/internal/pkg/logger"
	"github.com/digital-land/submit/internal/requestapi"
)

// Local stand-in for the async request API. Responses are generated, not
// checked: point REQUEST_API_BASE_URL at it for front-end development.
func main() {
	port := flag.Int("port", 8000, "port to listen on")
	delay := flag.Duration("delay", 5*time.Second, "how long requests stay pending")
	rows := flag.Int("rows", 120, "rows generated per completed request")
	level := flag.String("log-level", "debug", "log level")
	flag.Parse()

	logger.Init(*level, nil)
	logger.Warn("stub request API: responses are generated, nothing is checked")

	stub := requestapi.NewStub(*delay, *rows)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "request-api-stub"})
	})
	r.Mount("/", stub.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("stub request API listening", "addr", server.Addr, "delay", delay.String(), "rows", *rows)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("stub request API stopped")
}
