package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/digital-land/submit/internal/config"
	"github.com/digital-land/submit/internal/datasets"
	"github.com/digital-land/submit/internal/issuemsg"
	"github.com/digital-land/submit/internal/notify"
	"github.com/digital-land/submit/internal/pkg/logger"
	"github.com/digital-land/submit/internal/pkg/render"
	"github.com/digital-land/submit/internal/requestapi"
	"github.com/digital-land/submit/internal/session"
	"github.com/digital-land/submit/internal/uploads"
	"github.com/digital-land/submit/internal/web"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %w", port, addr, err)
	}
	return ln.Close()
}

func fatal(msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		fatal("failed to load config", err)
	}
	logger.Init(cfg.Logging.Level, nil)
	logger.SetRedactPII(cfg.Logging.RedactPII)

	host := cfg.Server.GetHost()
	if err := checkPortAvailable(host, cfg.Server.Port); err != nil {
		fatal("pre-flight check failed", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := render.New()

	catalog, err := issuemsg.Load(engine, cfg.IssueMessages)
	if err != nil {
		fatal("failed to load issue messages", err)
	}
	logger.Info("issue messages loaded", "count", catalog.Len())

	registry, err := datasets.NewRegistry(cfg.Datasets)
	if err != nil {
		fatal("invalid dataset configuration", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not reachable at startup", "addr", cfg.Redis.Addr, "error", err)
	}
	pingCancel()

	sessions := session.NewStore(rdb, session.Config{
		CookieName: cfg.Session.CookieName,
		TTL:        cfg.Session.TTL(),
		Secure:     cfg.Session.SecureCookies,
	})

	requests := requestapi.NewClient(requestapi.Config{
		BaseURL:    cfg.RequestAPI.BaseURL,
		Timeout:    cfg.RequestAPI.Timeout(),
		MaxRetries: cfg.RequestAPI.MaxRetries,
	})

	// A nil store disables the upload route rather than failing every upload.
	var store uploads.Store
	if cfg.Uploads.S3Bucket != "" {
		s3Store, err := uploads.NewS3Store(ctx, uploads.S3Config{
			Bucket:   cfg.Uploads.S3Bucket,
			Region:   cfg.Uploads.S3Region,
			Prefix:   cfg.Uploads.Prefix,
			Endpoint: cfg.Uploads.Endpoint,
			Profile:  cfg.Uploads.GetAWSProfile(),
		})
		if err != nil {
			fatal("failed to initialise upload storage", err)
		}
		store = s3Store
		logger.Info("upload storage ready", "bucket", cfg.Uploads.S3Bucket)
	} else {
		logger.Warn("no upload bucket configured, file upload disabled")
	}

	var sender notify.Sender = notify.LogSender{}
	if cfg.Email.Enabled {
		sesSender, err := notify.NewSESSender(ctx, notify.SESConfig{
			Region:    cfg.Email.Region,
			AccessKey: cfg.Email.AccessKey,
			SecretKey: cfg.Email.SecretKey,
			From:      cfg.Email.From,
			Timeout:   cfg.Email.Timeout(),
		})
		if err != nil {
			fatal("failed to initialise SES", err)
		}
		sender = sesSender
	} else {
		logger.Warn("email disabled, submissions are only logged")
	}

	srv, err := web.NewServer(web.Deps{
		Requests:       requests,
		Uploads:        store,
		Sessions:       sessions,
		Notifier:       notify.NewNotifier(sender, engine, cfg.Email.TeamAddress),
		Datasets:       registry,
		Messages:       catalog,
		Engine:         engine,
		PageSize:       cfg.Pagination.PageSize,
		MaxUploadSize:  cfg.Uploads.MaxSizeBytes,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})
	if err != nil {
		fatal("failed to build web server", err)
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, cfg.Server.Port),
		Handler:      srv.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("starting server", "addr", httpServer.Addr, "datasets", len(registry.All()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server error", err)
		}
	}()

	<-done
	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("server stopped")
}
