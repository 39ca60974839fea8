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

	"github.com/gorilla/mux"
	"github.com/iwvelando/tamerun-invest/internal/client"
	"github.com/iwvelando/tamerun-invest/internal/config"
	"github.com/iwvelando/tamerun-invest/internal/forecast"
	"github.com/iwvelando/tamerun-invest/internal/logging"
	"github.com/iwvelando/tamerun-invest/internal/server"
	"github.com/iwvelando/tamerun-invest/internal/session"
	"github.com/iwvelando/tamerun-invest/internal/tracing"
	"github.com/iwvelando/tamerun-invest/internal/web"
	"github.com/iwvelando/tamerun-invest/pkg/constants"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	configLocation := flag.String("config", constants.DefaultConfigFile, "path to application configuration file")
	serverConfigLocation := flag.String("server-config", constants.DefaultServerConfigFile, "path to server configuration file")
	address := flag.String("address", "", "API listen address override")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	flag.Parse()

	conf, err := config.LoadConfiguration(*configLocation)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to load configuration at %s\", \"error\": \"%v\"}\n", *configLocation, err)
		os.Exit(1)
	}
	srvCfg, err := server.LoadConfig(*serverConfigLocation)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to load server configuration at %s\", \"error\": \"%v\"}\n", *serverConfigLocation, err)
		os.Exit(1)
	}
	if *address != "" {
		srvCfg.Address = *address
	}

	// The server file's logging section wins over the application file.
	loggingConfig := conf.Logging
	if srvCfg.Logging != (logging.Config{}) {
		loggingConfig = srvCfg.Logging
	}
	logger, err := logging.New(loggingConfig, *logLevel)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to initialize logger\", \"error\": \"%v\"}\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := conf.Validate(); err != nil {
		logger.Fatal("invalid configuration",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}
	for _, warning := range conf.ValidateConfiguration() {
		logger.Warn("Configuration warning: "+warning,
			zap.String("op", "main"),
		)
	}

	tracing.Version = version
	shutdownTracing, err := tracing.Init(context.Background(), logger, conf.Tracing)
	if err != nil {
		logger.Fatal("failed to initialize tracing",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}

	pages, closeStore, err := newWebHandler(logger, conf, srvCfg)
	if err != nil {
		logger.Fatal("failed to prepare web pages",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}

	api := server.NewHandler(logger, srvCfg, version)
	servers := []*http.Server{newHTTPServer(srvCfg.Address, api)}
	if conf.Web.Address == "" || conf.Web.Address == srvCfg.Address {
		pages.Register(api)
	} else {
		front := mux.NewRouter()
		pages.Register(front)
		servers = append(servers, newHTTPServer(conf.Web.Address, front))
	}

	serverErr := make(chan error, len(servers))
	for _, srv := range servers {
		srv := srv // per-iteration copy; go directive lowered to 1.21 for the local toolchain
		go func() {
			logger.Info("listening",
				zap.String("op", "main"),
				zap.String("address", srv.Addr),
				zap.String("version", version),
			)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case err := <-serverErr:
		logger.Error("server failed",
			zap.String("op", "main"),
			zap.Error(err),
		)
		exitCode = 1
	case sig := <-quit:
		logger.Info("shutting down",
			zap.String("op", "main"),
			zap.String("signal", sig.String()),
		)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("error during server shutdown",
				zap.String("op", "main"),
				zap.String("address", srv.Addr),
				zap.Error(err),
			)
		}
	}
	if err := closeStore(); err != nil {
		logger.Warn("failed to close session store", zap.String("op", "main"), zap.Error(err))
	}
	if err := shutdownTracing(ctx); err != nil {
		logger.Warn("failed to flush traces", zap.String("op", "main"), zap.Error(err))
	}

	if exitCode != 0 {
		_ = logger.Sync()
		os.Exit(exitCode)
	}
}

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// newWebHandler wires the pages to the configured computation modes and
// session store. The returned func releases the store.
func newWebHandler(logger *zap.Logger, conf *config.Configuration, srvCfg *server.Config) (*web.Handler, func() error, error) {
	var backend *client.Client
	if conf.UsesBackend() {
		c, err := client.New(logger, client.Options{
			BaseURL: conf.Backend.BaseURL,
			Timeout: conf.Backend.Timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		backend = c
	}

	forecaster, err := forecast.NewForecaster(logger, conf.Investment.Mode, backend)
	if err != nil {
		return nil, nil, err
	}
	scheduler, err := forecast.NewScheduler(conf.Installment.Mode, backend)
	if err != nil {
		return nil, nil, err
	}
	exporter, err := forecast.NewExporter(conf.Installment.Mode, backend, srvCfg.Document.FontFile)
	if err != nil {
		return nil, nil, err
	}

	store, err := session.NewStore(conf.Session)
	if err != nil {
		return nil, nil, err
	}
	closeStore := func() error { return nil }
	if rs, ok := store.(*session.RedisStore); ok {
		ctx, cancel := context.WithTimeout(context.Background(), conf.Backend.Timeout)
		defer cancel()
		if err := rs.Ping(ctx); err != nil {
			return nil, nil, fmt.Errorf("redis session store unreachable: %w", err)
		}
		closeStore = rs.Close
	}

	pages, err := web.NewHandler(logger, web.Options{
		Forecaster:   forecaster,
		Scheduler:    scheduler,
		Exporter:     exporter,
		Store:        store,
		AnnualRate:   conf.Investment.AnnualRate,
		Timeout:      conf.Backend.Timeout,
		SessionTTL:   conf.Session.TTL,
		SecureCookie: conf.Web.SecureCookie,
	})
	if err != nil {
		return nil, nil, err
	}
	return pages, closeStore, nil
}
