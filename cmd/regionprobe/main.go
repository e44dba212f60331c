// Command regionprobe connects to every region declared in a service document
// and reports which ones answered.
//
//	regionprobe --config services.yaml [--catalog-sqlite catalog.db] [--metrics-addr :9090]
//	regionprobe --config services.yaml --endpoint ec2/us-east-1=10.0.0.1:443 --endpoint ec2/eu-west-1=10.0.1.1:443
//
// Settings such as credentials, etcd endpoints and dial limits come from
// MANGROVE_* environment variables.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"mangrove/catalog"
	"mangrove/config"
	"mangrove/executor"
	"mangrove/middleware"
	"mangrove/pool"
	"mangrove/transport"
)

type flags struct {
	configPath    string
	endpoints     []string
	catalogSQLite string
	metricsAddr   string
	probeTimeout  time.Duration
}

func parseFlags(args []string, stderr io.Writer) (flags, error) {
	var f flags
	fs := pflag.NewFlagSet("regionprobe", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&f.configPath, "config", "c", "", "service declaration document (YAML or JSON)")
	fs.StringArrayVar(&f.endpoints, "endpoint", nil, "static catalog entry service/region=addr; repeatable, replaces etcd")
	fs.StringVar(&f.catalogSQLite, "catalog-sqlite", "", "read the catalog from this SQLite file instead of etcd")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while probing")
	fs.DurationVar(&f.probeTimeout, "probe-timeout", time.Minute, "give up on the whole probe after this long")
	if err := fs.Parse(args); err != nil {
		return flags{}, err
	}
	if f.configPath == "" {
		return flags{}, errors.New("--config is required")
	}
	if len(f.endpoints) > 0 && f.catalogSQLite != "" {
		return flags{}, errors.New("--endpoint and --catalog-sqlite are mutually exclusive")
	}
	return f, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	f, err := parseFlags(args, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	settings, err := config.LoadSettings()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	logger, err := newLogger(settings)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	defer func() { _ = logger.Sync() }()

	if err := probeAll(ctx, f, settings, logger); err != nil {
		logger.Error("probe failed", zap.Error(err))
		return 1
	}
	return 0
}

func newLogger(settings config.Settings) (*zap.Logger, error) {
	level, err := settings.Level()
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

func probeAll(ctx context.Context, f flags, settings config.Settings, logger *zap.Logger) error {
	doc, err := config.LoadDocument(f.configPath)
	if err != nil {
		return err
	}

	shutdownTracing, err := setupTracing(ctx, settings.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("shutdown tracing", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if f.metricsAddr != "" {
		srv := &http.Server{
			Addr:              f.metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", zap.Error(err))
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	dialer := transport.NewGRPCDialer(settings.DialTimeout, logger.Named("transport"))
	cat, closeCatalog, err := openCatalog(ctx, f, settings, dialer, logger)
	if err != nil {
		return err
	}
	defer closeCatalog()

	ctx, cancel := context.WithTimeout(ctx, f.probeTimeout)
	defer cancel()

	group, err := pool.NewGroup(ctx, cat, doc,
		pool.WithCredentials(settings.Credentials()),
		pool.WithExecutor(executor.New(settings.Workers)),
		pool.WithLogger(logger.Named("pool")),
		pool.WithMiddleware(dialMiddleware(settings, logger, reg)...),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := group.Close(); err != nil {
			logger.Warn("close pools", zap.Error(err))
		}
	}()

	if err := group.Connect(ctx); err != nil {
		return err
	}
	return report(probe(group), logger)
}

func openCatalog(ctx context.Context, f flags, settings config.Settings, dialer catalog.Dialer, logger *zap.Logger) (catalog.Catalog, func(), error) {
	if len(f.endpoints) > 0 {
		cat, err := staticCatalog(f.endpoints, dialer)
		if err != nil {
			return nil, nil, err
		}
		return cat, func() {}, nil
	}
	if f.catalogSQLite != "" {
		db, err := sql.Open("sqlite", f.catalogSQLite)
		if err != nil {
			return nil, nil, fmt.Errorf("open catalog database: %w", err)
		}
		cat := catalog.NewSQLCatalog(db, dialer)
		if err := cat.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return cat, func() { _ = db.Close() }, nil
	}

	cat, err := catalog.NewEtcdCatalog(settings.EtcdEndpoints, dialer, logger)
	if err != nil {
		return nil, nil, err
	}
	return cat, func() { _ = cat.Close() }, nil
}

// staticCatalog builds a catalog from service/region=addr entries; regions keep
// the order they were given in.
func staticCatalog(entries []string, dialer catalog.Dialer) (*catalog.Static, error) {
	cat := catalog.NewStatic(dialer)
	for _, entry := range entries {
		key, addr, ok := strings.Cut(entry, "=")
		service, region, ok2 := strings.Cut(key, "/")
		if !ok || !ok2 || service == "" || region == "" || addr == "" {
			return nil, fmt.Errorf("invalid --endpoint %q, want service/region=addr", entry)
		}
		cat.Add(service, catalog.Endpoint{Region: region, Addr: addr})
	}
	return cat, nil
}

func dialMiddleware(settings config.Settings, logger *zap.Logger, reg prometheus.Registerer) []middleware.Middleware {
	mws := []middleware.Middleware{
		middleware.TracingMiddleware(nil),
		middleware.MetricsMiddleware(middleware.NewDialMetrics(reg)),
		middleware.LoggingMiddleware(logger.Named("dial")),
	}
	if settings.DialRate > 0 {
		mws = append(mws, middleware.RateLimitMiddleware(settings.DialRate, settings.DialBurst))
	}
	return append(mws, middleware.TimeOutMiddleware(settings.DialTimeout))
}
