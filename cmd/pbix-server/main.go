// Command pbix-server loads one .pbix file's DataModel and serves its
// semantic model and decoded table data over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pbixdm/pbixdm/cli"
	"github.com/pbixdm/pbixdm/cli/logflags"
	"github.com/pbixdm/pbixdm/pbix"
	"github.com/pbixdm/pbixdm/pkg/codecplugin"
	"github.com/pbixdm/pbixdm/pkg/pbixmetrics"
	"github.com/pbixdm/pbixdm/pkg/pbixsource"
	"github.com/pbixdm/pbixdm/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pbix-server: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		cliFlags      cli.Flags
		logFlags      logflags.Flags
		modelPath     string
		codecPath     string
		addr          string
		metricsAddr   string
		jwtSecret     string
		corsOrigins   string
		redisAddr     string
		redisPassword string
		cacheTTL      time.Duration
	)
	fs := flag.NewFlagSet("pbix-server", flag.ExitOnError)
	cliFlags.SetFlags(fs)
	logFlags.SetFlags(fs)
	fs.StringVar(&modelPath, "model", "", "path to the .pbix file (local path or s3://bucket/key)")
	fs.StringVar(&codecPath, "codec", "", "path to the XPress9 codec plugin (.so)")
	fs.StringVar(&addr, "l", ":8080", "[addr]:port to listen on")
	fs.StringVar(&metricsAddr, "metrics.l", "", "[addr]:port to serve /metrics on (disabled if empty)")
	fs.StringVar(&jwtSecret, "jwt.secret", "", "HMAC secret required on bearer tokens (auth disabled if empty)")
	fs.StringVar(&corsOrigins, "cors.origins", "*", "comma-separated list of allowed CORS origins")
	fs.StringVar(&redisAddr, "redis.addr", "", "redis address for the table response cache (disabled if empty)")
	fs.StringVar(&redisPassword, "redis.password", "", "redis password")
	fs.DurationVar(&cacheTTL, "redis.ttl", 10*time.Minute, "table response cache TTL")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	ctx, cancel, err := cliFlags.Init()
	if err != nil {
		return err
	}
	defer cancel()

	if modelPath == "" {
		return fmt.Errorf("pbix-server: -model is required")
	}

	logger, err := logFlags.Open()
	if err != nil {
		return err
	}
	defer logger.Sync()

	reg := prometheus.NewRegistry()
	metrics := pbixmetrics.New(reg)

	result, err := loadModel(ctx, modelPath, codecPath, logger, metrics)
	if err != nil {
		return err
	}
	logger.Info("pbix-server: model loaded",
		zap.String("path", modelPath),
		zap.Int("tables", len(result.Extractor.TableNames())))

	var redisClient *redis.Client
	if redisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: redisAddr, Password: redisPassword})
		defer redisClient.Close()
	}

	conf := server.Config{
		Addr:           addr,
		JWTSecret:      jwtSecret,
		AllowedOrigins: splitCSV(corsOrigins),
		CacheTTL:       cacheTTL,
	}
	srv := server.New(result, logger, redisClient, conf)

	if metricsAddr != "" {
		go serveMetrics(metricsAddr, reg, logger)
	}

	logger.Info("pbix-server: listening", zap.String("addr", addr))
	return srv.ListenAndServe()
}

func loadModel(ctx context.Context, path, codecPath string, log *zap.Logger, metrics *pbixmetrics.Metrics) (*pbix.Result, error) {
	raw, err := pbixsource.Load(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	dataModel, err := pbixsource.ExtractDataModel(raw)
	if err != nil {
		return nil, err
	}
	codec, err := codecplugin.Load(codecPath)
	if err != nil {
		return nil, err
	}
	return pbix.ParsePbixDataModel(dataModel, codec, log, metrics)
}

func serveMetrics(addr string, reg *prometheus.Registry, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("pbix-server: metrics listener stopped", zap.Error(err))
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
