package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	zaplogfmt "github.com/sykesm/zap-logfmt"
	"github.com/thecodeteam/goodbye"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/simplesurance/trymerger/internal/cfg"
	"github.com/simplesurance/trymerger/internal/command"
	"github.com/simplesurance/trymerger/internal/filter"
	"github.com/simplesurance/trymerger/internal/githubclt"
	"github.com/simplesurance/trymerger/internal/logfields"
	"github.com/simplesurance/trymerger/internal/provider/github"
	"github.com/simplesurance/trymerger/internal/store/memstore"
	"github.com/simplesurance/trymerger/internal/store/postgres"
	"github.com/simplesurance/trymerger/internal/trymerge"
)

const appName = "trymerger"

var logger *zap.Logger

// Version is set via a ldflag on compilation
var Version = "unknown"

const shutdownTimeout = 30 * time.Second

func exitOnErr(msg string, err error) {
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "ERROR:", msg+", error:", err.Error())
	os.Exit(1)
}

func panicHandler() {
	if r := recover(); r != nil {
		logger.Info(
			"panic caught , terminating gracefully",
			zap.String("panic", fmt.Sprintf("%v", r)),
			zap.StackSkip("stacktrace", 1),
		)

		ctx, cancelFn := context.WithTimeout(context.Background(), time.Minute)
		defer cancelFn()

		goodbye.Exit(ctx, 1)
	}
}

func startHTTPSServer(listenAddr string, certFile, keyFile string, mux *http.ServeMux) *http.Server {
	httpsServer := http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		defer panicHandler()

		logger.Info(
			"https server started",
			logfields.Event("https_server_started"),
			zap.String("listenAddr", listenAddr),
		)

		err := httpsServer.ListenAndServeTLS(certFile, keyFile)
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("https server terminated", logfields.Event("https_server_terminated"))
			return
		}

		logger.Fatal(
			"https server terminated unexpectedly",
			logfields.Event("https_server_terminated_unexpectedly"),
			zap.Error(err),
		)
	}()

	return &httpsServer
}

func startHTTPServer(listenAddr string, mux *http.ServeMux) *http.Server {
	httpServer := http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		defer panicHandler()

		logger.Info(
			"http server started",
			logfields.Event("http_server_started"),
			zap.String("listenAddr", listenAddr),
		)

		err := httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("http server terminated", logfields.Event("http_server_terminated"))
			return
		}

		logger.Fatal(
			"http server terminated unexpectedly",
			logfields.Event("http_server_terminated_unexpectedly"),
			zap.Error(err),
		)
	}()

	return &httpServer
}

func shutdownHTTPServer(srv *http.Server) {
	ctx, cancelFn := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelFn()

	logger.Debug(
		"terminating http server",
		logfields.Event("http_server_terminating"),
		zap.String("listenAddr", srv.Addr),
		zap.Duration("shutdown_timeout", shutdownTimeout),
	)

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn(
			"shutting down http server failed",
			logfields.Event("http_server_termination_failed"),
			zap.String("listenAddr", srv.Addr),
			zap.Error(err),
		)
	}
}

type arguments struct {
	Verbose     *bool
	ConfigFile  *string
	ShowVersion *bool
	DryRun      *bool
}

var args arguments

const defConfigFile = "/etc/trymerger/config.toml"

func mustParseCommandlineParams() {
	args = arguments{
		Verbose: pflag.BoolP(
			"verbose",
			"v",
			false,
			"enable verbose logging",
		),
		ConfigFile: pflag.StringP(
			"cfg-file",
			"c",
			defConfigFile,
			"path to the trymerger configuration file",
		),
		ShowVersion: pflag.Bool(
			"version",
			false,
			"print the version and exit",
		),
		DryRun: pflag.Bool(
			"dry-run",
			false,
			"do not create branches or comments on github, overrides the dry_run setting of the config file",
		),
	}

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTION]\nValidate GitHub pull-requests by merging them into try branches on comment commands.\n", appName)
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()
}

func mustParseCfg() *cfg.Config {
	// we use exitOnErr in this function instead of logger.Fatal() because
	// the logger is not initialized yet

	file, err := os.Open(*args.ConfigFile)
	exitOnErr("could not open configuration files", err)
	defer file.Close()

	config, err := cfg.Load(file)
	if err != nil {
		exitOnErr(fmt.Sprintf("could not load configuration file: %s", *args.ConfigFile), err)
	}

	if *args.DryRun {
		config.DryRun = true
	}

	return config
}

func initLogFmtLogger(config *cfg.Config, logLevel zapcore.Level) *zap.Logger {
	cfg := zapEncoderConfig(config)

	logger := zap.New(zapcore.NewCore(
		zaplogfmt.NewEncoder(cfg),
		os.Stdout,
		logLevel),
	)

	return logger
}

func zapEncoderConfig(config *cfg.Config) zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()

	cfg.LevelKey = "loglevel"
	cfg.TimeKey = config.LogTimeKey
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder

	return cfg
}

func mustInitZapFormatLogger(config *cfg.Config, logLevel zapcore.Level) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	cfg.EncoderConfig = zapEncoderConfig(config)
	cfg.OutputPaths = []string{"stdout"}
	cfg.Encoding = config.LogFormat
	cfg.Level = zap.NewAtomicLevelAt(logLevel)

	logger, err := cfg.Build()
	exitOnErr("could not initialize logger", err)

	return logger
}

func mustInitLogger(config *cfg.Config) {
	var logLevel zapcore.Level
	if *args.Verbose {
		logLevel = zapcore.DebugLevel
	} else {
		if err := (&logLevel).Set(config.LogLevel); err != nil {
			fmt.Fprintf(os.Stderr, "can not set log level to %q: %s \n", config.LogLevel, err)
			os.Exit(2)
		}
	}

	switch config.LogFormat {
	case "logfmt":
		logger = initLogFmtLogger(config, logLevel)
	case "console", "json":
		logger = mustInitZapFormatLogger(config, logLevel)
	default:
		fmt.Fprintf(os.Stderr, "unsupported log-format argument: %q\n", config.LogFormat)
		os.Exit(2)
	}

	logger = logger.Named("main")
	zap.ReplaceGlobals(logger)

	goodbye.Register(func(context.Context, os.Signal) {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "flushing logs failed: %s\n", err)
		}
	})
}

func hide(in string) string {
	if in == "" {
		return in
	}

	return "**hidden**"
}

func mustInitGithubClient(config *cfg.Config) *githubclt.Client {
	if config.GithubAPIURL == "" {
		return githubclt.New(config.GithubAPIToken)
	}

	clt, err := githubclt.NewEnterprise(config.GithubAPIURL, config.GithubAPIToken)
	if err != nil {
		logger.Fatal(
			"initializing github client failed",
			logfields.Event("github_client_initialization_failed"),
			zap.Error(err),
		)
	}

	return clt
}

type jobStore interface {
	trymerge.JobStore
	Close() error
}

type nopCloser struct {
	*memstore.Store
}

func (nopCloser) Close() error {
	return nil
}

func mustInitJobStore(ctx context.Context, config *cfg.Config) jobStore {
	if config.DatabaseURL == "" {
		logger.Warn(
			"database_url is not set, job states are only kept in memory",
			logfields.Event("job_store_in_memory"),
		)

		return nopCloser{Store: memstore.New()}
	}

	st, err := postgres.Connect(ctx, config.DatabaseURL)
	if err != nil {
		logger.Fatal(
			"connecting to database failed",
			logfields.Event("database_connection_failed"),
			zap.Error(err),
		)
	}

	if err := st.Migrate(ctx); err != nil {
		logger.Fatal(
			"database migration failed",
			logfields.Event("database_migration_failed"),
			zap.Error(err),
		)
	}

	logger.Info("connected to database", logfields.Event("database_connected"))

	return st
}

func commandsFromCfg(config *cfg.Config) []*trymerge.Command {
	result := make([]*trymerge.Command, 0, len(config.TryMerge.Commands))

	for _, cmd := range config.TryMerge.Commands {
		result = append(result, &trymerge.Command{Name: cmd.Name, BranchPrefix: cmd.BranchPrefix})
	}

	return result
}

func healthHandler(resp http.ResponseWriter, _ *http.Request) {
	resp.Header().Set("Content-Type", "application/json")

	err := json.NewEncoder(resp).Encode(map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		logger.Info(
			"sending health response failed",
			logfields.Event("http_response_write_failed"),
			zap.Error(err),
		)
	}
}

func main() {
	defer panicHandler()

	defer goodbye.Exit(context.Background(), 1)
	goodbye.Notify(context.Background())

	mustParseCommandlineParams()

	if *args.ShowVersion {
		fmt.Printf("%s %s\n", appName, Version)
		os.Exit(0) // nolint:gocritic // defer functions won't run
	}

	config := mustParseCfg()

	mustInitLogger(config)

	logger.Info(
		"loaded cfg file",
		logfields.Event("cfg_loaded"),
		zap.String("cfg_file", *args.ConfigFile),
		zap.String("http_server_listen_addr", config.HTTPListenAddr),
		zap.String("https_server_listen_addr", config.HTTPSListenAddr),
		zap.String("github_webhook_endpoint", config.HTTPGithubWebhookEndpoint),
		zap.String("github_webhook_secret", hide(config.GithubWebHookSecret)),
		zap.String("github_api_token", hide(config.GithubAPIToken)),
		zap.String("github_api_url", config.GithubAPIURL),
		zap.String("database_url", hide(config.DatabaseURL)),
		zap.String("bot_name", config.BotName),
		zap.Bool("dry_run", config.DryRun),
		zap.String("log_format", config.LogFormat),
		zap.String("log_time_key", config.LogTimeKey),
		zap.String("log_level", config.LogLevel),
		zap.String("filter_query", config.FilterQuery),
		zap.String("status_source", config.TryMerge.StatusSource),
		zap.Duration("status_initial_delay", config.TryMerge.StatusInitialDelayDuration()),
		zap.Duration("status_poll_max_interval", config.TryMerge.StatusPollMaxIntervalDuration()),
		zap.Duration("status_timeout", config.TryMerge.StatusTimeoutDuration()),
		zap.Duration("job_timeout", config.TryMerge.JobTimeoutDuration()),
		zap.Any("commands", config.TryMerge.Commands),
	)

	goodbye.Register(func(_ context.Context, sig os.Signal) {
		logger.Info(fmt.Sprintf("terminating, received signal %s", sig.String()))
	})

	ctx := context.Background()

	var evFilter *filter.Filter
	if config.FilterQuery != "" {
		var err error
		evFilter, err = filter.New(config.FilterQuery)
		if err != nil {
			logger.Fatal(
				"parsing filter_query failed",
				logfields.Event("cfg_invalid_filter_query"),
				zap.Error(err),
			)
		}
	}

	githubClient := mustInitGithubClient(config)

	var platformClient trymerge.PlatformClient = githubClient
	if config.DryRun {
		platformClient = trymerge.NewDryPlatformClient(githubClient, logger)
		logger.Info("dry run mode enabled, no changes are made on github", logfields.Event("dry_run_enabled"))
	}

	st := mustInitJobStore(ctx, config)

	orchestrator := trymerge.New(
		platformClient,
		st,
		commandsFromCfg(config),
		trymerge.WithStatusSource(config.TryMerge.StatusSource),
		trymerge.WithStatusPolling(
			config.TryMerge.StatusInitialDelayDuration(),
			config.TryMerge.StatusPollMaxIntervalDuration(),
			config.TryMerge.StatusTimeoutDuration(),
		),
		trymerge.WithJobTimeout(config.TryMerge.JobTimeoutDuration()),
		trymerge.WithRoutineDeferFunc(panicHandler),
	)

	abandoned, err := orchestrator.Reconcile(ctx)
	if err != nil {
		logger.Fatal(
			"marking abandoned jobs as failed failed",
			logfields.Event("reconciliation_failed"),
			zap.Error(err),
		)
	}

	logger.Info(
		"marked jobs of previous runs as failed",
		logfields.Event("reconciliation_finished"),
		zap.Int("abandoned_jobs", abandoned),
	)

	evLoopOpts := []func(*trymerge.EvLoop){}
	if evFilter != nil {
		evLoopOpts = append(evLoopOpts, trymerge.WithFilter(evFilter))
	}

	evLoop := trymerge.NewEventLoop(orchestrator, command.NewExtractor(config.BotName), evLoopOpts...)
	go func() {
		defer panicHandler()
		evLoop.Start()
	}()

	gh := github.New(
		evLoop.C(),
		github.WithPayloadSecret(config.GithubWebHookSecret),
	)

	mux := http.NewServeMux()

	mux.HandleFunc(config.HTTPGithubWebhookEndpoint, gh.HTTPHandler)
	logger.Info(
		"registered github webhook event http endpoint",
		logfields.Event("github_http_handler_registered"),
		zap.String("endpoint", config.HTTPGithubWebhookEndpoint),
	)

	mux.HandleFunc(config.HTTPStatusPageEndpoint, orchestrator.HTTPHandlerList)
	mux.Handle(config.HTTPMetricsEndpoint, promhttp.Handler())
	mux.HandleFunc(cfg.HealthEndpoint, healthHandler)

	var servers []*http.Server

	if config.HTTPListenAddr != "" {
		servers = append(servers, startHTTPServer(config.HTTPListenAddr, mux))
	}

	if config.HTTPSListenAddr != "" {
		servers = append(servers, startHTTPSServer(
			config.HTTPSListenAddr,
			config.HTTPSCertFile,
			config.HTTPSKeyFile,
			mux,
		))
	}

	// the components are stopped in the reverse order of the data flow,
	// the webhook handler must not send to the closed event channel
	goodbye.Register(func(context.Context, os.Signal) {
		for _, srv := range servers {
			shutdownHTTPServer(srv)
		}

		logger.Debug("stopping event loop", logfields.Event("event_loop_stopping"))
		evLoop.Stop()

		logger.Debug("stopping running try-merges", logfields.Event("orchestrator_stopping"))
		orchestrator.Stop()

		if err := st.Close(); err != nil {
			logger.Warn(
				"closing job store failed",
				logfields.Event("job_store_close_failed"),
				zap.Error(err),
			)
		}
	})

	select {}
}
