package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	dextralhorn "github.com/always-cache/dextral-horn"
	"github.com/always-cache/dextral-horn/pkg/strategy"
)

var (
	// CLI flags
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [-vv] [-log-file file] <serve|clear|rules> [flags]\n", os.Args[0])
		flag.PrintDefaults()
	}

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()
	setupLogging()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}
	args := flag.Args()[1:]
	switch flag.Arg(0) {
	case "serve":
		os.Exit(serve(args))
	case "clear":
		os.Exit(clearCache(args))
	case "rules":
		os.Exit(lintRules(args))
	default:
		flag.Usage()
		os.Exit(1)
	}
}

func setupLogging() {
	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to a rotated logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		logOutputs = append(logOutputs, &lumberjack.Logger{
			Filename:   logFilenameFlag,
			MaxSize:    50, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		})
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()
}

// loadConfig reads the config file, or returns the defaults if filename is empty.
func loadConfig(filename, dbFilename string) (dextralhorn.Config, error) {
	config := dextralhorn.Config{}
	if filename != "" {
		var err error
		if config, err = dextralhorn.LoadConfig(filename); err != nil {
			return config, err
		}
	}
	if dbFilename != "" {
		config.CacheStore = dextralhorn.CacheStoreSQLite
		config.CacheDB = dbFilename
	}
	config.Logger = &log.Logger
	return config, nil
}

func clearCache(args []string) int {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	configFilename := fs.String("config", "", "Config file")
	dbFilename := fs.String("db", "", "Cache DB file name (overrides config)")
	tagsFlag := fs.String("tags", "", "Comma-separated tags to clear, e.g. demon_dextral_horn:products_show")
	allFlag := fs.Bool("all", false, "Clear all prefetched responses")
	fs.Parse(args)

	tags := splitTags(*tagsFlag)
	if len(tags) == 0 && !*allFlag {
		log.Error().Msg("Please specify -tags or -all")
		return 1
	}

	config, err := loadConfig(*configFilename, *dbFilename)
	if err != nil {
		log.Error().Err(err).Msg("Could not load config")
		return 1
	}
	// clearing never prefetches
	config.Enabled = false
	engine, err := dextralhorn.CreateEngine(config)
	if err != nil {
		log.Error().Err(err).Msg("Could not create engine")
		return 1
	}
	if *allFlag {
		tags = nil
	}
	if !engine.Clear(tags...) {
		log.Error().Strs("tags", tags).Msg("Cache store does not support clearing by tags")
		return 1
	}
	log.Info().Strs("tags", tags).Msg("Cleared prefetched responses")
	return 0
}

func splitTags(s string) []string {
	tags := make([]string, 0)
	for _, tag := range strings.Split(s, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func lintRules(args []string) int {
	fs := flag.NewFlagSet("rules", flag.ExitOnError)
	configFilename := fs.String("config", "dextral-horn.yml", "Config file")
	fs.Parse(args)

	config, err := dextralhorn.LoadConfig(*configFilename)
	if err != nil {
		log.Error().Err(err).Msg("Could not load config")
		return 1
	}
	registry := strategy.DefaultRegistry()
	for _, rule := range config.Rules {
		targets := make([]string, 0, len(rule.Targets))
		for _, target := range rule.Targets {
			targets = append(targets, target.TargetMethod()+" "+target.Route)
		}
		log.Info().
			Str("rule", rule.ID).
			Str("trigger", rule.Trigger.Route).
			Strs("targets", targets).
			Msg(rule.Description)
	}
	if err := config.Rules.Lint(registry); err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			log.Error().Msg(line)
		}
		return 1
	}
	log.Info().Msgf("%d rules OK", len(config.Rules))
	return 0
}

func serve(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configFilename := fs.String("config", "", "Config file")
	dbFilename := fs.String("db", "", "Cache DB file name (overrides config)")
	port := fs.Int("port", 8080, "Port to listen on")
	fs.Parse(args)

	config, err := loadConfig(*configFilename, *dbFilename)
	if err != nil {
		log.Error().Err(err).Msg("Could not load config")
		return 1
	}
	if len(config.Rules) == 0 {
		config.Enabled = true
		config.AuthDriver = "jwt"
		config.Rules = demoRules()
	}
	router := newDemoRouter()
	config.Router = router
	engine, err := dextralhorn.CreateEngine(config)
	if err != nil {
		log.Error().Err(err).Msg("Could not create engine")
		return 1
	}
	router.With(engine.Cache, engine.Prefetch)
	registerDemoRoutes(router)

	server := &http.Server{Addr: fmt.Sprintf(":%d", *port), Handler: router}
	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Info().Msgf("Listening on port %d", *port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("Server failed")
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := engine.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("Prefetch jobs still running")
	}
	return 0
}
