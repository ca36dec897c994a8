package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/gmsas95/medwatch/internal/api"
	"github.com/gmsas95/medwatch/internal/app"
	"github.com/gmsas95/medwatch/internal/config"
	"github.com/gmsas95/medwatch/internal/logging"
	"github.com/gmsas95/medwatch/internal/store"
	"go.uber.org/zap"
)

var version = "dev"

type globalFlags struct {
	configPath string
	dataDir    string
}

func (g *globalFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&g.configPath, "config", "", "Path to config file")
	fs.StringVar(&g.dataDir, "data", "", "Path to data directory")
}

func main() {
	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		runServe(args)
	case "run-once":
		runOnce(args)
	case "seed":
		runSeed(args)
	case "token":
		runToken(args)
	case "version", "--version", "-v":
		fmt.Printf("medwatch version %s\n", version)
	case "help", "--help", "-h":
		printHelp()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		printHelp()
		os.Exit(2)
	}
}

func printHelp() {
	fmt.Println(`medwatch - missed medication detection and caregiver alerts

Usage:
  medwatch [serve] [-config file] [-data dir]   Run the scheduler and HTTP API
  medwatch run-once [-config file] [-data dir]  Run one detection pass and print its summary
  medwatch seed -f fixtures.yaml                Load users, groups, tablets and logs
  medwatch token -sub <uid> [-ttl 24h]          Mint a bearer token for the API
  medwatch version                              Print the version`)
}

func runServe(args []string) {
	var g globalFlags
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	g.register(fs)
	_ = fs.Parse(args)

	var current atomic.Pointer[app.App]
	cfg, err := config.Watch(g.configPath, g.dataDir,
		func(next *config.Config) {
			if a := current.Load(); a != nil {
				a.ApplyConfig(next)
			}
		},
		func(err error) {
			if a := current.Load(); a != nil {
				a.Logger.Error("Config reload rejected, keeping previous settings", zap.Error(err))
				return
			}
			log.Printf("Config reload rejected: %v", err)
		},
	)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	application, cleanup := initApp(cfg)
	defer cleanup()
	current.Store(application)

	application.RunServer()
}

func runOnce(args []string) {
	var g globalFlags
	fs := flag.NewFlagSet("run-once", flag.ExitOnError)
	g.register(fs)
	_ = fs.Parse(args)

	cfg := loadConfig(g)
	application, cleanup := initApp(cfg)
	defer cleanup()

	summary := application.RunOnce(context.Background())

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary.Record()); err != nil {
		application.Logger.Error("Failed to print summary", zap.Error(err))
	}
}

func runSeed(args []string) {
	var g globalFlags
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	g.register(fs)
	file := fs.String("f", "", "Fixtures YAML file")
	_ = fs.Parse(args)

	if *file == "" {
		fmt.Fprintln(os.Stderr, "seed: -f is required")
		os.Exit(2)
	}

	cfg := loadConfig(g)
	logger := newLogger(cfg)
	defer logger.Sync()

	st, err := store.New(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize store", zap.Error(err))
	}
	defer st.Close()

	f, err := os.Open(*file)
	if err != nil {
		logger.Fatal("Failed to open fixtures", zap.Error(err))
	}
	defer f.Close()

	fixtures, err := store.LoadFixtures(f)
	if err != nil {
		logger.Fatal("Failed to parse fixtures", zap.Error(err))
	}
	if err := st.Seed(context.Background(), fixtures); err != nil {
		logger.Fatal("Failed to seed store", zap.Error(err))
	}

	logger.Info("Fixtures loaded",
		zap.String("file", *file),
		zap.Int("users", len(fixtures.Users)),
		zap.Int("groups", len(fixtures.Groups)),
	)
}

func runToken(args []string) {
	var g globalFlags
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	g.register(fs)
	sub := fs.String("sub", "", "Caller uid to put in the token subject")
	ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime")
	_ = fs.Parse(args)

	if *sub == "" {
		fmt.Fprintln(os.Stderr, "token: -sub is required")
		os.Exit(2)
	}

	cfg := loadConfig(g)
	if cfg.Security.GeneratedSecret {
		fmt.Fprintln(os.Stderr, "warning: security.jwt_secret is not set; this token will not verify against a running server")
	}

	tok, err := api.IssueToken(cfg.Security.JWTSecret, *sub, *ttl)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}
	fmt.Println(tok)
}

func loadConfig(g globalFlags) *config.Config {
	cfg, err := config.Load(g.configPath, g.dataDir)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func newLogger(cfg *config.Config) *zap.Logger {
	logger, _, err := logging.New(cfg.Log.Level, cfg.Log.Format, "medwatch")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	return logger
}

func initApp(cfg *config.Config) (*app.App, func()) {
	logger, level, err := logging.New(cfg.Log.Level, cfg.Log.Format, "medwatch")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Info("Starting medwatch",
		zap.String("version", version),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("push", cfg.Push.Provider),
	)

	st, err := store.New(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize store", zap.Error(err))
	}

	application, err := app.New(context.Background(), cfg, st, logger, level, version)
	if err != nil {
		logger.Fatal("Failed to initialize app", zap.Error(err))
	}

	return application, func() {
		if err := st.Close(); err != nil {
			logger.Error("Failed to close store", zap.Error(err))
		}
		_ = logger.Sync()
	}
}
