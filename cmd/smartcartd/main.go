package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/smartcart/internal/config"
	"github.com/matheus3301/smartcart/internal/daemon"
	"github.com/matheus3301/smartcart/internal/paths"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	configFlag := flag.String("config", "", "config file (default $SMARTCART_HOME/config.toml)")
	envFlag := flag.String("env-file", "", "dotenv file (default $SMARTCART_HOME/.env)")
	dataFlag := flag.String("data-dir", "", "directory for the daemon's lock and logs (default $SMARTCART_HOME/server)")
	consoleFlag := flag.Bool("console", false, "also log to stderr")
	flag.Parse()

	cfgPath := *configFlag
	if cfgPath == "" {
		cfgPath = paths.ConfigPath()
	}
	envPath := *envFlag
	if envPath == "" {
		envPath = paths.EnvPath()
	}
	cfg, err := config.Resolve(cfgPath, envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Server.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{Config: cfg.Server, DataDir: *dataFlag, Console: *consoleFlag}),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
	)

	app.Run()
}
