package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/matheus3301/smartcart/internal/app"
	"github.com/matheus3301/smartcart/internal/config"
	"github.com/matheus3301/smartcart/internal/lock"
	"github.com/matheus3301/smartcart/internal/paths"
)

type command struct {
	usage string
	help  string
	// drain replays queued changes before the command runs.
	drain bool
	// background keeps the sync engine running for the command's lifetime.
	background bool
	run        func(ctx context.Context, a app.App, out *output, args []string) error
}

// commands is assigned in init to break the initialization cycle through usage.
var commands map[string]command

func init() {
	commands = map[string]command{
		"register":  {usage: "register <email>", help: "Create an account and sign in", run: cmdRegister},
		"login":     {usage: "login <email>", help: "Sign in", run: cmdLogin},
		"logout":    {usage: "logout", help: "Forget the stored token", run: cmdLogout},
		"status":    {usage: "status", help: "Show connectivity, account and queue state", run: cmdStatus},
		"retailers": {usage: "retailers [list|add|show|edit|rm] ...", help: "Manage retailers", drain: true, run: cmdRetailers},
		"trips":     {usage: "trips [list|add|show|active|start|complete|plan|archive|rm] ...", help: "Manage trips", drain: true, run: cmdTrips},
		"items":     {usage: "items <list|add|price|check|rm> ...", help: "Manage trip items", drain: true, run: cmdItems},
		"suggest":   {usage: "suggest [-retailer <id>] <item>", help: "Suggest a price for an item", run: cmdSuggest},
		"prices":    {usage: "prices [history|trends|popular] ...", help: "Browse price history", run: cmdPrices},
		"sync":      {usage: "sync [--clear]", help: "Replay queued changes now", run: cmdSync},
		"watch":     {usage: "watch", help: "Stay running and sync whenever the backend is reachable", background: true, run: cmdWatch},
	}
}

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	configFlag := flag.String("config", "", "config file (default $SMARTCART_HOME/config.toml)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	verboseFlag := flag.Bool("v", false, "also log to stderr")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}

	cfgPath := *configFlag
	if cfgPath == "" {
		cfgPath = paths.ConfigPath()
	}
	cfg, err := config.Resolve(cfgPath, paths.EnvPath())
	if err != nil {
		fail(err)
	}
	profile, err := paths.Resolve(*profileFlag, cfg.DefaultProfile)
	if err != nil {
		fail(err)
	}

	clientCfg := cfg.Client
	if *verboseFlag {
		clientCfg.LogToStderr = true
	}
	if cmd.background && clientCfg.MetricsFile == "" {
		clientCfg.MetricsFile = paths.MetricsPath(profile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := &output{json: *jsonFlag}
	err = app.Run(ctx, app.Params{
		Profile:      profile,
		Command:      args[0],
		Config:       clientCfg,
		DrainOnStart: cmd.drain,
		Background:   cmd.background,
	}, func(ctx context.Context, a app.App) error {
		return cmd.run(ctx, a, out, args[1:])
	})
	if err != nil {
		fail(err)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: smartcart [--profile <name>] [--json] [-v] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-52s %s\n", commands[name].usage, commands[name].help)
	}
}

func fail(err error) {
	var held *lock.HeldError
	if errors.As(err, &held) {
		fmt.Fprintf(os.Stderr, "error: profile busy: %v\n", err)
		os.Exit(2)
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

// usageError is returned by subcommands given bad arguments.
type usageError struct{ usage string }

func (e usageError) Error() string { return "usage: smartcart " + e.usage }

func usage(name string) error { return usageError{usage: commands[name].usage} }
