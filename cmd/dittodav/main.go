package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/marmos91/dittodav/internal/logger"
	"github.com/marmos91/dittodav/pkg/config"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

const usage = `DittoDAV - WebDAV listing server with paginated PROPFIND

Usage:
  dittodav <command> [flags]

Commands:
  start     Start the server
  init      Write a sample configuration file
  version   Print the version

Run 'dittodav <command> --help' for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "start":
		err = runStart(os.Args[2:])
	case "init":
		err = runInit(os.Args[2:])
	case "version":
		fmt.Println("dittodav", version)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// flagBindings maps config keys to the start flags overriding them.
var flagBindings = map[string]string{
	"logging.level":        "log-level",
	"listing.root":         "root",
	"paginate.page_size":   "page-size",
	"paginate.store.type":  "store",
	"adapters.webdav.port": "port",
}

func runStart(args []string) error {
	flags := pflag.NewFlagSet("start", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "Path to config file (default: $XDG_CONFIG_HOME/dittodav/config.yaml)")
	flags.String("log-level", "", "Log level (DEBUG, INFO, WARN, ERROR)")
	flags.String("root", "", "Directory served by PROPFIND")
	flags.Int("page-size", 0, "Results returned by the first page of a listing")
	flags.String("store", "", "Pagination store (memory, badger, sqlstore, s3)")
	flags.IntP("port", "p", 0, "WebDAV port")
	if err := flags.Parse(args); err != nil {
		return err
	}

	v := viper.New()
	for key, name := range flagBindings {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}

	cfg, err := config.LoadWithViper(v, *configPath)
	if err != nil {
		return err
	}

	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	if err := logger.SetOutput(cfg.Logging.Output); err != nil {
		return err
	}

	logger.Info("DittoDAV %s starting", version)
	logger.Info("Log level: %s, listing: %s %s", cfg.Logging.Level, cfg.Listing.Type, cfg.Listing.Root)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := config.InitializeServer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	return srv.Serve(ctx)
}

func runInit(args []string) error {
	flags := pflag.NewFlagSet("init", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "Where to write the file (default: $XDG_CONFIG_HOME/dittodav/config.yaml)")
	force := flags.BoolP("force", "f", false, "Overwrite an existing file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	path := *configPath
	if path == "" {
		var err error
		if path, err = config.InitConfig(*force); err != nil {
			return err
		}
	} else if err := config.InitConfigToPath(path, *force); err != nil {
		return err
	}

	fmt.Printf("Configuration written to %s\n", path)
	return nil
}
