// Command blekbd runs a BLE HID keyboard peripheral on this machine, typing
// keys from the terminal or the desktop to a bonded host.
package main

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	kongyaml "github.com/alecthomas/kong-yaml"

	"github.com/chaz8081/blekbd/internal/config"
	"github.com/chaz8081/blekbd/internal/log"
)

// CLI is the command line. Flag defaults may come from flags.yaml or
// flags.toml in the config directory.
type CLI struct {
	Config string `help:"Path to the device config file (default: ~/.config/blekbd/config.yaml)." type:"path" env:"BLEKBD_CONFIG"`

	Log struct {
		Level      string `help:"Log level (trace, debug, info, warn, error), overriding the config file."`
		File       string `help:"Also write logs to this file." type:"path"`
		ReportFile string `help:"Write every delivered report to this file." type:"path"`
	} `embed:"" prefix:"log."`

	Run   RunCmd   `cmd:"" default:"withargs" help:"Run the keyboard."`
	Type  TypeCmd  `cmd:"" help:"Type text through an in-process host."`
	Store StoreCmd `cmd:"" help:"Inspect or clear the bond store."`
	Init  InitCmd  `cmd:"" help:"Write the default config file."`
}

func main() {
	dir := config.DefaultConfigDir()
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("blekbd"),
		kong.Description("BLE HID keyboard peripheral"),
		kong.UsageOnError(),
		kong.Configuration(kongyaml.Loader, filepath.Join(dir, "flags.yaml")),
		kong.Configuration(kongtoml.Loader, filepath.Join(dir, "flags.toml")),
	)

	cfg, err := loadConfig(cli.Config)
	if err != nil {
		ctx.Fatalf("config: %v", err)
	}
	if cli.Log.Level != "" {
		cfg.LogLevel = cli.Log.Level
	}
	if cli.Log.File != "" {
		cfg.LogFile = cli.Log.File
	}
	if err := cfg.Validate(); err != nil {
		ctx.Fatalf("config validation: %v", err)
	}

	logger, closers, err := log.SetupLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		os.Exit(2)
	}

	reports := log.NewReportLogger(nil)
	if cli.Log.ReportFile != "" {
		f, err := os.OpenFile(cli.Log.ReportFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			logger.Error("failed to open report log", "file", cli.Log.ReportFile, "error", err)
		} else {
			reports = log.NewReportLogger(f)
			closers = append(closers, f)
		}
	} else if strings.EqualFold(cfg.LogLevel, "trace") {
		reports = log.NewReportLogger(os.Stdout)
	}

	ctx.Bind(logger, cfg)
	ctx.BindTo(reports, (*log.ReportLogger)(nil))
	err = ctx.Run()
	// FatalIfErrorf exits, so the log files are closed first.
	if cerr := closeAll(closers); cerr != nil {
		_, _ = os.Stderr.WriteString("failed to close logs: " + cerr.Error() + "\n")
	}
	ctx.FatalIfErrorf(err)
}

// closeAll closes every closer and joins their errors.
func closeAll(closers []io.Closer) error {
	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// loadConfig loads the config from path, or from the default path when it
// exists, or falls back to built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		return config.Load(defaultPath)
	}
	return config.Default(), nil
}
