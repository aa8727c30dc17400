package main

import (
	"fmt"
	"io"

	"github.com/personaforge/personaforge/config"
	"github.com/personaforge/personaforge/pkg/engine"
	"github.com/personaforge/personaforge/pkg/logger"
	"github.com/spf13/cobra"
)

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath  string
	logLevel    string
	port        int
	storageType string
	debug       bool
}

// overrides maps the set flags onto config keys. Flags win over
// environment variables and files.
func (f *globalFlags) overrides() map[string]interface{} {
	overrides := make(map[string]interface{})
	if f.port != 0 {
		overrides["server.port"] = f.port
	}
	if f.logLevel != "" {
		overrides["log.level"] = f.logLevel
	}
	if f.storageType != "" {
		overrides["storage.type"] = f.storageType
	}
	if f.debug {
		overrides["app.debug"] = true
	}
	return overrides
}

func (f *globalFlags) load() (*config.Config, error) {
	cfg, _, err := f.loadWith(config.NewLoader())
	return cfg, err
}

// loadWith loads through loader and returns the file it read.
func (f *globalFlags) loadWith(loader *config.Loader) (*config.Config, string, error) {
	cfg, err := loader.Load(f.configPath, f.overrides())
	if err != nil {
		return nil, "", fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, loader.Path(), nil
}

// newLogger builds the process logger and installs it as the global one.
func newLogger(cfg *config.Config) logger.Logger {
	logCfg := cfg.Log.ToLoggerConfig()
	if cfg.App.Debug {
		logCfg.Level = logger.DebugLevel
	}
	log := logger.New(logCfg)
	logger.SetGlobal(log)
	return log
}

// quietLogger is used by the one-shot commands so logs do not interleave
// with their output. Warnings and errors still reach stderr.
func quietLogger(cfg *config.Config, stderr io.Writer) logger.Logger {
	level := logger.WarnLevel
	if cfg.App.Debug {
		level = logger.DebugLevel
	}
	return logger.NewWithWriters(stderr, io.Discard, level)
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "personaforge",
		Short:         "Stateful role-play personas grounded in your own documents",
		Long:          "PersonaForge indexes world documents, keeps persona state and memory, and answers in character over HTTP or an interactive shell.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Path to configuration file")
	pf.StringVar(&flags.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	pf.IntVarP(&flags.port, "port", "p", 0, "Override HTTP server port")
	pf.StringVar(&flags.storageType, "storage", "", "Override storage backend (memory, badger, redis)")
	pf.BoolVar(&flags.debug, "debug", false, "Enable debug mode")

	root.AddCommand(
		newServeCmd(flags),
		newIndexCmd(flags),
		newPersonaCmd(flags),
		newChatCmd(flags),
		newVersionCmd(),
	)
	return root
}

// openEngine loads configuration and starts an engine for a one-shot
// command. The returned stop function must be called.
func openEngine(cmd *cobra.Command, flags *globalFlags, opts ...engine.Option) (*engine.Engine, func(), error) {
	cfg, err := flags.load()
	if err != nil {
		return nil, nil, err
	}
	log := quietLogger(cfg, cmd.ErrOrStderr())

	eng, err := engine.New(cfg, log, opts...)
	if err != nil {
		return nil, nil, err
	}
	if err := eng.Start(cmd.Context()); err != nil {
		return nil, nil, err
	}
	stop := func() {
		if err := eng.Stop(cmd.Context()); err != nil {
			log.Error("Error during engine shutdown", "error", err)
		}
	}
	return eng, stop, nil
}
