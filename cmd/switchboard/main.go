package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"switchboard/internal/chatserver"
	"switchboard/internal/config"
	"switchboard/internal/lockfile"
	"switchboard/internal/logger"
	"switchboard/internal/pidfile"
	"switchboard/internal/pprof"
	"switchboard/internal/tui"
)

// options are the command-line overrides on top of the config file.
type options struct {
	configPath string
	listenAddr string
	logLevel   string
	pprofAddr  string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}

	fs := flag.NewFlagSet("switchboard", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", config.GetConfigPath(), "path to the config file")
	fs.StringVar(&opts.listenAddr, "listen", "", "listen address override, e.g. 127.0.0.1:13265")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level override (debug|info|warn|error|none)")
	fs.StringVar(&opts.pprofAddr, "pprof", "", "profiling HTTP address, e.g. localhost:6060")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return opts, nil
}

// applyOverrides layers environment variables and then flags over the
// loaded config.
func applyOverrides(cfg *config.Config, opts *options) {
	if envLevel := strings.TrimSpace(os.Getenv("SWITCHBOARD_LOG_LEVEL")); envLevel != "" {
		cfg.LogLevel = envLevel
	}
	if envPath := strings.TrimSpace(os.Getenv("SWITCHBOARD_LOG_PATH")); envPath != "" {
		cfg.LogPath = envPath
	}

	if opts.listenAddr != "" {
		cfg.ListenAddr = opts.listenAddr
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.pprofAddr != "" {
		cfg.PprofAddr = opts.pprofAddr
	}
}

func run() (err error) {
	opts, parseErr := parseFlags(os.Args[1:])
	if parseErr != nil {
		if errors.Is(parseErr, flag.ErrHelp) {
			return nil
		}
		return parseErr
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyOverrides(cfg, opts)

	var loggerInitialized bool
	defer func() {
		if !loggerInitialized {
			return
		}
		if err != nil {
			logger.Error("Fatal error: %v", err)
		}
		if closeErr := logger.Global().Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close logger: %v\n", closeErr)
		}
	}()

	if initErr := logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogPath); initErr != nil {
		return fmt.Errorf("failed to initialize logger: %w", initErr)
	}
	loggerInitialized = true
	logger.Info("switchboard starting (pid %d)", os.Getpid())

	// One host per state directory: a second instance would lose the race
	// for the listen port and interleave writes into the same log file.
	lock := lockfile.New(config.GetLockfilePath())
	if lockErr := lock.TryAcquire(); lockErr != nil {
		if errors.Is(lockErr, lockfile.ErrAlreadyRunning) {
			return fmt.Errorf("switchboard is already running: %w", lockErr)
		}
		return fmt.Errorf("failed to acquire instance lock: %w", lockErr)
	}
	defer func() {
		if releaseErr := lock.Release(); releaseErr != nil {
			logger.Warn("Failed to release instance lock: %v", releaseErr)
		}
	}()

	// The TUI swallows the terminal, so the PID file is how operators find
	// the process to signal it or attach a profiler. Losing it only loses
	// discovery.
	pid := pidfile.New(config.GetPidfilePath())
	if pidErr := pid.Write(); pidErr != nil {
		logger.Warn("Failed to write pidfile: %v", pidErr)
	} else {
		defer func() {
			if removeErr := pid.Remove(); removeErr != nil {
				logger.Warn("Failed to remove pidfile: %v", removeErr)
			}
		}()
	}

	if cfg.PprofAddr != "" {
		profiler := pprof.NewHandler(pprof.Config{HTTPAddr: cfg.PprofAddr})
		if pprofErr := profiler.Start(); pprofErr != nil {
			return fmt.Errorf("failed to start profiling server: %w", pprofErr)
		}
		defer func() {
			if stopErr := profiler.Stop(); stopErr != nil {
				logger.Warn("Failed to stop profiling server: %v", stopErr)
			}
		}()
	}

	srv := chatserver.NewServer(cfg)
	if startErr := srv.Start(); startErr != nil {
		return fmt.Errorf("failed to start chat server: %w", startErr)
	}
	defer func() {
		if stopErr := srv.Stop(); stopErr != nil {
			logger.Warn("Failed to stop chat server: %v", stopErr)
		}
	}()

	// Log level changes in the config file apply without a restart; the
	// rest of the config stays fixed for the process lifetime.
	watcher, watchErr := config.Watch(opts.configPath, func(updated *config.Config) {
		logger.Global().SetLevel(logger.ParseLevel(updated.LogLevel))
	})
	if watchErr != nil {
		logger.Warn("Config watcher unavailable: %v", watchErr)
	} else {
		defer watcher.Close()
	}

	model := tui.New(srv.Registry(), srv.Addr().String())
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, runErr := program.Run(); runErr != nil {
		return fmt.Errorf("console error: %w", runErr)
	}

	logger.Info("switchboard shutting down")
	return nil
}
