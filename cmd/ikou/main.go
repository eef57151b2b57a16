package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager/v3"
	flags "github.com/jessevdk/go-flags"

	"github.com/root-talis/ikou"
	"github.com/root-talis/ikou/config"
	"github.com/root-talis/ikou/source/files"
)

type options struct {
	ConfigFile string `short:"c" long:"config" env:"IKOU_CONFIG" description:"YAML configuration file"`

	Logger LagerFlag

	Database DatabaseFlag `group:"Database"`
}

// app is shared by all commands of one invocation.
type app struct {
	options

	ctx    context.Context
	stdout io.Writer
	stderr io.Writer
	clock  clock.Clock
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()

	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{
		ctx:    ctx,
		stdout: stdout,
		stderr: stderr,
		clock:  clock.NewClock(),
	}

	parser := flags.NewParser(&a.options, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "ikou"

	commands := []struct {
		name, short, long string
		data              any
	}{
		{"up", "Apply pending migrations", "Applies pending migrations in order, up to and including --to if given.", &UpCommand{app: a}},
		{"down", "Revert applied migrations", "Reverts the most recently applied migrations, one by default.", &DownCommand{app: a}},
		{"status", "Show migration status", "Lists every known migration with its status.", &StatusCommand{app: a}},
		{"new", "Create a migration", "Creates an empty pair of .up.sql and .down.sql files with the next id.", &NewCommand{app: a}},
	}
	for _, c := range commands {
		if _, err := parser.AddCommand(c.name, c.short, c.long, c.data); err != nil {
			fmt.Fprintf(stderr, "ikou: %s\n", err)
			return 1
		}
	}

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(stdout, err)
			return 0
		}

		fmt.Fprintf(stderr, "ikou: %s\n", err)
		return 1
	}

	return 0
}

func (a *app) logger() lager.Logger {
	logger, _ := a.Logger.Logger("ikou", a.stderr)
	return logger
}

// settings loads the configuration file, if any, and applies flags on
// top of it.
func (a *app) settings() (config.Config, error) {
	cfg := config.Defaults()

	if a.ConfigFile != "" {
		var err error
		cfg, err = config.Load(a.ConfigFile)
		if err != nil {
			return config.Config{}, err
		}
	}

	a.Database.apply(&cfg)

	return cfg, nil
}

// runner opens the database and the migrations directory. The returned
// function closes the connections.
func (a *app) runner(logger lager.Logger) (*ikou.Runner, func(), error) {
	cfg, err := a.settings()
	if err != nil {
		logger.Error(failedToLoadConfig, err)
		return nil, nil, err
	}

	backend, err := cfg.Open(logger, a.clock)
	if err != nil {
		logger.Error(failedToOpenDatabase, err, cfg.LagerData())
		return nil, nil, err
	}

	closeBackend := func() {
		if err := backend.Close(); err != nil {
			logger.Error(failedToCloseDatabase, err)
		}
	}

	src, err := files.NewFilesSource(os.DirFS(cfg.Dir), ".")
	if err != nil {
		logger.Error(failedToReadMigrationsDir, err, cfg.LagerData())
		closeBackend()
		return nil, nil, err
	}

	opts := append(cfg.RunnerOptions(backend, logger, a.clock), ikou.WithSources(src))

	return ikou.New(backend.Driver, opts...), closeBackend, nil
}
