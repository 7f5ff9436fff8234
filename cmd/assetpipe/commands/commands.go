package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"
	"k8s.io/client-go/util/homedir"

	"github.com/slok/assetpipe/internal/cache"
	"github.com/slok/assetpipe/internal/conventions"
	"github.com/slok/assetpipe/internal/decrypt"
	"github.com/slok/assetpipe/internal/log"
	"github.com/slok/assetpipe/internal/printer"
	"github.com/slok/assetpipe/internal/storage/sqlite"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug      bool
	NoLog      bool
	NoColor    bool
	LoggerType string
	DataDir    string
	DBPath     string

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)

	defaultDataDir := filepath.Join(homedir.HomeDir(), conventions.DefaultDataDir)
	app.Flag("data-dir", "Directory with the bundle cache and its index.").Envar("ASSETPIPE_DATA_DIR").Default(defaultDataDir).StringVar(&c.DataDir)
	app.Flag("db-path", "Path to the SQLite cache index (defaults inside the data dir).").Envar("ASSETPIPE_DB_PATH").StringVar(&c.DBPath)

	return c
}

// CacheDir returns the directory of the cached bundle files.
func (c RootCommand) CacheDir() string {
	return filepath.Join(c.DataDir, conventions.CacheDir)
}

// IndexPath returns the cache index database path.
func (c RootCommand) IndexPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.DataDir, conventions.DBFile)
}

// newCacheService opens the cache index and returns the cache service on top of it,
// the returned close func closes the index.
func newCacheService(ctx context.Context, rootCmd *RootCommand) (*cache.Service, *sqlite.Repository, func(), error) {
	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: rootCmd.IndexPath(),
		Logger: rootCmd.Logger,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("could not create cache index: %w", err)
	}
	closeRepo := func() {
		if err := repo.Close(); err != nil {
			rootCmd.Logger.Warningf("Could not close cache index: %s", err)
		}
	}

	svc, err := cache.NewService(cache.ServiceConfig{
		Repository: repo,
		Logger:     rootCmd.Logger,
	})
	if err != nil {
		closeRepo()
		return nil, nil, nil, fmt.Errorf("could not create cache service: %w", err)
	}

	return svc, repo, closeRepo, nil
}

func newPrinter(format string, w io.Writer) printer.Printer {
	if format == "json" {
		return printer.NewJSONPrinter(w)
	}
	return printer.NewTablePrinter(w)
}

func newDecryptionServices(hexKey string, logger log.Logger) (*decrypt.XChaChaServices, error) {
	key, err := decrypt.ParseKey(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid master key: %w", err)
	}

	svc, err := decrypt.NewXChaChaServices(decrypt.XChaChaServicesConfig{
		MasterKey: key,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create decryption services: %w", err)
	}

	return svc, nil
}
