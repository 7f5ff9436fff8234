package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/assetpipe/internal/app/cachecheck"
	"github.com/slok/assetpipe/internal/app/list"
	"github.com/slok/assetpipe/internal/model"
)

// CacheCommand is the parent command for the bundle cache subcommands.
type CacheCommand struct {
	Cmd *kingpin.CmdClause

	packageName string
	format      string
}

// NewCacheCommand returns the cache parent command.
func NewCacheCommand(app *kingpin.Application) *CacheCommand {
	c := &CacheCommand{}

	c.Cmd = app.Command("cache", "Manage the bundle cache.")
	c.Cmd.Flag("package", "Package name.").Short('p').Required().StringVar(&c.packageName)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

type CacheListCommand struct {
	Cmd      *kingpin.CmdClause
	rootCmd  *RootCommand
	cacheCmd *CacheCommand

	prefix string
}

// NewCacheListCommand returns the cache list command.
func NewCacheListCommand(rootCmd *RootCommand, cacheCmd *CacheCommand) *CacheListCommand {
	c := &CacheListCommand{rootCmd: rootCmd, cacheCmd: cacheCmd}

	c.Cmd = cacheCmd.Cmd.Command("list", "List the cached bundle files of a package.")
	c.Cmd.Flag("prefix", "Only show bundles starting with this prefix.").StringVar(&c.prefix)

	return c
}

func (c CacheListCommand) Name() string { return c.Cmd.FullCommand() }

func (c CacheListCommand) Run(ctx context.Context) error {
	_, repo, closeCache, err := newCacheService(ctx, c.rootCmd)
	if err != nil {
		return err
	}
	defer closeCache()

	svc, err := list.NewService(list.ServiceConfig{
		Repository: repo,
		Logger:     c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	records, err := svc.Run(ctx, list.Request{
		PackageName:  c.cacheCmd.packageName,
		BundlePrefix: c.prefix,
	})
	if err != nil {
		return fmt.Errorf("could not list cache: %w", err)
	}

	if err := newPrinter(c.cacheCmd.format, c.rootCmd.Stdout).PrintCacheRecords(records); err != nil {
		return fmt.Errorf("could not print cache records: %w", err)
	}

	return nil
}

type CacheVerifyCommand struct {
	Cmd      *kingpin.CmdClause
	rootCmd  *RootCommand
	cacheCmd *CacheCommand

	discard bool
}

// NewCacheVerifyCommand returns the cache verify command.
func NewCacheVerifyCommand(rootCmd *RootCommand, cacheCmd *CacheCommand) *CacheVerifyCommand {
	c := &CacheVerifyCommand{rootCmd: rootCmd, cacheCmd: cacheCmd}

	c.Cmd = cacheCmd.Cmd.Command("verify", "Verify the cached bundle files of a package.")
	c.Cmd.Flag("discard", "Discard the files that fail the verification.").BoolVar(&c.discard)

	return c
}

func (c CacheVerifyCommand) Name() string { return c.Cmd.FullCommand() }

func (c CacheVerifyCommand) Run(ctx context.Context) error {
	cacheSvc, _, closeCache, err := newCacheService(ctx, c.rootCmd)
	if err != nil {
		return err
	}
	defer closeCache()

	svc, err := cachecheck.NewService(cachecheck.ServiceConfig{
		Cache:  cacheSvc,
		Logger: c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	results, err := svc.Run(ctx, cachecheck.Request{
		PackageName: c.cacheCmd.packageName,
		Discard:     c.discard,
	})
	if err != nil {
		return fmt.Errorf("could not verify cache: %w", err)
	}

	if err := newPrinter(c.cacheCmd.format, c.rootCmd.Stdout).PrintCacheCheck(results); err != nil {
		return fmt.Errorf("could not print check results: %w", err)
	}

	if model.HasErrors(results) {
		_, _, errs := model.CountByStatus(results)
		return fmt.Errorf("cache verification failed with %d error(s)", errs)
	}

	return nil
}
