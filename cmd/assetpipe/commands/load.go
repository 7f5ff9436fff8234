package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/assetpipe/internal/app/load"
	"github.com/slok/assetpipe/internal/bundle"
	"github.com/slok/assetpipe/internal/download"
	"github.com/slok/assetpipe/internal/loader"
	"github.com/slok/assetpipe/internal/log"
	"github.com/slok/assetpipe/internal/manifest"
	"github.com/slok/assetpipe/internal/model"
	"github.com/slok/assetpipe/internal/printer"
	storageio "github.com/slok/assetpipe/internal/storage/io"
)

type LoadCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	manifestPath            string
	streamingDir            string
	key                     string
	sync                    bool
	streamingRequiresUnpack bool
	checkFileExists         bool
	downloadRetries         int
	format                  string
	noProgress              bool
	bundles                 []string
}

// NewLoadCommand returns the load command.
func NewLoadCommand(rootCmd *RootCommand, app *kingpin.Application) *LoadCommand {
	c := &LoadCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("load", "Load bundles of a package through the cache.")
	c.Cmd.Arg("bundles", "Bundles to load, all the manifest bundles if none.").StringsVar(&c.bundles)
	c.Cmd.Flag("manifest", "Package manifest file.").Short('m').Required().ExistingFileVar(&c.manifestPath)
	c.Cmd.Flag("streaming-dir", "Streaming location root with the built-in bundles.").StringVar(&c.streamingDir)
	c.Cmd.Flag("key", "Hex encoded master key for encrypted load methods.").Envar("ASSETPIPE_KEY").StringVar(&c.key)
	c.Cmd.Flag("sync", "Force the synchronous completion of the loads.").BoolVar(&c.sync)
	c.Cmd.Flag("streaming-requires-unpack", "Unpack built-in memory and stream bundles into the cache before loading them.").BoolVar(&c.streamingRequiresUnpack)
	c.Cmd.Flag("check-file-exists", "Fail early when a bundle file is missing.").BoolVar(&c.checkFileExists)
	c.Cmd.Flag("retries", "Download retries, unlimited if 0.").Default("3").IntVar(&c.downloadRetries)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")
	c.Cmd.Flag("no-progress", "Disable the progress bar.").BoolVar(&c.noProgress)

	return c
}

func (c LoadCommand) Name() string { return c.Cmd.FullCommand() }

func (c LoadCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger
	ctx = logger.SetValuesOnCtx(ctx, log.Kv{"manifest": c.manifestPath})

	dir, file := filepath.Split(c.manifestPath)
	if dir == "" {
		dir = "."
	}
	m, err := storageio.NewManifestYAMLRepository(os.DirFS(dir)).GetManifest(ctx, file)
	if err != nil {
		return fmt.Errorf("could not load manifest: %w", err)
	}

	bundles := c.bundles
	if len(bundles) == 0 {
		for _, b := range m.Bundles {
			bundles = append(bundles, b.Name)
		}
	}

	cacheSvc, _, closeCache, err := newCacheService(ctx, c.rootCmd)
	if err != nil {
		return err
	}
	defer closeCache()

	patcher, err := manifest.NewPatcher(manifest.PatcherConfig{
		Manifest:     m,
		CacheDir:     c.rootCmd.CacheDir(),
		StreamingDir: c.streamingDir,
		Cache:        cacheSvc,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("could not create manifest patcher: %w", err)
	}

	downloader, err := download.NewHTTPSystem(download.HTTPSystemConfig{
		Recorder: cacheSvc,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("could not create download system: %w", err)
	}
	defer downloader.Close()

	unpacker, err := download.NewUnpackSystem(download.UnpackSystemConfig{
		Recorder: cacheSvc,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("could not create unpack system: %w", err)
	}
	defer unpacker.Close()

	engine, err := bundle.NewFileEngine(bundle.FileEngineConfig{Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create bundle engine: %w", err)
	}

	loaderCfg := loader.Config{
		Downloader:              downloader,
		Unpacker:                unpacker,
		Patcher:                 patcher,
		Engine:                  engine,
		Cache:                   cacheSvc,
		StreamingRequiresUnpack: c.streamingRequiresUnpack,
		CheckFileExists:         c.checkFileExists,
		DownloadRetries:         c.downloadRetries,
		Logger:                  logger,
	}
	// Without key the encrypted bundles fail on load, the rest still load.
	if c.key != "" {
		dec, err := newDecryptionServices(c.key, logger)
		if err != nil {
			return err
		}
		loaderCfg.Decryption = dec
	}

	l, err := loader.New(loaderCfg)
	if err != nil {
		return fmt.Errorf("could not create loader: %w", err)
	}

	svcCfg := load.ServiceConfig{
		Loader:   l,
		Resolver: patcher,
		Logger:   logger,
	}
	var bar *printer.ProgressBar
	if !c.noProgress {
		svcCfg.OnProgress = func(p model.LoadProgress, downloaded, total uint64) {
			if bar == nil {
				bar = printer.NewProgressBar(c.rootCmd.Stderr, int64(total))
			}
			bar.Set(int64(downloaded), p.Done, p.Total)
		}
	}

	svc, err := load.NewService(svcCfg)
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	results, err := svc.Run(ctx, load.Request{
		Bundles: bundles,
		Sync:    c.sync,
	})
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return fmt.Errorf("could not load bundles: %w", err)
	}

	if err := newPrinter(c.format, c.rootCmd.Stdout).PrintLoadResults(results); err != nil {
		return fmt.Errorf("could not print results: %w", err)
	}

	failed := 0
	for _, r := range results {
		if r.Status != model.LoadStatusSucceeded {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d bundles failed to load", failed, len(results))
	}

	return nil
}
