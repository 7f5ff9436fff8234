package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/assetpipe/internal/address"
	appaddress "github.com/slok/assetpipe/internal/app/address"
	"github.com/slok/assetpipe/internal/app/pack"
	"github.com/slok/assetpipe/internal/model"
)

type PackCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	packageName     string
	bundleName      string
	sourceDir       string
	rule            string
	group           string
	loadMethod      string
	outputDir       string
	streamingDir    string
	compression     string
	manifestPath    string
	remoteBaseURL   string
	fallbackBaseURL string
	key             string
}

// NewPackCommand returns the pack command.
func NewPackCommand(rootCmd *RootCommand, app *kingpin.Application) *PackCommand {
	c := &PackCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("pack", "Pack an asset directory into a bundle and register it in the package manifest.")
	c.Cmd.Arg("source", "Asset collector directory.").Required().ExistingDirVar(&c.sourceDir)
	c.Cmd.Flag("package", "Package name.").Short('p').Required().StringVar(&c.packageName)
	c.Cmd.Flag("bundle", "Bundle name.").Short('b').Required().StringVar(&c.bundleName)
	c.Cmd.Flag("manifest", "Package manifest file, created if missing.").Short('m').Required().StringVar(&c.manifestPath)
	c.Cmd.Flag("output-dir", "Root directory of the remote bundle files.").Short('o').Required().StringVar(&c.outputDir)
	c.Cmd.Flag("rule", "Address rule.").Default(address.RuleNameFileName).EnumVar(&c.rule, address.RuleNames()...)
	c.Cmd.Flag("group", "Group name used by the group rule.").StringVar(&c.group)
	c.Cmd.Flag("load-method", "Load method the bundle is encoded for.").Default(string(model.LoadMethodNormal)).
		EnumVar(&c.loadMethod, string(model.LoadMethodNormal), string(model.LoadMethodFileOffset), string(model.LoadMethodMemory), string(model.LoadMethodStream))
	c.Cmd.Flag("streaming-dir", "Streaming location root, makes the bundle built-in.").StringVar(&c.streamingDir)
	c.Cmd.Flag("compression", "Compression of the streaming copy.").Default(string(model.CompressionNone)).
		EnumVar(&c.compression, string(model.CompressionNone), string(model.CompressionLZ4), string(model.CompressionZstd))
	c.Cmd.Flag("remote-base-url", "Remote base URL of the package bundles.").StringVar(&c.remoteBaseURL)
	c.Cmd.Flag("fallback-base-url", "Fallback base URL of the package bundles.").StringVar(&c.fallbackBaseURL)
	c.Cmd.Flag("key", "Hex encoded master key for encrypted load methods.").Envar("ASSETPIPE_KEY").StringVar(&c.key)

	return c
}

func (c PackCommand) Name() string { return c.Cmd.FullCommand() }

func (c PackCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	collector, err := appaddress.NewService(appaddress.ServiceConfig{Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create address service: %w", err)
	}

	cfg := pack.ServiceConfig{
		Collector: collector,
		Logger:    logger,
	}
	if c.key != "" {
		enc, err := newDecryptionServices(c.key, logger)
		if err != nil {
			return err
		}
		cfg.Encoder = enc
	}

	svc, err := pack.NewService(cfg)
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	mb, err := svc.Run(ctx, pack.Request{
		PackageName:     c.packageName,
		BundleName:      c.bundleName,
		SourceDir:       c.sourceDir,
		Rule:            c.rule,
		GroupName:       c.group,
		LoadMethod:      model.LoadMethod(c.loadMethod),
		OutputDir:       c.outputDir,
		StreamingDir:    c.streamingDir,
		Compression:     model.Compression(c.compression),
		ManifestPath:    c.manifestPath,
		RemoteBaseURL:   c.remoteBaseURL,
		FallbackBaseURL: c.fallbackBaseURL,
	})
	if err != nil {
		return fmt.Errorf("could not pack bundle: %w", err)
	}

	msg := fmt.Sprintf("Packed %s/%s: %d assets, %d bytes, hash %s", c.packageName, mb.Name, len(mb.Assets), mb.FileSize, mb.FileHash)
	if err := newPrinter("table", c.rootCmd.Stdout).PrintMessage(msg); err != nil {
		return fmt.Errorf("could not print result: %w", err)
	}

	return nil
}
