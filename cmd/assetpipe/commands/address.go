package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/assetpipe/internal/address"
	appaddress "github.com/slok/assetpipe/internal/app/address"
)

type AddressCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	path   string
	rule   string
	group  string
	format string
}

// NewAddressCommand returns the address command.
func NewAddressCommand(rootCmd *RootCommand, app *kingpin.Application) *AddressCommand {
	c := &AddressCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("address", "Show the addresses of the assets of a collector directory.")
	c.Cmd.Arg("path", "Collector directory.").Required().ExistingDirVar(&c.path)
	c.Cmd.Flag("rule", "Address rule.").Default(address.RuleNameFileName).EnumVar(&c.rule, address.RuleNames()...)
	c.Cmd.Flag("group", "Group name used by the group rule.").StringVar(&c.group)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c AddressCommand) Name() string { return c.Cmd.FullCommand() }

func (c AddressCommand) Run(ctx context.Context) error {
	svc, err := appaddress.NewService(appaddress.ServiceConfig{
		Logger: c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	addresses, err := svc.Run(ctx, appaddress.Request{
		CollectPath: c.path,
		GroupName:   c.group,
		Rule:        c.rule,
	})
	if err != nil {
		return fmt.Errorf("could not compute addresses: %w", err)
	}

	if err := newPrinter(c.format, c.rootCmd.Stdout).PrintAddresses(addresses); err != nil {
		return fmt.Errorf("could not print addresses: %w", err)
	}

	return nil
}
