package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/remarkable-go/internal/cloud"
	"github.com/tonimelisma/remarkable-go/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}
}

// productionService is what empty [service] keys resolve to.
var productionService = config.ServiceConfig{
	AuthHost:     cloud.DefaultAuthHost,
	DiscoveryURL: cloud.DefaultDiscoveryURL,
	Group:        cloud.DefaultGroup,
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	if flagJSON {
		return printJSON(os.Stdout, resolvedCfg)
	}

	return config.RenderEffective(resolvedCfg, productionService, os.Stdout)
}
