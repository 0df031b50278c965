package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/remarkable-go/internal/cloud"
	"github.com/tonimelisma/remarkable-go/internal/pipeline"
	"github.com/tonimelisma/remarkable-go/internal/tokenfile"
)

func newPairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pair [code]",
		Short: "Pair this computer with the reMarkable cloud",
		Long: `Pair this computer with the reMarkable cloud using a one-time code
from https://my.remarkable.com/device/desktop/connect. Prompts for the code
when it is not given. Replaces any stored credential.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runPair,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored credential",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func runPair(cmd *cobra.Command, args []string) error {
	logger := buildLogger()
	ctx := cmd.Context()

	if ctx == nil {
		ctx = context.Background()
	}

	var code string
	if len(args) == 1 {
		code = args[0]
	} else {
		var err error
		if code, err = promptPairingCode(ctx); err != nil {
			return err
		}
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return pipeline.ErrPairingAborted
	}

	httpClient, err := newHTTPClient()
	if err != nil {
		return err
	}

	ep, err := cloudEndpoints()
	if err != nil {
		return err
	}

	auth := cloud.NewAuthenticator(ep, resolvedCfg.DeviceDescription, httpClient, logger, userAgent())

	token, err := auth.Pair(ctx, code)
	if err != nil {
		return fmt.Errorf("pairing: %w", err)
	}

	if err := tokenfile.Save(resolvedCfg.TokenPath, token); err != nil {
		return err
	}

	logger.Info("pairing successful", slog.String("token_path", resolvedCfg.TokenPath))
	statusf("Paired. Credential saved to %s\n", resolvedCfg.TokenPath)

	return nil
}

func runLogout(_ *cobra.Command, _ []string) error {
	logger := buildLogger()

	removed, err := tokenfile.Remove(resolvedCfg.TokenPath)
	if err != nil {
		return err
	}

	if !removed {
		statusf("No stored credential at %s\n", resolvedCfg.TokenPath)
		return nil
	}

	logger.Info("credential removed", slog.String("token_path", resolvedCfg.TokenPath))
	statusf("Logged out.\n")

	return nil
}
