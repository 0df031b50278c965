package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/remarkable-go/internal/cloud"
	"github.com/tonimelisma/remarkable-go/internal/journal"
	"github.com/tonimelisma/remarkable-go/internal/pipeline"
	"github.com/tonimelisma/remarkable-go/internal/tokenfile"
)

func newUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <file.pdf>",
		Short: "Upload a PDF to the reMarkable cloud",
		Long: `Upload a PDF to the reMarkable cloud.

Pairs this computer first if no credential is stored. The new document's
id is printed on stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: runUpload,
	}

	cmd.Flags().String("name", "", "display name (default: file name without extension)")

	return cmd
}

// uploadOutput is the JSON schema for `upload --json`.
type uploadOutput struct {
	DocumentID  string `json:"document_id"`
	Name        string `json:"name"`
	Size        int    `json:"size"`
	ArchiveSize int    `json:"archive_size"`
	RunID       string `json:"run_id"`
	Paired      bool   `json:"paired"`
}

// defaultDisplayName derives a display name from a file path.
func defaultDisplayName(path string) string {
	base := filepath.Base(path)

	return strings.TrimSuffix(base, filepath.Ext(base))
}

func runUpload(cmd *cobra.Command, args []string) error {
	logger := buildLogger()
	ctx := cmd.Context()

	if ctx == nil {
		ctx = context.Background()
	}

	path := args[0]

	name, err := cmd.Flags().GetString("name")
	if err != nil {
		return err
	}

	if name == "" {
		name = defaultDisplayName(path)
	}

	document, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if !bytes.HasPrefix(document, []byte("%PDF-")) {
		logger.Warn("file does not look like a PDF", slog.String("path", path))
	}

	ctx, stop := interruptContext(ctx, logger)
	defer stop()

	uploader, closeFn, err := newUploader(ctx, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	statusf("Uploading %s (%s)...\n", path, formatSize(int64(len(document))))

	res, err := uploader.Upload(ctx, name, document)
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(os.Stdout, uploadOutput{
			DocumentID:  res.DocumentID,
			Name:        res.Name,
			Size:        res.Size,
			ArchiveSize: res.ArchiveSize,
			RunID:       res.RunID,
			Paired:      res.Paired,
		})
	}

	statusf("Uploaded %q.\n", res.Name)
	fmt.Fprintln(os.Stdout, res.DocumentID)

	return nil
}

// newUploader wires the pipeline from the resolved config. The returned
// close function releases the journal, if one was opened.
func newUploader(ctx context.Context, logger *slog.Logger) (*pipeline.Uploader, func(), error) {
	httpClient, err := newHTTPClient()
	if err != nil {
		return nil, nil, err
	}

	ep, err := cloudEndpoints()
	if err != nil {
		return nil, nil, err
	}

	ua := userAgent()

	deps := pipeline.Deps{
		Store: tokenfile.NewStore(resolvedCfg.TokenPath),
		Auth:  cloud.NewAuthenticator(ep, resolvedCfg.DeviceDescription, httpClient, logger, ua),
		NewStorage: func(ts cloud.TokenSource) pipeline.Storage {
			return cloud.NewClient(ep.DiscoveryURL, httpClient, ts, logger, ua)
		},
		Prompt: promptPairingCode,
		Logger: logger,
	}

	closeFn := func() {}

	j, err := openJournal(ctx, logger)
	if err != nil {
		return nil, nil, err
	}

	if j != nil {
		deps.Journal = j
		closeFn = func() {
			if cerr := j.Close(); cerr != nil {
				logger.Warn("closing journal", slog.String("error", cerr.Error()))
			}
		}
	}

	return pipeline.New(deps), closeFn, nil
}

// openJournal opens the upload journal when it is enabled. A nil journal
// and nil error mean it is disabled.
func openJournal(ctx context.Context, logger *slog.Logger) (*journal.Journal, error) {
	if !resolvedCfg.Journal.Enabled {
		return nil, nil
	}

	j, err := journal.Open(ctx, resolvedCfg.Journal.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("opening upload journal: %w", err)
	}

	return j, nil
}
