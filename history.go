package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/remarkable-go/internal/journal"
)

const defaultHistoryLimit = 20

var errJournalDisabled = errors.New("upload journal is disabled; set [journal] enabled = true in the config file")

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent uploads from the local journal",
		Long: `List recent uploads from the local journal.

A run marked "orphaned" transferred its document but failed to register it,
so the document is not visible on the device.`,
		Args: cobra.NoArgs,
		RunE: runHistory,
	}

	cmd.Flags().IntP("limit", "n", defaultHistoryLimit, "maximum number of runs to show")

	return cmd
}

// historyEntry is the JSON schema for `history --json`.
type historyEntry struct {
	RunID      string     `json:"run_id"`
	Name       string     `json:"name"`
	Size       int64      `json:"size"`
	DocumentID string     `json:"document_id,omitempty"`
	Stage      string     `json:"stage"`
	Status     string     `json:"status"`
	Orphaned   bool       `json:"orphaned"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func runHistory(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := cmd.Context()

	if ctx == nil {
		ctx = context.Background()
	}

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	if limit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", limit)
	}

	j, err := openJournal(ctx, logger)
	if err != nil {
		return err
	}

	if j == nil {
		return errJournalDisabled
	}
	defer j.Close()

	runs, err := j.Recent(ctx, limit)
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(os.Stdout, historyEntries(runs))
	}

	if len(runs) == 0 {
		statusf("No uploads recorded.\n")
		return nil
	}

	printHistoryTable(runs, time.Now())

	return nil
}

func historyEntries(runs []journal.Run) []historyEntry {
	out := make([]historyEntry, 0, len(runs))

	for i := range runs {
		r := &runs[i]

		e := historyEntry{
			RunID:      r.RunID,
			Name:       r.DisplayName,
			Size:       r.Size,
			DocumentID: r.DocumentID,
			Stage:      r.Stage,
			Status:     r.Status,
			Orphaned:   r.Orphaned(),
			Error:      r.Error,
			StartedAt:  r.StartedAt,
		}

		if !r.FinishedAt.IsZero() {
			finished := r.FinishedAt
			e.FinishedAt = &finished
		}

		out = append(out, e)
	}

	return out
}

func printHistoryTable(runs []journal.Run, now time.Time) {
	headers := []string{"STARTED", "STATUS", "STAGE", "SIZE", "DOCUMENT", "NAME"}
	rows := make([][]string, 0, len(runs))

	for i := range runs {
		r := &runs[i]

		status := r.Status
		if r.Orphaned() {
			status = "orphaned"
		}

		doc := r.DocumentID
		if doc == "" {
			doc = "-"
		}

		rows = append(rows, []string{
			formatTime(r.StartedAt, now),
			status,
			r.Stage,
			formatSize(r.Size),
			doc,
			strconv.Quote(r.DisplayName),
		})
	}

	printTable(os.Stdout, headers, rows)
}
