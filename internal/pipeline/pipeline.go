// Package pipeline runs one document upload end to end: credential,
// session, storage discovery, slot negotiation, packaging, blob transfer,
// and metadata registration. Stages run strictly in order and the first
// failure aborts the run. Nothing is retried or rolled back: a slot that was
// negotiated but never written is abandoned, and a blob whose metadata
// registration failed stays invisible.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/remarkable-go/internal/archive"
	"github.com/tonimelisma/remarkable-go/internal/cloud"
	"github.com/tonimelisma/remarkable-go/internal/session"
)

// ErrPairingAborted is returned when the user gives no pairing code.
var ErrPairingAborted = errors.New("pipeline: pairing aborted")

// ErrEmptyName is returned for a blank display name.
var ErrEmptyName = fmt.Errorf("%w: display name is empty", cloud.ErrPrecondition)

// CredentialStore persists the refresh credential. tokenfile.Store
// implements it.
type CredentialStore interface {
	Load() (string, error)
	Save(token string) error
}

// Authenticator pairs devices and mints session credentials.
// cloud.Authenticator implements it.
type Authenticator interface {
	Pair(ctx context.Context, code string) (string, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
}

// Storage is the set of document-storage calls made with a session.
// cloud.Client implements it.
type Storage interface {
	Locate(ctx context.Context) (string, error)
	RequestSlot(ctx context.Context, endpoint string) (*cloud.UploadDirections, error)
	TransferBlob(ctx context.Context, archive []byte, d *cloud.UploadDirections) error
	RegisterMetadata(ctx context.Context, endpoint string, d *cloud.UploadDirections, name string) error
}

// Journal records run progress. journal.Journal implements it. Journal
// failures are logged and never fail an upload.
type Journal interface {
	Begin(ctx context.Context, runID, name string, size int64) error
	Advance(ctx context.Context, runID, stage, documentID string) error
	Finish(ctx context.Context, runID string, runErr error) error
}

// PromptFunc asks the user for a pairing code. An empty answer aborts.
type PromptFunc func(ctx context.Context) (string, error)

// StorageFactory builds a Storage bound to a session token source.
type StorageFactory func(ts cloud.TokenSource) Storage

// PackFunc builds the upload archive. archive.Pack by default.
type PackFunc func(document []byte, documentID string) ([]byte, error)

// Deps are the collaborators of an Uploader. Store, Auth, NewStorage and
// Prompt are required.
type Deps struct {
	Store      CredentialStore
	Auth       Authenticator
	NewStorage StorageFactory
	Prompt     PromptFunc
	Pack       PackFunc
	Journal    Journal
	Logger     *slog.Logger
}

// UploadResult describes a completed upload.
type UploadResult struct {
	RunID       string
	DocumentID  string
	Name        string
	Size        int
	ArchiveSize int
	Paired      bool // a new device pairing happened during this run
}

// Uploader runs upload pipelines. It holds no per-run state and may be
// reused for sequential uploads.
type Uploader struct {
	store      CredentialStore
	auth       Authenticator
	newStorage StorageFactory
	prompt     PromptFunc
	pack       PackFunc
	journal    Journal
	logger     *slog.Logger
	newRunID   func() string
}

// New creates an Uploader from deps.
func New(deps Deps) *Uploader {
	u := &Uploader{
		store:      deps.Store,
		auth:       deps.Auth,
		newStorage: deps.NewStorage,
		prompt:     deps.Prompt,
		pack:       deps.Pack,
		journal:    deps.Journal,
		logger:     deps.Logger,
		newRunID:   uuid.NewString,
	}

	if u.pack == nil {
		u.pack = archive.Pack
	}

	if u.journal == nil {
		u.journal = nopJournal{}
	}

	if u.logger == nil {
		u.logger = slog.Default()
	}

	return u
}

// NormalizeName trims a display name and converts it to NFC so names typed
// on macOS (NFD) match the same names typed elsewhere.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// Upload sends document to the cloud as a new document called name.
func (u *Uploader) Upload(ctx context.Context, name string, document []byte) (*UploadResult, error) {
	name = NormalizeName(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	runID := u.newRunID()

	u.logger.Info("upload started",
		slog.String("run_id", runID),
		slog.String("name", name),
		slog.Int("size", len(document)),
	)

	// Journal writes survive cancellation so an interrupted run is recorded.
	jctx := context.WithoutCancel(ctx)

	if err := u.journal.Begin(jctx, runID, name, int64(len(document))); err != nil {
		u.logger.Warn("journal begin failed", slog.String("error", err.Error()))
	}

	res, err := u.run(ctx, runID, name, document)

	if jErr := u.journal.Finish(jctx, runID, err); jErr != nil {
		u.logger.Warn("journal finish failed", slog.String("error", jErr.Error()))
	}

	if err != nil {
		u.logger.Error("upload failed",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)

		return nil, err
	}

	u.logger.Info("upload complete",
		slog.String("run_id", runID),
		slog.String("document_id", res.DocumentID),
	)

	return res, nil
}

func (u *Uploader) run(ctx context.Context, runID, name string, document []byte) (*UploadResult, error) {
	res := &UploadResult{RunID: runID, Name: name, Size: len(document)}

	refresh, paired, err := u.credential(ctx)
	if err != nil {
		return nil, &StageError{Stage: StageCredential, Err: err}
	}

	res.Paired = paired

	u.advance(ctx, runID, StageSession, "")

	ts := session.NewSource(ctx, u.auth, refresh, u.logger)
	if _, err := ts.Token(); err != nil {
		return nil, &StageError{Stage: StageSession, Err: err}
	}

	storage := u.newStorage(ts)

	u.advance(ctx, runID, StageLocate, "")

	endpoint, err := storage.Locate(ctx)
	if err != nil {
		return nil, &StageError{Stage: StageLocate, Err: err}
	}

	u.advance(ctx, runID, StageNegotiate, "")

	directions, err := storage.RequestSlot(ctx, endpoint)
	if err != nil {
		return nil, &StageError{Stage: StageNegotiate, Err: err}
	}

	res.DocumentID = directions.DocumentID

	u.advance(ctx, runID, StagePack, directions.DocumentID)

	zipped, err := u.pack(document, directions.DocumentID)
	if err != nil {
		return nil, &StageError{Stage: StagePack, Err: err}
	}

	res.ArchiveSize = len(zipped)

	u.advance(ctx, runID, StageTransfer, "")

	if err := storage.TransferBlob(ctx, zipped, directions); err != nil {
		return nil, &StageError{Stage: StageTransfer, Err: err}
	}

	u.advance(ctx, runID, StageRegister, "")

	if err := storage.RegisterMetadata(ctx, endpoint, directions, name); err != nil {
		u.logger.Warn("metadata registration failed after blob transfer; blob is orphaned",
			slog.String("document_id", directions.DocumentID),
		)

		return nil, &StageError{Stage: StageRegister, Err: err}
	}

	return res, nil
}

// credential returns the stored refresh credential, pairing a new one if
// none can be loaded. A freshly paired credential is persisted before use.
func (u *Uploader) credential(ctx context.Context) (string, bool, error) {
	tok, loadErr := u.store.Load()
	if loadErr == nil {
		attrs := []any{slog.Bool("jwt", false)}
		if exp, ok := session.Expiry(tok); ok {
			attrs = []any{slog.Bool("jwt", true), slog.Time("expiry", exp)}
		}

		u.logger.Debug("loaded stored credential", attrs...)

		return tok, false, nil
	}

	u.logger.Info("no stored credential, pairing required",
		slog.String("reason", loadErr.Error()),
	)

	code, err := u.prompt(ctx)
	if err != nil {
		return "", false, fmt.Errorf("reading pairing code: %w", err)
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return "", false, ErrPairingAborted
	}

	tok, err = u.auth.Pair(ctx, code)
	if err != nil {
		return "", false, err
	}

	if err := u.store.Save(tok); err != nil {
		return "", false, err
	}

	u.logger.Info("paired and saved new credential")

	return tok, true, nil
}

func (u *Uploader) advance(ctx context.Context, runID string, stage Stage, documentID string) {
	u.logger.Debug("stage", slog.String("run_id", runID), slog.String("stage", string(stage)))

	if err := u.journal.Advance(context.WithoutCancel(ctx), runID, string(stage), documentID); err != nil {
		u.logger.Warn("journal advance failed",
			slog.String("stage", string(stage)),
			slog.String("error", err.Error()),
		)
	}
}

type nopJournal struct{}

func (nopJournal) Begin(context.Context, string, string, int64) error   { return nil }
func (nopJournal) Advance(context.Context, string, string, string) error { return nil }
func (nopJournal) Finish(context.Context, string, error) error           { return nil }
