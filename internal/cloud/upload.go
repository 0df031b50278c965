package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Upload request/response types for JSON serialization. Key names follow
// the service, including its "VissibleName" spelling.
type uploadRequest struct {
	ID      string `json:"ID"`
	Type    string `json:"Type"`
	Version int    `json:"Version"`
}

type metadataRequest struct {
	ID             string `json:"ID"`
	Parent         string `json:"parent"`
	VissibleName   string `json:"VissibleName"` //nolint:misspell // service field name
	ModifiedClient string `json:"ModifiedClient"`
	Type           string `json:"Type"`
	Version        int    `json:"Version"`
}

type uploadDirectionsResponse struct {
	ID                string `json:"ID"`
	Version           int    `json:"Version"`
	Message           string `json:"Message"`
	Success           *bool  `json:"Success"`
	BlobURLPut        string `json:"BlobURLPut"`
	BlobURLPutExpires string `json:"BlobURLPutExpires"`
}

// RequestSlot asks the storage service for a place to write a new document.
// The returned directions carry the document id the archive must be built
// around and the URL to write it to.
func (c *Client) RequestSlot(ctx context.Context, endpoint string) (*UploadDirections, error) {
	id := c.newID()

	c.logger.Info("requesting upload slot", slog.String("document_id", id))

	body, err := json.Marshal(uploadRequest{
		ID:      id,
		Type:    DocumentType,
		Version: documentVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("cloud: marshaling upload request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPut, endpoint+UploadRequestPath, contentTypeJSON, body)
	if err != nil {
		return nil, err
	}

	return c.parseDirections(resp)
}

// parseDirections decodes the slot answer. The service answers with either
// a single object or a one-element array. A body that does not decode, or
// lacks an ID or write URL, is malformed; the raw body is preserved.
func (c *Client) parseDirections(body []byte) (*UploadDirections, error) {
	raw := strings.TrimSpace(string(body))

	var dr uploadDirectionsResponse

	if strings.HasPrefix(raw, "[") {
		var list []uploadDirectionsResponse
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			return nil, &MalformedResponseError{RawBody: string(body), Err: err}
		}

		if len(list) != 1 {
			return nil, &MalformedResponseError{
				RawBody: string(body),
				Err:     fmt.Errorf("expected one upload direction, got %d", len(list)),
			}
		}

		dr = list[0]
	} else if err := json.Unmarshal([]byte(raw), &dr); err != nil {
		return nil, &MalformedResponseError{RawBody: string(body), Err: err}
	}

	if dr.Success != nil && !*dr.Success {
		c.logger.Warn("upload slot refused", slog.String("message", dr.Message))

		return nil, &RejectedError{Status: http.StatusOK, Body: dr.Message}
	}

	if dr.ID == "" || dr.BlobURLPut == "" {
		return nil, &MalformedResponseError{
			RawBody: string(body),
			Err:     fmt.Errorf("missing ID or BlobURLPut"),
		}
	}

	d := &UploadDirections{
		DocumentID: dr.ID,
		Version:    dr.Version,
		WriteURL:   dr.BlobURLPut,
		Success:    true,
		Message:    dr.Message,
	}

	if dr.BlobURLPutExpires != "" {
		exp, parseErr := time.Parse(time.RFC3339, dr.BlobURLPutExpires)
		if parseErr != nil {
			c.logger.Warn("invalid upload slot expiration, ignoring",
				slog.String("raw", dr.BlobURLPutExpires),
				slog.String("error", parseErr.Error()),
			)
		} else {
			d.ExpiresAt = exp
		}
	}

	c.logger.Debug("upload slot granted",
		slog.String("document_id", d.DocumentID),
		slog.Time("expires", d.ExpiresAt),
	)

	return d, nil
}

// TransferBlob writes the archive to the slot's write URL in a single PUT.
// A slot whose expiry has passed is not attempted.
func (c *Client) TransferBlob(ctx context.Context, archive []byte, d *UploadDirections) error {
	if d.Expired(c.nowFunc()) {
		return fmt.Errorf("%w: expired at %s", ErrSlotExpired, d.ExpiresAt.Format(time.RFC3339))
	}

	c.logger.Info("transferring document blob",
		slog.String("document_id", d.DocumentID),
		slog.Int("size", len(archive)),
	)

	if _, err := c.do(ctx, http.MethodPut, d.WriteURL, "", archive); err != nil {
		return err
	}

	c.logger.Debug("blob transferred", slog.String("document_id", d.DocumentID))

	return nil
}

// RegisterMetadata makes an uploaded blob visible under name. It reuses the
// upload request route with a metadata payload whose parent is the
// negotiated document id.
func (c *Client) RegisterMetadata(ctx context.Context, endpoint string, d *UploadDirections, name string) error {
	payload := metadataRequest{
		ID:             c.newID(),
		Parent:         d.DocumentID,
		VissibleName:   name,
		ModifiedClient: c.nowFunc().UTC().Format(time.RFC3339),
		Type:           DocumentType,
		Version:        documentVersion,
	}

	c.logger.Info("registering document metadata",
		slog.String("document_id", d.DocumentID),
		slog.String("metadata_id", payload.ID),
		slog.String("name", name),
	)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("cloud: marshaling metadata: %w", err)
	}

	if _, err := c.do(ctx, http.MethodPut, endpoint+UploadRequestPath, contentTypeJSON, body); err != nil {
		return err
	}

	return nil
}
