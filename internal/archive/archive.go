// Package archive builds the zip container the document service stores for
// each document: the raw file plus the page and content descriptors the
// tablet needs to render it. Everything happens in memory.
package archive

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrArchive wraps any failure while building or reading an archive.
var ErrArchive = errors.New("archive: error during zipping of pdf and metadata")

// Entry extensions, in the order they are written.
const (
	ExtPDF      = ".pdf"
	ExtPagedata = ".pagedata"
	ExtContent  = ".content"
)

// maxEntrySize bounds decompression in Unpack.
const maxEntrySize = 1 << 30

// Content is the .content descriptor. Field names and defaults follow what
// the tablet writes for a freshly imported PDF.
type Content struct {
	ExtraMetadata  map[string]string `json:"extraMetadata"`
	FileType       string            `json:"fileType"`
	LastOpenedPage int               `json:"lastOpenedPage"`
	LineHeight     int               `json:"lineHeight"`
	Margins        int               `json:"margins"`
	TextScale      float64           `json:"textScale"`
	Transform      map[string]string `json:"transform"`
}

// DefaultContent returns the rendering defaults for a PDF.
func DefaultContent() Content {
	return Content{
		ExtraMetadata:  map[string]string{},
		FileType:       "pdf",
		LastOpenedPage: 0,
		LineHeight:     -1,
		Margins:        100,
		TextScale:      1,
		Transform:      map[string]string{},
	}
}

// EntryNames returns the three entry names for a document id.
func EntryNames(documentID string) []string {
	return []string{
		documentID + ExtPDF,
		documentID + ExtPagedata,
		documentID + ExtContent,
	}
}

// Pack builds the archive for document under documentID. The bytes are not
// inspected; anything is accepted and labeled as PDF. The .pagedata entry is
// left empty since page templates are only known after the tablet has
// rendered the file.
func Pack(document []byte, documentID string) ([]byte, error) {
	if documentID == "" {
		return nil, fmt.Errorf("%w: empty document id", ErrArchive)
	}

	content, err := json.MarshalIndent(DefaultContent(), "", "    ")
	if err != nil {
		return nil, fmt.Errorf("%w: encoding content descriptor: %w", ErrArchive, err)
	}

	buf := bytes.NewBuffer(make([]byte, 0, len(document)+len(content)))
	zw := zip.NewWriter(buf)

	names := EntryNames(documentID)
	payloads := [][]byte{document, nil, content}

	for i, name := range names {
		w, createErr := zw.Create(name)
		if createErr != nil {
			return nil, fmt.Errorf("%w: starting %s: %w", ErrArchive, name, createErr)
		}

		if _, writeErr := w.Write(payloads[i]); writeErr != nil {
			return nil, fmt.Errorf("%w: writing %s: %w", ErrArchive, name, writeErr)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("%w: finishing: %w", ErrArchive, err)
	}

	return buf.Bytes(), nil
}

// Unpack reads every entry of an archive into memory, keyed by name.
func Unpack(data []byte) (map[string][]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: opening: %w", ErrArchive, err)
	}

	entries := make(map[string][]byte, len(zr.File))

	for _, f := range zr.File {
		b, readErr := readEntry(f)
		if readErr != nil {
			return nil, readErr
		}

		entries[f.Name] = b
	}

	return entries, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", ErrArchive, f.Name, err)
	}
	defer rc.Close()

	b, err := io.ReadAll(io.LimitReader(rc, maxEntrySize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrArchive, f.Name, err)
	}

	return b, nil
}
