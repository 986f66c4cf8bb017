// Package storage mirrors persisted batches to a blob store so each run
// leaves an immutable copy alongside the overwritten working set.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/JakeFAU/keyword-crawler/internal/crawler"
	"github.com/JakeFAU/keyword-crawler/internal/hash/sha256"
)

// ContentType is the MIME type of archived batches.
const ContentType = "text/csv"

// Archive uploads batch CSVs under <prefix>/<run>/<topic>/<modifier>.csv.
type Archive struct {
	blobs  crawler.BlobStore
	hasher crawler.Hasher
	prefix string
}

// Archived describes one uploaded batch.
type Archived struct {
	URI      string
	Checksum string
}

// NewArchive wraps blobs. A nil blob store yields a nil Archive, whose
// Put is a no-op.
func NewArchive(blobs crawler.BlobStore, prefix string) *Archive {
	if blobs == nil {
		return nil
	}
	return &Archive{blobs: blobs, hasher: sha256.New(), prefix: strings.Trim(prefix, "/")}
}

// Key returns the object path for batch within run.
func (a *Archive) Key(runID string, batch crawler.Batch) string {
	name := crawler.PartitionName(batch.Topic, batch.Modifier) + ".csv"
	return path.Join(a.prefix, runID, batch.Topic, name)
}

// Put encodes batch and uploads it, returning the object URI and the
// SHA-256 of the uploaded CSV.
func (a *Archive) Put(ctx context.Context, runID string, batch crawler.Batch) (Archived, error) {
	if a == nil {
		return Archived{}, nil
	}
	var buf bytes.Buffer
	if err := crawler.WriteCSV(&buf, batch.Items); err != nil {
		return Archived{}, err
	}
	sum, err := a.hasher.Hash(buf.Bytes())
	if err != nil {
		return Archived{}, fmt.Errorf("hash batch %s/%s: %w", batch.Topic, batch.Modifier, err)
	}
	uri, err := a.blobs.PutObject(ctx, a.Key(runID, batch), ContentType, &buf)
	if err != nil {
		return Archived{}, fmt.Errorf("archive batch %s/%s: %w", batch.Topic, batch.Modifier, err)
	}
	return Archived{URI: uri, Checksum: sum}, nil
}
