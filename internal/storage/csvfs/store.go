// Package csvfs implements crawler.Store as one CSV file per
// (topic, modifier) under a data root: <root>/<topic>/<modifier>.csv.
package csvfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/JakeFAU/keyword-crawler/internal/crawler"
)

const ext = ".csv"

// Config captures the parameters for the CSV store.
type Config struct {
	// DataRoot is the directory holding one subdirectory per topic.
	DataRoot string `mapstructure:"data_root" yaml:"data_root"`
}

// Store reads and writes batch files on the local filesystem.
type Store struct {
	root string
}

// New creates a CSV store. The data root is created lazily on first write.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.DataRoot) == "" {
		return nil, fmt.Errorf("data root is required")
	}
	return &Store{root: filepath.Clean(cfg.DataRoot)}, nil
}

// Path returns the file holding the batch for (topic, modifier).
func (s *Store) Path(topic, modifier string) (string, error) {
	name := crawler.PartitionName(topic, modifier)
	if !safeName(topic) || !safeName(name) {
		return "", fmt.Errorf("path traversal detected")
	}
	return filepath.Join(s.root, topic, name+ext), nil
}

// WriteBatch replaces the batch file for (topic, modifier). The file is
// written to a temporary name and renamed so readers never see a partial batch.
func (s *Store) WriteBatch(_ context.Context, batch crawler.Batch) error {
	path, err := s.Path(batch.Topic, batch.Modifier)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create topic directory: %w", err)
	}

	var buf bytes.Buffer
	if err := crawler.WriteCSV(&buf, batch.Items); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write batch: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace batch: %w", err)
	}
	return nil
}

// ReadBatch returns the stored items, or crawler.ErrNotFound if the file is absent.
func (s *Store) ReadBatch(_ context.Context, topic, modifier string) ([]crawler.StoredItem, error) {
	path, err := s.Path(topic, modifier)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path) //nolint:gosec // path is confined to the data root
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, crawler.ErrNotFound
		}
		return nil, fmt.Errorf("failed to open batch: %w", err)
	}
	defer func() { _ = f.Close() }()
	return crawler.ReadCSV(f)
}

// Topics lists topic directories in name order. A missing data root yields
// an empty list.
func (s *Store) Topics(_ context.Context) ([]string, error) {
	entries, err := readDir(s.root)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// Modifiers lists the batch names stored for topic in name order.
func (s *Store) Modifiers(_ context.Context, topic string) ([]string, error) {
	if !safeName(topic) {
		return []string{}, nil
	}
	entries, err := readDir(filepath.Join(s.root, topic))
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		out = append(out, strings.TrimSuffix(name, ext))
	}
	return out, nil
}

func readDir(dir string) ([]fs.DirEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}

func safeName(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}
