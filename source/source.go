// Package source loads raw examples for the supervised datasets.
//
// A dataset is named by a path which can be:
//   - a local .jsonl/.json/.csv file, or a directory holding split files
//     (train.jsonl, data/train-00000-of-00001.json, ...)
//   - an s3://bucket/prefix URI, mirrored into the cache dir first
//   - a hub dataset id ("org/name"), read page by page from the
//     datasets-server rows API and cached on disk as JSONL
//
// Local JSONL files are loaded lazily: only line offsets are kept in memory
// and rows are read on demand.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Noofbiz/audioSFT/storage"
)

// ErrIndexOutOfRange is returned by Row for indices outside [0, Len).
var ErrIndexOutOfRange = errors.New("index out of range")

const defaultSplit = "train"

// RawDataset is an indexable collection of raw rows.
type RawDataset interface {
	Len() int
	Row(i int) (Row, error)
}

// ContextRowReader is implemented by datasets whose rows may need network
// I/O. RowContext reads row i, giving up when ctx is done.
type ContextRowReader interface {
	RowContext(ctx context.Context, i int) (Row, error)
}

// RowContext reads row i of ds, passing ctx along when ds supports it.
func RowContext(ctx context.Context, ds RawDataset, i int) (Row, error) {
	if r, ok := ds.(ContextRowReader); ok {
		return r.RowContext(ctx, i)
	}
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}
	return ds.Row(i)
}

// ObjectStore mirrors remote objects into a local directory.
type ObjectStore interface {
	Download(ctx context.Context, uri, dir string) ([]string, error)
}

// Spec names a dataset to load.
type Spec struct {
	// Path is a local file or directory, an s3:// URI or a hub dataset id.
	Path string
	// Name selects the dataset configuration (hub "config"). Defaults to "default".
	Name string
	// Split selects the split. Defaults to "train".
	Split string
	// DataFiles is a comma separated list of globs relative to Path, or an
	// s3:// URI. When set it replaces split discovery.
	DataFiles string
	// Args holds loader specific key=value options.
	Args []string
	// CacheDir stores mirrored objects and hub pages. Defaults to the user
	// cache directory.
	CacheDir string
	// Objects is used for s3:// sources. When nil a default S3 client is
	// created from the ambient AWS configuration.
	Objects ObjectStore
	// HubEndpoint overrides the datasets-server base URL.
	HubEndpoint string
}

func (s Spec) split() string {
	if s.Split == "" {
		return defaultSplit
	}
	return s.Split
}

func (s Spec) cacheDir() string {
	if s.CacheDir != "" {
		return s.CacheDir
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "audiosft")
	}
	return filepath.Join(os.TempDir(), "audiosft")
}

// Load resolves spec into a RawDataset.
func Load(ctx context.Context, spec Spec) (RawDataset, error) {
	if spec.Path == "" {
		return nil, errors.New("dataset path is empty")
	}
	opts, err := parseArgs(spec.Args)
	if err != nil {
		return nil, err
	}

	if storage.IsS3URI(spec.Path) || storage.IsS3URI(spec.DataFiles) {
		return loadS3(ctx, spec, opts)
	}

	if info, err := os.Stat(spec.Path); err == nil {
		files, err := resolveLocalFiles(spec.Path, info.IsDir(), spec.split(), spec.DataFiles)
		if err != nil {
			return nil, err
		}
		slog.Debug("loading local dataset", "path", spec.Path, "files", len(files))
		return openFiles(files, opts)
	}

	if isSupported(spec.Path) {
		return nil, fmt.Errorf("dataset file %s: %w", spec.Path, os.ErrNotExist)
	}
	if !looksLikeHubID(spec.Path) {
		return nil, fmt.Errorf("dataset path %q is not a local file, s3 URI or hub dataset id", spec.Path)
	}
	return newHubDataset(ctx, spec, opts)
}

func loadS3(ctx context.Context, spec Spec, opts options) (RawDataset, error) {
	store := spec.Objects
	if store == nil {
		s3, err := storage.NewS3(ctx, storage.S3Config{})
		if err != nil {
			return nil, err
		}
		store = s3
	}

	uri := spec.Path
	explicit := spec.DataFiles != ""
	switch {
	case storage.IsS3URI(spec.DataFiles):
		uri = spec.DataFiles
	case explicit:
		uri = strings.TrimSuffix(spec.Path, "/") + "/" + strings.TrimPrefix(spec.DataFiles, "/")
	}

	mirror := filepath.Join(spec.cacheDir(), "s3")
	paths, err := store.Download(ctx, uri, mirror)
	if err != nil {
		return nil, fmt.Errorf("failed to mirror %s: %w", uri, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no objects found at %s", uri)
	}
	slog.Info("mirrored dataset objects", "uri", uri, "files", len(paths))

	if explicit {
		return openFiles(paths, opts)
	}

	loc, err := storage.ParseURI(spec.Path)
	if err != nil {
		return nil, err
	}
	root := filepath.Join(mirror, loc.Bucket, filepath.FromSlash(loc.Key))
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("mirrored path %s: %w", root, err)
	}
	files, err := resolveLocalFiles(root, info.IsDir(), spec.split(), "")
	if err != nil {
		return nil, err
	}
	return openFiles(files, opts)
}

// looksLikeHubID accepts "name" and "org/name" ids. Names of data files
// ("data/train.jsonl") are local paths, not ids.
func looksLikeHubID(path string) bool {
	if path == "" || strings.HasPrefix(path, ".") || strings.HasPrefix(path, "/") || strings.Contains(path, "\\") {
		return false
	}
	if isSupported(path) {
		return false
	}
	return strings.Count(path, "/") <= 1
}

// selected exposes the first n rows of a dataset.
type selected struct {
	RawDataset
	n int
}

// Select returns a view of the first n rows of ds. n larger than ds.Len()
// keeps every row.
func Select(ds RawDataset, n int) RawDataset {
	if n < 0 {
		n = 0
	}
	return &selected{RawDataset: ds, n: min(n, ds.Len())}
}

func (s *selected) Len() int { return s.n }

func (s *selected) Row(i int) (Row, error) {
	return s.RowContext(context.Background(), i)
}

func (s *selected) RowContext(ctx context.Context, i int) (Row, error) {
	if i < 0 || i >= s.n {
		return Row{}, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, s.n)
	}
	return RowContext(ctx, s.RawDataset, i)
}
