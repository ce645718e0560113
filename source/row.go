package source

import (
	"context"
	"errors"

	"github.com/tidwall/gjson"
)

var (
	// ErrInvalidRow is returned when a raw record is not a JSON object.
	ErrInvalidRow = errors.New("raw row is not a JSON object")
	// ErrNotRefreshable is returned by Refresh for rows read from files.
	ErrNotRefreshable = errors.New("row cannot be refreshed")
)

// Row is one raw example. Fields are addressed with gjson paths, e.g.
// "caption" or "audio.sampling_rate".
type Row struct {
	result gjson.Result

	// BaseDir is the directory of the file the row was read from. Relative
	// paths stored in the row (audio files) resolve against it. Empty for
	// rows that did not come from the local filesystem.
	BaseDir string

	// refresh refetches the row from a remote source, dropping cached copies.
	refresh func(ctx context.Context) (Row, error)
}

// NewRow parses a JSON object into a Row.
func NewRow(raw []byte, baseDir string) (Row, error) {
	if !gjson.ValidBytes(raw) {
		return Row{}, ErrInvalidRow
	}
	res := gjson.ParseBytes(raw)
	if !res.IsObject() {
		return Row{}, ErrInvalidRow
	}
	return Row{result: res, BaseDir: baseDir}, nil
}

// Get returns the value at path.
func (r Row) Get(path string) gjson.Result {
	return r.result.Get(path)
}

// String returns the string value at path and whether it exists.
func (r Row) String(path string) (string, bool) {
	v := r.result.Get(path)
	if !v.Exists() {
		return "", false
	}
	return v.String(), true
}

// Raw returns the row as JSON text.
func (r Row) Raw() string {
	return r.result.Raw
}

// Refresh reads the row again from its remote source, bypassing any cached
// copy. Hub rows carry signed asset URLs that expire; a refreshed row has new
// ones. Rows from local files return ErrNotRefreshable.
func (r Row) Refresh(ctx context.Context) (Row, error) {
	if r.refresh == nil {
		return Row{}, ErrNotRefreshable
	}
	return r.refresh(ctx)
}
