package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// openFiles opens every file and concatenates them in the given order.
func openFiles(paths []string, opts options) (RawDataset, error) {
	parts := make([]RawDataset, 0, len(paths))
	for _, path := range paths {
		ds, err := openFile(path, opts)
		if err != nil {
			return nil, err
		}
		parts = append(parts, ds)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return newConcat(parts), nil
}

func openFile(path string, opts options) (RawDataset, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return openJSONL(path)
	case ".json":
		return openJSON(path, opts.field)
	case ".csv":
		return openCSV(path, opts.delimiter)
	case ".tsv":
		delim := opts.delimiter
		if delim == 0 {
			delim = '\t'
		}
		return openCSV(path, delim)
	}
	return nil, fmt.Errorf("unsupported data file %s", path)
}

// jsonlFile reads JSON lines on demand from byte offsets indexed at open.
type jsonlFile struct {
	path    string
	baseDir string
	offsets []int64
	lengths []int
}

func openJSONL(path string) (*jsonlFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	ds := &jsonlFile{path: path, baseDir: filepath.Dir(path)}
	reader := bufio.NewReader(file)
	var offset int64
	for {
		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			ds.offsets = append(ds.offsets, offset)
			ds.lengths = append(ds.lengths, len(line))
		}
		offset += int64(len(line))
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to index %s: %w", path, err)
		}
	}
	return ds, nil
}

func (d *jsonlFile) Len() int { return len(d.offsets) }

func (d *jsonlFile) Row(i int) (Row, error) {
	if i < 0 || i >= len(d.offsets) {
		return Row{}, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, len(d.offsets))
	}
	file, err := os.Open(d.path)
	if err != nil {
		return Row{}, fmt.Errorf("failed to open %s: %w", d.path, err)
	}
	defer file.Close()

	buf := make([]byte, d.lengths[i])
	if _, err := file.ReadAt(buf, d.offsets[i]); err != nil && !errors.Is(err, io.EOF) {
		return Row{}, fmt.Errorf("failed to read row %d of %s: %w", i, d.path, err)
	}
	row, err := NewRow(bytes.TrimSpace(buf), d.baseDir)
	if err != nil {
		return Row{}, fmt.Errorf("row %d of %s: %w", i, d.path, err)
	}
	return row, nil
}

// memoryRows holds parsed rows of a small file.
type memoryRows struct {
	rows []Row
}

func (d *memoryRows) Len() int { return len(d.rows) }

func (d *memoryRows) Row(i int) (Row, error) {
	if i < 0 || i >= len(d.rows) {
		return Row{}, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, len(d.rows))
	}
	return d.rows[i], nil
}

// openJSON reads a JSON array of objects, or the array stored under field.
func openJSON(path, field string) (*memoryRows, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%s is not valid JSON", path)
	}
	doc := gjson.ParseBytes(data)
	if field != "" {
		doc = doc.Get(field)
	}
	if !doc.IsArray() {
		return nil, fmt.Errorf("%s: expected a JSON array of records (set field=... for nested lists)", path)
	}

	baseDir := filepath.Dir(path)
	items := doc.Array()
	ds := &memoryRows{rows: make([]Row, 0, len(items))}
	for i, item := range items {
		row, err := NewRow([]byte(item.Raw), baseDir)
		if err != nil {
			return nil, fmt.Errorf("record %d of %s: %w", i, path, err)
		}
		ds.rows = append(ds.rows, row)
	}
	return ds, nil
}

// openCSV reads a CSV file with a header row. Cell values stay strings.
func openCSV(path string, delimiter rune) (*memoryRows, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	if delimiter != 0 {
		reader.Comma = delimiter
	}
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	baseDir := filepath.Dir(path)
	ds := &memoryRows{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row of %s: %w", path, err)
		}
		obj := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				obj[col] = record[i]
			}
		}
		raw, err := json.Marshal(obj)
		if err != nil {
			return nil, err
		}
		row, err := NewRow(raw, baseDir)
		if err != nil {
			return nil, err
		}
		ds.rows = append(ds.rows, row)
	}
	return ds, nil
}

// concat joins several datasets; cum[i] is the global index of the first
// row of parts[i].
type concat struct {
	parts []RawDataset
	cum   []int
}

func newConcat(parts []RawDataset) *concat {
	c := &concat{parts: parts, cum: make([]int, len(parts)+1)}
	for i, p := range parts {
		c.cum[i+1] = c.cum[i] + p.Len()
	}
	return c
}

func (c *concat) Len() int { return c.cum[len(c.parts)] }

func (c *concat) Row(i int) (Row, error) {
	return c.RowContext(context.Background(), i)
}

func (c *concat) RowContext(ctx context.Context, i int) (Row, error) {
	if i < 0 || i >= c.Len() {
		return Row{}, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, c.Len())
	}
	// first part whose end is past i
	p := sort.Search(len(c.parts), func(k int) bool { return c.cum[k+1] > i })
	return RowContext(ctx, c.parts[p], i-c.cum[p])
}
