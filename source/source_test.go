package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func captions(t *testing.T, ds RawDataset) []string {
	t.Helper()
	out := make([]string, ds.Len())
	for i := range out {
		row, err := ds.Row(i)
		require.NoError(t, err)
		out[i], _ = row.String("caption")
	}
	return out
}

func TestLoad_JSONLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "train.jsonl")
	writeFile(t, path, "{\"caption\":\"a dog barks\",\"audio\":\"a.wav\"}\n\n{\"caption\":\"rain\",\"audio\":\"b.wav\"}\n")

	ds, err := Load(context.Background(), Spec{Path: path})
	require.NoError(t, err)
	assert.Equal(t, []string{"a dog barks", "rain"}, captions(t, ds))

	row, err := ds.Row(1)
	require.NoError(t, err)
	assert.Equal(t, dir, row.BaseDir)

	_, err = ds.Row(2)
	assert.True(t, errors.Is(err, ErrIndexOutOfRange))
}

func TestLoad_DirectorySplitDiscovery(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "data", "train-00001-of-00002.jsonl"), `{"caption":"second"}`+"\n")
	writeFile(t, filepath.Join(dir, "data", "train-00000-of-00002.jsonl"), `{"caption":"first"}`+"\n")
	writeFile(t, filepath.Join(dir, "data", "test-00000-of-00001.jsonl"), `{"caption":"held out"}`+"\n")

	ds, err := Load(context.Background(), Spec{Path: dir})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, captions(t, ds))

	ds, err = Load(context.Background(), Spec{Path: dir, Split: "test"})
	require.NoError(t, err)
	assert.Equal(t, []string{"held out"}, captions(t, ds))

	_, err = Load(context.Background(), Spec{Path: dir, Split: "validation"})
	assert.Error(t, err)
}

func TestLoad_DataFilesAndFormats(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.json"), `{"data":[{"caption":"from json"}]}`)
	writeFile(t, filepath.Join(dir, "b.csv"), "caption;audio\nfrom csv;x.wav\n")

	ds, err := Load(context.Background(), Spec{Path: dir, DataFiles: "a.json", Args: []string{"field=data"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"from json"}, captions(t, ds))

	ds, err = Load(context.Background(), Spec{Path: dir, DataFiles: "*.csv", Args: []string{"delimiter=;"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"from csv"}, captions(t, ds))
	row, _ := ds.Row(0)
	audio, _ := row.String("audio")
	assert.Equal(t, "x.wav", audio)

	_, err = Load(context.Background(), Spec{Path: dir, DataFiles: "*.parquet"})
	assert.Error(t, err)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(context.Background(), Spec{})
	assert.Error(t, err)

	_, err = Load(context.Background(), Spec{Path: "./does/not/exist"})
	assert.Error(t, err)

	// a missing data file is reported as such, not looked up on the hub
	_, err = Load(context.Background(), Spec{Path: "data/train.jsonl", HubEndpoint: "http://127.0.0.1:1"})
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(context.Background(), Spec{Path: t.TempDir(), Args: []string{"bogus=1"}})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unknown loader arg"))
}

func TestLooksLikeHubID(t *testing.T) {
	for path, want := range map[string]bool{
		"org/caps":         true,
		"caps":             true,
		"data/train.jsonl": false,
		"train.csv":        false,
		"./org/caps":       false,
		"/abs/caps":        false,
		"a/b/c":            false,
	} {
		assert.Equal(t, want, looksLikeHubID(path), path)
	}
}

func TestSelect(t *testing.T) {
	ds := &memoryRows{}
	for _, c := range []string{"a", "b", "c"} {
		row, err := NewRow([]byte(`{"caption":"`+c+`"}`), "")
		require.NoError(t, err)
		ds.rows = append(ds.rows, row)
	}

	assert.Equal(t, []string{"a", "b"}, captions(t, Select(ds, 2)))
	assert.Equal(t, 3, Select(ds, 10).Len())

	_, err := Select(ds, 2).Row(2)
	assert.True(t, errors.Is(err, ErrIndexOutOfRange))
}

func TestConcat_MapsGlobalIndex(t *testing.T) {
	mk := func(cs ...string) RawDataset {
		m := &memoryRows{}
		for _, c := range cs {
			row, _ := NewRow([]byte(`{"caption":"`+c+`"}`), "")
			m.rows = append(m.rows, row)
		}
		return m
	}
	c := newConcat([]RawDataset{mk("a", "b"), mk(), mk("c"), mk("d", "e")})
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, captions(t, c))
}

func TestNewRow_RejectsNonObjects(t *testing.T) {
	_, err := NewRow([]byte(`[1,2]`), "")
	assert.ErrorIs(t, err, ErrInvalidRow)
	_, err = NewRow([]byte(`{broken`), "")
	assert.ErrorIs(t, err, ErrInvalidRow)
}

type fakeStore struct {
	files map[string]string // key -> content
	uris  []string
}

func (f *fakeStore) Download(_ context.Context, uri, dir string) ([]string, error) {
	f.uris = append(f.uris, uri)
	prefix := strings.TrimPrefix(uri, "s3://")
	var out []string
	for key, content := range f.files {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		path := filepath.Join(dir, filepath.FromSlash(key))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return nil, err
		}
		out = append(out, path)
	}
	return out, nil
}

func TestLoad_S3Mirror(t *testing.T) {
	store := &fakeStore{files: map[string]string{
		"bucket/sets/caps/train.jsonl": `{"caption":"remote"}` + "\n",
		"bucket/sets/caps/test.jsonl":  `{"caption":"remote test"}` + "\n",
	}}

	ds, err := Load(context.Background(), Spec{Path: "s3://bucket/sets/caps", CacheDir: t.TempDir(), Objects: store})
	require.NoError(t, err)
	assert.Equal(t, []string{"remote"}, captions(t, ds))

	ds, err = Load(context.Background(), Spec{
		Path:      "s3://bucket/sets/caps",
		DataFiles: "test.jsonl",
		CacheDir:  t.TempDir(),
		Objects:   store,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"remote test"}, captions(t, ds))
	assert.Equal(t, "s3://bucket/sets/caps/test.jsonl", store.uris[len(store.uris)-1])
}
