package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rowsServer serves total synthetic rows from a /rows endpoint.
func rowsServer(t *testing.T, total int, hits *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if r.URL.Path != "/rows" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if q.Get("dataset") != "org/caps" || q.Get("split") != "train" || q.Get("config") != "default" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		offset, _ := strconv.Atoi(q.Get("offset"))
		length, _ := strconv.Atoi(q.Get("length"))

		type item struct {
			RowIdx int            `json:"row_idx"`
			Row    map[string]any `json:"row"`
		}
		var rows []item
		for i := offset; i < min(offset+length, total); i++ {
			rows = append(rows, item{RowIdx: i, Row: map[string]any{"caption": fmt.Sprintf("clip %d", i)}})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"rows": rows, "num_rows_total": total})
	}))
}

func TestHubDataset_PagesAndCache(t *testing.T) {
	var hits int32
	srv := rowsServer(t, 5, &hits)
	defer srv.Close()

	cache := t.TempDir()
	spec := Spec{Path: "org/caps", CacheDir: cache, HubEndpoint: srv.URL, Args: []string{"page_size=2"}}

	ds, err := Load(context.Background(), spec)
	require.NoError(t, err)
	require.Equal(t, 5, ds.Len())

	row, err := ds.Row(3)
	require.NoError(t, err)
	caption, _ := row.String("caption")
	assert.Equal(t, "clip 3", caption)

	row, err = ds.Row(4)
	require.NoError(t, err)
	caption, _ = row.String("caption")
	assert.Equal(t, "clip 4", caption)

	fetched := atomic.LoadInt32(&hits)
	assert.Equal(t, int32(3), fetched) // pages 0, 1, 2

	// a fresh dataset with the same cache dir is served from disk
	again, err := Load(context.Background(), spec)
	require.NoError(t, err)
	row, err = again.Row(2)
	require.NoError(t, err)
	caption, _ = row.String("caption")
	assert.Equal(t, "clip 2", caption)
	assert.Equal(t, fetched, atomic.LoadInt32(&hits))
}

func TestHubDataset_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such dataset", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := Load(context.Background(), Spec{Path: "org/missing", CacheDir: t.TempDir(), HubEndpoint: srv.URL})
	assert.Error(t, err)
}

func TestHubDataset_StalePagesRefetched(t *testing.T) {
	var hits int32
	srv := rowsServer(t, 4, &hits)
	defer srv.Close()

	cache := t.TempDir()
	spec := Spec{Path: "org/caps", CacheDir: cache, HubEndpoint: srv.URL, Args: []string{"page_size=2"}}
	ds, err := Load(context.Background(), spec)
	require.NoError(t, err)
	_, err = ds.Row(2)
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&hits))

	pages, err := filepath.Glob(filepath.Join(cache, "hub", "*", "*", "*", "page-*.jsonl"))
	require.NoError(t, err)
	require.Len(t, pages, 2)
	old := time.Now().Add(-2 * DefaultHubCacheTTL)
	for _, p := range pages {
		require.NoError(t, os.Chtimes(p, old, old))
	}

	again, err := Load(context.Background(), spec)
	require.NoError(t, err)
	_, err = again.Row(0)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))

	// cache_ttl=0 trusts cached pages regardless of age
	forever := spec
	forever.Args = []string{"page_size=2", "cache_ttl=0"}
	kept, err := Load(context.Background(), forever)
	require.NoError(t, err)
	_, err = kept.Row(2)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestHubDataset_RefreshRefetchesPageOnce(t *testing.T) {
	var hits int32
	srv := rowsServer(t, 4, &hits)
	defer srv.Close()

	spec := Spec{Path: "org/caps", CacheDir: t.TempDir(), HubEndpoint: srv.URL, Args: []string{"page_size=2"}}
	ds, err := Load(context.Background(), spec)
	require.NoError(t, err)

	first, err := ds.Row(0)
	require.NoError(t, err)
	second, err := ds.Row(1)
	require.NoError(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&hits))

	fresh, err := first.Refresh(context.Background())
	require.NoError(t, err)
	caption, _ := fresh.String("caption")
	assert.Equal(t, "clip 0", caption)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))

	// a row from the same stale load does not drop the page again
	_, err = second.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))

	local, err := NewRow([]byte(`{"caption":"x"}`), "")
	require.NoError(t, err)
	_, err = local.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrNotRefreshable)
}

func TestHubDataset_ConcurrentReadsShareOneFetch(t *testing.T) {
	var hits int32
	srv := rowsServer(t, 20, &hits)
	defer srv.Close()

	ds, err := Load(context.Background(), Spec{Path: "org/caps", CacheDir: t.TempDir(), HubEndpoint: srv.URL, Args: []string{"page_size=10"}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = ds.Row(10 + i)
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestHubDataset_RowContextCancelled(t *testing.T) {
	var hits int32
	srv := rowsServer(t, 4, &hits)
	defer srv.Close()

	ds, err := Load(context.Background(), Spec{Path: "org/caps", CacheDir: t.TempDir(), HubEndpoint: srv.URL, Args: []string{"page_size=2"}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = RowContext(ctx, ds, 3)
	assert.Error(t, err)

	// cached rows do not need the network
	_, err = RowContext(context.Background(), Select(ds, 2), 1)
	assert.NoError(t, err)
}
