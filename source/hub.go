package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultHubEndpoint is the public datasets-server.
const DefaultHubEndpoint = "https://datasets-server.huggingface.co"

const defaultConfig = "default"

// rowsResponse is the payload of GET /rows.
type rowsResponse struct {
	Rows []struct {
		RowIdx int             `json:"row_idx"`
		Row    json.RawMessage `json:"row"`
	} `json:"rows"`
	NumRowsTotal int `json:"num_rows_total"`
}

// hubDataset reads rows of a hosted dataset page by page. Pages are kept in
// memory once fetched and persisted as JSONL under cacheDir so a second run
// does not hit the network. Persisted pages older than cacheTTL are fetched
// again.
type hubDataset struct {
	client   *resty.Client
	dataset  string
	config   string
	split    string
	pageSize int
	cacheDir string
	cacheTTL time.Duration
	total    int

	mu    sync.Mutex
	gen   int
	pages map[int]*hubPage
	// fetches runs at most one load per page at a time
	fetches singleflight.Group
}

// hubPage is one loaded page. gen identifies the load so a stale page is
// only invalidated once.
type hubPage struct {
	rows []Row
	gen  int
}

func newHubDataset(ctx context.Context, spec Spec, opts options) (*hubDataset, error) {
	endpoint := spec.HubEndpoint
	if endpoint == "" {
		endpoint = DefaultHubEndpoint
	}
	config := spec.Name
	if config == "" {
		config = defaultConfig
	}

	client := resty.New().
		SetBaseURL(strings.TrimSuffix(endpoint, "/")).
		SetTimeout(60 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond)
	if token := os.Getenv("HF_TOKEN"); token != "" {
		client.SetAuthToken(token)
	}

	h := &hubDataset{
		client:   client,
		dataset:  spec.Path,
		config:   config,
		split:    spec.split(),
		pageSize: opts.pageSize,
		cacheDir: filepath.Join(spec.cacheDir(), "hub", sanitize(spec.Path), sanitize(config), sanitize(spec.split())),
		cacheTTL: opts.cacheTTL,
		pages:    make(map[int]*hubPage),
	}

	// the first page also tells us the number of rows
	if err := h.loadTotal(ctx); err != nil {
		return nil, err
	}
	slog.Info("opened hub dataset", "dataset", h.dataset, "config", h.config, "split", h.split, "rows", h.total)
	return h, nil
}

func (h *hubDataset) totalPath() string {
	return filepath.Join(h.cacheDir, "num_rows")
}

func (h *hubDataset) loadTotal(ctx context.Context) error {
	if b, err := os.ReadFile(h.totalPath()); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(string(b))); err == nil {
			h.total = n
			return nil
		}
	}
	resp, err := h.fetch(ctx, 0)
	if err != nil {
		return err
	}
	h.total = resp.NumRowsTotal
	rows, err := h.toRows(resp)
	if err != nil {
		return err
	}
	h.store(0, rows)
	if err := h.persist(0, resp); err != nil {
		slog.Warn("failed to cache hub page", "dataset", h.dataset, "error", err)
	}
	if err := os.WriteFile(h.totalPath(), []byte(strconv.Itoa(h.total)), 0o644); err != nil {
		slog.Warn("failed to cache hub row count", "dataset", h.dataset, "error", err)
	}
	return nil
}

func (h *hubDataset) Len() int { return h.total }

func (h *hubDataset) Row(i int) (Row, error) {
	return h.RowContext(context.Background(), i)
}

// RowContext implements ContextRowReader. The returned row can be refreshed,
// which drops its page from the caches and fetches it again.
func (h *hubDataset) RowContext(ctx context.Context, i int) (Row, error) {
	if i < 0 || i >= h.total {
		return Row{}, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, h.total)
	}
	page := i / h.pageSize
	p, err := h.page(ctx, page)
	if err != nil {
		return Row{}, err
	}
	local := i - page*h.pageSize
	if local >= len(p.rows) {
		return Row{}, fmt.Errorf("hub page %d has %d rows, wanted row %d", page, len(p.rows), local)
	}
	row := p.rows[local]
	row.refresh = func(ctx context.Context) (Row, error) {
		h.invalidate(page, p.gen)
		return h.RowContext(ctx, i)
	}
	return row, nil
}

func (h *hubDataset) page(ctx context.Context, page int) (*hubPage, error) {
	if p := h.cached(page); p != nil {
		return p, nil
	}
	v, err, _ := h.fetches.Do(strconv.Itoa(page), func() (any, error) {
		if p := h.cached(page); p != nil {
			return p, nil
		}
		if rows, err := h.readCached(page); err == nil {
			return h.store(page, rows), nil
		}

		resp, err := h.fetch(ctx, page*h.pageSize)
		if err != nil {
			return nil, err
		}
		rows, err := h.toRows(resp)
		if err != nil {
			return nil, err
		}
		if err := h.persist(page, resp); err != nil {
			slog.Warn("failed to cache hub page", "dataset", h.dataset, "page", page, "error", err)
		}
		return h.store(page, rows), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*hubPage), nil
}

func (h *hubDataset) cached(page int) *hubPage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pages[page]
}

func (h *hubDataset) store(page int, rows []Row) *hubPage {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gen++
	p := &hubPage{rows: rows, gen: h.gen}
	h.pages[page] = p
	return p
}

// invalidate drops page from memory and disk unless it was already reloaded
// since load gen.
func (h *hubDataset) invalidate(page, gen int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.pages[page]
	if ok && p.gen != gen {
		return
	}
	delete(h.pages, page)
	if err := os.Remove(h.pagePath(page)); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to drop cached hub page", "dataset", h.dataset, "page", page, "error", err)
	}
	slog.Debug("invalidated hub page", "dataset", h.dataset, "page", page)
}

func (h *hubDataset) fetch(ctx context.Context, offset int) (*rowsResponse, error) {
	var out rowsResponse
	resp, err := h.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"dataset": h.dataset,
			"config":  h.config,
			"split":   h.split,
			"offset":  strconv.Itoa(offset),
			"length":  strconv.Itoa(h.pageSize),
		}).
		SetResult(&out).
		Get("/rows")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rows of %s at offset %d: %w", h.dataset, offset, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("datasets server returned %s for %s: %s", resp.Status(), h.dataset, resp.String())
	}
	return &out, nil
}

func (h *hubDataset) toRows(resp *rowsResponse) ([]Row, error) {
	rows := make([]Row, 0, len(resp.Rows))
	for _, r := range resp.Rows {
		row, err := NewRow(r.Row, "")
		if err != nil {
			return nil, fmt.Errorf("hub row %d: %w", r.RowIdx, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (h *hubDataset) pagePath(page int) string {
	return filepath.Join(h.cacheDir, fmt.Sprintf("page-%06d-%d.jsonl", page, h.pageSize))
}

func (h *hubDataset) persist(page int, resp *rowsResponse) error {
	if err := os.MkdirAll(h.cacheDir, 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	for _, r := range resp.Rows {
		buf.Write(bytes.TrimSpace(r.Row))
		buf.WriteByte('\n')
	}
	tmp := h.pagePath(page) + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, h.pagePath(page))
}

func (h *hubDataset) readCached(page int) ([]Row, error) {
	f, err := os.Open(h.pagePath(page))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if h.cacheTTL > 0 {
		info, err := f.Stat()
		if err != nil {
			return nil, err
		}
		if age := time.Since(info.ModTime()); age > h.cacheTTL {
			return nil, fmt.Errorf("cached page %d is %s old", page, age.Round(time.Second))
		}
	}

	var rows []Row
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 64<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		row, err := NewRow(append([]byte(nil), line...), "")
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, scanner.Err()
}

func sanitize(s string) string {
	return strings.NewReplacer("/", "__", "\\", "__", ":", "_", " ", "_").Replace(s)
}
