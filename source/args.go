package source

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// options are the loader settings passed as "key=value" args.
type options struct {
	// delimiter for CSV files; defaults to ',' (tab for .tsv).
	delimiter rune
	// field holding the record list inside a .json file.
	field string
	// pageSize for hub requests.
	pageSize int
	// cacheTTL is how long cached hub pages are reused; zero keeps them
	// forever.
	cacheTTL time.Duration
}

const maxHubPageSize = 100

// DefaultHubCacheTTL is how long cached hub pages are trusted. Asset URLs in
// hub rows are signed and expire.
const DefaultHubCacheTTL = time.Hour

func parseArgs(args []string) (options, error) {
	opts := options{pageSize: maxHubPageSize, cacheTTL: DefaultHubCacheTTL}
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return options{}, fmt.Errorf("loader arg %q must be key=value", arg)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		switch key {
		case "delimiter":
			if value == `\t` {
				value = "\t"
			}
			runes := []rune(value)
			if len(runes) != 1 {
				return options{}, fmt.Errorf("delimiter must be a single character, got %q", value)
			}
			opts.delimiter = runes[0]
		case "field":
			opts.field = value
		case "page_size":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return options{}, fmt.Errorf("invalid page_size %q", value)
			}
			opts.pageSize = min(n, maxHubPageSize)
		case "cache_ttl":
			d, err := time.ParseDuration(value)
			if err != nil || d < 0 {
				return options{}, fmt.Errorf("invalid cache_ttl %q", value)
			}
			opts.cacheTTL = d
		default:
			return options{}, fmt.Errorf("unknown loader arg %q", key)
		}
	}
	return opts, nil
}
