package template

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/Noofbiz/audioSFT/audio"
)

// ErrAssetUnavailable is returned when a remote audio URL is refused, which is
// what expired signed URLs return.
var ErrAssetUnavailable = errors.New("remote audio unavailable")

// Resolver turns the value of an audio field into a waveform. It accepts:
//   - {"array": [...], "sampling_rate": N} decoded audio
//   - {"bytes": "<base64 wav>"} or {"path": "clip.wav"} encoded audio
//   - [{"src": "https://...", "type": "audio/wav"}] as served by the hub
//   - a bare sample array (needs a sample rate from the template)
//   - a string path or http(s) URL of a WAV file
type Resolver struct {
	http *resty.Client
}

// DefaultResolver is used by templates without their own Resolver.
var DefaultResolver = NewResolver(nil)

// NewResolver returns a resolver fetching remote audio with client. A nil
// client gets a default one.
func NewResolver(client *resty.Client) *Resolver {
	if client == nil {
		client = resty.New().SetTimeout(60 * time.Second).SetRetryCount(2)
	}
	return &Resolver{http: client}
}

// Resolve decodes field. Relative paths are joined to baseDir; rate is the
// sample rate of bare arrays.
func (r *Resolver) Resolve(field gjson.Result, baseDir string, rate int) (*audio.Waveform, error) {
	switch {
	case field.IsObject():
		return r.resolveObject(field, baseDir, rate)
	case field.IsArray():
		items := field.Array()
		if len(items) > 0 && items[0].IsObject() && items[0].Get("src").Exists() {
			return r.load(items[0].Get("src").String(), baseDir)
		}
		if rate <= 0 {
			return nil, errors.New("sample array without a sample rate")
		}
		return audio.FromArray(field.Value(), rate)
	case field.Type == gjson.String:
		return r.load(field.String(), baseDir)
	}
	return nil, fmt.Errorf("unsupported audio value %s", field.Type)
}

func (r *Resolver) resolveObject(field gjson.Result, baseDir string, rate int) (*audio.Waveform, error) {
	if arr := field.Get("array"); arr.Exists() {
		if sr := field.Get("sampling_rate"); sr.Exists() {
			rate = int(sr.Int())
		}
		if rate <= 0 {
			return nil, errors.New("decoded audio without sampling_rate")
		}
		return audio.FromArray(arr.Value(), rate)
	}
	if b := field.Get("bytes"); b.Exists() && b.Type == gjson.String && b.String() != "" {
		data, err := base64.StdEncoding.DecodeString(b.String())
		if err != nil {
			return nil, fmt.Errorf("invalid base64 audio bytes: %w", err)
		}
		return audio.DecodeWAVBytes(data)
	}
	if p := field.Get("path"); p.Exists() && p.String() != "" {
		return r.load(p.String(), baseDir)
	}
	if src := field.Get("src"); src.Exists() {
		return r.load(src.String(), baseDir)
	}
	return nil, errors.New("audio object has none of array, bytes, path or src")
}

func (r *Resolver) load(ref, baseDir string) (*audio.Waveform, error) {
	if ref == "" {
		return nil, errors.New("empty audio reference")
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		resp, err := r.http.R().Get(ref)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", ref, err)
		}
		switch resp.StatusCode() {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusGone:
			return nil, fmt.Errorf("%w: %s returned %s", ErrAssetUnavailable, ref, resp.Status())
		}
		if resp.IsError() {
			return nil, fmt.Errorf("failed to fetch %s: %s", ref, resp.Status())
		}
		return audio.DecodeWAVBytes(resp.Body())
	}
	path := ref
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}
	return audio.LoadWAV(path)
}
