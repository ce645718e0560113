// Package template turns raw rows into the (prompt, audio) pair used for
// supervised text-to-audio training.
//
// Templates are looked up by name. The built-in ones cover the common
// caption datasets; more can be defined in YAML and registered with LoadFile.
package template

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Noofbiz/audioSFT/audio"
	"github.com/Noofbiz/audioSFT/source"
)

// ErrUnknownTemplate is returned by Get for names that were never registered.
var ErrUnknownTemplate = errors.New("unknown template")

// MultiModalInfo carries the non-text parts of a formatted sample.
type MultiModalInfo struct {
	Audio *audio.Waveform
}

// Template formats a raw row into a prompt and its audio target.
type Template interface {
	FormatDiffusionSupervisedSample(raw source.Row) (prompt string, info MultiModalInfo, err error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Template{}
)

// Register makes t available under name, replacing any previous entry.
func Register(name string, t Template) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = t
}

// Get returns the template registered under name.
func Get(name string) (Template, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	t, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownTemplate, name)
	}
	return t, nil
}

// Names lists the registered templates in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register("AudioCaps", &FieldTemplate{Name: "AudioCaps", PromptPath: "caption", AudioPath: "audio"})
	Register("MusicCaps", &FieldTemplate{Name: "MusicCaps", PromptPath: "caption", AudioPath: "audio"})
	Register("Text2AudioDefault", &FieldTemplate{Name: "Text2AudioDefault", PromptPath: "prompt", AudioPath: "audio"})
}
