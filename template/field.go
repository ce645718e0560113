package template

import (
	"fmt"
	"strings"

	"github.com/Noofbiz/audioSFT/source"
)

// FieldTemplate reads the prompt and the audio from fixed field paths.
type FieldTemplate struct {
	Name string `yaml:"name"`
	// PromptPath is the gjson path of the text field.
	PromptPath string `yaml:"prompt"`
	// AudioPath is the gjson path of the audio field.
	AudioPath string `yaml:"audio"`
	// SampleRatePath optionally points at the sample rate when the audio
	// field is a bare sample array.
	SampleRatePath string `yaml:"sample_rate"`
	// Prefix and Suffix wrap the prompt text.
	Prefix string `yaml:"prefix"`
	Suffix string `yaml:"suffix"`

	// Resolver loads referenced audio. Nil uses DefaultResolver.
	Resolver *Resolver `yaml:"-"`
}

// FormatDiffusionSupervisedSample implements Template.
func (f *FieldTemplate) FormatDiffusionSupervisedSample(raw source.Row) (string, MultiModalInfo, error) {
	text, ok := raw.String(f.PromptPath)
	if !ok {
		return "", MultiModalInfo{}, fmt.Errorf("template %s: prompt field %q missing", f.Name, f.PromptPath)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", MultiModalInfo{}, fmt.Errorf("template %s: prompt field %q is empty", f.Name, f.PromptPath)
	}

	field := raw.Get(f.AudioPath)
	if !field.Exists() {
		return "", MultiModalInfo{}, fmt.Errorf("template %s: audio field %q missing", f.Name, f.AudioPath)
	}
	rate := 0
	if f.SampleRatePath != "" {
		rate = int(raw.Get(f.SampleRatePath).Int())
	}

	resolver := f.Resolver
	if resolver == nil {
		resolver = DefaultResolver
	}
	wave, err := resolver.Resolve(field, raw.BaseDir, rate)
	if err != nil {
		return "", MultiModalInfo{}, fmt.Errorf("template %s: audio field %q: %w", f.Name, f.AudioPath, err)
	}

	return f.Prefix + text + f.Suffix, MultiModalInfo{Audio: wave}, nil
}
