package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("DATASET_PATH", "org/caps")
	t.Setenv("TEMPLATE", "AudioCaps")
	t.Setenv("DATASET_ARGS", "page_size=50,delimiter=;")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "org/caps", cfg.DatasetPath)
	assert.Equal(t, "train", cfg.Split)
	assert.Equal(t, []string{"page_size=50", "delimiter=;"}, cfg.OptionalArgs)
	assert.Equal(t, 16000, cfg.SampleRate)
	assert.Equal(t, 8, cfg.BatchSize)
	assert.True(t, cfg.Mono)
	assert.Equal(t, 160000, cfg.ClipLength())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvFile(t *testing.T) {
	// godotenv never overrides variables that are already set
	if old, ok := os.LookupEnv("BATCH_SIZE"); ok {
		os.Unsetenv("BATCH_SIZE")
		t.Cleanup(func() { os.Setenv("BATCH_SIZE", old) })
	}
	t.Cleanup(func() { os.Unsetenv("BATCH_SIZE") })

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("BATCH_SIZE=3\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.BatchSize)
}

func TestValidate(t *testing.T) {
	cfg := &Config{BatchSize: 0, Size: -1}
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "DATASET_PATH")
	assert.ErrorContains(t, err, "TEMPLATE")
	assert.ErrorContains(t, err, "BATCH_SIZE")
	assert.ErrorContains(t, err, "DATASET_SIZE")
}

func TestClipLength(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want int
	}{
		{"explicit samples win", Config{AudioLength: 480, AudioSeconds: 10, SampleRate: 16000}, 480},
		{"seconds at sample rate", Config{AudioSeconds: 2.5, SampleRate: 8000}, 20000},
		{"variable length", Config{SampleRate: 16000}, 0},
		{"no sample rate", Config{AudioSeconds: 5}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.ClipLength())
		})
	}

	bad := &Config{DatasetPath: "x", Template: "t", BatchSize: 1, AudioSeconds: 5}
	assert.ErrorContains(t, bad.Validate(), "AUDIO_SECONDS")
}
