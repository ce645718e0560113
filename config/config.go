// Package config reads the dataset adapter settings from the environment.
// A .env file is loaded first when present, so local runs can keep their
// settings next to the data.
package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every setting used to build a supervised dataset and iterate
// its batches.
type Config struct {
	// Dataset source
	DatasetPath  string   `env:"DATASET_PATH"`
	DatasetName  string   `env:"DATASET_NAME"`
	Split        string   `env:"DATASET_SPLIT" envDefault:"train"`
	DataFiles    string   `env:"DATASET_DATA_FILES"`
	Size         int      `env:"DATASET_SIZE"`
	OptionalArgs []string `env:"DATASET_ARGS" envSeparator:","`
	CacheDir     string   `env:"DATASET_CACHE_DIR"`
	HubEndpoint  string   `env:"HUB_ENDPOINT"`

	// Template
	Template     string `env:"TEMPLATE"`
	TemplateFile string `env:"TEMPLATE_FILE"`

	// Tokenizer
	TokenizerPath  string `env:"TOKENIZER_PATH"`
	TokenizerModel string `env:"TOKENIZER_MODEL"`
	PadTokenID     int64  `env:"PAD_TOKEN_ID" envDefault:"0"`
	ModelMaxLength int    `env:"MODEL_MAX_LENGTH" envDefault:"512"`

	// Audio processing
	SampleRate int `env:"AUDIO_SAMPLE_RATE" envDefault:"16000"`
	// AudioLength fixes every clip to this many samples. When zero clips are
	// fixed to AudioSeconds at SampleRate instead; setting both to zero keeps
	// the decoded lengths, which only collates if all clips match.
	AudioLength  int     `env:"AUDIO_LENGTH"`
	AudioSeconds float64 `env:"AUDIO_SECONDS" envDefault:"10"`
	Mono         bool    `env:"AUDIO_MONO" envDefault:"true"`
	Normalize    bool    `env:"AUDIO_NORMALIZE" envDefault:"false"`

	// Batching
	BatchSize int   `env:"BATCH_SIZE" envDefault:"8"`
	Workers   int   `env:"WORKERS" envDefault:"0"`
	Seed      int64 `env:"SEED" envDefault:"42"`
	Shuffle   bool  `env:"SHUFFLE" envDefault:"true"`
	DropLast  bool  `env:"DROP_LAST" envDefault:"false"`

	// Object storage
	S3Endpoint        string `env:"S3_ENDPOINT_URL"`
	S3Region          string `env:"AWS_REGION"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
}

// Load reads envFile (".env" when empty) if it exists and parses the
// environment into a Config.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		slog.Debug("no env file loaded, using environment only", "file", envFile, "error", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings needed to build a dataset.
func (c *Config) Validate() error {
	var errs []error
	if c.DatasetPath == "" {
		errs = append(errs, errors.New("DATASET_PATH must be set"))
	}
	if c.Template == "" {
		errs = append(errs, errors.New("TEMPLATE must be set"))
	}
	if c.Size < 0 {
		errs = append(errs, fmt.Errorf("DATASET_SIZE must not be negative, got %d", c.Size))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("BATCH_SIZE must be positive, got %d", c.BatchSize))
	}
	if c.SampleRate < 0 || c.AudioLength < 0 || c.AudioSeconds < 0 {
		errs = append(errs, errors.New("AUDIO_SAMPLE_RATE, AUDIO_LENGTH and AUDIO_SECONDS must not be negative"))
	}
	if c.AudioLength == 0 && c.AudioSeconds > 0 && c.SampleRate == 0 {
		errs = append(errs, errors.New("AUDIO_SECONDS needs AUDIO_SAMPLE_RATE, or set AUDIO_LENGTH"))
	}
	return errors.Join(errs...)
}

// ClipLength is the number of samples every clip is padded or trimmed to, or
// zero when clips keep their decoded length.
func (c *Config) ClipLength() int {
	if c.AudioLength > 0 {
		return c.AudioLength
	}
	if c.AudioSeconds > 0 && c.SampleRate > 0 {
		return int(c.AudioSeconds * float64(c.SampleRate))
	}
	return 0
}
