// Command inspect loads a supervised text-to-audio dataset the same way training
// does, walks one epoch of collated batches and prints what it saw. With
// -plots it also writes token length and audio duration histograms.
//
// Settings come from the environment (see package config) and a .env file;
// flags override them.
//
// Usage:
//   go run ./cmd/inspect -dataset ./data/audiocaps -template AudioCaps \
//       -tokenizer ./tokenizer.json -batch-size 16 -plots plots
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/schollz/progressbar/v3"

	"github.com/Noofbiz/audioSFT/audio"
	"github.com/Noofbiz/audioSFT/config"
	"github.com/Noofbiz/audioSFT/datasets"
	"github.com/Noofbiz/audioSFT/device"
	"github.com/Noofbiz/audioSFT/storage"
	"github.com/Noofbiz/audioSFT/template"
	"github.com/Noofbiz/audioSFT/tokenizer"
)

func main() {
	envFile := flag.String("env", ".env", "env file to load before reading the environment")
	datasetFlag := flag.String("dataset", "", "dataset path, s3:// URI or hub id (overrides DATASET_PATH)")
	templateFlag := flag.String("template", "", "template name (overrides TEMPLATE)")
	tokenizerFlag := flag.String("tokenizer", "", "path to tokenizer.json (overrides TOKENIZER_PATH)")
	splitFlag := flag.String("split", "", "dataset split (overrides DATASET_SPLIT)")
	sizeFlag := flag.Int("size", -1, "limit to the first N rows (overrides DATASET_SIZE)")
	batchSizeFlag := flag.Int("batch-size", 0, "batch size (overrides BATCH_SIZE)")
	workersFlag := flag.Int("workers", -1, "preprocessing workers, 0 = NumCPU (overrides WORKERS)")
	maxBatches := flag.Int("max-batches", 0, "stop after N batches (0 = full epoch)")
	plotsDir := flag.String("plots", "", "if set, write dataset histograms into this directory")
	bins := flag.Int("bins", 30, "histogram bins")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *datasetFlag != "" {
		cfg.DatasetPath = *datasetFlag
	}
	if *templateFlag != "" {
		cfg.Template = *templateFlag
	}
	if *tokenizerFlag != "" {
		cfg.TokenizerPath = *tokenizerFlag
	}
	if *splitFlag != "" {
		cfg.Split = *splitFlag
	}
	if *sizeFlag >= 0 {
		cfg.Size = *sizeFlag
	}
	if *batchSizeFlag > 0 {
		cfg.BatchSize = *batchSizeFlag
	}
	if *workersFlag >= 0 {
		cfg.Workers = *workersFlag
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, *maxBatches, *plotsDir, *bins); err != nil {
		log.Fatalf("inspect failed: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, maxBatches int, plotsDir string, bins int) error {
	if cfg.TemplateFile != "" {
		names, err := template.LoadFile(cfg.TemplateFile)
		if err != nil {
			return err
		}
		log.Printf("Loaded templates %v from %s", names, cfg.TemplateFile)
	}
	tpl, err := template.Get(cfg.Template)
	if err != nil {
		return fmt.Errorf("%w (known: %v)", err, template.Names())
	}

	tk, err := loadTokenizer(cfg)
	if err != nil {
		return err
	}
	defer tk.Close()
	vocab := tk.VocabSize()
	if tk.PadTokenID() < 0 || tk.PadTokenID() >= int64(vocab) {
		return fmt.Errorf("PAD_TOKEN_ID %d is outside the tokenizer vocabulary of %d tokens", tk.PadTokenID(), vocab)
	}
	log.Printf("Tokenizer: %d tokens, pad id %d, max length %d", vocab, tk.PadTokenID(), tk.ModelMaxLength())

	opts := datasets.Options{
		Path:         cfg.DatasetPath,
		Template:     tpl,
		Tokenizer:    tk,
		Processor:    buildPipeline(cfg),
		Name:         cfg.DatasetName,
		Size:         cfg.Size,
		Split:        cfg.Split,
		DataFiles:    cfg.DataFiles,
		OptionalArgs: cfg.OptionalArgs,
		CacheDir:     cfg.CacheDir,
		HubEndpoint:  cfg.HubEndpoint,
	}
	if storage.IsS3URI(cfg.DatasetPath) || storage.IsS3URI(cfg.DataFiles) {
		s3, err := storage.NewS3(ctx, storage.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			return err
		}
		opts.Objects = s3
	}

	ds, err := datasets.NewSupervisedDataset(ctx, opts)
	if err != nil {
		return err
	}
	log.Printf("Dataset %s (split %s): %d examples", cfg.DatasetPath, cfg.Split, ds.Len())
	log.Printf("Batches will be placed on %s", device.Current())

	loader := datasets.NewLoader(ds, ds.Collator(), datasets.LoaderOptions{
		BatchSize: cfg.BatchSize,
		Shuffle:   cfg.Shuffle,
		Seed:      cfg.Seed,
		DropLast:  cfg.DropLast,
		Workers:   cfg.Workers,
		Name:      cfg.DatasetPath,
	})

	total := loader.NumBatches()
	if maxBatches > 0 {
		total = min(total, maxBatches)
	}
	bar := progressbar.Default(int64(total), "collating")
	var (
		batches, rows, maxLen int
		audioShape            []int
	)
	for batches < total {
		batch, err := loader.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, audio.ErrShapeMismatch) {
			return fmt.Errorf("%w (set AUDIO_LENGTH or AUDIO_SECONDS to fix the clip length)", err)
		}
		if err != nil {
			return err
		}
		batches++
		rows += batch.BatchSize
		maxLen = max(maxLen, batch.SeqLen)
		if batch.Audio != nil {
			audioShape = batch.Audio.Shape
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	fmt.Printf("Collated %d batches (%d rows)\n", batches, rows)
	fmt.Printf("  Longest padded sequence: %d tokens\n", maxLen)
	if audioShape != nil {
		fmt.Printf("  Last audio batch shape: %v\n", audioShape)
	} else {
		fmt.Println("  No audio in batches")
	}

	if plotsDir == "" {
		return nil
	}

	statsBar := progressbar.Default(int64(ds.Len()), "inspecting")
	stats, err := datasets.CollectStats(ctx, ds, cfg.Workers, func() { _ = statsBar.Add(1) })
	if err != nil {
		return err
	}
	_ = statsBar.Finish()
	fmt.Printf("Tokens per prompt: min=%d max=%d mean=%.1f\n", stats.MinTokens, stats.MaxTokens, stats.MeanTokens)
	fmt.Printf("Total audio: %.1f seconds\n", stats.TotalAudioSeconds)

	paths, err := datasets.WriteHistograms(stats, plotsDir, bins)
	if err != nil {
		return err
	}
	for _, p := range paths {
		log.Printf("Wrote %s", p)
	}
	return nil
}

func loadTokenizer(cfg *config.Config) (*tokenizer.HF, error) {
	opts := tokenizer.Options{PadTokenID: cfg.PadTokenID, ModelMaxLength: cfg.ModelMaxLength}
	switch {
	case cfg.TokenizerPath != "":
		return tokenizer.FromFile(cfg.TokenizerPath, opts)
	case cfg.TokenizerModel != "":
		return tokenizer.FromPretrained(cfg.TokenizerModel, opts)
	}
	return nil, errors.New("TOKENIZER_PATH or TOKENIZER_MODEL must be set")
}

// buildPipeline assembles the audio transforms selected in cfg.
func buildPipeline(cfg *config.Config) *audio.Pipeline {
	var transforms []audio.Transform
	if cfg.SampleRate > 0 {
		transforms = append(transforms, audio.Resample{Rate: cfg.SampleRate})
	}
	if cfg.Mono {
		transforms = append(transforms, audio.ToMono{})
	}
	if n := cfg.ClipLength(); n > 0 {
		transforms = append(transforms, audio.PadOrTrim{Length: n})
	}
	if cfg.Normalize {
		transforms = append(transforms, audio.PeakNormalize{})
	}
	return audio.NewPipeline(transforms...)
}
