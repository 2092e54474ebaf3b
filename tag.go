package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/krau/konabatch/config"
	"github.com/krau/konabatch/onnx"
	"github.com/krau/konabatch/pipeline"
	"github.com/krau/konabatch/progress"
	"github.com/krau/konabatch/scan"
	"github.com/krau/konabatch/writer"
)

func runTag(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c := config.C()
	inputDir, outputDir := args[0], args[1]

	info, err := os.Stat(inputDir)
	if err != nil {
		return fmt.Errorf("input directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("input %s is not a directory", inputDir)
	}

	model, analyzer, err := loadTagger(ctx, c)
	if err != nil {
		return err
	}
	defer onnx.Destroy()
	defer model.Close()

	paths, err := scan.Images(inputDir)
	if err != nil {
		return err
	}
	slog.Info("Found images", slog.String("input", inputDir), slog.Int("count", len(paths)))

	var observer pipeline.Observer
	var bars *progress.Bars
	if noProgress, _ := cmd.Flags().GetBool("no-progress"); !noProgress {
		bars = progress.New(os.Stderr, len(paths), len(pipeline.Chunk(paths, c.BatchSize)))
		observer = bars
	}

	p, err := pipeline.New(pipeline.Options{
		Predictor:  model,
		Analyzer:   analyzer,
		Writer:     writer.NewFileWriter(inputDir, outputDir, c.IncludeRatings),
		BatchSize:  c.BatchSize,
		Preprocess: preprocessOptions(c),
		Observer:   observer,
	})
	if err != nil {
		return err
	}

	_, err = p.Run(ctx, paths)
	if bars != nil {
		bars.Finish()
	}
	return err
}
