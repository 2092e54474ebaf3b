package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/krau/konabatch/config"
	"github.com/krau/konabatch/hub"
	"github.com/krau/konabatch/labels"
	"github.com/krau/konabatch/logging"
	"github.com/krau/konabatch/onnx"
	"github.com/krau/konabatch/service"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("KonaBatch failed", slog.String("error", err.Error()))
		cancel()
		os.Exit(1)
	}
}

var configPath string

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "konabatch <input_dir> <output_dir>",
		Short:         "Tag a directory tree of images with a multi-label image classifier",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Init(configPath); err != nil {
				return err
			}
			applyFlags(cmd, config.C())
			if err := config.C().Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			logging.Init(os.Stderr, logging.ParseLevel(config.C().LogLevel), config.C().LogJSON)
			return nil
		},
		RunE: runTag,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "config.toml", "config file")
	pf.StringP("model", "m", "", "model name, owner/name repository or local directory")
	pf.IntP("device-id", "d", 0, "CUDA device id, negative for CPU")
	pf.String("libonnx", "", "path to the ONNX Runtime shared library")
	pf.String("log-level", "", "debug, info, warn or error")
	pf.Float32("general-threshold", 0, "general tag threshold")
	pf.Bool("general-mcut-enabled", false, "pick the general threshold per image with max-cut")
	pf.Float32("character-threshold", 0, "character tag threshold")
	pf.Bool("character-mcut-enabled", false, "pick the character threshold per image with max-cut")
	pf.String("channel-order", "", "model input channel order, rgb or bgr")
	pf.String("normalize", "", "pixel normalization, none or clip")
	pf.Bool("sigmoid", false, "model outputs logits")

	f := root.Flags()
	f.IntP("batch-size", "b", 0, "images per inference call")
	f.Bool("include-ratings", false, "write the top rating tag first")
	f.Bool("no-progress", false, "disable progress bars")

	root.AddCommand(serveCmd())
	return root
}

// applyFlags copies explicitly set flags over file and default values.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("model") {
		c.Model, _ = flags.GetString("model")
	}
	if flags.Changed("device-id") {
		c.DeviceID, _ = flags.GetInt("device-id")
	}
	if flags.Changed("libonnx") {
		c.Libonnx, _ = flags.GetString("libonnx")
	}
	if flags.Changed("log-level") {
		c.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("batch-size") {
		c.BatchSize, _ = flags.GetInt("batch-size")
	}
	if flags.Changed("general-threshold") {
		c.GeneralThreshold, _ = flags.GetFloat32("general-threshold")
	}
	if flags.Changed("general-mcut-enabled") {
		c.GeneralMCut, _ = flags.GetBool("general-mcut-enabled")
	}
	if flags.Changed("character-threshold") {
		c.CharacterThreshold, _ = flags.GetFloat32("character-threshold")
	}
	if flags.Changed("character-mcut-enabled") {
		c.CharacterMCut, _ = flags.GetBool("character-mcut-enabled")
	}
	if flags.Changed("channel-order") {
		c.ChannelOrder, _ = flags.GetString("channel-order")
	}
	if flags.Changed("normalize") {
		c.Normalize, _ = flags.GetString("normalize")
	}
	if flags.Changed("sigmoid") {
		c.Sigmoid, _ = flags.GetBool("sigmoid")
	}
	if flags.Changed("include-ratings") {
		c.IncludeRatings, _ = flags.GetBool("include-ratings")
	}
}

func preprocessOptions(c *config.Config) service.PreprocessOptions {
	return service.PreprocessOptions{
		ChannelOrder: service.ChannelOrder(c.ChannelOrder),
		Normalize:    service.Normalization(c.Normalize),
	}
}

// loadTagger resolves the model files and builds the analyzer and predictor.
func loadTagger(ctx context.Context, c *config.Config) (*service.Model, *labels.Analyzer, error) {
	files, err := hub.Resolve(ctx, hub.ResolveOptions{
		Model:     c.Model,
		BaseURL:   c.ModelBaseUrl,
		CacheDir:  c.ModelDir,
		ModelFile: c.ModelFileName,
		TagsFile:  c.ModelTagsName,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve model: %w", err)
	}

	schema, err := labels.LoadSchema(files.Tags)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read tags: %w", err)
	}
	analyzer := labels.NewAnalyzer(schema,
		labels.Threshold{Value: c.GeneralThreshold, MCut: c.GeneralMCut},
		labels.Threshold{Value: c.CharacterThreshold, MCut: c.CharacterMCut},
	)

	if err := onnx.Init(c.Libonnx); err != nil {
		return nil, nil, err
	}
	model, err := service.NewModel(files.Model, service.ModelOptions{
		DeviceID: c.DeviceID,
		Sigmoid:  c.Sigmoid,
	})
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Model loaded",
		slog.String("model", files.Model),
		slog.Int("tags", schema.Len()),
		slog.Int("target_size", model.TargetSize()),
		slog.String("input", model.InputName()),
		slog.String("output", model.OutputName()),
		slog.String("device", model.Device()))
	return model, analyzer, nil
}
