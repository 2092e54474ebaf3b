package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/krau/konabatch/labels"
	"github.com/krau/konabatch/service"
	"github.com/krau/konabatch/writer"
)

// Loader decodes the image at path.
type Loader func(path string) (image.Image, error)

type Options struct {
	Predictor  service.Predictor
	Analyzer   *labels.Analyzer
	Writer     writer.Writer
	BatchSize  int
	Preprocess service.PreprocessOptions
	// Observer is optional.
	Observer Observer
	// Load defaults to service.DecodeFile.
	Load Loader
}

// Pipeline tags images in three concurrent stages: load and preprocess,
// infer and analyze, write. Row i of every batch stays bound to path i.
type Pipeline struct {
	predictor  service.Predictor
	analyzer   *labels.Analyzer
	writer     writer.Writer
	batchSize  int
	targetSize int
	prep       service.PreprocessOptions
	observer   Observer
	load       Loader
	workers    int
}

type Stats struct {
	Images  int
	Batches int
	Elapsed time.Duration
}

type loadedBatch struct {
	seq    int
	paths  PathBatch
	tensor *service.BatchTensor
}

type inferredBatch struct {
	seq     int
	paths   PathBatch
	results []labels.Result
}

func New(opts Options) (*Pipeline, error) {
	if opts.Predictor == nil || opts.Analyzer == nil || opts.Writer == nil {
		return nil, errors.New("pipeline: predictor, analyzer and writer are required")
	}
	if opts.BatchSize < 1 {
		return nil, fmt.Errorf("pipeline: batch size must be at least 1, got %d", opts.BatchSize)
	}
	p := &Pipeline{
		predictor:  opts.Predictor,
		analyzer:   opts.Analyzer,
		writer:     opts.Writer,
		batchSize:  opts.BatchSize,
		targetSize: opts.Predictor.TargetSize(),
		prep:       opts.Preprocess,
		observer:   opts.Observer,
		load:       opts.Load,
		workers:    runtime.NumCPU(),
	}
	if p.observer == nil {
		p.observer = nopObserver{}
	}
	if p.load == nil {
		p.load = service.DecodeFile
	}
	return p, nil
}

// Run tags every path and returns after all stages drain. The first error in
// any stage stops the run; output of batches already written stays on disk.
func (p *Pipeline) Run(ctx context.Context, paths []string) (Stats, error) {
	start := time.Now()
	batches := Chunk(paths, p.batchSize)
	slog.Info("Starting pipeline",
		slog.Int("images", len(paths)),
		slog.Int("batches", len(batches)),
		slog.Int("batch_size", p.batchSize))

	eg, ctx := errgroup.WithContext(ctx)
	loaded := make(chan loadedBatch, p.batchSize)
	inferred := make(chan inferredBatch)

	eg.Go(func() error {
		defer close(loaded)
		return p.loadStage(ctx, batches, loaded)
	})
	eg.Go(func() error {
		defer close(inferred)
		return p.inferStage(ctx, loaded, inferred)
	})
	eg.Go(func() error {
		return p.writeStage(ctx, unbounded(ctx, inferred))
	})

	err := eg.Wait()
	stats := Stats{Images: len(paths), Batches: len(batches), Elapsed: time.Since(start)}
	if err != nil {
		return stats, err
	}
	slog.Info("Pipeline finished",
		slog.Int("images", stats.Images),
		slog.Int("batches", stats.Batches),
		slog.Duration("elapsed", stats.Elapsed))
	return stats, nil
}

func (p *Pipeline) loadStage(ctx context.Context, batches []PathBatch, out chan<- loadedBatch) error {
	for seq, batch := range batches {
		tensor, err := p.loadBatch(ctx, batch)
		if err != nil {
			return err
		}
		slog.Debug("Batch loaded", slog.Int("batch", seq), slog.Int("images", len(batch)))
		select {
		case out <- loadedBatch{seq: seq, paths: batch, tensor: tensor}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// loadBatch decodes and preprocesses a batch in parallel. Task i fills slot i,
// so completion order does not matter.
func (p *Pipeline) loadBatch(ctx context.Context, batch PathBatch) (*service.BatchTensor, error) {
	tensors := make([]service.ImageTensor, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, path := range batch {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, err := p.load(path)
			if err != nil {
				if !errors.Is(err, service.ErrDecode) {
					err = fmt.Errorf("%w: %s: %w", service.ErrDecode, path, err)
				}
				return err
			}
			tensor, err := service.Preprocess(img, p.targetSize, p.prep)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			tensors[i] = tensor
			p.observer.ImageLoaded(path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	bt, err := service.Stack(tensors)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", service.ErrDecode, err)
	}
	return bt, nil
}

func (p *Pipeline) inferStage(ctx context.Context, in <-chan loadedBatch, out chan<- inferredBatch) error {
	numTags := p.analyzer.Schema().Len()
	for lb := range in {
		if err := ctx.Err(); err != nil {
			return err
		}
		scores, err := p.predictor.Predict(ctx, lb.tensor)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, service.ErrInference) {
				err = fmt.Errorf("%w: %w", service.ErrInference, err)
			}
			return fmt.Errorf("batch %d: %w", lb.seq, err)
		}
		if scores.Rows != len(lb.paths) || scores.Cols != numTags {
			return fmt.Errorf("batch %d: %w: got %dx%d scores, want %dx%d",
				lb.seq, service.ErrInference, scores.Rows, scores.Cols, len(lb.paths), numTags)
		}

		results := make([]labels.Result, scores.Rows)
		for i := range results {
			results[i] = p.analyzer.Analyze(scores.Row(i))
		}
		p.observer.BatchInferred(len(lb.paths))
		slog.Debug("Batch inferred", slog.Int("batch", lb.seq))

		select {
		case out <- inferredBatch{seq: lb.seq, paths: lb.paths, results: results}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (p *Pipeline) writeStage(ctx context.Context, in <-chan inferredBatch) error {
	for ib := range in {
		for i, path := range ib.paths {
			if err := p.writer.Write(path, ib.results[i]); err != nil {
				if !errors.Is(err, writer.ErrIO) {
					err = fmt.Errorf("%w: %s: %w", writer.ErrIO, path, err)
				}
				return err
			}
			p.observer.ImageWritten(path)
		}
		slog.Debug("Batch written", slog.Int("batch", ib.seq))
	}
	return ctx.Err()
}
