package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

type ModelOptions struct {
	// DeviceID selects the CUDA device; negative runs on CPU.
	DeviceID int
	// Sigmoid maps raw logits to probabilities.
	Sigmoid bool
}

// Model is a Predictor backed by an ONNX Runtime session.
type Model struct {
	session       *ort.DynamicAdvancedSession
	inputName     string
	outputName    string
	targetSize    int
	channelsFirst bool
	sigmoid       bool
	device        string
	mu            sync.Mutex
}

func NewModel(onnxPath string, opts ModelOptions) (*Model, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(onnxPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("model %s declares no inputs or outputs", onnxPath)
	}
	targetSize, channelsFirst, err := inputGeometry(inputs[0].Dimensions)
	if err != nil {
		return nil, err
	}

	sessionOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer sessionOpts.Destroy()
	device := selectDevice(sessionOpts, opts.DeviceID)

	session, err := ort.NewDynamicAdvancedSession(
		onnxPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		sessionOpts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX Runtime session: %w", err)
	}

	return &Model{
		session:       session,
		inputName:     inputs[0].Name,
		outputName:    outputs[0].Name,
		targetSize:    targetSize,
		channelsFirst: channelsFirst,
		sigmoid:       opts.Sigmoid,
		device:        device,
	}, nil
}

var appendProvider = appendCUDA

// selectDevice enables CUDA device deviceID on sessionOpts and reports the
// device the session will run on. A negative id, or a runtime built without
// CUDA, runs on CPU.
func selectDevice(sessionOpts *ort.SessionOptions, deviceID int) string {
	if deviceID < 0 {
		return "cpu"
	}
	if err := appendProvider(sessionOpts, deviceID); err != nil {
		slog.Warn("CUDA unavailable, running on CPU", slog.String("error", err.Error()))
		return "cpu"
	}
	return "cuda:" + strconv.Itoa(deviceID)
}

func appendCUDA(sessionOpts *ort.SessionOptions, deviceID int) error {
	cudaOpts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return fmt.Errorf("failed to create CUDA provider options: %w", err)
	}
	defer cudaOpts.Destroy()
	if err := cudaOpts.Update(map[string]string{"device_id": strconv.Itoa(deviceID)}); err != nil {
		return fmt.Errorf("failed to set CUDA device %d: %w", deviceID, err)
	}
	if err := sessionOpts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
		return fmt.Errorf("failed to enable CUDA device %d: %w", deviceID, err)
	}
	return nil
}

// inputGeometry reads the square image size from a 4-D image input,
// accepting both NHWC and NCHW declarations.
func inputGeometry(dims ort.Shape) (size int, channelsFirst bool, err error) {
	if len(dims) != 4 {
		return 0, false, fmt.Errorf("expected 4D image input, got %v", dims)
	}
	switch {
	case dims[3] == 3 && dims[1] > 0 && dims[1] == dims[2]:
		return int(dims[1]), false, nil
	case dims[1] == 3 && dims[2] > 0 && dims[2] == dims[3]:
		return int(dims[2]), true, nil
	default:
		return 0, false, fmt.Errorf("unsupported image input shape %v", dims)
	}
}

func (m *Model) TargetSize() int { return m.targetSize }

func (m *Model) InputName() string { return m.inputName }

func (m *Model) OutputName() string { return m.outputName }

// Device is "cpu" or "cuda:<id>".
func (m *Model) Device() string { return m.device }

func (m *Model) Predict(ctx context.Context, batch *BatchTensor) (*ScoreMatrix, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if batch.Size != m.targetSize {
		return nil, fmt.Errorf("%w: batch is %dpx, model wants %dpx", ErrInference, batch.Size, m.targetSize)
	}

	size := int64(batch.Size)
	shape := ort.NewShape(int64(batch.N), size, size, 3)
	data := batch.Data
	if m.channelsFirst {
		shape = ort.NewShape(int64(batch.N), 3, size, size)
		data = toCHW(batch)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	input, err := ort.NewTensor(shape, data)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create input tensor: %w", ErrInference, err)
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	if err := m.session.Run([]ort.Value{input}, outputs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("%w: output %s is not a float32 tensor", ErrInference, m.outputName)
	}
	outShape := out.GetShape()
	if len(outShape) != 2 || outShape[0] != int64(batch.N) {
		return nil, fmt.Errorf("%w: unexpected output shape %v", ErrInference, outShape)
	}

	scores := make([]float32, len(out.GetData()))
	copy(scores, out.GetData())
	if m.sigmoid {
		for i, v := range scores {
			scores[i] = Sigmoid(v)
		}
	}
	return &ScoreMatrix{Rows: batch.N, Cols: int(outShape[1]), Data: scores}, nil
}

// toCHW transposes an NHWC batch to NCHW.
func toCHW(batch *BatchTensor) []float32 {
	plane := batch.Size * batch.Size
	out := make([]float32, len(batch.Data))
	for n := range batch.N {
		src := batch.Data[n*plane*3 : (n+1)*plane*3]
		dst := out[n*plane*3 : (n+1)*plane*3]
		for p := range plane {
			dst[p] = src[p*3]
			dst[plane+p] = src[p*3+1]
			dst[2*plane+p] = src[p*3+2]
		}
	}
	return out
}

func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Destroy()
}
