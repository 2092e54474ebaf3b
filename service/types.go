package service

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrDecode    = errors.New("decode image")
	ErrInference = errors.New("inference")
)

var (
	ClipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	ClipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

type ChannelOrder string

const (
	RGB ChannelOrder = "rgb"
	BGR ChannelOrder = "bgr"
)

type Normalization string

const (
	// NormNone feeds raw 0..255 pixel values.
	NormNone Normalization = "none"
	// NormCLIP scales to 0..1 and standardizes with ClipMean/ClipStd.
	NormCLIP Normalization = "clip"
)

type PreprocessOptions struct {
	ChannelOrder ChannelOrder
	Normalize    Normalization
}

// ImageTensor is one image as HWC float32, Size x Size x 3.
type ImageTensor struct {
	Size int
	Data []float32
}

// BatchTensor stacks N image tensors as NHWC. Row i belongs to the i-th path of its batch.
type BatchTensor struct {
	N    int
	Size int
	Data []float32
}

// ScoreMatrix is Rows x Cols, one row of tag scores per image.
type ScoreMatrix struct {
	Rows int
	Cols int
	Data []float32
}

func (m *ScoreMatrix) Row(i int) []float32 {
	return m.Data[i*m.Cols : (i+1)*m.Cols]
}

// Predictor runs the classifier on a batch. Implementations must serialize
// access to the underlying engine.
type Predictor interface {
	TargetSize() int
	Predict(ctx context.Context, batch *BatchTensor) (*ScoreMatrix, error)
}

func Stack(tensors []ImageTensor) (*BatchTensor, error) {
	if len(tensors) == 0 {
		return nil, fmt.Errorf("stack: empty batch")
	}
	size := tensors[0].Size
	stride := size * size * 3
	data := make([]float32, 0, len(tensors)*stride)
	for i, t := range tensors {
		if t.Size != size || len(t.Data) != stride {
			return nil, fmt.Errorf("stack: tensor %d is %dx%d, want %dx%d", i, t.Size, t.Size, size, size)
		}
		data = append(data, t.Data...)
	}
	return &BatchTensor{N: len(tensors), Size: size, Data: data}, nil
}
