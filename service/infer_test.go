package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"
)

func TestInputGeometry(t *testing.T) {
	tests := []struct {
		name          string
		dims          ort.Shape
		size          int
		channelsFirst bool
		wantErr       bool
	}{
		{"nhwc dynamic batch", ort.NewShape(-1, 448, 448, 3), 448, false, false},
		{"nchw", ort.NewShape(1, 3, 384, 384), 384, true, false},
		{"not square", ort.NewShape(1, 448, 320, 3), 0, false, true},
		{"3d", ort.NewShape(448, 448, 3), 0, false, true},
		{"dynamic size", ort.NewShape(1, -1, -1, 3), 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, cf, err := inputGeometry(tt.dims)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.size, size)
			assert.Equal(t, tt.channelsFirst, cf)
		})
	}
}

func TestToCHW(t *testing.T) {
	// two 1x2 images, HWC pixels (r,g,b)
	batch := &BatchTensor{N: 2, Size: 1, Data: []float32{1, 2, 3, 4, 5, 6}}
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, toCHW(batch))

	batch = &BatchTensor{N: 1, Size: 2, Data: []float32{
		1, 2, 3, 4, 5, 6,
		7, 8, 9, 10, 11, 12,
	}}
	assert.Equal(t, []float32{
		1, 4, 7, 10,
		2, 5, 8, 11,
		3, 6, 9, 12,
	}, toCHW(batch))
}

func TestScoreMatrixRow(t *testing.T) {
	m := &ScoreMatrix{Rows: 2, Cols: 3, Data: []float32{1, 2, 3, 4, 5, 6}}
	assert.Equal(t, []float32{4, 5, 6}, m.Row(1))
}

func TestSelectDevice(t *testing.T) {
	orig := appendProvider
	t.Cleanup(func() { appendProvider = orig })

	var calls []int
	appendProvider = func(_ *ort.SessionOptions, id int) error {
		calls = append(calls, id)
		return nil
	}
	assert.Equal(t, "cpu", selectDevice(nil, -1))
	assert.Empty(t, calls)
	assert.Equal(t, "cuda:1", selectDevice(nil, 1))
	assert.Equal(t, []int{1}, calls)

	appendProvider = func(*ort.SessionOptions, int) error {
		return errors.New("CUDA execution provider is not enabled in this build")
	}
	assert.Equal(t, "cpu", selectDevice(nil, 0))
}
