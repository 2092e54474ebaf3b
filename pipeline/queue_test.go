package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnboundedNeverBlocksSender(t *testing.T) {
	in := make(chan int)
	out := unbounded(context.Background(), in)

	for i := range 1000 {
		in <- i
	}
	close(in)

	var got []int
	for v := range out {
		got = append(got, v)
	}
	assert.Len(t, got, 1000)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestUnboundedStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan int)
	out := unbounded(ctx, in)
	in <- 1
	cancel()
	for range out {
	}
}
