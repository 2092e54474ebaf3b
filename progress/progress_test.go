package progress

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/krau/konabatch/pipeline"
)

var _ pipeline.Observer = (*Bars)(nil)

func finishWithin(t *testing.T, b *Bars) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		b.Finish()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Finish did not return")
	}
}

func TestBarsComplete(t *testing.T) {
	b := New(io.Discard, 2, 1)
	b.ImageLoaded("a.png")
	b.ImageLoaded("b.png")
	b.BatchInferred(2)
	b.ImageWritten("a.png")
	b.ImageWritten("b.png")
	finishWithin(t, b)
}

func TestBarsAbortOnFailure(t *testing.T) {
	b := New(io.Discard, 10, 4)
	b.ImageLoaded("a.png")
	finishWithin(t, b)
}

func TestBarsEmptyRun(t *testing.T) {
	b := New(io.Discard, 0, 0)
	finishWithin(t, b)
	require.NotNil(t, b.p)
}
