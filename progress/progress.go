package progress

import (
	"io"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Bars renders one bar per pipeline stage.
type Bars struct {
	p     *mpb.Progress
	load  *mpb.Bar
	infer *mpb.Bar
	write *mpb.Bar
}

func New(w io.Writer, images, batches int) *Bars {
	p := mpb.New(mpb.WithOutput(w), mpb.WithWidth(40))
	return &Bars{
		p:     p,
		load:  addBar(p, "Preprocessing:", images),
		infer: addBar(p, "Inference:", batches),
		write: addBar(p, "Output:", images),
	}
}

func addBar(p *mpb.Progress, name string, total int) *mpb.Bar {
	return p.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name(name, decor.WCSyncSpaceR),
			decor.CountersNoUnit("%d/%d", decor.WCSyncSpace),
		),
		mpb.AppendDecorators(
			decor.Elapsed(decor.ET_STYLE_GO, decor.WCSyncSpace),
			decor.OnComplete(decor.AverageETA(decor.ET_STYLE_GO), "Completed!"),
		),
	)
}

func (b *Bars) ImageLoaded(string) { b.load.Increment() }

func (b *Bars) BatchInferred(int) { b.infer.Increment() }

func (b *Bars) ImageWritten(string) { b.write.Increment() }

// Finish stops bars that did not complete, e.g. after a failed run, and waits
// for the last render.
func (b *Bars) Finish() {
	for _, bar := range []*mpb.Bar{b.load, b.infer, b.write} {
		if !bar.Completed() {
			bar.Abort(false)
		}
	}
	b.p.Wait()
}
