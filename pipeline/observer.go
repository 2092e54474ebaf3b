package pipeline

import "sync/atomic"

// Observer receives stage progress events. Calls may come from several
// goroutines at once.
type Observer interface {
	ImageLoaded(path string)
	BatchInferred(size int)
	ImageWritten(path string)
}

type nopObserver struct{}

func (nopObserver) ImageLoaded(string)  {}
func (nopObserver) BatchInferred(int)   {}
func (nopObserver) ImageWritten(string) {}

// Counters is an Observer that only counts.
type Counters struct {
	Loaded   atomic.Int64
	Inferred atomic.Int64
	Written  atomic.Int64
}

func (c *Counters) ImageLoaded(string)  { c.Loaded.Add(1) }
func (c *Counters) BatchInferred(int)   { c.Inferred.Add(1) }
func (c *Counters) ImageWritten(string) { c.Written.Add(1) }

type multiObserver []Observer

func (m multiObserver) ImageLoaded(path string) {
	for _, o := range m {
		o.ImageLoaded(path)
	}
}

func (m multiObserver) BatchInferred(size int) {
	for _, o := range m {
		o.BatchInferred(size)
	}
}

func (m multiObserver) ImageWritten(path string) {
	for _, o := range m {
		o.ImageWritten(path)
	}
}

// Observers fans events out to every non-nil observer.
func Observers(obs ...Observer) Observer {
	var m multiObserver
	for _, o := range obs {
		if o != nil {
			m = append(m, o)
		}
	}
	return m
}
