package pipeline

import "context"

// unbounded relays in to the returned channel without ever blocking the
// sender for longer than a handoff. Items are delivered in order. The output
// closes once in is closed and drained, or when ctx is done.
func unbounded[T any](ctx context.Context, in <-chan T) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		var pending []T
		for in != nil || len(pending) > 0 {
			var send chan<- T
			var next T
			if len(pending) > 0 {
				send = out
				next = pending[0]
			}
			select {
			case v, ok := <-in:
				if !ok {
					in = nil
					continue
				}
				pending = append(pending, v)
			case send <- next:
				var zero T
				pending[0] = zero
				pending = pending[1:]
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
