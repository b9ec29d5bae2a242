package lines

import (
	"context"
	"io"
)

// Lines feeds an Assembler from r and delivers completed lines until r fails
// or ctx ends. The channel is closed on return.
func Lines(ctx context.Context, r io.Reader, max int) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		a := New(max)
		buf := make([]byte, 256)
		for {
			n, err := r.Read(buf)
			for _, l := range a.Feed(buf[:n]) {
				select {
				case out <- l:
				case <-ctx.Done():
					return
				}
			}
			if err != nil || ctx.Err() != nil {
				return
			}
		}
	}()
	return out
}
