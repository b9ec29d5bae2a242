// Package lines reassembles CR/LF-terminated text lines from a byte stream.
package lines

// DefaultMax is the host link line buffer size; a line holds at most DefaultMax-1 bytes.
const DefaultMax = 1024

// Assembler accumulates bytes of one continuous stream. Not safe for
// concurrent use; one assembler per stream.
type Assembler struct {
	buf     []byte
	max     int
	dropped uint64
}

// New returns an assembler with a max-byte buffer (max <= 1 -> DefaultMax).
func New(max int) *Assembler {
	if max <= 1 {
		max = DefaultMax
	}
	return &Assembler{buf: make([]byte, 0, max), max: max}
}

// Feed consumes p and returns the lines it completed, terminators stripped.
// Consecutive terminators emit nothing. A line reaching max bytes without a
// terminator is dropped and accumulation restarts after it.
func (a *Assembler) Feed(p []byte) []string {
	var out []string
	for _, c := range p {
		switch {
		case c == '\n' || c == '\r':
			if len(a.buf) == 0 {
				continue
			}
			out = append(out, string(a.buf))
			a.buf = a.buf[:0]
		case len(a.buf) < a.max-1:
			a.buf = append(a.buf, c)
		default:
			a.buf = a.buf[:0]
			a.dropped++
		}
	}
	return out
}

// Pending is the number of bytes held for the current line.
func (a *Assembler) Pending() int { return len(a.buf) }

// Dropped counts lines discarded on overflow.
func (a *Assembler) Dropped() uint64 { return a.dropped }
