package capture

import (
	"bufio"
	"io"
	"sync"
)

// diagRing collects the most recent stderr lines from a subprocess.
// Bounded so a chatty stage cannot grow memory over a long capture;
// failure reports only need the tail anyway.
type diagRing struct {
	mu    sync.Mutex
	lines []string
	cap   int
}

func newDiagRing(capacity int) *diagRing {
	return &diagRing{cap: capacity}
}

// consume reads r line by line until EOF, keeping the last cap lines.
// Run in its own goroutine; returns when the subprocess closes stderr.
func (d *diagRing) consume(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		d.mu.Lock()
		d.lines = append(d.lines, scanner.Text())
		if len(d.lines) > d.cap {
			d.lines = d.lines[len(d.lines)-d.cap:]
		}
		d.mu.Unlock()
	}
}

// drain returns the collected lines and clears the ring.
func (d *diagRing) drain() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.lines
	d.lines = nil
	return out
}

// snapshot returns the collected lines without clearing.
func (d *diagRing) snapshot() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.lines))
	copy(out, d.lines)
	return out
}
