package transport

import "io"

// Pipe is a concrete, in-process implementation of the migration
// transport: an io.Pipe wraps a synchronous, unbuffered handoff
// between one writer goroutine and one reader goroutine, standing in
// for the inter-process channel spec.md keeps out of scope. Send and
// Receive block until the peer end is actively reading/writing,
// matching the archipelago's use of migration as a barrier rather than
// a fire-and-forget broadcast.
type Pipe struct {
	r *io.PipeReader
	w *io.PipeWriter
}

// NewPipe returns a connected Pipe whose Writer end is read by its
// own Reader end. Two demes migrating to each other hold one Pipe per
// direction.
func NewPipe() *Pipe {
	r, w := io.Pipe()
	return &Pipe{r: r, w: w}
}

// Send writes records to the pipe's writer end. Must be called from a
// goroutine separate from the corresponding Receive call, since
// io.Pipe is unbuffered.
func (p *Pipe) Send(records []EntityRecord) error {
	return WriteBatch(p.w, records)
}

// Receive reads one batch from the pipe's reader end.
func (p *Pipe) Receive() ([]EntityRecord, error) {
	return ReadBatch(p.r)
}

// Close closes both ends of the pipe.
func (p *Pipe) Close() error {
	werr := p.w.Close()
	rerr := p.r.Close()
	if werr != nil {
		return werr
	}
	return rerr
}
