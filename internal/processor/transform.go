package processor

import (
	"github.com/wethinkt/thinkt-live/internal/blocks"
)

// Transform processes a batch of lines in order against a copy of ctx and
// returns the events together with the resulting context. ctx itself is never
// modified, and a nil ctx is treated as a fresh session.
func (p *Processor) Transform(lines []Line, ctx *Context) ([]blocks.Event, *Context) {
	next := ctx.Clone()
	var events []blocks.Event
	for _, line := range lines {
		events = append(events, p.Process(next, line)...)
	}
	return events, next
}
