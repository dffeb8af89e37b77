package render

import "github.com/wethinkt/thinkt-live/internal/blocks"

// Document is a client-side view of a session: the blocks in order of
// arrival, kept current by applying events.
type Document struct {
	order []string
	byID  map[string]blocks.Block
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{byID: make(map[string]blocks.Block)}
}

// Apply folds one event into the document and returns the block it added
// or changed. ok is false for ClearAll and for updates of unknown blocks,
// which are ignored.
func (d *Document) Apply(ev blocks.Event) (b blocks.Block, ok bool) {
	switch e := ev.(type) {
	case blocks.AddBlock:
		if _, exists := d.byID[e.Block.ID]; !exists {
			d.order = append(d.order, e.Block.ID)
		}
		d.byID[e.Block.ID] = e.Block
		return e.Block, true
	case blocks.UpdateBlock:
		cur, exists := d.byID[e.BlockID]
		if !exists {
			return blocks.Block{}, false
		}
		cur.Content = e.Content
		d.byID[e.BlockID] = cur
		return cur, true
	case blocks.ClearAll:
		d.order = nil
		d.byID = make(map[string]blocks.Block)
	}
	return blocks.Block{}, false
}

// Blocks returns the blocks in order of arrival.
func (d *Document) Blocks() []blocks.Block {
	out := make([]blocks.Block, len(d.order))
	for i, id := range d.order {
		out[i] = d.byID[id]
	}
	return out
}

// Len returns the number of blocks.
func (d *Document) Len() int { return len(d.order) }
