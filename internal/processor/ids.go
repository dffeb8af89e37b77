package processor

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Position locates the transcript part a block is created from.
type Position struct {
	SessionID string
	Line      int // 1-based line number within the transcript file
	Part      int // index of the part within the record's content
}

// IDGenerator produces block ids.
type IDGenerator interface {
	NewID(pos Position) string
}

// Block id strategies accepted by NewIDGenerator.
const (
	IDsRandom     = "random"
	IDsPositional = "positional"
)

// NewIDGenerator returns the generator for a strategy name. The empty
// name selects random ids.
func NewIDGenerator(strategy string) (IDGenerator, error) {
	switch strategy {
	case "", IDsRandom:
		return RandomIDs{}, nil
	case IDsPositional:
		return PositionalIDs{}, nil
	default:
		return nil, fmt.Errorf("unknown block id strategy %q", strategy)
	}
}

// RandomIDs returns a fresh 32 hex character id per call, independent of
// the position.
type RandomIDs struct{}

func (RandomIDs) NewID(Position) string {
	return hexID(uuid.New())
}

// positionalNamespace scopes positional ids to this application.
var positionalNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/wethinkt/thinkt-live/blocks"))

// PositionalIDs derives the id from the position, so re-processing the same
// lines yields the same ids.
type PositionalIDs struct{}

func (PositionalIDs) NewID(pos Position) string {
	name := pos.SessionID + "\x00" + strconv.Itoa(pos.Line) + "\x00" + strconv.Itoa(pos.Part)
	return hexID(uuid.NewSHA1(positionalNamespace, []byte(name)))
}

func hexID(u uuid.UUID) string {
	return hex.EncodeToString(u[:])
}
