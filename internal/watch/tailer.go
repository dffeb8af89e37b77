package watch

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/wethinkt/thinkt-live/internal/processor"
)

// DefaultMaxLines bounds the lines returned by a single Read.
const DefaultMaxLines = 500

// Batch is the result of reading a transcript from a known position.
type Batch struct {
	Lines      []processor.Line
	Offset     int64 // byte offset after the last complete line read
	LineNumber int   // number of the last complete line read
	Reset      bool  // the file shrank and was read from the start
	More       bool  // MaxLines was reached before the end of the file
}

// Tailer reads complete lines appended to a file since a previous read.
type Tailer struct {
	MaxLines int
	// Final treats the file as finished: an unterminated last line is
	// returned instead of waiting for its newline.
	Final bool
}

// Read returns the complete, newline-terminated lines after offset. A
// trailing partial line is left for the next read. When the file is shorter
// than offset it was truncated or replaced, so reading restarts at the
// beginning with Reset set.
func (t Tailer) Read(path string, offset int64, lineNumber int) (Batch, error) {
	maxLines := t.MaxLines
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}

	f, err := os.Open(path)
	if err != nil {
		return Batch{}, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Batch{}, fmt.Errorf("stat transcript: %w", err)
	}

	b := Batch{Offset: offset, LineNumber: lineNumber}
	if info.Size() < offset {
		b = Batch{Reset: true}
	}
	if b.Offset > 0 {
		if _, err := f.Seek(b.Offset, io.SeekStart); err != nil {
			return Batch{}, fmt.Errorf("seek transcript: %w", err)
		}
	}

	r := bufio.NewReaderSize(f, 64*1024)
	for len(b.Lines) < maxLines {
		raw, err := r.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				if t.Final && len(bytes.TrimSpace(raw)) > 0 {
					b.Offset += int64(len(raw))
					b.LineNumber++
					b.Lines = append(b.Lines, processor.Line{Number: b.LineNumber, Raw: bytes.TrimRight(raw, "\r")})
				}
				// Otherwise wait for the writer to finish the line.
				return b, nil
			}
			return b, fmt.Errorf("read transcript: %w", err)
		}
		b.Offset += int64(len(raw))
		b.LineNumber++
		b.Lines = append(b.Lines, processor.Line{
			Number: b.LineNumber,
			Raw:    bytes.TrimRight(raw, "\r\n"),
		})
	}

	_, err = r.Peek(1)
	b.More = err == nil
	return b, nil
}
