package cmd

import (
	"bufio"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/wethinkt/thinkt-live/internal/blocks"
	"github.com/wethinkt/thinkt-live/internal/broadcast"
	"github.com/wethinkt/thinkt-live/internal/eventbuf"
	"github.com/wethinkt/thinkt-live/internal/processor"
	"github.com/wethinkt/thinkt-live/internal/render"
	"github.com/wethinkt/thinkt-live/internal/watch"
)

// Replay command flags
var (
	replayRender   bool
	replaySession  string
	replayBlockIDs string
	replayStyled   bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <file.jsonl>",
	Short: "Transform a transcript file offline",
	Long: `Run a whole transcript through the same transformation the live server
uses and print the result.

By default the output is the SSE stream a client connected from the start
would receive. With --render the final set of blocks is printed as text.

Block ids default to positional, so replaying the same file twice gives
identical output.

Examples:
  thinkt-live replay ~/.claude/projects/-home-me-app/0d5c.jsonl
  thinkt-live replay session.jsonl --render
  thinkt-live replay session.jsonl --render --styled | less -R`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := setup(); err != nil {
			return err
		}
		ids, err := processor.NewIDGenerator(replayBlockIDs)
		if err != nil {
			return err
		}
		sessionID := replaySession
		if sessionID == "" {
			sessionID = watch.SessionID(args[0])
		}

		out := bufio.NewWriter(cmd.OutOrStdout())
		defer out.Flush()

		var r *render.Renderer
		if replayRender {
			r = render.New(terminalWidth(), replayStyled)
		}
		return replayFile(out, args[0], processor.New(sessionID, processor.WithIDs(ids)), r)
	},
}

func init() {
	replayCmd.Flags().BoolVar(&replayRender, "render", false, "print the final blocks as text instead of SSE frames")
	replayCmd.Flags().BoolVar(&replayStyled, "styled", false, "style rendered output for a terminal")
	replayCmd.Flags().StringVar(&replaySession, "session", "", "session id (default: file name without extension)")
	replayCmd.Flags().StringVar(&replayBlockIDs, "block-ids", processor.IDsPositional, "block id strategy (random|positional)")
}

// replayFile transforms every complete line of path. With a nil renderer it
// writes SSE frames numbered like a fresh event buffer; otherwise it writes
// the rendered final document.
func replayFile(w io.Writer, path string, p *processor.Processor, r *render.Renderer) error {
	var (
		tailer = watch.Tailer{Final: true}
		ctx    = processor.NewContext()
		doc    = render.NewDocument()
		offset int64
		line   int
		seq    int
	)
	for {
		batch, err := tailer.Read(path, offset, line)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		var events []blocks.Event
		events, ctx = p.Transform(batch.Lines, ctx)
		offset, line = batch.Offset, batch.LineNumber

		for _, ev := range events {
			if r != nil {
				doc.Apply(ev)
				continue
			}
			seq++
			m, err := broadcast.NewMessage(eventbuf.FormatID(seq), ev)
			if err != nil {
				return err
			}
			if err := broadcast.WriteSSE(w, m); err != nil {
				return err
			}
		}
		if !batch.More {
			break
		}
	}

	if r != nil {
		for i, b := range doc.Blocks() {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintln(w, r.Block(b))
		}
	}
	return nil
}
