package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wethinkt/thinkt-live/internal/applog"
	"github.com/wethinkt/thinkt-live/internal/blocks"
	"github.com/wethinkt/thinkt-live/internal/broadcast"
	"github.com/wethinkt/thinkt-live/internal/config"
	"github.com/wethinkt/thinkt-live/internal/render"
)

// Tail command flags
var (
	tailLastEventID string
	tailToken       string
	tailPlain       bool
	tailRetry       time.Duration
)

var tailCmd = &cobra.Command{
	Use:   "tail <session-id|url>",
	Short: "Follow a live session stream in the terminal",
	Long: `Connect to a session's Server-Sent Events stream and print blocks as
they arrive. Updated blocks are printed again with their new content.

When the connection drops the client reconnects and resumes from the last
event it received. The command exits when the session ends.

Given a bare session id, the most recently started local server is used.
Output is styled when stdout is a terminal; use --plain to force plain text.

Examples:
  thinkt-live tail 0d5c8c9e
  thinkt-live tail http://localhost:7434/v1/sessions/0d5c8c9e/events
  thinkt-live tail http://localhost:7434/v1/sessions/0d5c8c9e/events --last-event-id evt_010`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		defer applog.Log.Close()

		target, err := streamURL(args[0])
		if err != nil {
			return err
		}
		token := tailToken
		if token == "" {
			token = cfg.Token
		}
		styled := !tailPlain && term.IsTerminal(int(os.Stdout.Fd()))
		t := &tailer{
			client: http.DefaultClient,
			url:    target,
			token:  token,
			retry:  tailRetry,
			out:    cmd.OutOrStdout(),
			r:      render.New(terminalWidth(), styled),
			doc:    render.NewDocument(),
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		if err := t.run(ctx, tailLastEventID); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

func init() {
	tailCmd.Flags().StringVar(&tailLastEventID, "last-event-id", "", "resume after this event id")
	tailCmd.Flags().StringVar(&tailToken, "token", "", "bearer token (default: token from config)")
	tailCmd.Flags().BoolVar(&tailPlain, "plain", false, "plain text output even on a terminal")
	tailCmd.Flags().DurationVar(&tailRetry, "retry", 2*time.Second, "delay before reconnecting; 0 disables reconnects")
}

// streamURL returns target unchanged when it is a URL, otherwise treats it
// as a session id on the newest registered local server.
func streamURL(target string) (string, error) {
	if strings.Contains(target, "://") {
		return target, nil
	}
	inst, ok := config.FindInstance()
	if !ok {
		return "", errors.New("no running thinkt-live server found; pass a stream URL instead")
	}
	return inst.BaseURL() + "/v1/sessions/" + url.PathEscape(target) + "/events", nil
}

// terminalWidth returns the stdout width, or 80 when it is not a terminal.
func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}

// tailer is a reconnecting SSE client that prints blocks.
type tailer struct {
	client *http.Client
	url    string
	token  string
	retry  time.Duration
	out    io.Writer
	r      *render.Renderer
	doc    *render.Document
	lastID string
}

func (t *tailer) run(ctx context.Context, lastID string) error {
	t.lastID = lastID
	for {
		done, err := t.stream(ctx)
		switch {
		case done:
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		case t.retry <= 0:
			return err
		}
		applog.Log.Debug("Stream interrupted, reconnecting", "url", t.url, "last_event_id", t.lastID, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.retry):
		}
	}
}

// stream reads one connection until it ends. done reports that
// reconnecting is pointless: the session ended or the request was rejected.
func (t *tailer) stream(ctx context.Context) (done bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, nil)
	if err != nil {
		return true, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if t.lastID != "" {
		req.Header.Set("Last-Event-ID", t.lastID)
	}
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("GET %s: %s: %s", t.url, resp.Status, strings.TrimSpace(string(body)))
		return resp.StatusCode < 500, err
	}

	dec := broadcast.NewSSEDecoder(resp.Body)
	for {
		m, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if t.handle(m) {
			return true, nil
		}
	}
}

// handle prints one message and reports whether it ended the session.
func (t *tailer) handle(m broadcast.Message) bool {
	if m.Event == broadcast.EventSessionEnded {
		fmt.Fprintf(t.out, "-- session ended %s\n", m.Data)
		return true
	}
	if m.ID != "" {
		t.lastID = m.ID
	}
	ev, err := m.Decode()
	if err != nil {
		applog.Log.Debug("Skipping undecodable event", "id", m.ID, "event", m.Event, "error", err)
		return false
	}
	if _, ok := ev.(blocks.ClearAll); ok {
		t.doc.Apply(ev)
		fmt.Fprintln(t.out, "-- cleared")
		return false
	}
	if b, ok := t.doc.Apply(ev); ok {
		fmt.Fprintln(t.out, t.r.Block(b))
	}
	return false
}
