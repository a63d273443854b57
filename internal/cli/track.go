package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/callwatch/internal/event"
)

var trackFile string

func init() {
	rootCmd.AddCommand(trackCmd)
	trackCmd.Flags().StringVar(&trackFile, "file", "", "JSON lines file of events, or - for stdin (required)")
	trackCmd.MarkFlagRequired("file")
}

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Send events from a JSON lines file",
	Long: "Reads one event per line as {\"type\": ..., \"name\": ..., \"payload\": {...}, \"metadata\": {...}},\n" +
		"tracks each one and drains the queue before exiting.\n" +
		"Fails if any event could not be delivered.",
	RunE: runTrack,
}

type eventLine struct {
	Type     string         `json:"type"`
	Name     string         `json:"name"`
	Payload  map[string]any `json:"payload"`
	Metadata map[string]any `json:"metadata"`
}

// readEvents parses JSON lines into events. Blank lines are skipped.
func readEvents(r io.Reader) ([]event.Event, error) {
	var out []event.Event
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 10<<20)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var el eventLine
		if err := json.Unmarshal([]byte(text), &el); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ev, err := event.New(event.Type(el.Type), el.Name, el.Payload, el.Metadata)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, ev)
	}
	return out, sc.Err()
}

func runTrack(cmd *cobra.Command, args []string) error {
	var r io.Reader = cmd.InOrStdin()
	if trackFile != "-" {
		f, err := os.Open(trackFile)
		if err != nil {
			return fmt.Errorf("failed to open events file: %w", err)
		}
		defer f.Close()
		r = f
	}

	events, err := readEvents(r)
	if err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	for _, ev := range events {
		if err := client.Track(ev); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	client.Close(ctx)

	stats := client.Stats()
	out, _ := json.MarshalIndent(map[string]any{
		"tracked": len(events),
		"sent":    stats.Sent,
		"pending": client.QueueSize(),
	}, "", "  ")
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if n := client.QueueSize(); n > 0 {
		return fmt.Errorf("%d events were not delivered", n)
	}
	return nil
}
