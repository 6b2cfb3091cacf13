package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/storagepeer/internal/config"
	"github.com/roach88/storagepeer/internal/content"
	"github.com/roach88/storagepeer/internal/link"
	"github.com/roach88/storagepeer/internal/traverse"
)

// LinkEntry is one link found in a document.
type LinkEntry struct {
	Kind        string `json:"kind"`
	URL         string `json:"url"`
	ID          string `json:"id"`
	ContentType string `json:"content_type,omitempty"`
}

// LinksResult is the output of the links command.
type LinksResult struct {
	Links []LinkEntry `json:"links"`
}

func (r LinksResult) Text() string {
	var b strings.Builder
	for _, l := range r.Links {
		fmt.Fprintf(&b, "%-8s %s\n", l.Kind, l.URL)
	}
	fmt.Fprintf(&b, "%d link(s)\n", len(r.Links))
	return b.String()
}

// NewLinksCommand creates the links command.
func NewLinksCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "links [file|-]",
		Short: "List the links a JSON document would make the peer replicate",
		Long: `Read a JSON document from a file or stdin, walk it the way the crawler
does, and print every document, file and wrapped link found, sorted and
without duplicates. Object keys are searched as well as values.

Example:
  storagepeer links board.json
  cat board.json | storagepeer links --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			return runLinks(cmd, rootOpts, path)
		},
	}
}

func runLinks(cmd *cobra.Command, opts *RootOptions, path string) error {
	out := opts.formatter(cmd)

	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		_ = out.Error(ErrCodeInvalidInput, "failed to read input", err.Error())
		return WrapExitError(ExitCommandError, "failed to read input", err)
	}

	doc, err := content.Unmarshal(data)
	if err != nil {
		_ = out.Error(ErrCodeInvalidInput, "input is not JSON", err.Error())
		return WrapExitError(ExitCommandError, "input is not JSON", err)
	}

	cfg := config.Default()
	if opts.Verbose {
		cfg.LogLevel = "debug"
	}
	return out.Success(findLinks(doc, newLogger(cmd.ErrOrStderr(), cfg)))
}

// findLinks returns the distinct links under doc, sorted by URL.
func findLinks(doc content.Value, logger *slog.Logger) LinksResult {
	found := traverse.IterativeDFSWithLogger(logger, doc, func(v content.Value) bool {
		s, ok := v.(content.String)
		return ok && link.IsLink(string(s))
	})

	seen := make(map[string]struct{}, len(found))
	entries := make([]LinkEntry, 0, len(found))
	for _, v := range found {
		s := string(v.(content.String))
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		l, err := link.Parse(s)
		if err != nil {
			continue
		}
		entries = append(entries, LinkEntry{
			Kind:        l.Kind.String(),
			URL:         s,
			ID:          l.ID,
			ContentType: l.ContentType,
		})
	}
	slices.SortFunc(entries, func(a, b LinkEntry) int {
		return strings.Compare(a.URL, b.URL)
	})
	return LinksResult{Links: entries}
}
