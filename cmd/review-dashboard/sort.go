package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/output"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/page"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/types"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/watch"
)

func newSortCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sort",
		Short: "Sort your pull requests into review sections once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			doc := page.NewDocument()
			if _, err := a.loadLists(ctx, doc); err != nil {
				return err
			}
			enh, err := a.enhancer(doc)
			if err != nil {
				return err
			}

			start := time.Now()
			if err := a.boundary(cmd.ErrOrStderr()).Run("sort", func() error { return enh.ProcessAll(ctx) }); err != nil {
				slog.Warn("Some rows could not be sorted", "error", err)
			}
			slog.Debug("Sorted pull requests", "duration", time.Since(start))

			return printDocument(cmd.OutOrStdout(), doc)
		},
	}
}

func newWatchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep the sections up to date as pull requests change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			doc := page.NewDocument()
			poll := a.pollCandidates(doc)
			if _, err := poll(ctx); err != nil {
				return err
			}
			enh, err := a.enhancer(doc)
			if err != nil {
				return err
			}

			w := watch.New(a.cfg.Watch.Debounce)
			w.Handle("dashboard", enh.Handler(a.boundary(cmd.ErrOrStderr())))
			w.Handle("print", func(context.Context, []watch.Candidate) {
				if err := printDocument(cmd.OutOrStdout(), doc); err != nil {
					slog.Warn("Failed to print sections", "error", err)
				}
			})

			sources := []watch.Source{watch.DocumentSource{Doc: doc}}
			if a.cfg.Watch.PollInterval > 0 {
				sources = append(sources, watch.Poller{Poll: poll, Interval: a.cfg.Watch.PollInterval})
			}
			if a.cfg.Watch.Sprinkler {
				src, err := watch.NewSprinklerSource(watch.SprinklerConfig{
					Token:        a.sprinklerToken,
					ServerURL:    a.cfg.Watch.SprinklerURL,
					OrgURL:       a.client.BaseURL(),
					Organization: a.cfg.Watch.Organization,
				})
				if err != nil {
					return fmt.Errorf("configuring event server: %w", err)
				}
				sources = append(sources, src)
			}

			slog.Info("Watching pull requests", "sources", len(sources), "debounce", a.cfg.Watch.Debounce)
			if err := w.Run(ctx, sources...); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}

// sprinklerToken returns the event server credential. The Azure DevOps token is never sent there.
func (a *app) sprinklerToken() (string, error) {
	if a.cfg.Watch.SprinklerToken == "" {
		return "", errors.New("no token for the event server")
	}
	return a.cfg.Watch.SprinklerToken, nil
}

func printDocument(w io.Writer, doc *page.Document) error {
	var unsorted []*page.Row
	for _, lc := range []types.ListContext{types.ContextAssignedToMe, types.ContextCreatedByMe} {
		for _, r := range doc.Rows(lc) {
			if r.Section() == types.SectionNone {
				unsorted = append(unsorted, r)
			}
		}
	}
	p := output.New(w)
	p.Sections(doc.Sections(), unsorted)
	return p.Err()
}
