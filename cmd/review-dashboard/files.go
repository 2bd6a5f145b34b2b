package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/filetree"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/output"
)

func newFilesCmd(opts *options) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "files <pr>",
		Short: "Show a pull request's changed files with your role and review checkboxes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prID, err := parsePRArg(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			v, err := a.files().View(ctx, prID)
			if err != nil {
				return err
			}
			p := output.New(cmd.OutOrStdout())
			p.Files(v, !all)
			return p.Err()
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include files you are not asked to review")
	return cmd
}

func newCheckCmd(opts *options) *cobra.Command {
	var uncheck bool
	cmd := &cobra.Command{
		Use:   "check <pr> <path>",
		Short: "Mark a file as reviewed in the pull request's current update",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			prID, err := parsePRArg(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			files, err := a.files().Toggle(ctx, prID, args[1], !uncheck)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d file(s) checked in !%d\n", len(files), prID)
			return err
		},
	}
	cmd.Flags().BoolVar(&uncheck, "uncheck", false, "Clear the checkbox instead")
	return cmd
}

func newIterationsCmd(opts *options) *cobra.Command {
	var (
		compare int
		pageURL string
	)
	cmd := &cobra.Command{
		Use:   "iterations <pr>",
		Short: "List a pull request's updates, optionally building a compare link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prID, err := parsePRArg(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			updates, err := a.files().UpdateOptions(ctx, prID)
			if err != nil {
				return err
			}
			p := output.New(cmd.OutOrStdout())
			p.Updates(updates)
			if err := p.Err(); err != nil {
				return err
			}

			if !cmd.Flags().Changed("compare") {
				return nil
			}
			if pageURL == "" {
				pr, err := a.client.PullRequest(ctx, prID)
				if err != nil {
					return err
				}
				pageURL = a.webURL(pr)
			}
			latest := 0
			if len(updates) > 1 {
				latest = updates[0].ID
			}
			link, err := filetree.CompareURL(pageURL, compare, latest)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), link)
			return err
		},
	}
	cmd.Flags().IntVar(&compare, "compare", 0, "Print a link comparing the latest update against this one (0 is the merge base)")
	cmd.Flags().StringVar(&pageURL, "url", "", "Pull request page to build the compare link from")
	return cmd
}

func newWhoamiCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the user and organization the dashboard acts as",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			p := output.New(cmd.OutOrStdout())
			p.Session(a.session)
			return p.Err()
		},
	}
}
