package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"brandkit-backend/internal/bootstrap"
	"brandkit-backend/internal/formats"
)

type appBuilder func() (*bootstrap.App, error)

func newRootCmd(build appBuilder) *cobra.Command {
	var asJSON bool
	root := &cobra.Command{
		Use:           "formatctl",
		Short:         "Resolve and inspect derived asset formats",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&asJSON, "json", false, "print JSON instead of text")

	manager := func() (*formats.Manager, error) {
		app, err := build()
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		return app.Formats, nil
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "resolve <asset-id> <format>",
			Short: "Return a URL for the asset in format, generating it if needed",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := manager()
				if err != nil {
					return err
				}
				url, err := m.ResolveFormat(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), map[string]string{"url": url})
				}
				fmt.Fprintln(cmd.OutOrStdout(), url)
				return nil
			},
		},
		&cobra.Command{
			Use:   "info <asset-id> <format>",
			Short: "Show the cached entry for one format",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := manager()
				if err != nil {
					return err
				}
				entry, err := m.FormatInfo(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), entry)
				}
				size := "-"
				if entry.Size != nil {
					size = fmt.Sprintf("%d", *entry.Size)
				}
				generated := "-"
				if entry.GeneratedAt != nil {
					generated = entry.GeneratedAt.UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", formats.Normalize(args[1]), entry.URL, size, generated)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list <asset-id>",
			Short: "List cached formats and download options",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := manager()
				if err != nil {
					return err
				}
				summary, err := m.Summarize(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), summary)
				}
				out := cmd.OutOrStdout()
				names := make([]string, 0, len(summary.Formats))
				for name := range summary.Formats {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					fmt.Fprintf(out, "%s\t%s\n", name, summary.Formats[name].URL)
				}
				fmt.Fprintf(out, "download options: %s\n", strings.Join(summary.DownloadOptions, ", "))
				return nil
			},
		},
		&cobra.Command{
			Use:   "prewarm <asset-id> <format>...",
			Short: "Generate several formats now",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := manager()
				if err != nil {
					return err
				}
				results, err := m.Prewarm(cmd.Context(), args[0], args[1:])
				out := cmd.OutOrStdout()
				for _, r := range results {
					if r.Err != nil {
						fmt.Fprintf(out, "%s\tfailed\t%s\n", r.Format, formats.Kind(r.Err))
						continue
					}
					fmt.Fprintf(out, "%s\tok\t%s\n", r.Format, r.URL)
				}
				if err != nil && len(results) > 0 {
					return errors.New("one or more formats failed")
				}
				return err
			},
		},
	)
	return root
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
