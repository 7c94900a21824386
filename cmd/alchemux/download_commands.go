package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"alchemux/internal/deps"
	"alchemux/internal/pipeline"
	"alchemux/internal/settings"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch FILE",
		Short: "Download every URL listed in FILE (use - for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader
			if args[0] == "-" {
				r = cmd.InOrStdin()
			} else {
				file, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open URL list: %w", err)
				}
				defer file.Close()
				r = file
			}
			urls, skipped, err := pipeline.ReadURLList(r)
			if err != nil {
				return err
			}
			if skipped > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "Skipped %d entr%s without an http(s) URL\n", skipped, plural(skipped, "y", "ies"))
			}
			if len(urls) == 0 {
				return errors.New("no URLs to process")
			}
			return runURLs(cmd, ctx, urls)
		},
	}
	addDownloadFlags(cmd, ctx.flags)
	return cmd
}

// runURLs processes each URL in order and keeps going after a failure.
func runURLs(cmd *cobra.Command, ctx *commandContext, urls []string) error {
	s, err := ctx.ensureSettings(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	colorize := ctx.colorize(cmd)
	words := vocabularyFor(s)

	for _, note := range s.Notes() {
		fmt.Fprintln(errOut, renderStatusLine("Note", statusWarn, note, colorize))
	}

	planOpts, err := engineOptions(ctx.flags.dryRun)
	if err != nil {
		return err
	}

	logger := ctx.loggerFor(cmd)
	runner := pipeline.NewRunner(pipeline.WithLogger(logger))
	failed := 0
	for _, rawURL := range urls {
		plan, err := pipeline.BuildPlan(s, rawURL, planOpts...)
		if err != nil {
			failed++
			fmt.Fprintln(errOut, renderStatusLine(words.download, statusError, err.Error(), colorize))
			continue
		}
		if ctx.flags.dryRun {
			fmt.Fprintln(out, commandLine(plan))
			continue
		}
		outcome, err := runner.Run(cmd.Context(), plan)
		if err != nil {
			failed++
			fmt.Fprintln(errOut, renderStatusLine(words.download, statusError, fmt.Sprintf("%s: %v", plan.URL, err), colorize))
			continue
		}
		fmt.Fprintln(out, renderStatusLine(words.download, statusOK, outcomeMessage(outcome, plan, words), colorize))
		for _, note := range outcome.Notes {
			fmt.Fprintln(errOut, renderStatusLine("Note", statusWarn, note, colorize))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d URL%s failed", failed, len(urls), plural(len(urls), "", "s"))
	}
	return nil
}

// engineOptions checks the external tools before anything is downloaded.
// A dry run only prints the command, so missing tools are not an error.
func engineOptions(dryRun bool) ([]pipeline.PlanOption, error) {
	var opts []pipeline.PlanOption
	engine := deps.CheckBinaries([]deps.Requirement{{Name: "yt-dlp", Command: deps.DownloadEngine}})[0]
	if !engine.Available {
		if dryRun {
			return opts, nil
		}
		return nil, fmt.Errorf("%s not found: %s (run alchemux doctor for details)", engine.Command, engine.Detail)
	}
	if ffmpeg := deps.CheckFFmpegForEngine(engine.Command); ffmpeg.Sidecar() {
		opts = append(opts, pipeline.WithFFmpegLocation(ffmpeg.Command))
	}
	return opts, nil
}

func outcomeMessage(outcome pipeline.Outcome, plan pipeline.Plan, words vocabulary) string {
	count := len(outcome.Files)
	switch {
	case count == 0:
		return fmt.Sprintf("%s: nothing new in %s", plan.URL, plan.OutputDir)
	case outcome.Uploaded:
		return fmt.Sprintf("%s: %s %d file%s to %s://%s", plan.URL, words.uploaded, count, plural(count, "", "s"), plan.Destination, plan.Bucket)
	default:
		return fmt.Sprintf("%s: %s %d file%s in %s", plan.URL, words.saved, count, plural(count, "", "s"), plan.OutputDir)
	}
}

func commandLine(plan pipeline.Plan) string {
	parts := make([]string, 0, len(plan.Args)+1)
	parts = append(parts, plan.Command)
	for _, arg := range plan.Args {
		if arg == "" || strings.ContainsAny(arg, " \t\"'$%()") {
			arg = fmt.Sprintf("%q", arg)
		}
		parts = append(parts, arg)
	}
	return strings.Join(parts, " ")
}

type vocabulary struct {
	download string
	saved    string
	uploaded string
}

func vocabularyFor(s *settings.Settings) vocabulary {
	if s != nil && s.ArcaneTerms() {
		return vocabulary{download: "Transmute", saved: "transmuted", uploaded: "sent"}
	}
	return vocabulary{download: "Download", saved: "saved", uploaded: "uploaded"}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
