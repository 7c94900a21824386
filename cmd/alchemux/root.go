package main

import (
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	ctx := newCommandContext(flags)

	rootCmd := &cobra.Command{
		Use:           "alchemux [URL]",
		Short:         "Alchemux media download CLI",
		Long:          "Alchemux downloads audio or video from a URL, converts it, and optionally uploads the result to cloud storage.",
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureSettings(cmd)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return runURLs(cmd, ctx, args)
		},
	}
	rootCmd.SetVersionTemplate("Alchemux {{.Version}}\n")

	persistent := rootCmd.PersistentFlags()
	persistent.StringVar(&flags.configDir, "config-dir", "", "Use this configuration directory for this run")
	persistent.BoolVar(&flags.noConfig, "no-config", false, "Run without reading or writing any configuration")
	persistent.StringVar(&flags.downloadDir, "download-dir", "", "Save downloads to this directory for this run")
	persistent.BoolVar(&flags.debug, "debug", false, "Enable debug logging")
	persistent.BoolVarP(&flags.verbose, "verbose", "v", false, "Show progress details")
	persistent.BoolVar(&flags.plain, "plain", false, "Disable colored output")
	rootCmd.MarkFlagsMutuallyExclusive("config-dir", "no-config")

	addDownloadFlags(rootCmd, flags)

	rootCmd.AddCommand(newBatchCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))
	rootCmd.AddCommand(newDoctorCommand(ctx))

	return rootCmd
}

func addDownloadFlags(cmd *cobra.Command, flags *rootFlags) {
	f := cmd.Flags()
	f.BoolVar(&flags.flac, "flac", false, "Convert audio to FLAC with the configured preset")
	f.BoolVar(&flags.video, "video", false, "Keep the video stream")
	f.BoolVar(&flags.local, "local", false, "Keep the result locally for this run")
	f.BoolVar(&flags.s3, "s3", false, "Upload the result to S3 for this run")
	f.BoolVar(&flags.gcp, "gcp", false, "Upload the result to Google Cloud Storage for this run")
	f.BoolVar(&flags.dryRun, "dry-run", false, "Print the download command without running it")
	cmd.MarkFlagsMutuallyExclusive("local", "s3", "gcp")
}
