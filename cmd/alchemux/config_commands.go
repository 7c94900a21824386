package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"alchemux/internal/backup"
	"alchemux/internal/config"
	"alchemux/internal/configerr"
	"alchemux/internal/repair"
	"alchemux/internal/secrets"
	"alchemux/internal/settings"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and change configuration",
	}

	configCmd.AddCommand(newConfigShowCommand(ctx))
	configCmd.AddCommand(newConfigKeysCommand())
	configCmd.AddCommand(newConfigSetCommand(ctx))
	configCmd.AddCommand(newConfigSetSecretCommand(ctx))
	configCmd.AddCommand(newConfigUnsetSecretCommand(ctx))
	configCmd.AddCommand(newConfigUseCommand(ctx))
	configCmd.AddCommand(newConfigMoveCommand(ctx))
	configCmd.AddCommand(newConfigBackupCommand(ctx))
	configCmd.AddCommand(newConfigRestoreCommand(ctx))

	return configCmd
}

type settingView struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Source string `json:"source"`
}

type configView struct {
	Dir         string        `json:"dir,omitempty"`
	Provenance  string        `json:"provenance"`
	Ephemeral   bool          `json:"ephemeral"`
	Notes       []string      `json:"notes,omitempty"`
	Preferences []settingView `json:"preferences"`
	Secrets     []settingView `json:"secrets"`
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective settings and where each value comes from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.ensureSettings(cmd)
			if err != nil {
				return err
			}
			loc := s.Location()
			view := configView{
				Dir:         loc.Dir,
				Provenance:  string(loc.Provenance),
				Ephemeral:   s.Ephemeral(),
				Notes:       s.Notes(),
				Preferences: settingViews(s.Entries()),
				Secrets:     settingViews(s.SecretEntries()),
			}
			if jsonOutput {
				return writeJSON(cmd, view)
			}

			out := cmd.OutOrStdout()
			colorize := ctx.colorize(cmd)
			for _, line := range renderSectionHeader("Configuration", colorize) {
				fmt.Fprintln(out, line)
			}
			if s.Ephemeral() {
				fmt.Fprintln(out, renderStatusLine("Directory", statusInfo, "none (ephemeral run)", colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("Directory", statusInfo, fmt.Sprintf("%s (%s)", loc.Dir, loc.Provenance), colorize))
				fmt.Fprintln(out, backupStatusLine(loc.Dir, colorize))
			}
			for _, note := range view.Notes {
				fmt.Fprintln(out, renderStatusLine("Note", statusWarn, note, colorize))
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, settingsTable(view.Preferences))
			fmt.Fprintln(out)
			fmt.Fprintln(out, settingsTable(view.Secrets))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func settingViews(entries []settings.Entry) []settingView {
	views := make([]settingView, len(entries))
	for i, e := range entries {
		views[i] = settingView{Key: e.Key, Value: e.Value, Source: string(e.Source)}
	}
	return views
}

func backupStatusLine(dir string, colorize bool) string {
	backups := backup.NewManager(dir)
	if !backups.Exists() {
		return renderStatusLine("Backup", statusInfo, "none", colorize)
	}
	snap, err := backups.Latest()
	if err != nil {
		return renderStatusLine("Backup", statusWarn, err.Error(), colorize)
	}
	return renderStatusLine("Backup", statusInfo, snapshotSummary(snap), colorize)
}

func snapshotSummary(snap backup.Snapshot) string {
	summary := fmt.Sprintf("%s, %s", humanize.Time(snap.CreatedAt), humanize.Bytes(uint64(snap.Size())))
	if snap.Reason != "" {
		summary += " (" + snap.Reason + ")"
	}
	return summary
}

func newConfigKeysCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "keys",
		Short:       "List preference keys accepted by config set",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, key := range config.Keys() {
				fmt.Fprintln(out, key)
			}
			return nil
		},
	}
}

func newConfigSetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Change a preference",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := strings.TrimSpace(args[0]), args[1]
			if !config.IsKnownKey(key) {
				return fmt.Errorf("unknown preference %q (see alchemux config keys)", key)
			}
			err := ctx.settingsManager().UpdatePreferences(func(c *config.Config) error {
				return c.SetValue(key, value)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, strings.TrimSpace(value))
			return nil
		},
	}
}

func newConfigSetSecretCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set-secret KEY",
		Short: "Store a credential (the value is read from the terminal or stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.TrimSpace(args[0])
			value, err := readSecretValue(cmd, key)
			if err != nil {
				return err
			}
			if value == "" {
				return fmt.Errorf("no value given for %s", key)
			}
			err = ctx.settingsManager().UpdateSecrets(func(d *secrets.Document) error {
				return d.Set(key, value)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s (%s)\n", key, secrets.Mask(value))
			return nil
		},
	}
}

// readSecretValue prompts without echo on a terminal and otherwise reads one
// line from stdin.
func readSecretValue(cmd *cobra.Command, key string) (string, error) {
	in := cmd.InOrStdin()
	if file, ok := in.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: ", key)
		raw, err := term.ReadPassword(int(file.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read %s: %w", key, err)
		}
		return strings.TrimSpace(string(raw)), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return strings.TrimSpace(line), nil
}

func newConfigUnsetSecretCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unset-secret KEY",
		Short: "Remove a stored credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.TrimSpace(args[0])
			err := ctx.settingsManager().UpdateSecrets(func(d *secrets.Document) error {
				if !d.Has(key) {
					return fmt.Errorf("%s is not set", key)
				}
				d.Delete(key)
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", key)
			return nil
		},
	}
}

func newConfigUseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "use DIR",
		Short:       "Use DIR as the configuration directory from now on",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			manager := ctx.settingsManager()
			manager.SetLogger(ctx.loggerFor(cmd))
			loc, err := manager.Use(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration directory set to %s\n", loc.Dir)
			return nil
		},
	}
}

func newConfigMoveCommand(ctx *commandContext) *cobra.Command {
	var move bool
	cmd := &cobra.Command{
		Use:   "mv DEST",
		Short: "Copy the configuration to DEST and use it from now on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager := ctx.settingsManager()
			from, err := manager.Location()
			if err != nil {
				return err
			}
			loc, err := manager.Relocate(args[0], move)
			if err != nil {
				return err
			}
			verb := "Copied"
			if move {
				verb = "Moved"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s configuration from %s to %s\n", verb, from.Dir, loc.Dir)
			return nil
		},
	}
	cmd.Flags().BoolVar(&move, "move", false, "Remove the original documents after copying")
	return cmd
}

func newConfigBackupCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the configuration into the backup slot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.ensureSettings(cmd)
			if err != nil {
				return err
			}
			if s.Ephemeral() {
				return configerr.Ephemeral("backup configuration")
			}
			backups := backup.NewManager(s.Location().Dir)
			snap, err := backups.Snapshot("manual")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup %s saved to %s (%s)\n", snap.ID, backups.SlotDir(), humanize.Bytes(uint64(snap.Size())))
			return nil
		},
	}
}

func newConfigRestoreCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Restore the configuration from the backup slot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.ensureSettings(cmd)
			if err != nil {
				return err
			}
			engine := repair.NewEngine(s.Location(), ctx.settingsManager().Resolver())
			engine.SetLogger(ctx.loggerFor(cmd))
			engine.OnChange(func() error {
				_, err := ctx.reload()
				return err
			})
			result := engine.RestoreLatest()
			if result.Err != nil {
				if errors.Is(result.Err, configerr.ErrNoBackup) {
					return errors.New("no backup to restore (backups are taken before each repair and by alchemux config backup)")
				}
				return result.Err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored backup %s (%s)\n", result.Snapshot.ID, snapshotSummary(*result.Snapshot))
			return nil
		},
	}
}
