package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"alchemux/internal/deps"
	"alchemux/internal/doctor"
	"alchemux/internal/location"
	"alchemux/internal/repair"
)

type doctorOptions struct {
	yes        bool
	noRepair   bool
	jsonOutput bool
}

type dependencyView struct {
	Name      string `json:"name"`
	Command   string `json:"command"`
	Optional  bool   `json:"optional"`
	Available bool   `json:"available"`
	Detail    string `json:"detail,omitempty"`
}

type repairView struct {
	Action      string   `json:"action"`
	Description string   `json:"description"`
	Finding     string   `json:"finding,omitempty"`
	State       string   `json:"state"`
	Transitions []string `json:"transitions,omitempty"`
	Error       string   `json:"error,omitempty"`
}

type doctorView struct {
	Dir          string           `json:"dir,omitempty"`
	Provenance   string           `json:"provenance"`
	Status       doctor.Severity  `json:"status"`
	Findings     []doctor.Finding `json:"findings"`
	Dependencies []dependencyView `json:"dependencies"`
	Repairs      []repairView     `json:"repairs,omitempty"`
	After        *doctor.Report   `json:"after,omitempty"`
}

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	opts := &doctorOptions{}
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration health and offer repairs",
		Long: "Doctor checks the configuration directory, both documents, the output directories, " +
			"cloud credentials and the pointer record, and lists the external programs Alchemux needs. " +
			"Every repair is preceded by a backup and rolled back if it fails.",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, ctx, opts)
		},
	}
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Apply every proposed repair without asking")
	cmd.Flags().BoolVar(&opts.noRepair, "no-repair", false, "Only report; never change anything")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")
	cmd.MarkFlagsMutuallyExclusive("yes", "no-repair")
	return cmd
}

func runDoctor(cmd *cobra.Command, ctx *commandContext, opts *doctorOptions) error {
	out := cmd.OutOrStdout()
	colorize := ctx.colorize(cmd) && !opts.jsonOutput
	dependencies := deps.CheckBinaries(deps.Requirements())

	s, err := ctx.ensureSettings(cmd)
	if err != nil {
		if opts.jsonOutput {
			if jsonErr := writeJSON(cmd, doctorView{
				Provenance: string(location.ProvenanceNone),
				Status:     doctor.SeverityError,
				Findings: []doctor.Finding{{
					CheckID:  doctor.CheckConfigDir,
					Severity: doctor.SeverityError,
					Message:  err.Error(),
				}},
				Dependencies: dependencyViews(dependencies),
			}); jsonErr != nil {
				return jsonErr
			}
			return err
		}
		for _, line := range renderSectionHeader("Alchemux doctor", colorize) {
			fmt.Fprintln(out, line)
		}
		fmt.Fprintln(out, renderStatusLine(doctor.Label(doctor.CheckConfigDir), statusError, err.Error(), colorize))
		fmt.Fprintln(out, renderStatusLine("Hint", statusInfo, fmt.Sprintf("check --config-dir and %s", location.EnvConfigDir), colorize))
		return err
	}

	manager := ctx.settingsManager()
	loaded, err := manager.Loaded()
	if err != nil {
		return err
	}
	report := doctor.Run(doctor.NewInput(loaded, s))
	view := doctorView{
		Dir:          loaded.Location.Dir,
		Provenance:   string(loaded.Location.Provenance),
		Status:       report.Status(),
		Findings:     report.Findings,
		Dependencies: dependencyViews(dependencies),
	}

	if !opts.jsonOutput {
		for _, line := range renderSectionHeader("Alchemux doctor", colorize) {
			fmt.Fprintln(out, line)
		}
		if !loaded.Location.Ephemeral() {
			fmt.Fprintln(out, renderStatusLine("Directory", statusInfo, fmt.Sprintf("%s (%s)", loaded.Location.Dir, loaded.Location.Provenance), colorize))
		}
		for _, line := range findingLines(report, colorize) {
			fmt.Fprintln(out, line)
		}
		fmt.Fprintln(out)
		for _, line := range renderSectionHeader("Dependencies", colorize) {
			fmt.Fprintln(out, line)
		}
		for _, line := range dependencyLines(dependencies, colorize) {
			fmt.Fprintln(out, line)
		}
	}

	engine := repair.NewEngine(loaded.Location, manager.Resolver())
	engine.SetLogger(ctx.loggerFor(cmd))
	engine.OnChange(func() error {
		_, err := ctx.reload()
		return err
	})
	actions := engine.Propose(report)

	final := report
	if len(actions) > 0 {
		selected, err := chooseRepairs(cmd, opts, actions)
		if err != nil {
			return err
		}
		if len(selected) == 0 && !opts.jsonOutput {
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderStatusLine("Repairs", statusInfo, repairHint(actions, opts), colorize))
		}
		if len(selected) > 0 {
			results := engine.ApplyAll(cmd.Context(), selected)
			view.Repairs = repairViews(results)
			if s, err = ctx.reload(); err != nil {
				return err
			}
			loaded, err = manager.Loaded()
			if err != nil {
				return err
			}
			final = doctor.Run(doctor.NewInput(loaded, s))
			view.After = &final
			if !opts.jsonOutput {
				fmt.Fprintln(out)
				for _, line := range renderSectionHeader("Repairs", colorize) {
					fmt.Fprintln(out, line)
				}
				for _, line := range repairLines(results, colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out)
				for _, line := range renderSectionHeader("After repair", colorize) {
					fmt.Fprintln(out, line)
				}
				for _, line := range findingLines(final, colorize) {
					fmt.Fprintln(out, line)
				}
			}
			for _, result := range results {
				if !result.Succeeded() {
					if opts.jsonOutput {
						if err := writeJSON(cmd, view); err != nil {
							return err
						}
					}
					return result.Err
				}
			}
		}
	}

	if opts.jsonOutput {
		if err := writeJSON(cmd, view); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(out)
		fmt.Fprintln(out, summaryLine(final, colorize))
	}
	if final.Status() == doctor.SeverityError {
		_, _, errs := final.Counts()
		return fmt.Errorf("doctor found %d problem%s", errs, plural(errs, "", "s"))
	}
	return nil
}

// chooseRepairs decides which proposed actions run. Nothing runs with
// --no-repair; everything runs with --yes; otherwise a terminal user picks
// from a list and a non-interactive run only reports.
func chooseRepairs(cmd *cobra.Command, opts *doctorOptions, actions []repair.Action) ([]repair.Action, error) {
	switch {
	case opts.noRepair:
		return nil, nil
	case opts.yes:
		return actions, nil
	case opts.jsonOutput || !isInteractive(cmd.InOrStdin()):
		return nil, nil
	}

	labels := make([]string, len(actions))
	byLabel := make(map[string]repair.Action, len(actions))
	for i, action := range actions {
		labels[i] = fmt.Sprintf("%s: %s", action.ID, action.Description)
		byLabel[labels[i]] = action
	}
	var picked []string
	prompt := &survey.MultiSelect{
		Message: "Apply repairs (a backup is taken first):",
		Options: labels,
		Default: labels,
	}
	if err := survey.AskOne(prompt, &picked); err != nil {
		return nil, fmt.Errorf("repair prompt: %w", err)
	}
	selected := make([]repair.Action, 0, len(picked))
	for _, label := range labels {
		for _, p := range picked {
			if p == label {
				selected = append(selected, byLabel[label])
			}
		}
	}
	return selected, nil
}

func isInteractive(in io.Reader) bool {
	file, ok := in.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

func repairHint(actions []repair.Action, opts *doctorOptions) string {
	ids := make([]string, len(actions))
	for i, action := range actions {
		ids[i] = action.ID
	}
	message := fmt.Sprintf("%d available (%s)", len(actions), strings.Join(ids, ", "))
	if !opts.noRepair {
		message += "; run alchemux doctor --yes to apply"
	}
	return message
}

func findingLines(report doctor.Report, colorize bool) []string {
	lines := make([]string, 0, len(report.Findings))
	for _, f := range report.Findings {
		message := f.Message
		if f.Repairable {
			message += " (repair: " + f.RepairID + ")"
		}
		lines = append(lines, renderStatusLine(doctor.Label(f.CheckID), statusKindFromSeverity(f.Severity), message, colorize))
	}
	return lines
}

func summaryLine(report doctor.Report, colorize bool) string {
	ok, warn, errs := report.Counts()
	message := fmt.Sprintf("%d ok, %d warning%s, %d error%s", ok, warn, plural(warn, "", "s"), errs, plural(errs, "", "s"))
	return renderStatusLine("Summary", statusKindFromSeverity(report.Status()), message, colorize)
}

func dependencyLines(statuses []deps.Status, colorize bool) []string {
	lines := make([]string, 0, len(statuses)+1)
	var missing []string
	for _, dep := range statuses {
		if dep.Available {
			lines = append(lines, renderStatusLine(dep.Name, statusOK, fmt.Sprintf("Ready (command: %s)", dep.Command), colorize))
			continue
		}
		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusWarn
		if dep.Optional {
			kind = statusInfo
			detail += " (optional)"
		} else {
			missing = append(missing, dep.Name)
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
	}
	if len(missing) > 0 {
		lines = append(lines, renderStatusLine("Missing dependencies", statusWarn, strings.Join(missing, ", ")+" (downloads will not start)", colorize))
	}
	return lines
}

func repairLines(results []repair.Result, colorize bool) []string {
	lines := make([]string, 0, len(results))
	for _, result := range results {
		kind := statusOK
		message := string(result.State)
		if result.Err != nil {
			kind = statusError
			message = fmt.Sprintf("%s: %v", result.State, result.Err)
		}
		lines = append(lines, renderStatusLine(result.Action.ID, kind, message, colorize))
	}
	return lines
}

func dependencyViews(statuses []deps.Status) []dependencyView {
	views := make([]dependencyView, len(statuses))
	for i, dep := range statuses {
		views[i] = dependencyView{
			Name:      dep.Name,
			Command:   dep.Command,
			Optional:  dep.Optional,
			Available: dep.Available,
			Detail:    dep.Detail,
		}
	}
	return views
}

func repairViews(results []repair.Result) []repairView {
	views := make([]repairView, len(results))
	for i, result := range results {
		view := repairView{
			Action:      result.Action.ID,
			Description: result.Action.Description,
			Finding:     result.Action.FindingID,
			State:       string(result.State),
		}
		for _, state := range result.Transitions {
			view.Transitions = append(view.Transitions, string(state))
		}
		if result.Err != nil {
			view.Error = result.Err.Error()
		}
		views[i] = view
	}
	return views
}
