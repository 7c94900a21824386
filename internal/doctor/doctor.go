package doctor

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"alchemux/internal/backup"
	"alchemux/internal/config"
	"alchemux/internal/location"
	"alchemux/internal/secrets"
	"alchemux/internal/settings"
)

// Severity grades a finding. The zero value is treated as ok.
type Severity string

const (
	SeverityOK    Severity = "ok"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

func (s Severity) rank() int {
	switch s {
	case SeverityError:
		return 2
	case SeverityWarn:
		return 1
	default:
		return 0
	}
}

// Check ids in battery order.
const (
	CheckConfigDir        = "config_dir"
	CheckPreferences      = "preferences"
	CheckSecrets          = "secrets"
	CheckOutputDir        = "output_dir"
	CheckCloudCredentials = "cloud_credentials"
	CheckPointer          = "pointer"
)

// Repair action ids referenced by findings.
const (
	RepairCreateConfigDir           = "create_config_dir"
	RepairRecreatePreferences       = "recreate_preferences"
	RepairRecreateSecrets           = "recreate_secrets"
	RepairRestrictSecretPermissions = "restrict_secret_permissions"
	RepairResetOutputDir            = "reset_output_dir"
	RepairResetTempDir              = "reset_temp_dir"
	RepairRepointPointer            = "repoint_pointer"
)

// Finding is one diagnostic observation.
type Finding struct {
	CheckID    string   `json:"check_id"`
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	Repairable bool     `json:"repairable"`
	RepairID   string   `json:"repair_id,omitempty"`
}

// Report is the ordered result of a diagnostic run.
type Report struct {
	Findings []Finding `json:"findings"`
}

// Status returns the worst severity in the report.
func (r Report) Status() Severity {
	worst := SeverityOK
	for _, f := range r.Findings {
		if f.Severity.rank() > worst.rank() {
			worst = f.Severity
		}
	}
	return worst
}

// Repairable returns the findings that name a repair action.
func (r Report) Repairable() []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Repairable && f.RepairID != "" {
			out = append(out, f)
		}
	}
	return out
}

// Counts tallies findings by severity.
func (r Report) Counts() (ok, warn, errs int) {
	for _, f := range r.Findings {
		switch f.Severity {
		case SeverityError:
			errs++
		case SeverityWarn:
			warn++
		default:
			ok++
		}
	}
	return ok, warn, errs
}

// Input is everything the battery inspects.
type Input struct {
	Location          location.Location
	Preferences       *config.Document
	PreferencesStatus config.Status
	Secrets           *secrets.Document
	SecretsStatus     secrets.Status
	Pointer           location.PointerStatus

	OutputDir   string
	TempDir     string
	Destination string
	Fallback    string
	S3Bucket    string
	GCPBucket   string

	BackupAvailable bool
}

// NewInput assembles the battery input from a manager's loaded state and the
// effective settings built from it.
func NewInput(loaded settings.Loaded, s *settings.Settings) Input {
	in := Input{
		Location:          loaded.Location,
		Preferences:       loaded.Preferences,
		PreferencesStatus: loaded.PreferencesStatus,
		Secrets:           loaded.Secrets,
		SecretsStatus:     loaded.SecretsStatus,
		Pointer:           loaded.Pointer,
	}
	if s != nil {
		in.OutputDir = s.OutputDir()
		in.TempDir = s.TempDir()
		in.Destination = s.StorageDestination()
		in.Fallback = s.StorageFallback()
		in.S3Bucket = s.S3().Bucket
		in.GCPBucket = s.GCP().Bucket
	}
	if !loaded.Location.Ephemeral() {
		in.BackupAvailable = backup.NewManager(loaded.Location.Dir).Exists()
	}
	return in
}

// Check is one entry of the battery.
type Check struct {
	ID  string
	Run func(Input) []Finding
}

// Checks returns the battery in execution order.
func Checks() []Check {
	return []Check{
		{ID: CheckConfigDir, Run: checkConfigDir},
		{ID: CheckPreferences, Run: checkPreferences},
		{ID: CheckSecrets, Run: checkSecrets},
		{ID: CheckOutputDir, Run: checkOutputDirs},
		{ID: CheckCloudCredentials, Run: checkCloudCredentials},
		{ID: CheckPointer, Run: checkPointer},
	}
}

// Run executes the full battery.
func Run(in Input) Report {
	return RunChecks(in, Checks())
}

// RunChecks executes checks in order. A check that panics contributes an
// error finding and the remaining checks still run. Ephemeral input yields
// a single ok finding because there is nothing on disk to inspect.
func RunChecks(in Input, checks []Check) Report {
	if in.Location.Ephemeral() {
		return Report{Findings: []Finding{{
			CheckID:  CheckConfigDir,
			Severity: SeverityOK,
			Message:  "no config directory in use (--no-config); nothing to check",
		}}}
	}
	var report Report
	for _, check := range checks {
		report.Findings = append(report.Findings, runCheck(check, in)...)
	}
	return report
}

func runCheck(check Check, in Input) (findings []Finding) {
	defer func() {
		if r := recover(); r != nil {
			findings = []Finding{{
				CheckID:  check.ID,
				Severity: SeverityError,
				Message:  fmt.Sprintf("check failed unexpectedly: %v", r),
			}}
		}
	}()
	findings = check.Run(in)
	for i := range findings {
		if findings[i].CheckID == "" {
			findings[i].CheckID = check.ID
		}
		if findings[i].Severity == "" {
			findings[i].Severity = SeverityOK
		}
		findings[i].Repairable = findings[i].RepairID != ""
	}
	return findings
}

// Label turns a check id into a display label ("output_dir" becomes
// "Output Dir").
func Label(checkID string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(checkID, "_", " "))
}
