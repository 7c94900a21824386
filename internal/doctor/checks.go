package doctor

import (
	"fmt"
	"os"
	"strings"

	"alchemux/internal/config"
	"alchemux/internal/fileutil"
	"alchemux/internal/location"
	"alchemux/internal/secrets"
)

func checkConfigDir(in Input) []Finding {
	dir := in.Location.Dir
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		return []Finding{{
			Severity: SeverityError,
			Message:  fmt.Sprintf("%s does not exist", dir),
			RepairID: RepairCreateConfigDir,
		}}
	case err != nil:
		return []Finding{{Severity: SeverityError, Message: fmt.Sprintf("%s (stat: %v)", dir, err)}}
	case !info.IsDir():
		return []Finding{{Severity: SeverityError, Message: fmt.Sprintf("%s is not a directory", dir)}}
	}
	if err := fileutil.CheckWritable(dir); err != nil {
		return []Finding{{Severity: SeverityError, Message: fmt.Sprintf("%s is not writable (%v)", dir, err)}}
	}
	return []Finding{{
		Severity: SeverityOK,
		Message:  fmt.Sprintf("%s (read/write ok, from %s)", dir, in.Location.Provenance),
	}}
}

func checkPreferences(in Input) []Finding {
	status := in.PreferencesStatus
	path := in.Location.PreferencesPath()
	switch {
	case status.Corrupt():
		msg := fmt.Sprintf("%s cannot be parsed; repair rebuilds it from the template", path)
		if in.BackupAvailable {
			msg += " (a backup exists: alchemux config restore)"
		}
		return []Finding{{Severity: SeverityError, Message: msg, RepairID: RepairRecreatePreferences}}
	case status.Err != nil:
		return []Finding{{Severity: SeverityError, Message: status.Err.Error()}}
	case !status.Exists:
		return []Finding{{
			Severity: SeverityWarn,
			Message:  fmt.Sprintf("%s not found; defaults in use", path),
			RepairID: RepairRecreatePreferences,
		}}
	}

	findings := []Finding{{Severity: SeverityOK, Message: fmt.Sprintf("%s parsed", path)}}
	if in.Preferences == nil {
		return findings
	}
	if unknown := in.Preferences.Unknown(); len(unknown) > 0 {
		findings = append(findings, Finding{
			Severity: SeverityWarn,
			Message:  fmt.Sprintf("unrecognised keys kept as-is: %s", strings.Join(unknown, ", ")),
		})
	}
	normalized, err := in.Preferences.Config.Normalized()
	if err == nil {
		err = normalized.Validate()
	}
	if err != nil {
		findings = append(findings, Finding{
			Severity: SeverityWarn,
			Message:  "invalid values: " + strings.ReplaceAll(err.Error(), "\n", "; "),
		})
	}
	return findings
}

func checkSecrets(in Input) []Finding {
	status := in.SecretsStatus
	path := in.Location.SecretsPath()
	switch {
	case status.Corrupt():
		return []Finding{{
			Severity: SeverityError,
			Message:  fmt.Sprintf("%s; repair rebuilds it and keeps readable entries", describeSecretsError(status.Err)),
			RepairID: RepairRecreateSecrets,
		}}
	case status.Err != nil:
		return []Finding{{Severity: SeverityError, Message: status.Err.Error()}}
	case !status.Exists:
		return []Finding{{
			Severity: SeverityWarn,
			Message:  fmt.Sprintf("%s not found; no credentials configured", path),
			RepairID: RepairRecreateSecrets,
		}}
	}

	count := 0
	if in.Secrets != nil {
		count = in.Secrets.Len()
	}
	findings := []Finding{{Severity: SeverityOK, Message: fmt.Sprintf("%s parsed (%d keys)", path, count)}}
	if status.InsecurePermissions() {
		findings = append(findings, Finding{
			Severity: SeverityWarn,
			Message:  fmt.Sprintf("%s has mode %04o; other users can read it", path, status.Mode.Perm()),
			RepairID: RepairRestrictSecretPermissions,
		})
	}
	return findings
}

// describeSecretsError keeps only the line-number detail produced by the
// secret store, which never contains document content.
func describeSecretsError(err error) string {
	if err == nil {
		return "secret document is corrupt"
	}
	return err.Error()
}

func checkOutputDirs(in Input) []Finding {
	return []Finding{
		CheckDirectoryAccess("output", in.OutputDir, RepairResetOutputDir),
		CheckDirectoryAccess("temp", in.TempDir, RepairResetTempDir),
	}
}

// CheckDirectoryAccess verifies that path is a writable directory, or that it
// can be created because its nearest existing ancestor is writable. Failures
// carry repairID.
func CheckDirectoryAccess(label, path, repairID string) Finding {
	if strings.TrimSpace(path) == "" {
		return Finding{Severity: SeverityError, Message: label + " directory is not set", RepairID: repairID}
	}
	info, err := os.Stat(path)
	switch {
	case err == nil && !info.IsDir():
		return Finding{Severity: SeverityError, Message: fmt.Sprintf("%s directory %s is not a directory", label, path), RepairID: repairID}
	case err == nil:
		if werr := fileutil.CheckWritable(path); werr != nil {
			return Finding{Severity: SeverityError, Message: fmt.Sprintf("%s directory %s is not writable (%v)", label, path, werr), RepairID: repairID}
		}
		return Finding{Severity: SeverityOK, Message: fmt.Sprintf("%s directory %s (read/write ok)", label, path)}
	case !os.IsNotExist(err):
		return Finding{Severity: SeverityError, Message: fmt.Sprintf("%s directory %s (stat: %v)", label, path, err), RepairID: repairID}
	}

	ancestor, aerr := fileutil.NearestExistingAncestor(path)
	if aerr == nil {
		if info, serr := os.Stat(ancestor); serr == nil && !info.IsDir() {
			aerr = fmt.Errorf("%s is a file", ancestor)
		} else {
			aerr = fileutil.CheckWritable(ancestor)
		}
	}
	if aerr != nil {
		return Finding{Severity: SeverityError, Message: fmt.Sprintf("%s directory %s cannot be created (%v)", label, path, aerr), RepairID: repairID}
	}
	return Finding{Severity: SeverityOK, Message: fmt.Sprintf("%s directory %s will be created on first use", label, path)}
}

func checkCloudCredentials(in Input) []Finding {
	var findings []Finding
	seen := map[string]bool{}
	for _, role := range []struct{ key, dest string }{
		{"storage.destination", in.Destination},
		{"storage.fallback", in.Fallback},
	} {
		if !config.IsCloudDestination(role.dest) || seen[role.dest] {
			continue
		}
		seen[role.dest] = true
		findings = append(findings, cloudFinding(in, role.key, role.dest))
	}
	if len(findings) == 0 {
		return []Finding{{Severity: SeverityOK, Message: "local storage; no credentials needed"}}
	}
	return findings
}

func cloudFinding(in Input, key, dest string) Finding {
	var problems []string
	var missing []string
	if in.Secrets != nil {
		missing = in.Secrets.Missing(secrets.RequiredFor(dest))
	} else {
		missing = secrets.RequiredFor(dest)
	}
	if len(missing) > 0 {
		problems = append(problems, "missing "+strings.Join(missing, ", "))
	}
	bucket := in.S3Bucket
	if dest == config.DestinationGCP {
		bucket = in.GCPBucket
	}
	if strings.TrimSpace(bucket) == "" {
		problems = append(problems, fmt.Sprintf("storage.%s.bucket is empty", dest))
	}
	if len(problems) > 0 {
		return Finding{
			Severity: SeverityError,
			Message:  fmt.Sprintf("%s is %s but %s (use alchemux config set-secret / config set)", key, dest, strings.Join(problems, "; ")),
		}
	}
	return Finding{Severity: SeverityOK, Message: fmt.Sprintf("%s credentials present for %s", dest, key)}
}

func checkPointer(in Input) []Finding {
	p := in.Pointer
	switch p.State {
	case location.PointerValid:
		return []Finding{{Severity: SeverityOK, Message: fmt.Sprintf("pointer record targets %s", p.Target)}}
	case location.PointerAbsent, "":
		return []Finding{{Severity: SeverityOK, Message: "no pointer record"}}
	case location.PointerStale:
		return []Finding{{
			Severity: SeverityWarn,
			Message:  fmt.Sprintf("pointer record targets missing directory %s", p.Target),
			RepairID: RepairRepointPointer,
		}}
	case location.PointerMismatch:
		return []Finding{{
			Severity: SeverityWarn,
			Message:  fmt.Sprintf("pointer record targets %s but %s is in use", p.Target, in.Location.Dir),
			RepairID: RepairRepointPointer,
		}}
	default:
		detail := p.Detail
		if detail == "" {
			detail = "unreadable"
		}
		return []Finding{{
			Severity: SeverityWarn,
			Message:  fmt.Sprintf("pointer record %s cannot be read (%s)", p.Path, detail),
			RepairID: RepairRepointPointer,
		}}
	}
}
