package repair

import (
	"context"
	"errors"
	"fmt"
	"os"

	"alchemux/internal/config"
	"alchemux/internal/doctor"
	"alchemux/internal/fileutil"
	"alchemux/internal/location"
	"alchemux/internal/secrets"
)

// Lookup returns the action registered under id.
func Lookup(id string) (Action, bool) {
	switch id {
	case doctor.RepairCreateConfigDir:
		return Action{
			ID:          id,
			Description: "create the config directory and write both templates",
			run:         createConfigDir,
			verify:      verifyConfigDir,
		}, true
	case doctor.RepairRecreatePreferences:
		return Action{
			ID:          id,
			Description: "replace the preference document with the template",
			run:         recreatePreferences,
			verify:      verifyPreferences,
		}, true
	case doctor.RepairRecreateSecrets:
		return Action{
			ID:          id,
			Description: "rebuild the secret document from the template, keeping readable entries",
			run:         recreateSecrets,
			verify:      verifySecrets,
		}, true
	case doctor.RepairRestrictSecretPermissions:
		return Action{
			ID:          id,
			Description: "restrict the secret document to owner read/write",
			run:         restrictSecretPermissions,
			verify:      verifySecretPermissions,
		}, true
	case doctor.RepairResetOutputDir:
		return Action{
			ID:          id,
			Description: "reset paths.output_dir to the default and create it",
			run: func(_ context.Context, t Target) error {
				return resetDir(t, func(c *config.Config) *string { return &c.Paths.OutputDir }, config.Default().Paths.OutputDir)
			},
			verify: func(t Target) error {
				return verifyDir(t, "output", func(c config.Config) string { return c.Paths.OutputDir })
			},
		}, true
	case doctor.RepairResetTempDir:
		return Action{
			ID:          id,
			Description: "reset paths.temp_dir to the default and create it",
			run: func(_ context.Context, t Target) error {
				return resetDir(t, func(c *config.Config) *string { return &c.Paths.TempDir }, config.DefaultTempDir())
			},
			verify: func(t Target) error {
				return verifyDir(t, "temp", func(c config.Config) string { return c.Paths.TempDir })
			},
		}, true
	case doctor.RepairRepointPointer:
		return Action{
			ID:          id,
			Description: "point the pointer record at the config directory in use",
			run:         repointPointer,
			verify:      verifyPointer,
		}, true
	default:
		return Action{}, false
	}
}

func createConfigDir(_ context.Context, t Target) error {
	if err := os.MkdirAll(t.Location.Dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", t.Location.Dir, err)
	}
	if _, err := config.WriteTemplate(t.Location.PreferencesPath()); err != nil {
		return err
	}
	_, err := secrets.WriteTemplate(t.Location.SecretsPath())
	return err
}

func verifyConfigDir(t Target) error {
	if err := fileutil.CheckDir(t.Location.Dir); err != nil {
		return err
	}
	return fileutil.CheckWritable(t.Location.Dir)
}

func recreatePreferences(_ context.Context, t Target) error {
	return fileutil.WriteFileAtomic(t.Location.PreferencesPath(), config.Template(), 0o644)
}

func verifyPreferences(t Target) error {
	_, status := config.Load(t.Location.PreferencesPath())
	if status.Err != nil {
		return status.Err
	}
	if !status.Exists {
		return errors.New("preference document was not written")
	}
	return nil
}

// recreateSecrets salvages every well-formed entry of the existing document
// and writes it back under the template.
func recreateSecrets(_ context.Context, t Target) error {
	doc := secrets.NewDocument()
	data, err := os.ReadFile(t.Location.SecretsPath())
	switch {
	case err == nil:
		doc, _ = secrets.Salvage(data)
	case !os.IsNotExist(err):
		return fmt.Errorf("read secrets: %w", err)
	}
	rebuilt, err := secrets.Rebuild(doc)
	if err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(t.Location.SecretsPath(), rebuilt, secrets.FileMode)
}

func verifySecrets(t Target) error {
	_, status := secrets.Load(t.Location.SecretsPath())
	if status.Err != nil {
		return status.Err
	}
	if !status.Exists {
		return errors.New("secret document was not written")
	}
	if status.InsecurePermissions() {
		return fmt.Errorf("secret document has mode %04o", status.Mode.Perm())
	}
	return nil
}

func restrictSecretPermissions(_ context.Context, t Target) error {
	return os.Chmod(t.Location.SecretsPath(), secrets.FileMode)
}

func verifySecretPermissions(t Target) error {
	_, status := secrets.Load(t.Location.SecretsPath())
	if status.InsecurePermissions() {
		return fmt.Errorf("secret document still has mode %04o", status.Mode.Perm())
	}
	return nil
}

// resetDir stores value in the field chosen by pick, saves the preference
// document, and creates the directory. A corrupt document is not rewritten.
func resetDir(t Target, pick func(*config.Config) *string, value string) error {
	path := t.Location.PreferencesPath()
	doc, status := config.Load(path)
	if status.Err != nil {
		return fmt.Errorf("preferences must be repaired first: %w", status.Err)
	}
	*pick(&doc.Config) = value
	if err := doc.Save(path); err != nil {
		return err
	}
	dir, err := fileutil.ExpandPath(value)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}

func verifyDir(t Target, label string, pick func(config.Config) string) error {
	doc, status := config.Load(t.Location.PreferencesPath())
	if status.Err != nil {
		return status.Err
	}
	cfg, err := doc.Config.Normalized()
	if err != nil {
		return err
	}
	finding := doctor.CheckDirectoryAccess(label, pick(cfg), "")
	if finding.Severity != doctor.SeverityOK {
		return errors.New(finding.Message)
	}
	return nil
}

func repointPointer(_ context.Context, t Target) error {
	path, err := t.Resolver.PointerPath()
	if err != nil {
		return err
	}
	return location.WritePointer(path, t.Location.Dir)
}

func verifyPointer(t Target) error {
	status := t.Resolver.InspectPointer(t.Location)
	if status.State != location.PointerValid {
		return fmt.Errorf("pointer record is %s", status.State)
	}
	return nil
}
