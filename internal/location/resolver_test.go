package location_test

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"alchemux/internal/configerr"
	"alchemux/internal/location"
)

func newResolver(t *testing.T) (*location.Resolver, string) {
	t.Helper()
	base := t.TempDir()
	return &location.Resolver{UserConfigDir: func() (string, error) { return base, nil }}, base
}

func envOf(values map[string]string) location.Env {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestResolveEphemeralTouchesNothing(t *testing.T) {
	resolver := &location.Resolver{UserConfigDir: func() (string, error) {
		t.Fatal("ephemeral resolution must not consult the user config dir")
		return "", nil
	}}
	explicit := filepath.Join(t.TempDir(), "never-created")
	env := envOf(map[string]string{location.EnvConfigDir: explicit})

	loc, err := resolver.Resolve(location.Flags{NoConfig: true, ConfigDir: explicit}, env)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !loc.Ephemeral() || loc.Provenance != location.ProvenanceNone {
		t.Fatalf("expected ephemeral location, got %+v", loc)
	}
	if loc.PreferencesPath() != "" || loc.SecretsPath() != "" || loc.BackupRoot() != "" {
		t.Fatalf("ephemeral location must not expose document paths: %+v", loc)
	}
	if _, err := os.Stat(explicit); !os.IsNotExist(err) {
		t.Fatalf("explicit dir must not be created in ephemeral mode: %v", err)
	}
}

func TestResolveExplicitFlagBeatsEnv(t *testing.T) {
	resolver, _ := newResolver(t)
	flagDir := filepath.Join(t.TempDir(), "flag")
	envDir := t.TempDir()

	loc, err := resolver.Resolve(location.Flags{ConfigDir: flagDir}, envOf(map[string]string{location.EnvConfigDir: envDir}))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if loc.Provenance != location.ProvenanceExplicitFlag || loc.Dir != flagDir {
		t.Fatalf("unexpected location %+v", loc)
	}
	if !loc.Created {
		t.Fatal("expected missing explicit dir to be created")
	}
	info, err := os.Stat(flagDir)
	if err != nil || !info.IsDir() {
		t.Fatalf("expected created directory, err=%v", err)
	}
}

func TestResolveEnvBeatsPointer(t *testing.T) {
	resolver, _ := newResolver(t)
	pointerTarget := t.TempDir()
	writePointer(t, resolver, pointerTarget)
	envDir := t.TempDir()

	loc, err := resolver.Resolve(location.Flags{}, envOf(map[string]string{location.EnvConfigDir: envDir}))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if loc.Provenance != location.ProvenanceEnvOverride || loc.Dir != envDir {
		t.Fatalf("unexpected location %+v", loc)
	}
	if loc.Created {
		t.Fatal("existing env dir must not be reported as created")
	}
}

func TestResolvePointerBeatsDefault(t *testing.T) {
	resolver, _ := newResolver(t)
	target := t.TempDir()
	writePointer(t, resolver, target)

	loc, err := resolver.Resolve(location.Flags{}, location.NoEnv)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if loc.Provenance != location.ProvenancePointerFile || loc.Dir != target {
		t.Fatalf("unexpected location %+v", loc)
	}
}

func TestResolveStalePointerFallsThroughToDefault(t *testing.T) {
	resolver, base := newResolver(t)
	writePointer(t, resolver, filepath.Join(t.TempDir(), "deleted"))

	loc, err := resolver.Resolve(location.Flags{}, location.NoEnv)
	if err != nil {
		t.Fatalf("stale pointer must not error: %v", err)
	}
	want := filepath.Join(base, "alchemux", "config")
	if loc.Provenance != location.ProvenanceOSDefault || loc.Dir != want {
		t.Fatalf("unexpected location %+v", loc)
	}
	if !loc.Created {
		t.Fatal("expected default dir to be created on demand")
	}
}

func TestResolveEmptyEnvIsIgnored(t *testing.T) {
	resolver, _ := newResolver(t)
	loc, err := resolver.Resolve(location.Flags{}, envOf(map[string]string{location.EnvConfigDir: "   "}))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if loc.Provenance != location.ProvenanceOSDefault {
		t.Fatalf("expected default tier, got %s", loc.Provenance)
	}
}

func TestResolveExplicitFileIsInvalid(t *testing.T) {
	resolver, _ := newResolver(t)
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		name  string
		flags location.Flags
		env   location.Env
	}{
		{"flag", location.Flags{ConfigDir: file}, location.NoEnv},
		{"env", location.Flags{}, envOf(map[string]string{location.EnvConfigDir: file})},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := resolver.Resolve(tc.flags, tc.env)
			if !errors.Is(err, configerr.ErrInvalidLocation) {
				t.Fatalf("expected ErrInvalidLocation, got %v", err)
			}
		})
	}
}

func TestResolveExplicitReadOnlyIsInvalid(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission checks are bypassed for root and unsupported on windows")
	}
	resolver, _ := newResolver(t)
	dir := filepath.Join(t.TempDir(), "ro")
	if err := os.Mkdir(dir, 0o500); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(dir, 0o700) })

	_, err := resolver.Resolve(location.Flags{ConfigDir: dir}, location.NoEnv)
	if !errors.Is(err, configerr.ErrInvalidLocation) {
		t.Fatalf("expected ErrInvalidLocation, got %v", err)
	}
}

func TestInspectPointer(t *testing.T) {
	resolver, _ := newResolver(t)
	resolved := location.Location{Dir: t.TempDir(), Provenance: location.ProvenanceOSDefault}

	if got := resolver.InspectPointer(resolved); got.State != location.PointerAbsent {
		t.Fatalf("expected absent, got %+v", got)
	}

	writePointer(t, resolver, resolved.Dir)
	if got := resolver.InspectPointer(resolved); got.State != location.PointerValid {
		t.Fatalf("expected valid, got %+v", got)
	}

	other := t.TempDir()
	writePointer(t, resolver, other)
	if got := resolver.InspectPointer(resolved); got.State != location.PointerMismatch || got.Target != other {
		t.Fatalf("expected mismatch, got %+v", got)
	}

	writePointer(t, resolver, filepath.Join(other, "gone"))
	if got := resolver.InspectPointer(resolved); got.State != location.PointerStale {
		t.Fatalf("expected stale, got %+v", got)
	}

	path, _ := resolver.PointerPath()
	if err := os.WriteFile(path, []byte("\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := resolver.InspectPointer(resolved); got.State != location.PointerUnreadable {
		t.Fatalf("expected unreadable for empty pointer, got %+v", got)
	}
}

func TestResolveTierPrecedenceProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("first configured tier wins", prop.ForAll(
		func(noConfig, hasFlag, hasEnv, hasPointer, pointerStale bool) bool {
			resolver, base := newResolver(t)
			flags := location.Flags{NoConfig: noConfig}
			env := map[string]string{}
			if hasFlag {
				flags.ConfigDir = filepath.Join(t.TempDir(), "flag")
			}
			if hasEnv {
				env[location.EnvConfigDir] = t.TempDir()
			}
			var pointerTarget string
			if hasPointer {
				pointerTarget = t.TempDir()
				if pointerStale {
					pointerTarget = filepath.Join(pointerTarget, "gone")
				}
				writePointer(t, resolver, pointerTarget)
			}

			loc, err := resolver.Resolve(flags, envOf(env))
			if err != nil {
				return false
			}
			switch {
			case noConfig:
				return loc.Provenance == location.ProvenanceNone
			case hasFlag:
				return loc.Provenance == location.ProvenanceExplicitFlag && loc.Dir == flags.ConfigDir
			case hasEnv:
				return loc.Provenance == location.ProvenanceEnvOverride && loc.Dir == env[location.EnvConfigDir]
			case hasPointer && !pointerStale:
				return loc.Provenance == location.ProvenancePointerFile && loc.Dir == pointerTarget
			default:
				return loc.Provenance == location.ProvenanceOSDefault &&
					loc.Dir == filepath.Join(base, "alchemux", "config")
			}
		},
		gen.Bool(), gen.Bool(), gen.Bool(), gen.Bool(), gen.Bool(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func writePointer(t *testing.T, resolver *location.Resolver, target string) {
	t.Helper()
	path, err := resolver.PointerPath()
	if err != nil {
		t.Fatal(err)
	}
	if err := location.WritePointer(path, target); err != nil {
		t.Fatalf("WritePointer: %v", err)
	}
}
