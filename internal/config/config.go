package config

// Product contains presentation choices for the product vocabulary.
type Product struct {
	// ArcaneTerms switches user-facing output to the themed vocabulary.
	ArcaneTerms bool `toml:"arcane_terms"`
}

// UI contains terminal presentation preferences.
type UI struct {
	Plain    bool `toml:"plain"`
	AutoOpen bool `toml:"auto_open"`
}

// Paths contains the download and scratch directories.
type Paths struct {
	OutputDir string `toml:"output_dir"`
	// TempDir defaults to a per-user directory under the system temp dir.
	TempDir string `toml:"temp_dir"`
}

// Audio contains audio extraction settings.
type Audio struct {
	Format         string   `toml:"format"`
	EnabledFormats []string `toml:"enabled_formats"`
}

// Video contains video download settings.
type Video struct {
	Enabled           bool     `toml:"enabled"`
	Format            string   `toml:"format"`
	Codec             string   `toml:"codec"`
	EnabledFormats    []string `toml:"enabled_formats"`
	RestrictFilenames bool     `toml:"restrict_filenames"`
}

// Media groups the audio and video sections.
type Media struct {
	Audio Audio `toml:"audio"`
	Video Video `toml:"video"`
}

// FLACPreset describes the speech-friendly FLAC conversion preset.
type FLACPreset struct {
	// Override applies the preset to every FLAC conversion.
	Override   bool `toml:"override"`
	SampleRate int  `toml:"sample_rate"`
	Channels   int  `toml:"channels"`
}

// Presets groups conversion presets.
type Presets struct {
	FLAC FLACPreset `toml:"flac"`
}

// Network contains download engine connection settings.
type Network struct {
	Retries       int `toml:"retries"`
	SocketTimeout int `toml:"socket_timeout"`
}

// S3 contains non-secret settings for S3-compatible storage.
type S3 struct {
	Endpoint string `toml:"endpoint"`
	Bucket   string `toml:"bucket"`
	Region   string `toml:"region"`
	SSL      bool   `toml:"ssl"`
}

// GCP contains non-secret settings for Google Cloud Storage.
type GCP struct {
	Bucket  string `toml:"bucket"`
	Project string `toml:"project"`
}

// Storage selects where finished files go. Credentials live in the secret
// document, never here.
type Storage struct {
	Destination   string `toml:"destination"`
	Fallback      string `toml:"fallback"`
	KeepLocalCopy bool   `toml:"keep_local_copy"`
	S3            S3     `toml:"s3"`
	GCP           GCP    `toml:"gcp"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config encapsulates every non-secret preference.
//
// Sections:
//   - Product: terminology
//   - UI: plain output and auto-open
//   - Paths: output and temp directories
//   - Media: audio and video formats
//   - Presets: FLAC conversion preset
//   - Network: retry and timeout knobs passed to the download engine
//   - Storage: destination, fallback and per-provider settings
//   - Logging: log level and format
type Config struct {
	Product Product `toml:"product"`
	UI      UI      `toml:"ui"`
	Paths   Paths   `toml:"paths"`
	Media   Media   `toml:"media"`
	Presets Presets `toml:"presets"`
	Network Network `toml:"network"`
	Storage Storage `toml:"storage"`
	Logging Logging `toml:"logging"`
}

// Storage destinations.
const (
	DestinationLocal = "local"
	DestinationS3    = "s3"
	DestinationGCP   = "gcp"
)

// IsCloudDestination reports whether dest names a cloud provider.
func IsCloudDestination(dest string) bool {
	return dest == DestinationS3 || dest == DestinationGCP
}

// Clone returns a deep copy of c.
func (c Config) Clone() Config {
	out := c
	out.Media.Audio.EnabledFormats = append([]string(nil), c.Media.Audio.EnabledFormats...)
	out.Media.Video.EnabledFormats = append([]string(nil), c.Media.Video.EnabledFormats...)
	return out
}
