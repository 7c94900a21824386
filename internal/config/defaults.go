package config

const (
	defaultArcaneTerms       = true
	defaultOutputDir         = "~/Downloads/Alchemux"
	defaultAudioFormat       = "flac"
	defaultVideoFormat       = "mp4"
	defaultFLACSampleRate    = 16000
	defaultFLACChannels      = 1
	defaultNetworkRetries    = 3
	defaultSocketTimeout     = 30
	defaultStorageDest       = DestinationLocal
	defaultStorageFallback   = DestinationLocal
	defaultKeepLocalCopy     = true
	defaultS3SSL             = true
	defaultRestrictFilenames = true
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	tempDirName              = "alchemux"
)

var (
	audioFormats   = []string{"flac", "mp3", "aac", "m4a", "opus", "vorbis", "wav"}
	videoFormats   = []string{"mp4", "mkv", "webm", "mov"}
	destinations   = []string{DestinationLocal, DestinationS3, DestinationGCP}
	logLevels      = []string{"debug", "info", "warn", "error"}
	logFormats     = []string{"console", "json"}
	flacChannelSet = []int{1, 2}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Product: Product{ArcaneTerms: defaultArcaneTerms},
		Paths: Paths{
			OutputDir: defaultOutputDir,
		},
		Media: Media{
			Audio: Audio{
				Format:         defaultAudioFormat,
				EnabledFormats: []string{defaultAudioFormat},
			},
			Video: Video{
				Format:            defaultVideoFormat,
				EnabledFormats:    []string{defaultVideoFormat},
				RestrictFilenames: defaultRestrictFilenames,
			},
		},
		Presets: Presets{
			FLAC: FLACPreset{
				SampleRate: defaultFLACSampleRate,
				Channels:   defaultFLACChannels,
			},
		},
		Network: Network{
			Retries:       defaultNetworkRetries,
			SocketTimeout: defaultSocketTimeout,
		},
		Storage: Storage{
			Destination:   defaultStorageDest,
			Fallback:      defaultStorageFallback,
			KeepLocalCopy: defaultKeepLocalCopy,
			S3:            S3{SSL: defaultS3SSL},
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}

// DefaultOutputDir returns the expanded default download directory.
func DefaultOutputDir() (string, error) {
	return expandPath(defaultOutputDir)
}
