package config

import (
	"fmt"
	"time"

	"github.com/mediascribe/pipeline/internal/infra/queue"
	redisclient "github.com/mediascribe/pipeline/internal/infra/redis"
	"github.com/mediascribe/pipeline/internal/infra/storage/postgres"
)

// Duration parses human-readable values like "30s" or "2h" from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	// Fall back to raw nanoseconds for numeric values.
	var n int64
	if err := unmarshal(&n); err != nil {
		return err
	}
	*d = Duration(n)
	return nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server        ServerConfig        `yaml:"server"`
	Database      postgres.Config     `yaml:"database"`
	Redis         redisclient.Config  `yaml:"redis"`
	Queue         queue.Config        `yaml:"queue"`
	Media         MediaConfig         `yaml:"media"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Segmentation  SegmentationConfig  `yaml:"segmentation"`
	Worker        WorkerConfig        `yaml:"worker"`
	Jobs          JobsConfig          `yaml:"jobs"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MediaConfig holds external tool paths and per-call timeouts.
type MediaConfig struct {
	WorkDir           string   `yaml:"work_dir"`
	YtDlpPath         string   `yaml:"ytdlp_path"`
	FFmpegPath        string   `yaml:"ffmpeg_path"`
	WhisperPath       string   `yaml:"whisper_path"`
	ModelsDir         string   `yaml:"models_dir"`
	DownloadTimeout   Duration `yaml:"download_timeout"`
	ExtractTimeout    Duration `yaml:"extract_timeout"`
	TranscribeTimeout Duration `yaml:"transcribe_timeout"`
}

// TranscriptionConfig holds transcription behavior settings.
type TranscriptionConfig struct {
	// Language forces a transcription language; empty or "auto" lets
	// the engine detect it.
	Language string `yaml:"language"`

	// DisableAutoDowngrade turns off the model downgrade chain on
	// out-of-memory. Inverted so the zero value keeps downgrade on.
	DisableAutoDowngrade bool `yaml:"disable_auto_downgrade"`
}

// SegmentationConfig bounds transcript segment sizes.
type SegmentationConfig struct {
	MaxLength          int  `yaml:"max_length"`
	MinLength          int  `yaml:"min_length"`
	Overlap            int  `yaml:"overlap"`
	PreserveParagraphs bool `yaml:"preserve_paragraphs"`
}

// WorkerConfig sizes the job worker pool.
type WorkerConfig struct {
	Count        int      `yaml:"count"`
	PollInterval Duration `yaml:"poll_interval"`

	// WorkDirRetention is how long orphaned working directories live
	// before the janitor removes them. 0 disables the janitor.
	WorkDirRetention Duration `yaml:"work_dir_retention"`
}

// JobsConfig holds job chaining behavior.
type JobsConfig struct {
	AutoEmbedding bool `yaml:"auto_embedding"`
	MaxRetries    int  `yaml:"max_retries"`
}
