package spectralsplit

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/himanishpuri/SpectralSplit/internal/denoise"
	"github.com/himanishpuri/SpectralSplit/internal/storage"
	"github.com/himanishpuri/SpectralSplit/internal/worker"
)

const DefaultMaxUploadBytes = 100 << 20

type Config struct {
	TempDir    string
	StoreDir   string
	IndexDSN   string
	FFmpegPath string

	MaxUploadBytes    int64
	MaxConcurrentJobs int
	MaxQueuedJobs     int
	JobTimeout        time.Duration

	WindowSize  int
	HopSize     int
	NoiseWindow time.Duration
	Alpha       float64

	Logger Logger
	Store  storage.FileStore
	Index  *storage.Index
}

type Option func(*Config)

// WithTempDir sets where uploads are spooled and ffmpeg writes intermediates.
func WithTempDir(dir string) Option {
	return func(c *Config) {
		c.TempDir = dir
	}
}

// WithStoreDir sets the root of the default local artifact store.
func WithStoreDir(dir string) Option {
	return func(c *Config) {
		c.StoreDir = dir
	}
}

func WithStore(store storage.FileStore) Option {
	return func(c *Config) {
		c.Store = store
	}
}

// WithIndexDSN sets the SQLite DSN of the artifact index. Empty means a
// private in-memory database.
func WithIndexDSN(dsn string) Option {
	return func(c *Config) {
		c.IndexDSN = dsn
	}
}

func WithIndex(idx *storage.Index) Option {
	return func(c *Config) {
		c.Index = idx
	}
}

func WithFFmpegPath(path string) Option {
	return func(c *Config) {
		c.FFmpegPath = path
	}
}

func WithMaxUploadBytes(n int64) Option {
	return func(c *Config) {
		c.MaxUploadBytes = n
	}
}

func WithMaxConcurrentJobs(n int) Option {
	return func(c *Config) {
		c.MaxConcurrentJobs = n
	}
}

// WithMaxQueuedJobs bounds how many jobs may wait for a worker. Negative
// disables queueing.
func WithMaxQueuedJobs(n int) Option {
	return func(c *Config) {
		c.MaxQueuedJobs = n
	}
}

func WithJobTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.JobTimeout = d
	}
}

func WithWindowSize(n int) Option {
	return func(c *Config) {
		c.WindowSize = n
	}
}

func WithHopSize(n int) Option {
	return func(c *Config) {
		c.HopSize = n
	}
}

func WithNoiseWindow(d time.Duration) Option {
	return func(c *Config) {
		c.NoiseWindow = d
	}
}

func WithAlpha(alpha float64) Option {
	return func(c *Config) {
		c.Alpha = alpha
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func defaultConfig() *Config {
	return &Config{
		TempDir:        os.TempDir(),
		StoreDir:       filepath.Join(os.TempDir(), "spectralsplit"),
		FFmpegPath:     "ffmpeg",
		MaxUploadBytes: DefaultMaxUploadBytes,
		MaxQueuedJobs:  worker.DefaultMaxQueued,
		JobTimeout:     worker.DefaultJobTimeout,
		WindowSize:     denoise.DefaultWindowSize,
		HopSize:        denoise.DefaultHopSize,
		NoiseWindow:    denoise.DefaultNoiseWindow,
		Alpha:          denoise.DefaultAlpha,
	}
}

// FileConfig is the YAML form of the service configuration. Zero values
// leave the defaults untouched.
type FileConfig struct {
	TempDir    string `yaml:"temp_dir"`
	StoreDir   string `yaml:"store_dir"`
	IndexDSN   string `yaml:"index_dsn"`
	FFmpegPath string `yaml:"ffmpeg_path"`

	MaxUploadMB       int64  `yaml:"max_upload_mb"`
	MaxConcurrentJobs int    `yaml:"max_concurrent_jobs"`
	MaxQueuedJobs     int    `yaml:"max_queued_jobs"`
	JobTimeout        string `yaml:"job_timeout"`

	Denoise struct {
		WindowSize  int     `yaml:"window_size"`
		HopSize     int     `yaml:"hop_size"`
		NoiseWindow string  `yaml:"noise_window"`
		Alpha       float64 `yaml:"alpha"`
	} `yaml:"denoise"`

	S3 *storage.S3Config `yaml:"s3"`
}

// LoadConfigFile reads a YAML configuration file and returns the options it
// describes.
func LoadConfigFile(path string) ([]Option, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc.Options()
}

func (fc *FileConfig) Options() ([]Option, error) {
	var opts []Option
	if fc.TempDir != "" {
		opts = append(opts, WithTempDir(fc.TempDir))
	}
	if fc.StoreDir != "" {
		opts = append(opts, WithStoreDir(fc.StoreDir))
	}
	if fc.IndexDSN != "" {
		opts = append(opts, WithIndexDSN(fc.IndexDSN))
	}
	if fc.FFmpegPath != "" {
		opts = append(opts, WithFFmpegPath(fc.FFmpegPath))
	}
	if fc.MaxUploadMB > 0 {
		opts = append(opts, WithMaxUploadBytes(fc.MaxUploadMB<<20))
	}
	if fc.MaxConcurrentJobs > 0 {
		opts = append(opts, WithMaxConcurrentJobs(fc.MaxConcurrentJobs))
	}
	if fc.MaxQueuedJobs != 0 {
		opts = append(opts, WithMaxQueuedJobs(fc.MaxQueuedJobs))
	}
	if fc.JobTimeout != "" {
		d, err := time.ParseDuration(fc.JobTimeout)
		if err != nil {
			return nil, fmt.Errorf("job_timeout: %w", err)
		}
		opts = append(opts, WithJobTimeout(d))
	}
	if fc.Denoise.WindowSize > 0 {
		opts = append(opts, WithWindowSize(fc.Denoise.WindowSize))
	}
	if fc.Denoise.HopSize > 0 {
		opts = append(opts, WithHopSize(fc.Denoise.HopSize))
	}
	if fc.Denoise.NoiseWindow != "" {
		d, err := time.ParseDuration(fc.Denoise.NoiseWindow)
		if err != nil {
			return nil, fmt.Errorf("denoise.noise_window: %w", err)
		}
		opts = append(opts, WithNoiseWindow(d))
	}
	if fc.Denoise.Alpha > 0 {
		opts = append(opts, WithAlpha(fc.Denoise.Alpha))
	}
	if fc.S3 != nil && fc.S3.Bucket != "" {
		client := storage.NewS3Client(*fc.S3)
		opts = append(opts, WithStore(storage.NewS3(client, fc.S3.Bucket, fc.S3.Prefix)))
	}
	return opts, nil
}
