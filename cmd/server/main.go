package main

import (
	"flag"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/himanishpuri/SpectralSplit/internal/storage"
	"github.com/himanishpuri/SpectralSplit/pkg/logger"
	"github.com/himanishpuri/SpectralSplit/pkg/spectralsplit"
)

var (
	port           int
	tempDir        string
	storeDir       string
	indexDSN       string
	ffmpegPath     string
	configPath     string
	logLevel       string
	alpha          float64
	workers        int
	queue          int
	jobTimeout     time.Duration
	allowedOrigins string
	logRequests    bool

	s3Bucket   string
	s3Prefix   string
	s3Region   string
	s3Endpoint string
)

func init() {
	flag.IntVar(&port, "port", getEnvInt("SPECTRALSPLIT_PORT", 8080), "HTTP server port")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("SPECTRALSPLIT_TEMP_DIR", os.TempDir()), "Directory for spooled uploads")
	flag.StringVar(&storeDir, "store", getEnvOrDefault("SPECTRALSPLIT_STORE_DIR", ""), "Local artifact store directory (default: <tmp>/spectralsplit)")
	flag.StringVar(&indexDSN, "db", getEnvOrDefault("SPECTRALSPLIT_DB", ""), "SQLite DSN of the artifact index (default: in-memory)")
	flag.StringVar(&ffmpegPath, "ffmpeg", getEnvOrDefault("SPECTRALSPLIT_FFMPEG", "ffmpeg"), "ffmpeg binary used for formats without a native decoder")
	flag.StringVar(&configPath, "config", getEnvOrDefault("SPECTRALSPLIT_CONFIG", ""), "Optional YAML config file; flags set explicitly take precedence")
	flag.StringVar(&logLevel, "log-level", getEnvOrDefault("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	flag.Float64Var(&alpha, "alpha", 1.5, "Noise threshold multiplier")
	flag.IntVar(&workers, "workers", 0, "Max concurrent jobs (0 for NumCPU)")
	flag.IntVar(&queue, "queue", 16, "Max queued jobs before rejecting with 503 (negative for none)")
	flag.DurationVar(&jobTimeout, "job-timeout", 5*time.Minute, "Per-job processing timeout")
	flag.StringVar(&allowedOrigins, "origins", "*", "Comma-separated list of allowed CORS origins (use * for all)")
	flag.BoolVar(&logRequests, "log-requests", false, "Log every HTTP request")

	flag.StringVar(&s3Bucket, "s3-bucket", getEnvOrDefault("SPECTRALSPLIT_S3_BUCKET", ""), "Store artifacts in this S3 bucket instead of -store")
	flag.StringVar(&s3Prefix, "s3-prefix", getEnvOrDefault("SPECTRALSPLIT_S3_PREFIX", ""), "Key prefix inside the S3 bucket")
	flag.StringVar(&s3Region, "s3-region", getEnvOrDefault("AWS_REGION", "us-east-1"), "S3 region")
	flag.StringVar(&s3Endpoint, "s3-endpoint", getEnvOrDefault("SPECTRALSPLIT_S3_ENDPOINT", ""), "Custom S3 endpoint (MinIO, LocalStack)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func parseOrigins(s string) []string {
	if s == "*" {
		return []string{"*"}
	}
	origins := strings.Split(s, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	return origins
}

func main() {
	flag.Parse()

	if lvl, ok := logger.ParseLevel(logLevel); ok {
		logger.SetLevel(lvl)
	}
	lg := logger.GetLogger()

	var opts []spectralsplit.Option
	if configPath != "" {
		fileOpts, err := spectralsplit.LoadConfigFile(configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		opts = append(opts, fileOpts...)
	}

	// Explicit flags override the config file.
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	explicit := func(name string) bool { return configPath == "" || set[name] }

	if explicit("temp") {
		opts = append(opts, spectralsplit.WithTempDir(tempDir))
	}
	if explicit("store") && storeDir != "" {
		opts = append(opts, spectralsplit.WithStoreDir(storeDir))
	}
	if explicit("db") {
		opts = append(opts, spectralsplit.WithIndexDSN(indexDSN))
	}
	if explicit("ffmpeg") {
		opts = append(opts, spectralsplit.WithFFmpegPath(ffmpegPath))
	}
	if explicit("alpha") {
		opts = append(opts, spectralsplit.WithAlpha(alpha))
	}
	if explicit("workers") && workers > 0 {
		opts = append(opts, spectralsplit.WithMaxConcurrentJobs(workers))
	}
	if explicit("queue") {
		opts = append(opts, spectralsplit.WithMaxQueuedJobs(queue))
	}
	if explicit("job-timeout") {
		opts = append(opts, spectralsplit.WithJobTimeout(jobTimeout))
	}
	opts = append(opts, spectralsplit.WithMaxUploadBytes(MaxUploadBytes), spectralsplit.WithLogger(lg))

	if s3Bucket != "" {
		cfg := storage.S3Config{
			Bucket:    s3Bucket,
			Prefix:    s3Prefix,
			Region:    s3Region,
			Endpoint:  s3Endpoint,
			PathStyle: s3Endpoint != "",
		}
		opts = append(opts, spectralsplit.WithStore(storage.NewS3(storage.NewS3Client(cfg), cfg.Bucket, cfg.Prefix)))
	}

	service, err := spectralsplit.NewService(opts...)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer service.Close()

	config := &ServerConfig{
		Port:           port,
		AllowedOrigins: parseOrigins(allowedOrigins),
		LogRequests:    logRequests,
	}

	server := NewServer(service, config)
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
	lg.Infof("Server stopped")
}
