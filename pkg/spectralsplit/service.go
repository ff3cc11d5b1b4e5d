package spectralsplit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/himanishpuri/SpectralSplit/internal/audio"
	"github.com/himanishpuri/SpectralSplit/internal/denoise"
	"github.com/himanishpuri/SpectralSplit/internal/segment"
	"github.com/himanishpuri/SpectralSplit/internal/storage"
	"github.com/himanishpuri/SpectralSplit/internal/worker"
	"github.com/himanishpuri/SpectralSplit/pkg/logger"
	"github.com/himanishpuri/SpectralSplit/pkg/utils"
)

// splitService is the default implementation of the Service interface.
type splitService struct {
	config    *Config
	log       Logger
	store     storage.FileStore
	index     *storage.Index
	ownsIndex bool
	pool      *worker.Pool
	denoiser  *denoise.Denoiser
	indexName string
}

// fieldLogger is implemented by *logger.Logger.
type fieldLogger interface {
	WithFields(logger.Fields) *logger.Logger
}

// logWith attaches structured fields when the configured logger supports
// them and falls back to the plain logger otherwise.
func (s *splitService) logWith(fields logger.Fields) Logger {
	if fl, ok := s.log.(fieldLogger); ok {
		return fl.WithFields(fields)
	}
	return s.log
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if err := utils.MakeDir(cfg.TempDir); err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}

	d, err := denoise.New(
		denoise.WithWindowSize(cfg.WindowSize),
		denoise.WithHopSize(cfg.HopSize),
		denoise.WithNoiseWindow(cfg.NoiseWindow),
		denoise.WithAlpha(cfg.Alpha),
		denoise.WithLogger(cfg.Logger),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid denoiser settings: %w", err)
	}

	store := cfg.Store
	if store == nil {
		local, err := storage.NewLocal(cfg.StoreDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create artifact store: %w", err)
		}
		store = local
	}

	idx := cfg.Index
	ownsIndex := false
	indexName := "external"
	if idx == nil {
		indexName = cfg.IndexDSN
		if indexName == "" {
			indexName = "memory"
		}
		idx, err = storage.OpenIndex(cfg.IndexDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open artifact index: %w", err)
		}
		ownsIndex = true
	}

	pool := worker.New(worker.Config{
		MaxConcurrent: cfg.MaxConcurrentJobs,
		MaxQueued:     cfg.MaxQueuedJobs,
		JobTimeout:    cfg.JobTimeout,
	})

	return &splitService{
		config:    cfg,
		log:       cfg.Logger,
		store:     store,
		index:     idx,
		ownsIndex: ownsIndex,
		pool:      pool,
		denoiser:  d,
		indexName: indexName,
	}, nil
}

// Upload validates and spools the upload, decodes it, stores the original
// and denoises it.
func (s *splitService) Upload(ctx context.Context, filename string, r io.Reader) (*UploadResult, error) {
	name := utils.SanitizeFilename(filename)
	if !audio.AllowedExtension(name) {
		return nil, &UnsupportedFormatError{Format: audio.Ext(name)}
	}

	spooled, err := s.spool(name, r)
	if err != nil {
		return nil, err
	}
	defer os.Remove(spooled)

	var result *UploadResult
	err = s.pool.Do(ctx, func(ctx context.Context) error {
		start := time.Now()
		log := s.logWith(logger.Fields{"upload": name})

		// ffprobe is optional; without it the upload goes ahead unverified.
		src, perr := audio.ProbeSource(ctx, audio.FFprobePath(s.config.FFmpegPath), spooled)
		if perr != nil {
			log.Debugf("Skipping source probe: %v", perr)
		}

		wf, err := audio.Decode(ctx, spooled, audio.DecodeConfig{
			FFmpegPath: s.config.FFmpegPath,
			TempDir:    s.config.TempDir,
		})
		if err != nil {
			return err
		}
		log.Infof("Decoded %s: %d Hz, %d channel(s), %.2fs", name, wf.SampleRate, wf.NumChannels(), wf.Seconds())

		original := newArtifact(StageOriginal, "", name, wf)
		if src != nil {
			original.SourceCodec = src.Codec
			original.SourceMs = src.Duration.Milliseconds()
			if err := src.VerifyDecoded(wf); err != nil {
				log.Warnf("Decoded audio disagrees with the %s stream: %v", src.Codec, err)
			}
		}
		if audio.IsCanonicalWAV(spooled) {
			err = s.persistFile(ctx, &original, spooled)
		} else {
			err = s.persistWaveform(ctx, &original, wf)
		}
		if err != nil {
			return err
		}

		cleaned, stats, err := s.denoiser.Denoise(ctx, wf)
		if err != nil {
			s.discard(original)
			return fmt.Errorf("denoising failed: %w", err)
		}

		denoised := newArtifact(StageDenoised, original.ID, name, cleaned)
		if err := s.persistWaveform(ctx, &denoised, cleaned); err != nil {
			s.discard(original)
			return err
		}

		s.logWith(logger.Fields{"upload": name, "original": original.ID, "denoised": denoised.ID}).
			Infof("Denoised in %s", time.Since(start).Round(time.Millisecond))
		result = &UploadResult{Original: original, Denoised: denoised, Stats: stats}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *splitService) spool(name string, r io.Reader) (string, error) {
	f, err := os.CreateTemp(s.config.TempDir, "upload-*-"+name)
	if err != nil {
		return "", fmt.Errorf("spooling upload: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(r, s.config.MaxUploadBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > s.config.MaxUploadBytes {
		err = ErrUploadTooLarge
	}
	if err == nil && n == 0 {
		err = &UnsupportedFormatError{Format: audio.Ext(name), Err: errors.New("empty upload")}
	}
	if err != nil {
		os.Remove(f.Name())
		if errors.Is(err, ErrUploadTooLarge) {
			return "", err
		}
		var ufe *UnsupportedFormatError
		if errors.As(err, &ufe) {
			return "", err
		}
		return "", fmt.Errorf("spooling upload: %w", err)
	}
	return f.Name(), nil
}

func (s *splitService) SplitEqual(ctx context.Context, artifactID string, parts int) ([]Artifact, error) {
	var out []Artifact
	err := s.pool.Do(ctx, func(ctx context.Context) error {
		parent, wf, err := s.load(ctx, artifactID)
		if err != nil {
			return err
		}
		segs, err := segment.EqualParts(wf, parts)
		if err != nil {
			return err
		}
		out, err = s.persistSegments(ctx, parent, segs)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logWith(logger.Fields{"artifact": artifactID}).Infof("Split into %d parts", len(out))
	return out, nil
}

func (s *splitService) SplitRange(ctx context.Context, artifactID string, start, end float64) (*Artifact, error) {
	var out []Artifact
	err := s.pool.Do(ctx, func(ctx context.Context) error {
		parent, wf, err := s.load(ctx, artifactID)
		if err != nil {
			return err
		}
		seg, err := segment.Range(wf, start, end)
		if err != nil {
			return err
		}
		out, err = s.persistSegments(ctx, parent, []segment.Segment{seg})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logWith(logger.Fields{"artifact": artifactID}).Infof("Extracted [%.3f, %.3f)", start, end)
	return &out[0], nil
}

// Process dispatches to SplitEqual or SplitRange. Exactly one mode must be
// selected.
func (s *splitService) Process(ctx context.Context, req ProcessRequest) ([]Artifact, error) {
	if req.ArtifactID == "" {
		return nil, &InvalidRequestError{Reason: "artifact_id is required"}
	}
	hasParts := req.Parts != nil
	hasRange := req.Start != nil || req.End != nil

	switch {
	case hasParts && hasRange:
		return nil, &InvalidRequestError{Reason: "num_parts and start_time/end_time are mutually exclusive"}
	case hasParts:
		return s.SplitEqual(ctx, req.ArtifactID, *req.Parts)
	case hasRange:
		if req.Start == nil || req.End == nil {
			return nil, &InvalidRequestError{Reason: "start_time and end_time must both be set"}
		}
		a, err := s.SplitRange(ctx, req.ArtifactID, *req.Start, *req.End)
		if err != nil {
			return nil, err
		}
		return []Artifact{*a}, nil
	}
	return nil, &InvalidRequestError{Reason: "one of num_parts or start_time/end_time is required"}
}

func (s *splitService) Open(ctx context.Context, artifactID string) (io.ReadCloser, *Artifact, error) {
	a, err := s.GetArtifact(artifactID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.store.Read(ctx, storage.ArtifactKey(string(a.Stage), a.ID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("%w: %s (data missing)", ErrArtifactNotFound, artifactID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("opening artifact %s: %w", artifactID, err)
	}
	return rc, a, nil
}

func (s *splitService) GetArtifact(artifactID string) (*Artifact, error) {
	rec, err := s.index.Get(artifactID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, artifactID)
	}
	if err != nil {
		return nil, err
	}
	a := fromRecord(rec)
	return &a, nil
}

func (s *splitService) ListArtifacts(stage Stage) ([]Artifact, error) {
	recs, err := s.index.List(string(stage))
	if err != nil {
		return nil, err
	}
	out := make([]Artifact, len(recs))
	for i := range recs {
		out[i] = fromRecord(&recs[i])
	}
	return out, nil
}

// DeleteArtifact removes an artifact and everything derived from it.
func (s *splitService) DeleteArtifact(ctx context.Context, artifactID string) error {
	a, err := s.GetArtifact(artifactID)
	if err != nil {
		return err
	}
	children, err := s.index.Children(a.ID)
	if err != nil {
		return err
	}
	for _, c := range children {
		if err := s.DeleteArtifact(ctx, c.ID); err != nil && !errors.Is(err, ErrArtifactNotFound) {
			return err
		}
	}
	if err := s.store.Delete(ctx, storage.ArtifactKey(string(a.Stage), a.ID)); err != nil {
		return fmt.Errorf("deleting artifact data %s: %w", a.ID, err)
	}
	if err := s.index.Delete(a.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	s.logWith(logger.Fields{"artifact": a.ID, "stage": a.Stage}).Debugf("Deleted artifact")
	return nil
}

func (s *splitService) Spectrogram(ctx context.Context, artifactID string, w io.Writer) error {
	var buf bytes.Buffer
	err := s.pool.Do(ctx, func(ctx context.Context) error {
		_, wf, err := s.load(ctx, artifactID)
		if err != nil {
			return err
		}
		return audio.RenderSpectrogram(wf, &buf, 0, 0)
	})
	if err != nil {
		return err
	}
	_, err = buf.WriteTo(w)
	return err
}

func (s *splitService) Stats() (*Stats, error) {
	counts, err := s.index.CountByStage()
	if err != nil {
		return nil, err
	}
	st := &Stats{
		Artifacts: map[Stage]int64{
			StageOriginal: counts[string(StageOriginal)],
			StageDenoised: counts[string(StageDenoised)],
			StageSegment:  counts[string(StageSegment)],
		},
		Pool: s.pool.Stats(),
		Settings: Settings{
			Index:      s.indexName,
			Store:      storage.Describe(s.store),
			WindowSize: s.denoiser.WindowSize(),
			HopSize:    s.denoiser.HopSize(),
			Alpha:      s.denoiser.Alpha(),
			JobTimeout: s.pool.JobTimeout(),
			Timeout:    s.pool.JobTimeout().String(),
		},
	}
	return st, nil
}

func (s *splitService) Close() error {
	s.pool.Close()
	if s.ownsIndex {
		return s.index.Close()
	}
	return nil
}

// load fetches an artifact and decodes its stored WAV.
func (s *splitService) load(ctx context.Context, artifactID string) (*Artifact, *audio.Waveform, error) {
	rc, a, err := s.Open(ctx, artifactID)
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, nil, fmt.Errorf("reading artifact %s: %w", artifactID, err)
	}
	wf, err := audio.ReadWAV(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("decoding artifact %s: %w", artifactID, err)
	}
	return a, wf, nil
}

func (s *splitService) persistSegments(ctx context.Context, parent *Artifact, segs []segment.Segment) ([]Artifact, error) {
	out := make([]Artifact, 0, len(segs))
	for _, seg := range segs {
		if err := ctx.Err(); err != nil {
			s.discard(out...)
			return nil, err
		}
		a := newArtifact(StageSegment, parent.ID, parent.SourceName, seg.Waveform)
		a.Index = seg.Index
		a.StartMs = secondsToMs(seg.StartSeconds())
		a.EndMs = secondsToMs(seg.EndSeconds())
		if err := s.persistWaveform(ctx, &a, seg.Waveform); err != nil {
			s.discard(out...)
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *splitService) persistWaveform(ctx context.Context, a *Artifact, wf *audio.Waveform) error {
	data, err := audio.EncodeWAV(wf)
	if err != nil {
		return fmt.Errorf("encoding %s artifact: %w", a.Stage, err)
	}
	return s.persist(ctx, a, bytes.NewReader(data))
}

func (s *splitService) persistFile(ctx context.Context, a *Artifact, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return s.persist(ctx, a, f)
}

func (s *splitService) persist(ctx context.Context, a *Artifact, r io.Reader) error {
	key := storage.ArtifactKey(string(a.Stage), a.ID)
	if _, err := storage.Put(ctx, s.store, key, r); err != nil {
		s.store.Delete(context.Background(), key)
		return fmt.Errorf("storing %s artifact: %w", a.Stage, err)
	}
	if err := s.index.Create(toRecord(a, key)); err != nil {
		s.store.Delete(context.Background(), key)
		return err
	}
	return nil
}

// discard removes artifacts written by a job that later failed.
func (s *splitService) discard(arts ...Artifact) {
	for _, a := range arts {
		if err := s.DeleteArtifact(context.Background(), a.ID); err != nil {
			s.log.Warnf("Failed to clean up artifact %s: %v", a.ID, err)
		}
	}
}

func newArtifact(stage Stage, parentID, sourceName string, wf *audio.Waveform) Artifact {
	return Artifact{
		ID:         uuid.NewString(),
		Stage:      stage,
		ParentID:   parentID,
		SourceName: sourceName,
		SampleRate: wf.SampleRate,
		Channels:   wf.NumChannels(),
		Frames:     wf.Frames(),
		DurationMs: wf.Duration().Milliseconds(),
		EndMs:      wf.Duration().Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
}

func secondsToMs(sec float64) int64 {
	return int64(sec*1000 + 0.5)
}

func toRecord(a *Artifact, key string) *storage.ArtifactRecord {
	return &storage.ArtifactRecord{
		ID:          a.ID,
		Stage:       string(a.Stage),
		ParentID:    a.ParentID,
		Index:       a.Index,
		SourceName:  a.SourceName,
		SourceCodec: a.SourceCodec,
		SourceMs:    a.SourceMs,
		Key:         key,
		SampleRate:  a.SampleRate,
		Channels:    a.Channels,
		Frames:      a.Frames,
		DurationMs:  a.DurationMs,
		StartMs:     a.StartMs,
		EndMs:       a.EndMs,
		CreatedAt:   a.CreatedAt,
	}
}

func fromRecord(rec *storage.ArtifactRecord) Artifact {
	return Artifact{
		ID:          rec.ID,
		Stage:       Stage(rec.Stage),
		ParentID:    rec.ParentID,
		Index:       rec.Index,
		SourceName:  rec.SourceName,
		SourceCodec: rec.SourceCodec,
		SourceMs:    rec.SourceMs,
		SampleRate:  rec.SampleRate,
		Channels:    rec.Channels,
		Frames:      rec.Frames,
		DurationMs:  rec.DurationMs,
		StartMs:     rec.StartMs,
		EndMs:       rec.EndMs,
		CreatedAt:   rec.CreatedAt,
	}
}
