package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chat2graph/chat2graph/errors"
	"github.com/chat2graph/chat2graph/internal/domain/entities"
	"github.com/chat2graph/chat2graph/internal/infrastructure/cache"
)

const (
	// ArtifactFileName is the well-known artifact location inside the
	// results directory.
	ArtifactFileName = "analysis_latest.json"

	cacheKey = "analytics:latest"
)

// EpisodeLister reads stored episode graphs
type EpisodeLister interface {
	ListEpisodes(ctx context.Context) ([]entities.Episode, error)
}

// Service recomputes, persists, and serves the analysis artifact
type Service struct {
	store    EpisodeLister
	cache    cache.Cache
	dir      string
	cacheTTL time.Duration
	logger   *zap.Logger

	mu sync.Mutex // serializes artifact writes
}

// NewService creates the analytics service
func NewService(store EpisodeLister, c cache.Cache, dir string, cacheTTL time.Duration, logger *zap.Logger) *Service {
	if dir == "" {
		dir = "results"
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Service{
		store:    store,
		cache:    c,
		dir:      dir,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// ArtifactPath returns the filesystem path of the artifact
func (s *Service) ArtifactPath() string {
	return filepath.Join(s.dir, ArtifactFileName)
}

// Recompute rebuilds the artifact from the graph store and persists it
func (s *Service) Recompute(ctx context.Context) (*Report, error) {
	episodes, err := s.store.ListEpisodes(ctx)
	if err != nil {
		return nil, err
	}

	report := BuildReport(episodes)
	if err := s.persist(ctx, report); err != nil {
		return nil, err
	}

	s.logger.Info("analysis artifact recomputed",
		zap.Int("episodes", report.Overall.Episodes),
		zap.Int("entities", report.Overall.TotalEntities),
		zap.Int("relationships", report.Overall.TotalRelationships))
	return report, nil
}

// Latest returns the current artifact, preferring the cache and
// falling back to the file on disk.
func (s *Service) Latest(ctx context.Context) (*Report, error) {
	if s.cache != nil {
		if raw, ok, err := s.cache.Get(ctx, cacheKey); err == nil && ok {
			var report Report
			if err := json.Unmarshal([]byte(raw), &report); err == nil {
				return &report, nil
			}
			// corrupt cache entry, fall through to disk
			_ = s.cache.Delete(ctx, cacheKey)
		}
	}

	data, err := os.ReadFile(s.ArtifactPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ErrArtifactMissing()
		}
		return nil, fmt.Errorf("read artifact: %w", err)
	}

	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, errors.ErrArtifactInvalid("stored artifact is not valid JSON")
	}
	return &report, nil
}

// MergeUpload folds an uploaded artifact into the current one. Episode
// entries from the upload replace entries with the same name; the
// overall and per-disorder sections are recomputed from the merged set.
func (s *Service) MergeUpload(ctx context.Context, uploaded *Report) (*Report, error) {
	if err := ValidateReport(uploaded); err != nil {
		return nil, err
	}

	current, err := s.Latest(ctx)
	if err != nil {
		if appErr, ok := err.(errors.AppError); ok && appErr.Code == errors.ErrorCode_ARTIFACT_MISSING {
			current = &Report{ByEpisode: map[string]*EpisodeReport{}}
		} else {
			return nil, err
		}
	}

	merged := make(map[string]*EpisodeReport, len(current.ByEpisode)+len(uploaded.ByEpisode))
	for name, ep := range current.ByEpisode {
		merged[name] = ep
	}
	for name, ep := range uploaded.ByEpisode {
		merged[name] = ep
	}

	report := buildFromEpisodeReports(merged)
	if err := s.persist(ctx, report); err != nil {
		return nil, err
	}

	s.logger.Info("uploaded artifact merged",
		zap.Int("uploaded_episodes", len(uploaded.ByEpisode)),
		zap.Int("total_episodes", report.Overall.Episodes))
	return report, nil
}

// Invalidate drops the cached artifact and deletes the file. Used when
// the graph is wiped.
func (s *Service) Invalidate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.Delete(ctx, cacheKey); err != nil {
			s.logger.Warn("failed to invalidate artifact cache", zap.Error(err))
		}
	}
	if err := os.Remove(s.ArtifactPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove artifact: %w", err)
	}
	return nil
}

// persist writes the artifact atomically: write a temp file in the same
// directory, then rename over the final path so readers never observe a
// partial document.
func (s *Service) persist(ctx context.Context, report *Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "analysis_*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp artifact: %w", err)
	}
	if err := os.Rename(tmpName, s.ArtifactPath()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace artifact: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, string(data), s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache artifact", zap.Error(err))
		}
	}
	return nil
}

// ValidateReport checks an uploaded artifact before merging
func ValidateReport(r *Report) error {
	if r == nil || len(r.ByEpisode) == 0 {
		return errors.ErrArtifactInvalid("by_episode section is missing or empty")
	}
	for name, ep := range r.ByEpisode {
		if name == "" {
			return errors.ErrArtifactInvalid("episode with empty name")
		}
		if ep == nil {
			return errors.ErrArtifactInvalid(fmt.Sprintf("episode %q has no data", name))
		}
		m := ep.Metrics
		for _, d := range []float64{m.ClinicalRatio, m.ClinicalDensity, m.SemanticDensity, m.CrossDensity, m.OverallDensity} {
			if d < 0 || d > 1 {
				return errors.ErrArtifactInvalid(fmt.Sprintf("episode %q has a metric outside [0, 1]", name))
			}
		}
	}
	return nil
}
