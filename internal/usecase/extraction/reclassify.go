package extraction

import (
	"context"

	"go.uber.org/zap"

	"github.com/chat2graph/chat2graph/errors"
	"github.com/chat2graph/chat2graph/pkg/llm"
)

// ReclassifyResult summarizes one reclassification pass
type ReclassifyResult struct {
	Examined     int            `json:"examined"`
	Reclassified int            `json:"reclassified"`
	Uncertain    int            `json:"uncertain"`
	ByType       map[string]int `json:"by_type"`
}

// ReclassifyRelationships walks generic edges and asks the model to
// assign a precise type from the relationship taxonomy. Edges the model
// is unsure about keep their generic type so a later pass can retry
// them.
func (s *Service) ReclassifyRelationships(ctx context.Context, limit int) (*ReclassifyResult, error) {
	if err := s.extractor.Health(ctx); err != nil {
		return nil, errors.ErrLLMUnavailable()
	}

	rels, err := s.store.ListGenericRelationships(ctx, limit)
	if err != nil {
		return nil, errors.ErrGraphQueryFailed(err)
	}

	result := &ReclassifyResult{ByType: make(map[string]int)}
	for _, rel := range rels {
		result.Examined++

		newType, err := s.extractor.ClassifyRelationship(ctx, rel.From, rel.To, rel.Description)
		if err != nil {
			s.logger.Warn("relationship classification failed",
				zap.String("from", rel.From),
				zap.String("to", rel.To),
				zap.Error(err))
			continue
		}
		if newType == llm.RelationUncertain {
			result.Uncertain++
			continue
		}

		if err := s.store.RetypeRelationship(ctx, rel, newType); err != nil {
			s.logger.Warn("failed to retype relationship",
				zap.String("from", rel.From),
				zap.String("to", rel.To),
				zap.String("type", newType),
				zap.Error(err))
			continue
		}
		result.Reclassified++
		result.ByType[newType]++
	}

	s.logger.Info("relationship reclassification finished",
		zap.Int("examined", result.Examined),
		zap.Int("reclassified", result.Reclassified),
		zap.Int("uncertain", result.Uncertain))
	return result, nil
}
