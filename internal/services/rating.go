package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/depositly-backend/internal/apierr"
	"github.com/yungbote/depositly-backend/internal/logger"
	"github.com/yungbote/depositly-backend/internal/ratings"
	"github.com/yungbote/depositly-backend/internal/repos"
	"github.com/yungbote/depositly-backend/internal/types"
	"github.com/yungbote/depositly-backend/internal/utils"
)

// ChargeStats is what the escrow manager needs to decide whether a business
// has crossed the administrative charge-rate alert line.
type ChargeStats struct {
	ChargedCount    int
	QualifyingCount int
	Rate            float64
}

// RatingService owns every write to a BusinessRating row. Updates for the
// same business are serialized through a per-business lock so the incremental
// mean math never folds a stale count back in.
type RatingService interface {
	Get(ctx context.Context, businessID uuid.UUID) (*types.BusinessRating, error)
	AddReview(ctx context.Context, businessID uuid.UUID, scores CategoryScores) error
	UpdateReview(ctx context.Context, businessID uuid.UUID, oldScores, newScores CategoryScores) error
	RemoveReview(ctx context.Context, businessID uuid.UUID, scores CategoryScores) error
	// RecordOutcome folds one settled transaction into the charge signal.
	RecordOutcome(ctx context.Context, businessID uuid.UUID, charged bool) (*ChargeStats, error)
	ApplySummary(ctx context.Context, businessID uuid.UUID, digest *ReviewDigest) error
}

type ratingService struct {
	db         *gorm.DB
	log        *logger.Logger
	ratingRepo repos.BusinessRatingRepo
	locks      *keyedMutex

	reviewWeight    float64
	chargedWeight   float64
	minChargeSample int
}

func NewRatingService(db *gorm.DB, baseLog *logger.Logger, ratingRepo repos.BusinessRatingRepo) RatingService {
	log := baseLog.With("service", "RatingService")
	reviewWeight := utils.GetEnvAsFloat("REVIEW_WEIGHT", 0.7, log)
	chargedWeight := utils.GetEnvAsFloat("CHARGED_WEIGHT", 0.3, log)
	if reviewWeight+chargedWeight != 1 {
		log.Warn("Rating weights do not sum to 1, falling back to defaults", "review_weight", reviewWeight, "charged_weight", chargedWeight)
		reviewWeight, chargedWeight = 0.7, 0.3
	}
	return &ratingService{
		db:              db,
		log:             log,
		ratingRepo:      ratingRepo,
		locks:           newKeyedMutex(),
		reviewWeight:    reviewWeight,
		chargedWeight:   chargedWeight,
		minChargeSample: utils.GetEnvAsInt("RATING_MIN_CHARGE_SAMPLE", 3, log),
	}
}

func (rs *ratingService) Get(ctx context.Context, businessID uuid.UUID) (*types.BusinessRating, error) {
	rating, err := rs.ratingRepo.Get(ctx, nil, businessID)
	if err != nil {
		return nil, err
	}
	if rating == nil {
		// Never-reviewed businesses read as the neutral ceiling.
		return &types.BusinessRating{
			BusinessID:   businessID,
			Overall:      ratings.NeutralScore,
			ChargedScore: ratings.NeutralScore,
		}, nil
	}
	return rating, nil
}

func (rs *ratingService) AddReview(ctx context.Context, businessID uuid.UUID, scores CategoryScores) error {
	return rs.mutate(ctx, businessID, func(r *types.BusinessRating) {
		foldCategories(r, func(m ratings.Mean, cat categoryPair) ratings.Mean {
			return ratings.Add(m, cat.new)
		}, scores, scores)
	})
}

func (rs *ratingService) UpdateReview(ctx context.Context, businessID uuid.UUID, oldScores, newScores CategoryScores) error {
	return rs.mutate(ctx, businessID, func(r *types.BusinessRating) {
		foldCategories(r, func(m ratings.Mean, cat categoryPair) ratings.Mean {
			return ratings.Replace(m, cat.old, cat.new)
		}, oldScores, newScores)
	})
}

func (rs *ratingService) RemoveReview(ctx context.Context, businessID uuid.UUID, scores CategoryScores) error {
	return rs.mutate(ctx, businessID, func(r *types.BusinessRating) {
		foldCategories(r, func(m ratings.Mean, cat categoryPair) ratings.Mean {
			return ratings.Remove(m, cat.old)
		}, scores, scores)
	})
}

func (rs *ratingService) RecordOutcome(ctx context.Context, businessID uuid.UUID, charged bool) (*ChargeStats, error) {
	var stats ChargeStats
	err := rs.mutate(ctx, businessID, func(r *types.BusinessRating) {
		r.QualifyingCount++
		if charged {
			r.ChargedCount++
		}
		stats = ChargeStats{
			ChargedCount:    r.ChargedCount,
			QualifyingCount: r.QualifyingCount,
			Rate:            float64(r.ChargedCount) / float64(r.QualifyingCount),
		}
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (rs *ratingService) ApplySummary(ctx context.Context, businessID uuid.UUID, digest *ReviewDigest) error {
	if digest == nil {
		return apierr.Validation("missing review digest")
	}
	return rs.mutate(ctx, businessID, func(r *types.BusinessRating) {
		r.ReviewSummary = digest.Summary
		if len(digest.Insights) > 0 {
			if raw, err := json.Marshal(digest.Insights); err == nil {
				r.Insights = datatypes.JSON(raw)
			}
		}
	})
}

// mutate runs apply against the current row under the business lock, then
// recomputes the derived scores and persists, all in one db transaction.
func (rs *ratingService) mutate(ctx context.Context, businessID uuid.UUID, apply func(r *types.BusinessRating)) error {
	if businessID == uuid.Nil {
		return apierr.Validation("missing business id")
	}
	unlock := rs.locks.Lock(businessID)
	defer unlock()

	return rs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rating, err := rs.ratingRepo.GetOrCreate(ctx, tx, businessID)
		if err != nil {
			return err
		}

		apply(rating)

		rating.ChargedScore = ratings.ChargedScore(rating.ChargedCount, rating.QualifyingCount, rs.minChargeSample)
		rating.Overall = ratings.Blend(
			rating.ReviewOverall, rating.ReviewCount > 0,
			rating.ChargedScore, rating.QualifyingCount >= rs.minChargeSample,
			rs.reviewWeight, rs.chargedWeight,
		)
		rating.UpdatedAt = time.Now().UTC()

		return rs.ratingRepo.Save(ctx, tx, rating)
	})
}

type categoryPair struct {
	old float64
	new float64
}

// foldCategories applies op to each category mean with that category's own
// mention count, and to the review-overall mean with the review count. The
// two denominators are deliberately separate (see types.BusinessRating).
func foldCategories(r *types.BusinessRating, op func(ratings.Mean, categoryPair) ratings.Mean, oldScores, newScores CategoryScores) {
	q := op(ratings.Mean{Value: r.Quality, Count: r.QualityCount}, categoryPair{oldScores.Quality, newScores.Quality})
	r.Quality, r.QualityCount = q.Value, q.Count

	rel := op(ratings.Mean{Value: r.Reliability, Count: r.ReliabilityCount}, categoryPair{oldScores.Reliability, newScores.Reliability})
	r.Reliability, r.ReliabilityCount = rel.Value, rel.Count

	p := op(ratings.Mean{Value: r.Price, Count: r.PriceCount}, categoryPair{oldScores.Price, newScores.Price})
	r.Price, r.PriceCount = p.Value, p.Count

	o := op(ratings.Mean{Value: r.ReviewOverall, Count: r.ReviewCount}, categoryPair{oldScores.Overall, newScores.Overall})
	r.ReviewOverall, r.ReviewCount = o.Value, o.Count
}
