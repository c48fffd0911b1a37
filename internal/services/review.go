package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/depositly-backend/internal/apierr"
	"github.com/yungbote/depositly-backend/internal/logger"
	"github.com/yungbote/depositly-backend/internal/repos"
	"github.com/yungbote/depositly-backend/internal/requestdata"
	"github.com/yungbote/depositly-backend/internal/types"
	"github.com/yungbote/depositly-backend/internal/utils"
)

type CreateReviewInput struct {
	TransactionID uuid.UUID
	Content       string
	Images        []string
}

type UpdateReviewInput struct {
	Content string
	Images  []string
}

// ReviewService enforces the one-review-per-settled-transaction rule and runs
// the scoring pipeline. Rows are persisted immediately with provisional zero
// scores; a background worker scores the text and folds the result into the
// business rating, so a slow scorer never blocks the write path.
type ReviewService interface {
	CreateReview(ctx context.Context, input CreateReviewInput) (*types.Review, error)
	UpdateReview(ctx context.Context, reviewID uuid.UUID, input UpdateReviewInput) (*types.Review, error)
	DeleteReview(ctx context.Context, reviewID uuid.UUID) error
	Get(ctx context.Context, reviewID uuid.UUID) (*types.Review, error)
	// StartWorker launches the scoring loop. It exits when ctx is canceled.
	StartWorker(ctx context.Context)
}

type scoreJob struct {
	reviewID   uuid.UUID
	businessID uuid.UUID
	content    string
	// prior holds the scores already folded into the rating, nil for a review
	// that has never been scored.
	prior *CategoryScores
}

type reviewService struct {
	db         *gorm.DB
	log        *logger.Logger
	reviewRepo repos.ReviewRepo
	txRepo     repos.TransactionRepo
	ratingRepo repos.BusinessRatingRepo
	scorer     ReviewScorer
	rating     RatingService

	jobs       chan scoreJob
	workerPool int
}

func NewReviewService(
	db *gorm.DB,
	baseLog *logger.Logger,
	reviewRepo repos.ReviewRepo,
	txRepo repos.TransactionRepo,
	ratingRepo repos.BusinessRatingRepo,
	scorer ReviewScorer,
	rating RatingService,
) ReviewService {
	log := baseLog.With("service", "ReviewService")
	return &reviewService{
		db:         db,
		log:        log,
		reviewRepo: reviewRepo,
		txRepo:     txRepo,
		ratingRepo: ratingRepo,
		scorer:     scorer,
		rating:     rating,
		jobs:       make(chan scoreJob, utils.GetEnvAsInt("REVIEW_SCORE_QUEUE_SIZE", 256, log)),
		workerPool: utils.GetEnvAsInt("REVIEW_SCORE_WORKERS", 2, log),
	}
}

func (rs *reviewService) CreateReview(ctx context.Context, input CreateReviewInput) (*types.Review, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.Role != requestdata.RoleCustomer {
		return nil, apierr.Permission("only a customer can write a review")
	}
	if input.Content == "" {
		return nil, apierr.Validation("review content is required")
	}

	tr, err := rs.txRepo.GetByID(ctx, nil, input.TransactionID)
	if err != nil {
		return nil, err
	}
	if tr == nil {
		return nil, apierr.NotFound("transaction not found")
	}
	if tr.CustomerID != rd.ActorID {
		return nil, apierr.Permission("transaction belongs to another customer")
	}
	if !tr.Status.Terminal() {
		return nil, apierr.Conflict("transaction is %s, reviews require a settled transaction", tr.Status)
	}

	existing, err := rs.reviewRepo.GetByTransactionID(ctx, nil, tr.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apierr.Conflict("transaction already has a review")
	}

	row := &types.Review{
		ID:            uuid.New(),
		BusinessID:    tr.BusinessID,
		CustomerID:    rd.ActorID,
		TransactionID: tr.ID,
		Content:       input.Content,
		Images:        marshalImages(input.Images),
		CreatedAt:     time.Now().UTC(),
	}

	err = rs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := rs.reviewRepo.Create(ctx, tx, []*types.Review{row}); err != nil {
			return err
		}
		return rs.txRepo.SetReviewID(ctx, tx, tr.ID, &row.ID)
	})
	if err != nil {
		return nil, err
	}

	rs.enqueue(scoreJob{reviewID: row.ID, businessID: row.BusinessID, content: row.Content})
	rs.log.Info("Review created", "review_id", row.ID, "transaction_id", tr.ID)
	return row, nil
}

func (rs *reviewService) UpdateReview(ctx context.Context, reviewID uuid.UUID, input UpdateReviewInput) (*types.Review, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.Role != requestdata.RoleCustomer {
		return nil, apierr.Permission("only the author can edit a review")
	}
	if input.Content == "" {
		return nil, apierr.Validation("review content is required")
	}

	review, err := rs.loadOwned(ctx, reviewID, rd)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{
		"content":    input.Content,
		"scored_at":  nil,
		"updated_at": time.Now().UTC(),
	}
	if input.Images != nil {
		fields["images"] = marshalImages(input.Images)
	}
	if err := rs.reviewRepo.UpdateFields(ctx, nil, review.ID, fields); err != nil {
		return nil, err
	}

	job := scoreJob{reviewID: review.ID, businessID: review.BusinessID, content: input.Content}
	if review.ScoredAt != nil {
		job.prior = &CategoryScores{
			Quality:     review.Quality,
			Reliability: review.Reliability,
			Price:       review.Price,
			Overall:     review.Overall,
		}
	}
	rs.enqueue(job)

	review.Content = input.Content
	review.ScoredAt = nil
	return review, nil
}

func (rs *reviewService) DeleteReview(ctx context.Context, reviewID uuid.UUID) error {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.Role != requestdata.RoleCustomer {
		return apierr.Permission("only the author can delete a review")
	}

	review, err := rs.loadOwned(ctx, reviewID, rd)
	if err != nil {
		return err
	}

	err = rs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rs.txRepo.SetReviewID(ctx, tx, review.TransactionID, nil); err != nil {
			return err
		}
		return rs.reviewRepo.Delete(ctx, tx, review.ID)
	})
	if err != nil {
		return err
	}

	// Only scored reviews have been folded into the aggregate.
	if review.ScoredAt != nil {
		scores := CategoryScores{
			Quality:     review.Quality,
			Reliability: review.Reliability,
			Price:       review.Price,
			Overall:     review.Overall,
		}
		if err := rs.rating.RemoveReview(ctx, review.BusinessID, scores); err != nil {
			rs.log.Warn("Failed to remove review from rating", "review_id", review.ID, "error", err)
		}
	}
	rs.log.Info("Review deleted", "review_id", review.ID)
	return nil
}

func (rs *reviewService) Get(ctx context.Context, reviewID uuid.UUID) (*types.Review, error) {
	review, err := rs.reviewRepo.GetByID(ctx, nil, reviewID)
	if err != nil {
		return nil, err
	}
	if review == nil {
		return nil, apierr.NotFound("review not found")
	}
	return review, nil
}

func (rs *reviewService) loadOwned(ctx context.Context, reviewID uuid.UUID, rd *requestdata.RequestData) (*types.Review, error) {
	review, err := rs.reviewRepo.GetByID(ctx, nil, reviewID)
	if err != nil {
		return nil, err
	}
	if review == nil {
		return nil, apierr.NotFound("review not found")
	}
	if review.CustomerID != rd.ActorID {
		return nil, apierr.Permission("review belongs to another customer")
	}
	return review, nil
}

func (rs *reviewService) enqueue(job scoreJob) {
	if rs.scorer == nil {
		return
	}
	select {
	case rs.jobs <- job:
	default:
		rs.log.Warn("Review scoring queue full, dropping job", "review_id", job.reviewID)
	}
}

func (rs *reviewService) StartWorker(ctx context.Context) {
	if rs.scorer == nil {
		rs.log.Warn("No review scorer configured, reviews keep provisional scores")
		return
	}
	for i := 0; i < rs.workerPool; i++ {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-rs.jobs:
					if err := rs.processJob(ctx, job); err != nil {
						rs.log.Error("Review scoring failed", "review_id", job.reviewID, "error", err)
					}
				}
			}
		}()
	}
}

// processJob scores the review text and updates the per-business summary in
// parallel, then persists the scores and folds them into the rating.
func (rs *reviewService) processJob(ctx context.Context, job scoreJob) error {
	rating, err := rs.ratingRepo.Get(ctx, nil, job.businessID)
	if err != nil {
		return err
	}
	priorSummary := ""
	priorCount := 0
	if rating != nil {
		priorSummary = rating.ReviewSummary
		priorCount = rating.ReviewCount
	}

	var scores *CategoryScores
	var digest *ReviewDigest

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := rs.scorer.Score(gctx, job.content)
		if err != nil {
			return err
		}
		scores = s
		return nil
	})
	g.Go(func() error {
		d, err := rs.scorer.Summarize(gctx, priorSummary, priorCount, job.content)
		if err != nil {
			return err
		}
		digest = d
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := rs.reviewRepo.UpdateFields(ctx, nil, job.reviewID, map[string]interface{}{
		"quality":     scores.Quality,
		"reliability": scores.Reliability,
		"price":       scores.Price,
		"overall":     scores.Overall,
		"scored_at":   now,
	}); err != nil {
		return err
	}

	if job.prior != nil {
		err = rs.rating.UpdateReview(ctx, job.businessID, *job.prior, *scores)
	} else {
		err = rs.rating.AddReview(ctx, job.businessID, *scores)
	}
	if err != nil {
		return err
	}

	if err := rs.rating.ApplySummary(ctx, job.businessID, digest); err != nil {
		rs.log.Warn("Failed to apply review summary", "business_id", job.businessID, "error", err)
	}
	return nil
}

func marshalImages(images []string) datatypes.JSON {
	if len(images) == 0 {
		return nil
	}
	raw, err := json.Marshal(images)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
