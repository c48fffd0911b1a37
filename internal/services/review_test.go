package services

import (
	"context"
	"testing"

	"gorm.io/gorm"

	"github.com/yungbote/depositly-backend/internal/apierr"
	"github.com/yungbote/depositly-backend/internal/repos"
	"github.com/yungbote/depositly-backend/internal/types"
)

type fakeScorer struct {
	scores CategoryScores
	digest ReviewDigest
	calls  int
}

func (s *fakeScorer) Score(ctx context.Context, content string) (*CategoryScores, error) {
	s.calls++
	out := s.scores
	return &out, nil
}

func (s *fakeScorer) Summarize(ctx context.Context, priorSummary string, priorCount int, newContent string) (*ReviewDigest, error) {
	out := s.digest
	return &out, nil
}

type reviewFixture struct {
	db        *gorm.DB
	svc       ReviewService
	ratingSvc RatingService
	scorer    *fakeScorer
}

func newReviewFixture(t *testing.T) *reviewFixture {
	t.Helper()
	log := mustTestLogger(t)
	db := mustTestDB(t)
	scorer := &fakeScorer{
		scores: CategoryScores{Quality: 4, Reliability: 0, Price: 3, Overall: 4},
		digest: ReviewDigest{Summary: "Generally positive."},
	}
	reviewRepo := repos.NewReviewRepo(db, log)
	txRepo := repos.NewTransactionRepo(db, log)
	ratingRepo := repos.NewBusinessRatingRepo(db, log)
	ratingSvc := NewRatingService(db, log, ratingRepo)
	svc := NewReviewService(db, log, reviewRepo, txRepo, ratingRepo, scorer, ratingSvc)
	return &reviewFixture{db: db, svc: svc, ratingSvc: ratingSvc, scorer: scorer}
}

// drainJobs runs queued scoring jobs synchronously so tests stay deterministic.
func (f *reviewFixture) drainJobs(t *testing.T) {
	t.Helper()
	rs := f.svc.(*reviewService)
	for {
		select {
		case job := <-rs.jobs:
			if err := rs.processJob(context.Background(), job); err != nil {
				t.Fatalf("scoring job failed: %v", err)
			}
		default:
			return
		}
	}
}

func TestCreateReview_RequiresSettledTransaction(t *testing.T) {
	f := newReviewFixture(t)
	customer := seedCustomer(t, f.db)
	business := seedBusiness(t, f.db, false)
	tr := seedTransaction(t, f.db, business.ID, customer.ID, types.TransactionStatusOpen, 2000, "hold_r1")

	_, err := f.svc.CreateReview(customerCtx(customer.ID), CreateReviewInput{
		TransactionID: tr.ID,
		Content:       "too early",
	})
	if !apierr.IsConflict(err) {
		t.Fatalf("expected conflict on unsettled transaction, got %v", err)
	}
}

func TestCreateReview_OnePerTransaction(t *testing.T) {
	f := newReviewFixture(t)
	customer := seedCustomer(t, f.db)
	business := seedBusiness(t, f.db, false)
	tr := seedTransaction(t, f.db, business.ID, customer.ID, types.TransactionStatusClosed, 2000, "hold_r2")

	if _, err := f.svc.CreateReview(customerCtx(customer.ID), CreateReviewInput{
		TransactionID: tr.ID,
		Content:       "smooth return",
	}); err != nil {
		t.Fatalf("CreateReview failed: %v", err)
	}
	_, err := f.svc.CreateReview(customerCtx(customer.ID), CreateReviewInput{
		TransactionID: tr.ID,
		Content:       "second attempt",
	})
	if !apierr.IsConflict(err) {
		t.Fatalf("expected conflict on duplicate review, got %v", err)
	}
}

func TestCreateReview_OtherCustomerForbidden(t *testing.T) {
	f := newReviewFixture(t)
	customer := seedCustomer(t, f.db)
	stranger := seedCustomer(t, f.db)
	business := seedBusiness(t, f.db, false)
	tr := seedTransaction(t, f.db, business.ID, customer.ID, types.TransactionStatusClosed, 2000, "hold_r3")

	_, err := f.svc.CreateReview(customerCtx(stranger.ID), CreateReviewInput{
		TransactionID: tr.ID,
		Content:       "not my deposit",
	})
	if !apierr.IsPermission(err) {
		t.Fatalf("expected permission error, got %v", err)
	}
}

func TestCreateReview_ScoringFoldsIntoRating(t *testing.T) {
	f := newReviewFixture(t)
	customer := seedCustomer(t, f.db)
	business := seedBusiness(t, f.db, false)
	tr := seedTransaction(t, f.db, business.ID, customer.ID, types.TransactionStatusCharged, 2000, "hold_r4")

	review, err := f.svc.CreateReview(customerCtx(customer.ID), CreateReviewInput{
		TransactionID: tr.ID,
		Content:       "great quality gear, price was okay",
	})
	if err != nil {
		t.Fatalf("CreateReview failed: %v", err)
	}
	if review.ScoredAt != nil {
		t.Fatalf("scores must be provisional until the worker runs")
	}

	f.drainJobs(t)

	var scored types.Review
	if err := f.db.Where("id = ?", review.ID).First(&scored).Error; err != nil {
		t.Fatalf("failed to reload review: %v", err)
	}
	if scored.ScoredAt == nil || scored.Quality != 4 || scored.Price != 3 || scored.Overall != 4 {
		t.Fatalf("expected scorer output persisted, got %+v", scored)
	}

	var linked types.Transaction
	if err := f.db.Where("id = ?", tr.ID).First(&linked).Error; err != nil {
		t.Fatalf("failed to reload transaction: %v", err)
	}
	if linked.ReviewID == nil || *linked.ReviewID != review.ID {
		t.Fatalf("transaction must point at its review")
	}

	rating, err := f.ratingSvc.Get(context.Background(), business.ID)
	if err != nil {
		t.Fatalf("rating lookup failed: %v", err)
	}
	if rating.ReviewCount != 1 || rating.QualityCount != 1 || rating.ReliabilityCount != 0 {
		t.Fatalf("unexpected counts: review=%d quality=%d reliability=%d", rating.ReviewCount, rating.QualityCount, rating.ReliabilityCount)
	}
	if rating.ReviewSummary != "Generally positive." {
		t.Fatalf("expected summary applied, got %q", rating.ReviewSummary)
	}
}

func TestUpdateReview_RescoresWithoutDoubleCount(t *testing.T) {
	f := newReviewFixture(t)
	customer := seedCustomer(t, f.db)
	business := seedBusiness(t, f.db, false)
	tr := seedTransaction(t, f.db, business.ID, customer.ID, types.TransactionStatusClosed, 2000, "hold_r5")

	review, err := f.svc.CreateReview(customerCtx(customer.ID), CreateReviewInput{
		TransactionID: tr.ID,
		Content:       "fine",
	})
	if err != nil {
		t.Fatalf("CreateReview failed: %v", err)
	}
	f.drainJobs(t)

	f.scorer.scores = CategoryScores{Quality: 5, Price: 5, Overall: 5}
	if _, err := f.svc.UpdateReview(customerCtx(customer.ID), review.ID, UpdateReviewInput{
		Content: "actually excellent",
	}); err != nil {
		t.Fatalf("UpdateReview failed: %v", err)
	}
	f.drainJobs(t)

	rating, err := f.ratingSvc.Get(context.Background(), business.ID)
	if err != nil {
		t.Fatalf("rating lookup failed: %v", err)
	}
	if rating.ReviewCount != 1 {
		t.Fatalf("edit must not add a second review, got count %d", rating.ReviewCount)
	}
	if !closeTo(rating.ReviewOverall, 5) {
		t.Fatalf("expected updated overall 5, got %v", rating.ReviewOverall)
	}
}

func TestDeleteReview_RemovesFromRating(t *testing.T) {
	f := newReviewFixture(t)
	customer := seedCustomer(t, f.db)
	business := seedBusiness(t, f.db, false)
	tr := seedTransaction(t, f.db, business.ID, customer.ID, types.TransactionStatusClosed, 2000, "hold_r6")

	review, err := f.svc.CreateReview(customerCtx(customer.ID), CreateReviewInput{
		TransactionID: tr.ID,
		Content:       "decent",
	})
	if err != nil {
		t.Fatalf("CreateReview failed: %v", err)
	}
	f.drainJobs(t)

	if err := f.svc.DeleteReview(customerCtx(customer.ID), review.ID); err != nil {
		t.Fatalf("DeleteReview failed: %v", err)
	}

	rating, err := f.ratingSvc.Get(context.Background(), business.ID)
	if err != nil {
		t.Fatalf("rating lookup failed: %v", err)
	}
	if rating.ReviewCount != 0 {
		t.Fatalf("expected review removed from the aggregate, got count %d", rating.ReviewCount)
	}

	var linked types.Transaction
	if err := f.db.Where("id = ?", tr.ID).First(&linked).Error; err != nil {
		t.Fatalf("failed to reload transaction: %v", err)
	}
	if linked.ReviewID != nil {
		t.Fatalf("transaction must no longer point at a review")
	}

	var n int64
	if err := f.db.Model(&types.Review{}).Where("id = ?", review.ID).Count(&n).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected the review row to be gone")
	}
}
