package reviews

import (
	"context"
	"strings"
	"time"

	"solestore-backend/internal/apperr"
	"solestore-backend/internal/auth"
	"solestore-backend/internal/models"
	"solestore-backend/pkg/logkey"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Store interface {
	RatingStore
	GetProduct(ctx context.Context, id primitive.ObjectID) (models.Product, error)
	GetUser(ctx context.Context, id primitive.ObjectID) (models.User, error)
	HasPaidOrderFor(ctx context.Context, userID, productID primitive.ObjectID) (bool, error)
	FindReviewByAuthor(ctx context.Context, productID, userID primitive.ObjectID) (bool, error)
	InsertReview(ctx context.Context, r *models.Review) error
	GetReview(ctx context.Context, id primitive.ObjectID) (models.Review, error)
	UpdateReview(ctx context.Context, r models.Review) (models.Review, error)
	DeleteReview(ctx context.Context, id primitive.ObjectID) error
	ListReviews(ctx context.Context, productID primitive.ObjectID, page, limit int) ([]models.Review, int64, error)
	// ToggleHelpful adds userID to helpfulBy and increments helpful, or
	// removes it and decrements, in one document update.
	ToggleHelpful(ctx context.Context, reviewID, userID primitive.ObjectID) (models.Review, error)
}

type Service struct {
	store      Store
	aggregator *Aggregator
	log        *logrus.Logger
	now        func() time.Time
}

func NewService(store Store, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{store: store, aggregator: NewAggregator(store), log: log, now: time.Now}
}

func (s *Service) Aggregator() *Aggregator { return s.aggregator }

type CreateInput struct {
	ProductID primitive.ObjectID `json:"productId"`
	Rating    int                `json:"rating"`
	Title     string             `json:"title"`
	Comment   string             `json:"comment"`
}

type UpdateInput struct {
	Rating  *int    `json:"rating"`
	Title   *string `json:"title"`
	Comment *string `json:"comment"`
}

func validateRating(r int) error {
	if r < 1 || r > 5 {
		return apperr.Validation("rating must be an integer between 1 and 5").WithDetail("rating", r)
	}
	return nil
}

func (s *Service) Create(ctx context.Context, caller *auth.AuthContext, in CreateInput) (models.Review, error) {
	if caller == nil {
		return models.Review{}, apperr.Unauthenticated("authentication required")
	}
	if in.ProductID.IsZero() {
		return models.Review{}, apperr.Validation("productId value missing")
	}
	if err := validateRating(in.Rating); err != nil {
		return models.Review{}, err
	}
	if _, err := s.store.GetProduct(ctx, in.ProductID); err != nil {
		return models.Review{}, err
	}
	exists, err := s.store.FindReviewByAuthor(ctx, in.ProductID, caller.UserID)
	if err != nil {
		return models.Review{}, err
	}
	if exists {
		return models.Review{}, apperr.Conflict("you have already reviewed this product")
	}

	verified, err := s.store.HasPaidOrderFor(ctx, caller.UserID, in.ProductID)
	if err != nil {
		return models.Review{}, err
	}
	var userName string
	if u, err := s.store.GetUser(ctx, caller.UserID); err == nil {
		userName = u.Name
	}

	now := s.now().UTC()
	review := models.Review{
		Product:            in.ProductID,
		User:               caller.UserID,
		UserName:           userName,
		Rating:             in.Rating,
		Title:              strings.TrimSpace(in.Title),
		Comment:            strings.TrimSpace(in.Comment),
		IsVerifiedPurchase: verified,
		HelpfulBy:          []primitive.ObjectID{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.InsertReview(ctx, &review); err != nil {
		return models.Review{}, err
	}
	s.recompute(ctx, in.ProductID)
	return review, nil
}

func (s *Service) Update(ctx context.Context, caller *auth.AuthContext, id primitive.ObjectID, in UpdateInput) (models.Review, error) {
	review, err := s.store.GetReview(ctx, id)
	if err != nil {
		return models.Review{}, err
	}
	if !auth.CanModifyReview(caller, review, false) {
		return models.Review{}, apperr.Unauthorized("not authorized to update this review")
	}
	if in.Rating != nil {
		if err := validateRating(*in.Rating); err != nil {
			return models.Review{}, err
		}
		review.Rating = *in.Rating
	}
	if in.Title != nil {
		review.Title = strings.TrimSpace(*in.Title)
	}
	if in.Comment != nil {
		review.Comment = strings.TrimSpace(*in.Comment)
	}
	review.UpdatedAt = s.now().UTC()

	updated, err := s.store.UpdateReview(ctx, review)
	if err != nil {
		return models.Review{}, err
	}
	s.recompute(ctx, review.Product)
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, caller *auth.AuthContext, id primitive.ObjectID) error {
	review, err := s.store.GetReview(ctx, id)
	if err != nil {
		return err
	}
	if !auth.CanModifyReview(caller, review, true) {
		return apperr.Unauthorized("not authorized to delete this review")
	}
	if err := s.store.DeleteReview(ctx, id); err != nil {
		return err
	}
	s.recompute(ctx, review.Product)
	return nil
}

// ToggleHelpful marks the review helpful for caller, or withdraws the mark
// if caller already gave one.
func (s *Service) ToggleHelpful(ctx context.Context, caller *auth.AuthContext, id primitive.ObjectID) (models.Review, error) {
	if caller == nil {
		return models.Review{}, apperr.Unauthenticated("authentication required")
	}
	return s.store.ToggleHelpful(ctx, id, caller.UserID)
}

func (s *Service) ListForProduct(ctx context.Context, productID primitive.ObjectID, page, limit int) ([]models.Review, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 50 {
		limit = 10
	}
	return s.store.ListReviews(ctx, productID, page, limit)
}

// recompute runs after every review write. The review write has already
// succeeded, so a failure here is logged and left for the next write or the
// admin recompute endpoint to repair.
func (s *Service) recompute(ctx context.Context, productID primitive.ObjectID) {
	if _, err := s.aggregator.Recompute(ctx, productID); err != nil {
		s.log.WithFields(logrus.Fields{
			logkey.Component: "reviews",
			logkey.ProductID: productID.Hex(),
			logkey.ERROR:     err,
		}).Error("failed to recompute product rating")
	}
}
