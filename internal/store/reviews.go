package store

import (
	"context"
	"errors"
	"fmt"

	"solestore-backend/internal/apperr"
	"solestore-backend/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *Store) InsertReview(ctx context.Context, r *models.Review) error {
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	if r.HelpfulBy == nil {
		r.HelpfulBy = []primitive.ObjectID{}
	}
	if _, err := s.col(colReviews).InsertOne(ctx, r); err != nil {
		return conflictOnDuplicate(fmt.Errorf("insert review: %w", err), "you have already reviewed this product")
	}
	return nil
}

func (s *Store) GetReview(ctx context.Context, id primitive.ObjectID) (models.Review, error) {
	var r models.Review
	if err := s.col(colReviews).FindOne(ctx, bson.M{"_id": id}).Decode(&r); err != nil {
		return models.Review{}, notFound(err, "review")
	}
	return r, nil
}

func (s *Store) UpdateReview(ctx context.Context, r models.Review) (models.Review, error) {
	var out models.Review
	err := s.col(colReviews).FindOneAndUpdate(ctx,
		bson.M{"_id": r.ID},
		bson.M{"$set": bson.M{
			"rating":    r.Rating,
			"title":     r.Title,
			"comment":   r.Comment,
			"updatedAt": r.UpdatedAt,
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&out)
	if err != nil {
		return models.Review{}, notFound(err, "review")
	}
	return out, nil
}

func (s *Store) DeleteReview(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.col(colReviews).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("review not found")
	}
	return nil
}

func (s *Store) FindReviewByAuthor(ctx context.Context, productID, userID primitive.ObjectID) (bool, error) {
	n, err := s.col(colReviews).CountDocuments(ctx,
		bson.M{"product": productID, "user": userID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("find review: %w", err)
	}
	return n > 0, nil
}

func (s *Store) ListReviews(ctx context.Context, productID primitive.ObjectID, page, limit int) ([]models.Review, int64, error) {
	filter := bson.M{"product": productID}
	total, err := s.col(colReviews).CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count reviews: %w", err)
	}
	cur, err := s.col(colReviews).Find(ctx, filter, pageOptions(page, limit).SetSort(newestFirst))
	if err != nil {
		return nil, 0, fmt.Errorf("list reviews: %w", err)
	}
	list := []models.Review{}
	if err := cur.All(ctx, &list); err != nil {
		return nil, 0, fmt.Errorf("decode reviews: %w", err)
	}
	return list, total, nil
}

func (s *Store) ListRatings(ctx context.Context, productID primitive.ObjectID) ([]int, error) {
	cur, err := s.col(colReviews).Find(ctx, bson.M{"product": productID},
		options.Find().SetProjection(bson.M{"rating": 1, "_id": 0}))
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	var rows []struct {
		Rating int `bson:"rating"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode ratings: %w", err)
	}
	ratings := make([]int, 0, len(rows))
	for _, r := range rows {
		ratings = append(ratings, r.Rating)
	}
	return ratings, nil
}

// ToggleHelpful withdraws the caller's vote if present, otherwise adds it.
// Each branch is a single conditional update, so helpful and helpfulBy
// always change together.
func (s *Store) ToggleHelpful(ctx context.Context, reviewID, userID primitive.ObjectID) (models.Review, error) {
	after := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var r models.Review

	err := s.col(colReviews).FindOneAndUpdate(ctx,
		bson.M{"_id": reviewID, "helpfulBy": userID},
		bson.M{"$pull": bson.M{"helpfulBy": userID}, "$inc": bson.M{"helpful": -1}},
		after,
	).Decode(&r)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return models.Review{}, fmt.Errorf("withdraw helpful vote: %w", err)
	}

	err = s.col(colReviews).FindOneAndUpdate(ctx,
		bson.M{"_id": reviewID, "helpfulBy": bson.M{"$ne": userID}},
		bson.M{"$addToSet": bson.M{"helpfulBy": userID}, "$inc": bson.M{"helpful": 1}},
		after,
	).Decode(&r)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return models.Review{}, fmt.Errorf("add helpful vote: %w", err)
	}

	// Neither branch matched: the review is gone, or a concurrent toggle by
	// the same user flipped the vote between the two updates.
	if _, gerr := s.GetReview(ctx, reviewID); gerr != nil {
		return models.Review{}, gerr
	}
	return models.Review{}, apperr.Conflict("helpful vote changed concurrently, please retry")
}
