package store

import (
	"context"
	"fmt"

	"solestore-backend/internal/models"
	"solestore-backend/internal/users"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func (s *Store) InsertUser(ctx context.Context, u *models.User) error {
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	if _, err := s.col(colUsers).InsertOne(ctx, u); err != nil {
		return conflictOnDuplicate(fmt.Errorf("insert user: %w", err), "email %s is already registered", u.Email)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	var u models.User
	if err := s.col(colUsers).FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return models.User{}, notFound(err, "user")
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	if err := s.col(colUsers).FindOne(ctx, bson.M{"email": email}).Decode(&u); err != nil {
		return models.User{}, notFound(err, "user")
	}
	return u, nil
}

func (s *Store) UpdateUserProfile(ctx context.Context, id primitive.ObjectID, p users.ProfileUpdate) (models.User, error) {
	set := bson.M{}
	if p.Name != nil {
		set["name"] = *p.Name
	}
	if p.Phone != nil {
		set["phone"] = *p.Phone
	}
	if p.Address != nil {
		set["address"] = *p.Address
	}
	if len(set) > 0 {
		res, err := s.col(colUsers).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
		if err != nil {
			return models.User{}, fmt.Errorf("update user: %w", err)
		}
		if res.MatchedCount == 0 {
			return models.User{}, notFound(mongo.ErrNoDocuments, "user")
		}
	}
	return s.GetUser(ctx, id)
}

func (s *Store) ListUsers(ctx context.Context, page, limit int) ([]models.User, int64, error) {
	total, err := s.col(colUsers).CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	opts := pageOptions(page, limit).SetSort(newestFirst).SetProjection(bson.M{"password": 0})
	cur, err := s.col(colUsers).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	list := []models.User{}
	if err := cur.All(ctx, &list); err != nil {
		return nil, 0, fmt.Errorf("decode users: %w", err)
	}
	return list, total, nil
}
