package databases

// go generate: mockery --name UserDatabase

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/efir-portal/efir-api/models"
)

const userName = "users"

// UserDatabase contains the methods to use with the user database
type UserDatabase interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByBadgeID(ctx context.Context, badgeID string) (*models.User, error)
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error)
	FindByRole(ctx context.Context, role models.Role) ([]models.User, error)
	InsertOne(ctx context.Context, user *models.User) error
	Approve(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	DeleteOne(ctx context.Context, id primitive.ObjectID) (int64, error)
	CountByRole(ctx context.Context, role models.Role) (int64, error)
	CountByRoleAndApproval(ctx context.Context, role models.Role, approved bool) (int64, error)
	EnsureIndexes(ctx context.Context) error
}

type userDatabase struct {
	db DatabaseHelper
}

// NewUserDatabase initializes a new instance of user database with the provided db connection
func NewUserDatabase(db DatabaseHelper) UserDatabase {
	return &userDatabase{
		db: db,
	}
}

func (u *userDatabase) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	user := &models.User{}
	err := u.db.Collection(userName).FindOne(ctx, filter).Decode(user)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (u *userDatabase) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return u.findOne(ctx, bson.M{"_id": id})
}

func (u *userDatabase) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return u.findOne(ctx, bson.M{"email": email})
}

func (u *userDatabase) FindByBadgeID(ctx context.Context, badgeID string) (*models.User, error) {
	return u.findOne(ctx, bson.M{"badgeId": badgeID})
}

func (u *userDatabase) find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]models.User, error) {
	cursor, err := u.db.Collection(userName).Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	users := []models.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (u *userDatabase) FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	return u.find(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

func (u *userDatabase) FindByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	return u.find(ctx, bson.M{"role": role}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}

func (u *userDatabase) InsertOne(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := u.db.Collection(userName).InsertOne(ctx, user)
	return err
}

func (u *userDatabase) Approve(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	update := bson.M{"$set": bson.M{"isApproved": true, "updatedAt": time.Now().UTC()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	user := &models.User{}
	err := u.db.Collection(userName).FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(user)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (u *userDatabase) DeleteOne(ctx context.Context, id primitive.ObjectID) (int64, error) {
	res, err := u.db.Collection(userName).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (u *userDatabase) CountByRole(ctx context.Context, role models.Role) (int64, error) {
	return u.db.Collection(userName).CountDocuments(ctx, bson.M{"role": role})
}

func (u *userDatabase) CountByRoleAndApproval(ctx context.Context, role models.Role, approved bool) (int64, error) {
	return u.db.Collection(userName).CountDocuments(ctx, bson.M{"role": role, "isApproved": approved})
}

// EnsureIndexes creates the unique email index and the unique sparse badge index
func (u *userDatabase) EnsureIndexes(ctx context.Context) error {
	_, err := u.db.Collection(userName).CreateIndexes(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "badgeId", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
		{
			Keys: bson.D{{Key: "role", Value: 1}, {Key: "isApproved", Value: 1}},
		},
	})
	return err
}
