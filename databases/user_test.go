package databases_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/efir-portal/efir-api/config"
	"github.com/efir-portal/efir-api/databases"
	"github.com/efir-portal/efir-api/databases/mocks"
	"github.com/efir-portal/efir-api/models"
)

func TestNewUserDatabase(t *testing.T) {
	t.Setenv("DB_URI", "mongodb://127.0.0.1:27017")
	t.Setenv("DB_NAME", "test")
	conf := config.New()

	dbClient, err := databases.NewClient(conf)
	assert.NoError(t, err)

	db := databases.NewDatabase(conf, dbClient)

	userDB := databases.NewUserDatabase(db)

	assert.NotEmpty(t, userDB)
}

func TestUserDatabase_FindByEmail(t *testing.T) {

	// define variables for interfaces
	var dbHelper databases.DatabaseHelper
	var collectionHelper databases.CollectionHelper
	var srHelperErr databases.SingleResultHelper
	var srHelperCorrect databases.SingleResultHelper

	// set interfaces implementation to mocked structures
	dbHelper = &mocks.DatabaseHelper{}
	collectionHelper = &mocks.CollectionHelper{}
	srHelperErr = &mocks.SingleResultHelper{}
	srHelperCorrect = &mocks.SingleResultHelper{}

	srHelperErr.(*mocks.SingleResultHelper).
		On("Decode", mock.Anything).
		Return(mongo.ErrNoDocuments)

	srHelperCorrect.(*mocks.SingleResultHelper).
		On("Decode", mock.Anything).
		Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(*models.User)
		arg.Name = "mocked-user"
		arg.Email = "asha@example.com"
	})

	collectionHelper.(*mocks.CollectionHelper).
		On("FindOne", context.Background(), bson.M{"email": "missing@example.com"}).
		Return(srHelperErr)

	collectionHelper.(*mocks.CollectionHelper).
		On("FindOne", context.Background(), bson.M{"email": "asha@example.com"}).
		Return(srHelperCorrect)

	dbHelper.(*mocks.DatabaseHelper).
		On("Collection", "users").Return(collectionHelper)

	// Create new database with mocked Database interface
	userDba := databases.NewUserDatabase(dbHelper)

	user, err := userDba.FindByEmail(context.Background(), "missing@example.com")

	assert.Nil(t, user)
	assert.ErrorIs(t, err, mongo.ErrNoDocuments)

	user, err = userDba.FindByEmail(context.Background(), "asha@example.com")

	assert.NoError(t, err)
	assert.Equal(t, "mocked-user", user.Name)
}

func TestUserDatabase_FindByBadgeID(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}
	srHelper := &mocks.SingleResultHelper{}

	srHelper.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(*models.User)
		arg.BadgeID = "OFFICER123"
		arg.Role = models.RoleOfficer
	})
	collectionHelper.On("FindOne", mock.Anything, bson.M{"badgeId": "OFFICER123"}).Return(srHelper)
	dbHelper.On("Collection", "users").Return(collectionHelper)

	user, err := databases.NewUserDatabase(dbHelper).FindByBadgeID(context.Background(), "OFFICER123")

	assert.NoError(t, err)
	assert.Equal(t, models.RoleOfficer, user.Role)
	collectionHelper.AssertExpectations(t)
}

func TestUserDatabase_FindByIDs(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}
	cursor := &mocks.CursorHelper{}

	ids := []primitive.ObjectID{primitive.NewObjectID(), primitive.NewObjectID()}

	cursor.On("All", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(1).(*[]models.User)
		*arg = []models.User{{ID: ids[0]}, {ID: ids[1]}}
	})
	cursor.On("Close", mock.Anything).Return(nil)
	collectionHelper.On("Find", mock.Anything, bson.M{"_id": bson.M{"$in": ids}}).Return(cursor, nil)
	dbHelper.On("Collection", "users").Return(collectionHelper)

	userDB := databases.NewUserDatabase(dbHelper)
	users, err := userDB.FindByIDs(context.Background(), ids)

	assert.NoError(t, err)
	assert.Len(t, users, 2)
	cursor.AssertCalled(t, "Close", mock.Anything)

	// an empty id list never reaches the database
	users, err = userDB.FindByIDs(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, users)
	collectionHelper.AssertNumberOfCalls(t, "Find", 1)
}

func TestUserDatabase_FindByRoleError(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}

	collectionHelper.On("Find", mock.Anything, bson.M{"role": models.RoleOfficer}, mock.Anything).
		Return(nil, errors.New("mocked-error"))
	dbHelper.On("Collection", "users").Return(collectionHelper)

	users, err := databases.NewUserDatabase(dbHelper).FindByRole(context.Background(), models.RoleOfficer)

	assert.Nil(t, users)
	assert.EqualError(t, err, "mocked-error")
}

func TestUserDatabase_InsertOne(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}
	insertResult := &mocks.InsertOneResultHelper{}

	collectionHelper.On("InsertOne", mock.Anything, mock.MatchedBy(func(u *models.User) bool {
		return u.Email == "asha@example.com"
	})).Return(insertResult, nil)
	collectionHelper.On("InsertOne", mock.Anything, mock.MatchedBy(func(u *models.User) bool {
		return u.Email == "taken@example.com"
	})).Return(nil, databases.ErrDuplicateKey)
	dbHelper.On("Collection", "users").Return(collectionHelper)

	userDB := databases.NewUserDatabase(dbHelper)

	user := &models.User{Email: "asha@example.com", Role: models.RoleCitizen}
	assert.NoError(t, userDB.InsertOne(context.Background(), user))
	assert.False(t, user.ID.IsZero())
	assert.False(t, user.CreatedAt.IsZero())

	err := userDB.InsertOne(context.Background(), &models.User{Email: "taken@example.com"})
	assert.ErrorIs(t, err, databases.ErrDuplicateKey)
}

func TestUserDatabase_Approve(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}
	found := &mocks.SingleResultHelper{}
	missing := &mocks.SingleResultHelper{}

	known := primitive.NewObjectID()
	unknown := primitive.NewObjectID()

	found.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(*models.User)
		arg.ID = known
		arg.IsApproved = true
	})
	missing.On("Decode", mock.Anything).Return(mongo.ErrNoDocuments)

	collectionHelper.On("FindOneAndUpdate", mock.Anything, bson.M{"_id": known}, mock.Anything, mock.Anything).Return(found)
	collectionHelper.On("FindOneAndUpdate", mock.Anything, bson.M{"_id": unknown}, mock.Anything, mock.Anything).Return(missing)
	dbHelper.On("Collection", "users").Return(collectionHelper)

	userDB := databases.NewUserDatabase(dbHelper)

	user, err := userDB.Approve(context.Background(), known)
	assert.NoError(t, err)
	assert.True(t, user.IsApproved)

	user, err = userDB.Approve(context.Background(), unknown)
	assert.Nil(t, user)
	assert.ErrorIs(t, err, mongo.ErrNoDocuments)
}

func TestUserDatabase_DeleteOne(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}

	id := primitive.NewObjectID()
	collectionHelper.On("DeleteOne", mock.Anything, bson.M{"_id": id}).Return(&mongo.DeleteResult{DeletedCount: 1}, nil)
	dbHelper.On("Collection", "users").Return(collectionHelper)

	n, err := databases.NewUserDatabase(dbHelper).DeleteOne(context.Background(), id)

	assert.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestUserDatabase_Counts(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}

	collectionHelper.On("CountDocuments", mock.Anything, bson.M{"role": models.RoleCitizen}).Return(int64(7), nil)
	collectionHelper.On("CountDocuments", mock.Anything, bson.M{"role": models.RoleOfficer, "isApproved": false}).Return(int64(2), nil)
	dbHelper.On("Collection", "users").Return(collectionHelper)

	userDB := databases.NewUserDatabase(dbHelper)

	citizens, err := userDB.CountByRole(context.Background(), models.RoleCitizen)
	assert.NoError(t, err)
	assert.Equal(t, int64(7), citizens)

	pending, err := userDB.CountByRoleAndApproval(context.Background(), models.RoleOfficer, false)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), pending)
}

func TestUserDatabase_EnsureIndexes(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}

	collectionHelper.On("CreateIndexes", mock.Anything, mock.MatchedBy(func(m []mongo.IndexModel) bool {
		return len(m) == 3 && *m[0].Options.Unique && *m[1].Options.Sparse
	})).Return([]string{"email_1", "badgeId_1", "role_1_isApproved_1"}, nil)
	dbHelper.On("Collection", "users").Return(collectionHelper)

	assert.NoError(t, databases.NewUserDatabase(dbHelper).EnsureIndexes(context.Background()))
	collectionHelper.AssertExpectations(t)
}
