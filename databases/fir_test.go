package databases_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/efir-portal/efir-api/databases"
	"github.com/efir-portal/efir-api/databases/mocks"
	"github.com/efir-portal/efir-api/models"
)

func floatPtr(f float64) *float64 { return &f }

func TestFilterBSON(t *testing.T) {
	owner := primitive.NewObjectID()
	cutoff := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, bson.M{}, databases.FilterBSON(models.FirFilter{}))

	got := databases.FilterBSON(models.FirFilter{
		City:          "del",
		State:         "Tamil Nadu (South)",
		IncidentType:  models.IncidentTheft,
		Status:        models.StatusInProgress,
		Complainant:   &owner,
		CreatedBefore: &cutoff,
	})

	assert.Equal(t, primitive.Regex{Pattern: "del", Options: "i"}, got["city"])
	assert.Equal(t, primitive.Regex{Pattern: `Tamil Nadu \(South\)`, Options: "i"}, got["state"])
	assert.Equal(t, models.IncidentTheft, got["incidentType"])
	assert.Equal(t, models.StatusInProgress, got["status"])
	assert.Equal(t, owner, got["complainant"])
	assert.Equal(t, bson.M{"$lt": cutoff}, got["createdAt"])
}

func TestFirDatabase_InsertOne(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}

	collectionHelper.On("InsertOne", mock.Anything, mock.MatchedBy(func(f *models.Fir) bool {
		return f.TrackingID == "DEADBEEF"
	})).Return(nil, databases.ErrDuplicateKey)
	collectionHelper.On("InsertOne", mock.Anything, mock.Anything).Return(&mocks.InsertOneResultHelper{}, nil)
	dbHelper.On("Collection", "firs").Return(collectionHelper)

	firDB := databases.NewFirDatabase(dbHelper)

	fir := &models.Fir{Description: "stolen bicycle"}
	assert.NoError(t, firDB.InsertOne(context.Background(), fir))
	assert.False(t, fir.ID.IsZero())
	assert.NotNil(t, fir.Evidence)
	assert.NotNil(t, fir.InvestigationLogs)
	assert.NotNil(t, fir.Messages)

	err := firDB.InsertOne(context.Background(), &models.Fir{IsAnonymous: true, TrackingID: "DEADBEEF"})
	assert.ErrorIs(t, err, databases.ErrDuplicateKey)
}

func TestFirDatabase_FindByTrackingID(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}
	found := &mocks.SingleResultHelper{}
	missing := &mocks.SingleResultHelper{}

	found.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(*models.Fir)
		arg.TrackingID = "A1B2C3D4"
		arg.IsAnonymous = true
	})
	missing.On("Decode", mock.Anything).Return(mongo.ErrNoDocuments)

	collectionHelper.On("FindOne", mock.Anything, bson.M{"anonymousRefId": "A1B2C3D4", "isAnonymous": true}).Return(found)
	collectionHelper.On("FindOne", mock.Anything, bson.M{"anonymousRefId": "FFFFFFFF", "isAnonymous": true}).Return(missing)
	dbHelper.On("Collection", "firs").Return(collectionHelper)

	firDB := databases.NewFirDatabase(dbHelper)

	fir, err := firDB.FindByTrackingID(context.Background(), "A1B2C3D4")
	assert.NoError(t, err)
	assert.Equal(t, "A1B2C3D4", fir.TrackingID)

	fir, err = firDB.FindByTrackingID(context.Background(), "FFFFFFFF")
	assert.Nil(t, fir)
	assert.ErrorIs(t, err, mongo.ErrNoDocuments)
}

func TestFirDatabase_Find(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}
	cursor := &mocks.CursorHelper{}

	cursor.On("All", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(1).(*[]models.Fir)
		*arg = []models.Fir{{City: "Delhi"}}
	})
	cursor.On("Close", mock.Anything).Return(nil)

	filter := bson.M{"city": primitive.Regex{Pattern: "del", Options: "i"}}
	collectionHelper.On("Find", mock.Anything, filter, mock.Anything).Return(cursor, nil)
	dbHelper.On("Collection", "firs").Return(collectionHelper)

	firs, err := databases.NewFirDatabase(dbHelper).Find(context.Background(), models.FirFilter{City: "del"})

	assert.NoError(t, err)
	assert.Equal(t, []models.Fir{{City: "Delhi"}}, firs)
}

func TestFirDatabase_FindError(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}

	collectionHelper.On("Find", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("mocked-error"))
	dbHelper.On("Collection", "firs").Return(collectionHelper)

	firs, err := databases.NewFirDatabase(dbHelper).Find(context.Background(), models.FirFilter{})

	assert.Nil(t, firs)
	assert.EqualError(t, err, "mocked-error")
}

func TestFirDatabase_UpdateStatus(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}
	updated := &mocks.SingleResultHelper{}
	stale := &mocks.SingleResultHelper{}

	id := primitive.NewObjectID()
	officer := primitive.NewObjectID()
	pending := models.StatusPending

	updated.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(*models.Fir)
		arg.ID = id
		arg.Status = models.StatusInProgress
		arg.AssignedOfficer = &officer
	})
	stale.On("Decode", mock.Anything).Return(mongo.ErrNoDocuments)

	setsStatus := mock.MatchedBy(func(update bson.M) bool {
		set := update["$set"].(bson.M)
		return set["status"] == models.StatusInProgress && set["assignedOfficer"] == officer
	})
	collectionHelper.On("FindOneAndUpdate", mock.Anything, bson.M{"_id": id}, setsStatus, mock.Anything).Return(updated)
	collectionHelper.On("FindOneAndUpdate", mock.Anything, bson.M{"_id": id, "status": models.StatusPending}, setsStatus, mock.Anything).Return(stale)
	dbHelper.On("Collection", "firs").Return(collectionHelper)

	firDB := databases.NewFirDatabase(dbHelper)

	fir, err := firDB.UpdateStatus(context.Background(), id, nil, models.StatusInProgress, officer)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, fir.Status)
	assert.Equal(t, officer, *fir.AssignedOfficer)

	fir, err = firDB.UpdateStatus(context.Background(), id, &pending, models.StatusInProgress, officer)
	assert.Nil(t, fir)
	assert.ErrorIs(t, err, mongo.ErrNoDocuments)
}

func TestFirDatabase_PushInvestigationLog(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}

	known := primitive.NewObjectID()
	unknown := primitive.NewObjectID()
	log := models.InvestigationLog{ID: primitive.NewObjectID(), Entry: "visited the scene", OfficerName: "Insp. Rao"}

	pushesLog := mock.MatchedBy(func(update bson.M) bool {
		push := update["$push"].(bson.M)
		return push["investigationLogs"] == log
	})
	collectionHelper.On("UpdateOne", mock.Anything, bson.M{"_id": known}, pushesLog).Return(&mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil)
	collectionHelper.On("UpdateOne", mock.Anything, bson.M{"_id": unknown}, pushesLog).Return(&mongo.UpdateResult{}, nil)
	dbHelper.On("Collection", "firs").Return(collectionHelper)

	firDB := databases.NewFirDatabase(dbHelper)

	assert.NoError(t, firDB.PushInvestigationLog(context.Background(), known, log))
	assert.ErrorIs(t, firDB.PushInvestigationLog(context.Background(), unknown, log), mongo.ErrNoDocuments)
}

func TestFirDatabase_PushMessage(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}

	id := primitive.NewObjectID()
	msg := models.Message{ID: primitive.NewObjectID(), Message: "any update?", Role: models.RoleCitizen}

	collectionHelper.On("UpdateOne", mock.Anything, bson.M{"_id": id}, mock.Anything).Return(nil, errors.New("mocked-error"))
	dbHelper.On("Collection", "firs").Return(collectionHelper)

	err := databases.NewFirDatabase(dbHelper).PushMessage(context.Background(), id, msg)
	assert.EqualError(t, err, "mocked-error")
}

func TestFirDatabase_CountBy(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}
	cursor := &mocks.CursorHelper{}

	cursor.On("All", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(1).(*[]models.GroupCount)
		*arg = []models.GroupCount{{ID: "Delhi", Count: 3}, {ID: "Mumbai", Count: 1}}
	})
	cursor.On("Close", mock.Anything).Return(nil)
	collectionHelper.On("Aggregate", mock.Anything, mock.MatchedBy(func(p mongo.Pipeline) bool {
		group := p[0][0].Value.(bson.M)
		return p[0][0].Key == "$group" && group["_id"] == "$city"
	})).Return(cursor, nil)
	dbHelper.On("Collection", "firs").Return(collectionHelper)

	counts, err := databases.NewFirDatabase(dbHelper).CountBy(context.Background(), "city")

	assert.NoError(t, err)
	assert.Equal(t, []models.GroupCount{{ID: "Delhi", Count: 3}, {ID: "Mumbai", Count: 1}}, counts)
}

func TestFirDatabase_CountDocuments(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}

	collectionHelper.On("CountDocuments", mock.Anything, bson.M{"status": models.StatusPending}).Return(int64(4), nil)
	dbHelper.On("Collection", "firs").Return(collectionHelper)

	n, err := databases.NewFirDatabase(dbHelper).CountDocuments(context.Background(), models.FirFilter{Status: models.StatusPending})

	assert.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestFirDatabase_FindLocations(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}
	cursor := &mocks.CursorHelper{}

	cursor.On("All", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(1).(*[]models.Fir)
		*arg = []models.Fir{
			{IncidentType: models.IncidentTheft, Description: "phone snatched", Latitude: floatPtr(28.61), Longitude: floatPtr(77.20)},
			{IncidentType: models.IncidentFraud, Description: "no coordinates"},
		}
	})
	cursor.On("Close", mock.Anything).Return(nil)
	collectionHelper.On("Find", mock.Anything, mock.Anything, mock.Anything).Return(cursor, nil)
	dbHelper.On("Collection", "firs").Return(collectionHelper)

	locations, err := databases.NewFirDatabase(dbHelper).FindLocations(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, []models.FirLocation{
		{Latitude: 28.61, Longitude: 77.20, IncidentType: models.IncidentTheft, Description: "phone snatched"},
	}, locations)
}
