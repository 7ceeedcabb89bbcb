package databases

// go generate: mockery --name FirDatabase

import (
	"context"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/efir-portal/efir-api/models"
)

const firName = "firs"

// FirDatabase contains the methods to use with the fir database
type FirDatabase interface {
	InsertOne(ctx context.Context, fir *models.Fir) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Fir, error)
	FindByTrackingID(ctx context.Context, trackingID string) (*models.Fir, error)
	Find(ctx context.Context, filter models.FirFilter) ([]models.Fir, error)
	UpdateStatus(ctx context.Context, id primitive.ObjectID, from *models.FirStatus, to models.FirStatus, officer primitive.ObjectID) (*models.Fir, error)
	PushInvestigationLog(ctx context.Context, id primitive.ObjectID, log models.InvestigationLog) error
	PushMessage(ctx context.Context, id primitive.ObjectID, msg models.Message) error
	CountDocuments(ctx context.Context, filter models.FirFilter) (int64, error)
	CountBy(ctx context.Context, field string) ([]models.GroupCount, error)
	FindLocations(ctx context.Context) ([]models.FirLocation, error)
	EnsureIndexes(ctx context.Context) error
}

type firDatabase struct {
	db DatabaseHelper
}

// NewFirDatabase initializes a new instance of fir database with the provided db connection
func NewFirDatabase(db DatabaseHelper) FirDatabase {
	return &firDatabase{
		db: db,
	}
}

// FilterBSON translates a FirFilter into a mongo query document
func FilterBSON(f models.FirFilter) bson.M {
	filter := bson.M{}
	if f.City != "" {
		filter["city"] = primitive.Regex{Pattern: regexp.QuoteMeta(f.City), Options: "i"}
	}
	if f.State != "" {
		filter["state"] = primitive.Regex{Pattern: regexp.QuoteMeta(f.State), Options: "i"}
	}
	if f.IncidentType != "" {
		filter["incidentType"] = f.IncidentType
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.Complainant != nil {
		filter["complainant"] = *f.Complainant
	}
	if f.CreatedBefore != nil {
		filter["createdAt"] = bson.M{"$lt": *f.CreatedBefore}
	}
	return filter
}

func (f *firDatabase) InsertOne(ctx context.Context, fir *models.Fir) error {
	if fir.ID.IsZero() {
		fir.ID = primitive.NewObjectID()
	}
	if fir.Evidence == nil {
		fir.Evidence = []string{}
	}
	if fir.InvestigationLogs == nil {
		fir.InvestigationLogs = []models.InvestigationLog{}
	}
	if fir.Messages == nil {
		fir.Messages = []models.Message{}
	}
	_, err := f.db.Collection(firName).InsertOne(ctx, fir)
	return err
}

func (f *firDatabase) findOne(ctx context.Context, filter bson.M) (*models.Fir, error) {
	fir := &models.Fir{}
	err := f.db.Collection(firName).FindOne(ctx, filter).Decode(fir)
	if err != nil {
		return nil, err
	}
	return fir, nil
}

func (f *firDatabase) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Fir, error) {
	return f.findOne(ctx, bson.M{"_id": id})
}

func (f *firDatabase) FindByTrackingID(ctx context.Context, trackingID string) (*models.Fir, error) {
	return f.findOne(ctx, bson.M{"anonymousRefId": trackingID, "isAnonymous": true})
}

func (f *firDatabase) Find(ctx context.Context, filter models.FirFilter) ([]models.Fir, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := f.db.Collection(firName).Find(ctx, FilterBSON(filter), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	firs := []models.Fir{}
	if err := cursor.All(ctx, &firs); err != nil {
		return nil, err
	}
	return firs, nil
}

// UpdateStatus sets the status and stamps the acting officer. When from is
// non-nil the update only applies if the stored status still equals *from.
func (f *firDatabase) UpdateStatus(ctx context.Context, id primitive.ObjectID, from *models.FirStatus, to models.FirStatus, officer primitive.ObjectID) (*models.Fir, error) {
	filter := bson.M{"_id": id}
	if from != nil {
		filter["status"] = *from
	}
	update := bson.M{"$set": bson.M{
		"status":          to,
		"assignedOfficer": officer,
		"updatedAt":       time.Now().UTC(),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	fir := &models.Fir{}
	err := f.db.Collection(firName).FindOneAndUpdate(ctx, filter, update, opts).Decode(fir)
	if err != nil {
		return nil, err
	}
	return fir, nil
}

func (f *firDatabase) push(ctx context.Context, id primitive.ObjectID, field string, value interface{}) error {
	update := bson.M{
		"$push": bson.M{field: value},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}
	res, err := f.db.Collection(firName).UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (f *firDatabase) PushInvestigationLog(ctx context.Context, id primitive.ObjectID, log models.InvestigationLog) error {
	return f.push(ctx, id, "investigationLogs", log)
}

func (f *firDatabase) PushMessage(ctx context.Context, id primitive.ObjectID, msg models.Message) error {
	return f.push(ctx, id, "messages", msg)
}

func (f *firDatabase) CountDocuments(ctx context.Context, filter models.FirFilter) (int64, error) {
	return f.db.Collection(firName).CountDocuments(ctx, FilterBSON(filter))
}

// CountBy groups every FIR by the given field, largest bucket first
func (f *firDatabase) CountBy(ctx context.Context, field string) ([]models.GroupCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$" + field, "count": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
	}
	cursor, err := f.db.Collection(firName).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	counts := []models.GroupCount{}
	if err := cursor.All(ctx, &counts); err != nil {
		return nil, err
	}
	return counts, nil
}

func (f *firDatabase) FindLocations(ctx context.Context) ([]models.FirLocation, error) {
	filter := bson.M{
		"latitude":  bson.M{"$ne": nil},
		"longitude": bson.M{"$ne": nil},
	}
	opts := options.Find().SetProjection(bson.M{
		"latitude":     1,
		"longitude":    1,
		"incidentType": 1,
		"description":  1,
	})
	cursor, err := f.db.Collection(firName).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var firs []models.Fir
	if err := cursor.All(ctx, &firs); err != nil {
		return nil, err
	}

	locations := make([]models.FirLocation, 0, len(firs))
	for _, fir := range firs {
		if fir.Latitude == nil || fir.Longitude == nil {
			continue
		}
		locations = append(locations, models.FirLocation{
			Latitude:     *fir.Latitude,
			Longitude:    *fir.Longitude,
			IncidentType: fir.IncidentType,
			Description:  fir.Description,
		})
	}
	return locations, nil
}

// EnsureIndexes creates the tracking code index and the listing indexes
func (f *firDatabase) EnsureIndexes(ctx context.Context) error {
	_, err := f.db.Collection(firName).CreateIndexes(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "anonymousRefId", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
		{
			Keys: bson.D{{Key: "complainant", Value: 1}, {Key: "createdAt", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}},
		},
	})
	return err
}
