package testhelpers

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/efir-portal/efir-api/api/mailer"
	"github.com/efir-portal/efir-api/databases"
	"github.com/efir-portal/efir-api/models"
)

// UserStore is an in-memory databases.UserDatabase with the same unique
// constraints as the mongo indexes
type UserStore struct {
	mu    sync.Mutex
	users []models.User
}

var _ databases.UserDatabase = &UserStore{}

// NewUserStore returns an empty UserStore
func NewUserStore() *UserStore {
	return &UserStore{}
}

func (s *UserStore) find(match func(models.User) bool) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if match(u) {
			found := u
			return &found, nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

// FindByID implements databases.UserDatabase
func (s *UserStore) FindByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	return s.find(func(u models.User) bool { return u.ID == id })
}

// FindByEmail implements databases.UserDatabase
func (s *UserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	return s.find(func(u models.User) bool { return u.Email == email })
}

// FindByBadgeID implements databases.UserDatabase
func (s *UserStore) FindByBadgeID(_ context.Context, badgeID string) (*models.User, error) {
	return s.find(func(u models.User) bool { return u.BadgeID != "" && u.BadgeID == badgeID })
}

// FindByIDs implements databases.UserDatabase
func (s *UserStore) FindByIDs(_ context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.User{}
	for _, u := range s.users {
		for _, id := range ids {
			if u.ID == id {
				out = append(out, u)
				break
			}
		}
	}
	return out, nil
}

// FindByRole implements databases.UserDatabase
func (s *UserStore) FindByRole(_ context.Context, role models.Role) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.User{}
	for i := len(s.users) - 1; i >= 0; i-- {
		if s.users[i].Role == role {
			out = append(out, s.users[i])
		}
	}
	return out, nil
}

// InsertOne implements databases.UserDatabase
func (s *UserStore) InsertOne(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == user.Email || (user.BadgeID != "" && u.BadgeID == user.BadgeID) {
			return databases.ErrDuplicateKey
		}
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	s.users = append(s.users, *user)
	return nil
}

// Approve implements databases.UserDatabase
func (s *UserStore) Approve(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].ID == id {
			s.users[i].IsApproved = true
			s.users[i].UpdatedAt = time.Now().UTC()
			approved := s.users[i]
			return &approved, nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

// DeleteOne implements databases.UserDatabase
func (s *UserStore) DeleteOne(_ context.Context, id primitive.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].ID == id {
			s.users = append(s.users[:i], s.users[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

// CountByRole implements databases.UserDatabase
func (s *UserStore) CountByRole(_ context.Context, role models.Role) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, u := range s.users {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}

// CountByRoleAndApproval implements databases.UserDatabase
func (s *UserStore) CountByRoleAndApproval(_ context.Context, role models.Role, approved bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, u := range s.users {
		if u.Role == role && u.IsApproved == approved {
			n++
		}
	}
	return n, nil
}

// EnsureIndexes implements databases.UserDatabase
func (s *UserStore) EnsureIndexes(context.Context) error { return nil }

// FirStore is an in-memory databases.FirDatabase
type FirStore struct {
	mu   sync.Mutex
	firs []models.Fir
}

var _ databases.FirDatabase = &FirStore{}

// NewFirStore returns an empty FirStore
func NewFirStore() *FirStore {
	return &FirStore{}
}

// Len returns the number of stored FIRs
func (s *FirStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.firs)
}

// InsertOne implements databases.FirDatabase
func (s *FirStore) InsertOne(_ context.Context, fir *models.Fir) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fir.TrackingID != "" {
		for _, f := range s.firs {
			if f.TrackingID == fir.TrackingID {
				return databases.ErrDuplicateKey
			}
		}
	}
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
	s.firs = append(s.firs, copyFir(*fir))
	return nil
}

func (s *FirStore) index(id primitive.ObjectID) int {
	for i := range s.firs {
		if s.firs[i].ID == id {
			return i
		}
	}
	return -1
}

// FindByID implements databases.FirDatabase
func (s *FirStore) FindByID(_ context.Context, id primitive.ObjectID) (*models.Fir, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return nil, mongo.ErrNoDocuments
	}
	fir := copyFir(s.firs[i])
	return &fir, nil
}

// FindByTrackingID implements databases.FirDatabase
func (s *FirStore) FindByTrackingID(_ context.Context, trackingID string) (*models.Fir, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.firs {
		if f.IsAnonymous && f.TrackingID == trackingID {
			fir := copyFir(f)
			return &fir, nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

// Find implements databases.FirDatabase, newest first
func (s *FirStore) Find(_ context.Context, filter models.FirFilter) ([]models.Fir, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Fir{}
	for i := len(s.firs) - 1; i >= 0; i-- {
		if filter.Matches(s.firs[i]) {
			out = append(out, copyFir(s.firs[i]))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateStatus implements databases.FirDatabase
func (s *FirStore) UpdateStatus(_ context.Context, id primitive.ObjectID, from *models.FirStatus, to models.FirStatus, officer primitive.ObjectID) (*models.Fir, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 || (from != nil && s.firs[i].Status != *from) {
		return nil, mongo.ErrNoDocuments
	}
	s.firs[i].Status = to
	s.firs[i].AssignedOfficer = &officer
	s.firs[i].UpdatedAt = time.Now().UTC()
	fir := copyFir(s.firs[i])
	return &fir, nil
}

// PushInvestigationLog implements databases.FirDatabase
func (s *FirStore) PushInvestigationLog(_ context.Context, id primitive.ObjectID, log models.InvestigationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return mongo.ErrNoDocuments
	}
	s.firs[i].InvestigationLogs = append(s.firs[i].InvestigationLogs, log)
	s.firs[i].UpdatedAt = time.Now().UTC()
	return nil
}

// PushMessage implements databases.FirDatabase
func (s *FirStore) PushMessage(_ context.Context, id primitive.ObjectID, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return mongo.ErrNoDocuments
	}
	s.firs[i].Messages = append(s.firs[i].Messages, msg)
	s.firs[i].UpdatedAt = time.Now().UTC()
	return nil
}

// CountDocuments implements databases.FirDatabase
func (s *FirStore) CountDocuments(_ context.Context, filter models.FirFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, f := range s.firs {
		if filter.Matches(f) {
			n++
		}
	}
	return n, nil
}

// CountBy implements databases.FirDatabase for the city, state, incidentType and status fields
func (s *FirStore) CountBy(_ context.Context, field string) ([]models.GroupCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[string]int64{}
	for _, f := range s.firs {
		var key string
		switch field {
		case "city":
			key = f.City
		case "state":
			key = f.State
		case "incidentType":
			key = string(f.IncidentType)
		case "status":
			key = string(f.Status)
		}
		counts[key]++
	}
	out := make([]models.GroupCount, 0, len(counts))
	for k, v := range counts {
		out = append(out, models.GroupCount{ID: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// FindLocations implements databases.FirDatabase
func (s *FirStore) FindLocations(context.Context) ([]models.FirLocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.FirLocation{}
	for _, f := range s.firs {
		if f.Latitude == nil || f.Longitude == nil {
			continue
		}
		out = append(out, models.FirLocation{
			Latitude:     *f.Latitude,
			Longitude:    *f.Longitude,
			IncidentType: f.IncidentType,
			Description:  f.Description,
		})
	}
	return out, nil
}

// EnsureIndexes implements databases.FirDatabase
func (s *FirStore) EnsureIndexes(context.Context) error { return nil }

func copyFir(f models.Fir) models.Fir {
	f.Evidence = append([]string{}, f.Evidence...)
	f.InvestigationLogs = append([]models.InvestigationLog{}, f.InvestigationLogs...)
	f.Messages = append([]models.Message{}, f.Messages...)
	return f
}

// Event is a single broadcast captured by Recorder
type Event struct {
	Room    string
	Name    string
	Payload interface{}
}

// Recorder is a broadcaster that keeps every published event
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish records a broadcast to every subscriber
func (r *Recorder) Publish(event string, payload interface{}) {
	r.PublishTo("", event, payload)
}

// PublishTo records a broadcast scoped to room
func (r *Recorder) PublishTo(room, event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Room: room, Name: event, Payload: payload})
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event{}, r.events...)
}

// Outbox is a mailer that keeps every sent message and can be told to fail
type Outbox struct {
	mu   sync.Mutex
	sent []mailer.Message
	Err  error
}

// Send implements mailer.Mailer
func (o *Outbox) Send(_ context.Context, msg mailer.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return o.Err
}

// Sent returns a copy of the messages passed to Send
func (o *Outbox) Sent() []mailer.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]mailer.Message{}, o.sent...)
}
