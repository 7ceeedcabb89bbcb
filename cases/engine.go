package cases

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/efir-portal/efir-api/api/evidence"
	"github.com/efir-portal/efir-api/api/mailer"
	"github.com/efir-portal/efir-api/api/realtime"
	"github.com/efir-portal/efir-api/databases"
	"github.com/efir-portal/efir-api/models"
)

// Errors returned by the engine. Handlers map them to status codes.
var (
	ErrNotFound     = errors.New("FIR not found")
	ErrForbidden    = errors.New("you are not a participant of this FIR")
	ErrInvalid      = errors.New("invalid request")
	ErrTooManyFiles = errors.New("too many evidence files")
	ErrTransition   = errors.New("status transition not allowed")
	ErrConflict     = errors.New("FIR was modified concurrently")

	ErrTrackingCollision = errors.New("tracking code already in use, please retry")
)

const (
	mailTimeout    = 30 * time.Second
	cleanupTimeout = 30 * time.Second
)

// Options tune the engine's policies
type Options struct {
	// Strict enforces the status transition table
	Strict bool
	// MaxEvidence caps the number of files per submission
	MaxEvidence int
}

// Engine runs every FIR operation. It owns the ordering of store writes,
// broadcasts and notification mail.
type Engine struct {
	firs     databases.FirDatabase
	users    databases.UserDatabase
	relay    realtime.Broadcaster
	mail     mailer.Mailer
	evidence evidence.Store
	opts     Options

	now   func() time.Time
	codes func() (string, error)

	mailWG sync.WaitGroup
}

// New wires an Engine. relay and mail may be nil.
func New(firs databases.FirDatabase, users databases.UserDatabase, relay realtime.Broadcaster, mail mailer.Mailer, store evidence.Store, opts Options) *Engine {
	if relay == nil {
		relay = realtime.Nop{}
	}
	if mail == nil {
		mail = mailer.LogMailer{}
	}
	if opts.MaxEvidence <= 0 {
		opts.MaxEvidence = 5
	}
	return &Engine{
		firs:     firs,
		users:    users,
		relay:    relay,
		mail:     mail,
		evidence: store,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		codes:    TrackingCode,
	}
}

// Wait blocks until every notification mail started so far has been sent
func (e *Engine) Wait() {
	e.mailWG.Wait()
}

// Submission holds the fields of a new FIR
type Submission struct {
	IncidentType   models.IncidentType `json:"incidentType" validate:"required,incident"`
	Description    string              `json:"description" validate:"required"`
	AccusedName    string              `json:"accusedName"`
	DateOfIncident string              `json:"dateOfIncident" validate:"required"`
	TimeOfIncident string              `json:"timeOfIncident"`
	Address        string              `json:"address" validate:"required"`
	City           string              `json:"city" validate:"required"`
	State          string              `json:"state" validate:"required"`
	Pincode        string              `json:"pincode" validate:"required"`
	Latitude       *float64            `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude      *float64            `json:"longitude" validate:"omitempty,gte=-180,lte=180"`

	Files []*multipart.FileHeader `json:"-" validate:"-"`
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04"}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: dateOfIncident is not a valid date", ErrInvalid)
}

// newFir validates s, stores its evidence and returns the unsaved FIR
func (e *Engine) newFir(ctx context.Context, s Submission) (*models.Fir, error) {
	if len(s.Files) > e.opts.MaxEvidence {
		return nil, fmt.Errorf("%w: at most %d files are allowed", ErrTooManyFiles, e.opts.MaxEvidence)
	}

	s.Description = strings.TrimSpace(s.Description)
	s.Address = strings.TrimSpace(s.Address)
	s.City = strings.TrimSpace(s.City)
	s.State = strings.TrimSpace(s.State)
	s.Pincode = strings.TrimSpace(s.Pincode)
	if err := models.Validate(s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	date, err := parseDate(strings.TrimSpace(s.DateOfIncident))
	if err != nil {
		return nil, err
	}

	if len(s.Files) > 0 && e.evidence == nil {
		return nil, errors.New("evidence storage is not configured")
	}
	paths := make([]string, 0, len(s.Files))
	for _, f := range s.Files {
		path, err := e.evidence.Save(ctx, f)
		if err != nil {
			e.discardEvidence(ctx, paths)
			return nil, err
		}
		paths = append(paths, path)
	}

	now := e.now()
	return &models.Fir{
		IncidentType:      s.IncidentType,
		Description:       s.Description,
		AccusedName:       strings.TrimSpace(s.AccusedName),
		Evidence:          paths,
		DateOfIncident:    date,
		TimeOfIncident:    strings.TrimSpace(s.TimeOfIncident),
		Address:           s.Address,
		City:              s.City,
		State:             s.State,
		Pincode:           s.Pincode,
		Latitude:          s.Latitude,
		Longitude:         s.Longitude,
		Status:            models.StatusPending,
		InvestigationLogs: []models.InvestigationLog{},
		Messages:          []models.Message{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// Submit files a FIR on behalf of caller
func (e *Engine) Submit(ctx context.Context, caller *models.User, s Submission) (*models.Fir, error) {
	fir, err := e.newFir(ctx, s)
	if err != nil {
		return nil, err
	}
	complainant := caller.ID
	fir.Complainant = &complainant

	if err := e.firs.InsertOne(ctx, fir); err != nil {
		e.discardEvidence(ctx, fir.Evidence)
		return nil, err
	}

	e.relay.Publish(realtime.EventFirCreated, models.FirView{Fir: *fir, Complainant: caller.Complainant()})
	return fir, nil
}

// SubmitAnonymous files a FIR without a complainant. The returned FIR carries
// the tracking code.
func (e *Engine) SubmitAnonymous(ctx context.Context, s Submission) (*models.Fir, error) {
	fir, err := e.newFir(ctx, s)
	if err != nil {
		return nil, err
	}
	code, err := e.codes()
	if err != nil {
		e.discardEvidence(ctx, fir.Evidence)
		return nil, err
	}
	fir.IsAnonymous = true
	fir.TrackingID = code

	if err := e.firs.InsertOne(ctx, fir); err != nil {
		e.discardEvidence(ctx, fir.Evidence)
		if errors.Is(err, databases.ErrDuplicateKey) {
			return nil, ErrTrackingCollision
		}
		return nil, err
	}

	e.relay.Publish(realtime.EventFirCreated, fir)
	return fir, nil
}

// ListOwn returns the FIRs filed by caller, newest first
func (e *Engine) ListOwn(ctx context.Context, caller *models.User) ([]models.Fir, error) {
	id := caller.ID
	return e.firs.Find(ctx, models.FirFilter{Complainant: &id})
}

// Track looks up an anonymous FIR by its tracking code
func (e *Engine) Track(ctx context.Context, code string) (*models.Fir, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, fmt.Errorf("%w: trackingId is required", ErrInvalid)
	}
	fir, err := e.firs.FindByTrackingID(ctx, code)
	if err != nil {
		return nil, notFound(err)
	}
	return fir, nil
}

// ListAll returns the FIRs matching filter with their complainants resolved
func (e *Engine) ListAll(ctx context.Context, filter models.FirFilter) ([]models.FirView, error) {
	firs, err := e.firs.Find(ctx, filter)
	if err != nil {
		return nil, err
	}

	seen := map[primitive.ObjectID]bool{}
	ids := []primitive.ObjectID{}
	for _, f := range firs {
		if f.Complainant != nil && !seen[*f.Complainant] {
			seen[*f.Complainant] = true
			ids = append(ids, *f.Complainant)
		}
	}
	users, err := e.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[primitive.ObjectID]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	views := make([]models.FirView, len(firs))
	for i, f := range firs {
		views[i] = models.FirView{Fir: f}
		if f.Complainant != nil {
			if u, ok := byID[*f.Complainant]; ok {
				views[i].Complainant = u.Complainant()
			}
		}
	}
	return views, nil
}

// Get returns a single FIR to one of its participants
func (e *Engine) Get(ctx context.Context, caller *models.User, id primitive.ObjectID) (*models.FirView, error) {
	fir, err := e.firs.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	if !CanAccess(caller, fir) {
		return nil, ErrForbidden
	}
	view, _ := e.view(ctx, fir)
	return view, nil
}

// UpdateStatus moves a FIR to status and assigns it to caller. The
// complainant is mailed in the background.
func (e *Engine) UpdateStatus(ctx context.Context, caller *models.User, id primitive.ObjectID, status models.FirStatus) (*models.FirView, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalid, status)
	}

	current, err := e.firs.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}

	var from *models.FirStatus
	if e.opts.Strict {
		if !current.Status.CanTransition(status) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrTransition, current.Status, status)
		}
		from = &current.Status
	}

	updated, err := e.firs.UpdateStatus(ctx, id, from, status, caller.ID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) && from != nil {
			return nil, ErrConflict
		}
		return nil, notFound(err)
	}

	view, complainant := e.view(ctx, updated)
	e.relay.Publish(realtime.EventFirUpdated, view)

	if complainant != nil && complainant.Email != "" {
		e.Notify(mailer.StatusUpdate(*updated, *complainant, caller))
	}
	return view, nil
}

// AppendLog adds a case diary entry signed by caller
func (e *Engine) AppendLog(ctx context.Context, caller *models.User, id primitive.ObjectID, entry string) (*models.InvestigationLog, error) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return nil, fmt.Errorf("%w: entry is required", ErrInvalid)
	}
	log := models.InvestigationLog{
		ID:          primitive.NewObjectID(),
		Entry:       entry,
		OfficerName: caller.Name,
		Timestamp:   e.now(),
	}
	if err := e.firs.PushInvestigationLog(ctx, id, log); err != nil {
		return nil, notFound(err)
	}
	return &log, nil
}

// AppendMessage posts to the FIR thread. Only participants may write.
func (e *Engine) AppendMessage(ctx context.Context, caller *models.User, id primitive.ObjectID, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalid)
	}
	fir, err := e.firs.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	if !CanAccess(caller, fir) {
		return nil, ErrForbidden
	}

	msg := models.Message{
		ID:          primitive.NewObjectID(),
		Sender:      caller.ID,
		SenderModel: "User",
		SenderName:  caller.Name,
		Role:        caller.Role,
		Message:     text,
		Timestamp:   e.now(),
	}
	if err := e.firs.PushMessage(ctx, id, msg); err != nil {
		return nil, notFound(err)
	}

	e.relay.PublishTo(id.Hex(), realtime.EventNewMessage, msg)
	return &msg, nil
}

// Analytics aggregates the dashboard statistics
func (e *Engine) Analytics(ctx context.Context) (*models.Analytics, error) {
	total, err := e.firs.CountDocuments(ctx, models.FirFilter{})
	if err != nil {
		return nil, err
	}
	byStatus, err := e.firs.CountBy(ctx, "status")
	if err != nil {
		return nil, err
	}
	byCity, err := e.firs.CountBy(ctx, "city")
	if err != nil {
		return nil, err
	}
	byType, err := e.firs.CountBy(ctx, "incidentType")
	if err != nil {
		return nil, err
	}
	locations, err := e.firs.FindLocations(ctx)
	if err != nil {
		return nil, err
	}

	var dist models.StatusDistribution
	for _, g := range byStatus {
		switch models.FirStatus(g.ID) {
		case models.StatusPending:
			dist.Pending = g.Count
		case models.StatusAccepted:
			dist.Accepted = g.Count
		case models.StatusInProgress:
			dist.InProgress = g.Count
		case models.StatusResolved:
			dist.Resolved = g.Count
		case models.StatusRejected:
			dist.Rejected = g.Count
		}
	}

	return &models.Analytics{
		Success: true,
		Stats: models.FirStats{
			Total:    total,
			Pending:  dist.Pending,
			Resolved: dist.Resolved,
			ByCity:   byCity,
			ByType:   byType,
		},
		StatusDistribution: dist,
		Locations:          locations,
	}, nil
}

// Stale returns the FIRs still Pending that were filed before cutoff
func (e *Engine) Stale(ctx context.Context, cutoff time.Time) ([]models.Fir, error) {
	return e.firs.Find(ctx, models.FirFilter{Status: models.StatusPending, CreatedBefore: &cutoff})
}

// CanAccess reports whether caller may read and write the FIR thread: its
// complainant, its assigned officer, or any staff member
func CanAccess(caller *models.User, fir *models.Fir) bool {
	if caller == nil {
		return false
	}
	if caller.Role.IsStaff() {
		return true
	}
	if fir.Complainant != nil && *fir.Complainant == caller.ID {
		return true
	}
	return fir.AssignedOfficer != nil && *fir.AssignedOfficer == caller.ID
}

// view resolves the complainant of fir. A deleted complainant yields a nil
// projection.
func (e *Engine) view(ctx context.Context, fir *models.Fir) (*models.FirView, *models.User) {
	view := &models.FirView{Fir: *fir}
	if fir.Complainant == nil {
		return view, nil
	}
	user, err := e.users.FindByID(ctx, *fir.Complainant)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			zap.S().Warnw("failed to resolve complainant", "fir", fir.ID.Hex(), "error", err)
		}
		return view, nil
	}
	view.Complainant = user.Complainant()
	return view, user
}

// Notify sends msg in the background. Failures are logged. Wait blocks until
// it is done.
func (e *Engine) Notify(msg mailer.Message) {
	e.mailWG.Add(1)
	go func() {
		defer e.mailWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), mailTimeout)
		defer cancel()
		if err := e.mail.Send(ctx, msg); err != nil {
			zap.S().Errorw("failed to send email", "to", msg.ToAddress, "subject", msg.Subject, "error", err)
		}
	}()
}

// discardEvidence removes files stored for a submission that was not saved
func (e *Engine) discardEvidence(ctx context.Context, paths []string) {
	if len(paths) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	for _, p := range paths {
		if err := e.evidence.Remove(ctx, p); err != nil {
			zap.S().Errorw("failed to remove orphaned evidence", "path", p, "error", err)
		}
	}
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

// TrackingCode returns 8 upper-case hex characters from 4 random bytes
func TrackingCode() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate tracking code: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}
