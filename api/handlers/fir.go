package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/efir-portal/efir-api/api"
	"github.com/efir-portal/efir-api/cases"
	"github.com/efir-portal/efir-api/config"
	"github.com/efir-portal/efir-api/models"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Fir exposes the case lifecycle over HTTP
type Fir struct {
	Engine         *cases.Engine
	MaxUploadBytes int64
}

type firResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Fir     interface{} `json:"fir"`
}

type anonymousResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	TrackingID string `json:"trackingId"`
}

type firListResponse struct {
	Success bool        `json:"success"`
	Firs    interface{} `json:"firs"`
}

type logResponse struct {
	Success bool                     `json:"success"`
	Message string                   `json:"message"`
	Log     *models.InvestigationLog `json:"log"`
}

type messageResponse struct {
	Success     bool            `json:"success"`
	Message     string          `json:"message"`
	MessageData *models.Message `json:"messageData"`
}

type trackRequest struct {
	TrackingID string `json:"trackingId"`
}

type statusRequest struct {
	Status models.FirStatus `json:"status"`
}

type logRequest struct {
	Entry string `json:"entry"`
}

type chatRequest struct {
	Message string `json:"message"`
}

// CreateHandler files a FIR for the logged in citizen
func (f Fir) CreateHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := api.UserFromContext(r.Context())
	if !ok {
		config.ErrorStatus("Unauthorized request", http.StatusUnauthorized, w, nil)
		return
	}
	s, err := f.submission(w, r)
	if err != nil {
		config.ErrorStatus(err.Error(), http.StatusBadRequest, w, nil)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()
	fir, err := f.Engine.Submit(ctx, user, s)
	if err != nil {
		caseError(w, "failed to submit FIR", err)
		return
	}
	config.WriteJSON(w, http.StatusCreated, firResponse{Success: true, Message: "FIR submitted successfully", Fir: fir})
}

// CreateAnonymousHandler files a FIR without a complainant and returns its
// tracking code
func (f Fir) CreateAnonymousHandler(w http.ResponseWriter, r *http.Request) {
	s, err := f.submission(w, r)
	if err != nil {
		config.ErrorStatus(err.Error(), http.StatusBadRequest, w, nil)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()
	fir, err := f.Engine.SubmitAnonymous(ctx, s)
	if err != nil {
		caseError(w, "failed to submit anonymous report", err)
		return
	}
	config.WriteJSON(w, http.StatusCreated, anonymousResponse{
		Success:    true,
		Message:    "Anonymous Report submitted successfully",
		TrackingID: fir.TrackingID,
	})
}

// MyFirsHandler lists the FIRs filed by the logged in citizen
func (f Fir) MyFirsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := api.UserFromContext(r.Context())
	if !ok {
		config.ErrorStatus("Unauthorized request", http.StatusUnauthorized, w, nil)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()
	firs, err := f.Engine.ListOwn(ctx, user)
	if err != nil {
		caseError(w, "failed to get FIRs", err)
		return
	}
	if firs == nil {
		firs = []models.Fir{}
	}
	config.WriteJSON(w, http.StatusOK, firListResponse{Success: true, Firs: firs})
}

// TrackHandler returns the anonymous FIR behind a tracking code
func (f Fir) TrackHandler(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()
	fir, err := f.Engine.Track(ctx, req.TrackingID)
	if errors.Is(err, cases.ErrNotFound) {
		config.ErrorStatus("Invalid Tracking ID", http.StatusNotFound, w, nil)
		return
	}
	if err != nil {
		caseError(w, "failed to track FIR", err)
		return
	}
	config.WriteJSON(w, http.StatusOK, firResponse{Success: true, Fir: fir})
}

// AllHandler lists every FIR for staff, filtered by the city, state, type
// and status query parameters
func (f Fir) AllHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()
	views, err := f.Engine.ListAll(ctx, filterFromQuery(r))
	if err != nil {
		caseError(w, "failed to get FIRs", err)
		return
	}
	config.WriteJSON(w, http.StatusOK, firListResponse{Success: true, Firs: views})
}

// ExportHandler streams the filtered FIR list as an xlsx workbook
func (f Fir) ExportHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()
	views, err := f.Engine.ListAll(ctx, filterFromQuery(r))
	if err != nil {
		caseError(w, "failed to get FIRs", err)
		return
	}

	b, err := firWorkbook(views)
	if err != nil {
		config.ErrorStatus("failed to build export", http.StatusInternalServerError, w, err)
		return
	}
	name := fmt.Sprintf("firs-%s.xlsx", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// AnalyticsHandler returns the dashboard statistics
func (f Fir) AnalyticsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()
	stats, err := f.Engine.Analytics(ctx)
	if err != nil {
		caseError(w, "failed to compute analytics", err)
		return
	}
	config.WriteJSON(w, http.StatusOK, stats)
}

// GetHandler returns a single FIR to one of its participants
func (f Fir) GetHandler(w http.ResponseWriter, r *http.Request) {
	user, id, ok := callerAndFir(w, r)
	if !ok {
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()
	view, err := f.Engine.Get(ctx, user, id)
	if err != nil {
		caseError(w, "failed to get FIR", err)
		return
	}
	config.WriteJSON(w, http.StatusOK, firResponse{Success: true, Fir: view})
}

// UpdateStatusHandler sets the status of a FIR and assigns it to the caller
func (f Fir) UpdateStatusHandler(w http.ResponseWriter, r *http.Request) {
	user, id, ok := callerAndFir(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()
	view, err := f.Engine.UpdateStatus(ctx, user, id, req.Status)
	if err != nil {
		caseError(w, "failed to update FIR", err)
		return
	}
	config.WriteJSON(w, http.StatusOK, firResponse{Success: true, Message: "FIR status updated", Fir: view})
}

// AddLogHandler appends an investigation log entry
func (f Fir) AddLogHandler(w http.ResponseWriter, r *http.Request) {
	user, id, ok := callerAndFir(w, r)
	if !ok {
		return
	}
	var req logRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()
	log, err := f.Engine.AppendLog(ctx, user, id, req.Entry)
	if err != nil {
		caseError(w, "failed to add log", err)
		return
	}
	config.WriteJSON(w, http.StatusOK, logResponse{Success: true, Message: "Log added", Log: log})
}

// AddMessageHandler posts to the FIR message thread
func (f Fir) AddMessageHandler(w http.ResponseWriter, r *http.Request) {
	user, id, ok := callerAndFir(w, r)
	if !ok {
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()
	msg, err := f.Engine.AppendMessage(ctx, user, id, req.Message)
	if err != nil {
		caseError(w, "failed to send message", err)
		return
	}
	config.WriteJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Message sent", MessageData: msg})
}

// submission reads a FIR from a multipart form or a JSON body
func (f Fir) submission(w http.ResponseWriter, r *http.Request) (cases.Submission, error) {
	var s cases.Submission
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
			return s, errors.New("failed to decode request")
		}
		return s, nil
	}

	if f.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, f.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return s, fmt.Errorf("failed to parse form: %v", err)
	}

	s = cases.Submission{
		IncidentType:   models.IncidentType(r.FormValue("incidentType")),
		Description:    r.FormValue("description"),
		AccusedName:    r.FormValue("accusedName"),
		DateOfIncident: r.FormValue("dateOfIncident"),
		TimeOfIncident: r.FormValue("timeOfIncident"),
		Address:        r.FormValue("address"),
		City:           r.FormValue("city"),
		State:          r.FormValue("state"),
		Pincode:        r.FormValue("pincode"),
		Files:          r.MultipartForm.File["evidence"],
	}
	var err error
	if s.Latitude, err = formFloat(r, "latitude"); err != nil {
		return s, err
	}
	if s.Longitude, err = formFloat(r, "longitude"); err != nil {
		return s, err
	}
	return s, nil
}

func formFloat(r *http.Request, key string) (*float64, error) {
	raw := strings.TrimSpace(r.FormValue(key))
	if raw == "" || raw == "null" || raw == "undefined" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%s must be a number", key)
	}
	return &v, nil
}

func filterFromQuery(r *http.Request) models.FirFilter {
	q := r.URL.Query()
	return models.FirFilter{
		City:         strings.TrimSpace(q.Get("city")),
		State:        strings.TrimSpace(q.Get("state")),
		IncidentType: models.IncidentType(q.Get("type")),
		Status:       models.FirStatus(q.Get("status")),
	}
}

// callerAndFir resolves the session user and the {id} path variable. It
// writes the error response itself when either is missing.
func callerAndFir(w http.ResponseWriter, r *http.Request) (*models.User, primitive.ObjectID, bool) {
	user, ok := api.UserFromContext(r.Context())
	if !ok {
		config.ErrorStatus("Unauthorized request", http.StatusUnauthorized, w, nil)
		return nil, primitive.NilObjectID, false
	}
	id, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		config.ErrorStatus("FIR not found", http.StatusNotFound, w, nil)
		return nil, primitive.NilObjectID, false
	}
	return user, id, true
}

// caseError maps engine errors onto the response envelope
func caseError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, cases.ErrNotFound):
		config.ErrorStatus("FIR not found", http.StatusNotFound, w, nil)
	case errors.Is(err, cases.ErrForbidden):
		config.ErrorStatus("Access denied", http.StatusForbidden, w, err)
	case errors.Is(err, cases.ErrInvalid), errors.Is(err, cases.ErrTooManyFiles):
		config.ErrorStatus(err.Error(), http.StatusBadRequest, w, nil)
	case errors.Is(err, cases.ErrTransition), errors.Is(err, cases.ErrConflict), errors.Is(err, cases.ErrTrackingCollision):
		config.ErrorStatus(err.Error(), http.StatusConflict, w, nil)
	default:
		config.ErrorStatus(message, http.StatusInternalServerError, w, err)
	}
}
