package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/efir-portal/efir-api/api"
	"github.com/efir-portal/efir-api/api/mailer"
	"github.com/efir-portal/efir-api/config"
	"github.com/efir-portal/efir-api/databases"
	"github.com/efir-portal/efir-api/models"
)

// Admin represents the admin handler
type Admin struct {
	UDB databases.UserDatabase
	FDB databases.FirDatabase
	// Notify sends mail off the request path. Nil disables approval mail.
	Notify func(mailer.Message)
}

type approveResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Officer *models.User `json:"officer"`
}

// OfficersHandler lists every officer account, approved or not
func (h Admin) OfficersHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	officers, err := h.UDB.FindByRole(ctx, models.RoleOfficer)
	if err != nil {
		config.ErrorStatus("failed to get officers", http.StatusInternalServerError, w, err)
		return
	}
	if officers == nil {
		officers = []models.User{}
	}
	config.WriteJSON(w, http.StatusOK, officers)
}

// ApproveOfficerHandler lets an officer log in
func (h Admin) ApproveOfficerHandler(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		config.ErrorStatus("Officer not found", http.StatusNotFound, w, nil)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()
	officer, err := h.UDB.Approve(ctx, id)
	if errors.Is(err, mongo.ErrNoDocuments) {
		config.ErrorStatus("Officer not found", http.StatusNotFound, w, nil)
		return
	}
	if err != nil {
		config.ErrorStatus("failed to approve officer", http.StatusInternalServerError, w, err)
		return
	}

	zap.S().Infow("officer approved", "id", officer.ID.Hex())
	if h.Notify != nil && officer.Email != "" {
		h.Notify(mailer.OfficerApproved(*officer))
	}
	config.WriteJSON(w, http.StatusOK, approveResponse{Success: true, Message: "Officer approved", Officer: officer})
}

// DeleteUserHandler removes an account. FIRs filed by the user are kept.
func (h Admin) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		config.ErrorStatus("invalid user id", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()
	deleted, err := h.UDB.DeleteOne(ctx, id)
	if err != nil {
		config.ErrorStatus("failed to delete user", http.StatusInternalServerError, w, err)
		return
	}

	zap.S().Infow("user deleted", "id", id.Hex(), "deleted", deleted)
	config.WriteJSON(w, http.StatusOK, models.MessageResponse{Success: true, Message: "User deleted"})
}

// StatsHandler returns the account and FIR counters of the admin dashboard
func (h Admin) StatsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	var stats models.AdminStats
	var err error
	if stats.Citizens, err = h.UDB.CountByRole(ctx, models.RoleCitizen); err != nil {
		config.ErrorStatus("failed to count citizens", http.StatusInternalServerError, w, err)
		return
	}
	if stats.Officers, err = h.UDB.CountByRole(ctx, models.RoleOfficer); err != nil {
		config.ErrorStatus("failed to count officers", http.StatusInternalServerError, w, err)
		return
	}
	if stats.PendingOfficers, err = h.UDB.CountByRoleAndApproval(ctx, models.RoleOfficer, false); err != nil {
		config.ErrorStatus("failed to count pending officers", http.StatusInternalServerError, w, err)
		return
	}
	if stats.Firs, err = h.FDB.CountDocuments(ctx, models.FirFilter{}); err != nil {
		config.ErrorStatus("failed to count FIRs", http.StatusInternalServerError, w, err)
		return
	}
	config.WriteJSON(w, http.StatusOK, stats)
}
