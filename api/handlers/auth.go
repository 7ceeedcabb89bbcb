package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/efir-portal/efir-api/api"
	"github.com/efir-portal/efir-api/config"
	"github.com/efir-portal/efir-api/databases"
	"github.com/efir-portal/efir-api/models"
)

// Auth exposes registration, login and session endpoints
type Auth struct {
	DB       databases.UserDatabase
	Sessions *api.Sessions
	Denylist api.Denylist
	Secure   bool
}

type registerRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Phone    string `json:"phone"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	BadgeID  string `json:"badgeId"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool                  `json:"success"`
	Message string                `json:"message"`
	Token   string                `json:"token"`
	User    models.UserProjection `json:"user"`
}

type meResponse struct {
	Success bool                  `json:"success"`
	User    models.UserProjection `json:"user"`
}

// RegisterHandler creates a citizen account. Any requested role is ignored.
func (a Auth) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := models.Validate(req); err != nil {
		config.ErrorStatus(err.Error(), http.StatusBadRequest, w, nil)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), config.BcryptCost)
	if err != nil {
		config.ErrorStatus("failed to hash password", http.StatusInternalServerError, w, err)
		return
	}

	user := &models.User{
		Name:     req.Name,
		Email:    req.Email,
		Password: string(hash),
		Phone:    strings.TrimSpace(req.Phone),
		Role:     models.RoleCitizen,
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()
	if err := a.DB.InsertOne(ctx, user); err != nil {
		if errors.Is(err, databases.ErrDuplicateKey) {
			config.ErrorStatus("User already exists", http.StatusConflict, w, nil)
			return
		}
		config.ErrorStatus("failed to create user", http.StatusInternalServerError, w, err)
		return
	}

	zap.S().Infow("user registered", "id", user.ID.Hex())
	config.WriteJSON(w, http.StatusCreated, models.MessageResponse{Success: true, Message: "User registered successfully"})
}

// LoginHandler checks the credentials and starts a session. A badge id takes
// precedence over an email when both are given.
func (a Auth) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	badgeID := strings.TrimSpace(req.BadgeID)
	if email == "" && badgeID == "" {
		config.ErrorStatus("Email or Badge ID required", http.StatusBadRequest, w, nil)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	var user *models.User
	var err error
	if badgeID != "" {
		user, err = a.DB.FindByBadgeID(ctx, badgeID)
	} else {
		user, err = a.DB.FindByEmail(ctx, email)
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		config.ErrorStatus("User not found", http.StatusNotFound, w, nil)
		return
	}
	if err != nil {
		config.ErrorStatus("failed to get user", http.StatusInternalServerError, w, err)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		config.ErrorStatus("Invalid credentials", http.StatusUnauthorized, w, nil)
		return
	}
	if user.Role == models.RoleOfficer && !user.IsApproved {
		config.ErrorStatus("Account pending admin approval.", http.StatusForbidden, w, nil)
		return
	}

	token, _, err := a.Sessions.Issue(*user)
	if err != nil {
		config.ErrorStatus("failed to create session", http.StatusInternalServerError, w, err)
		return
	}
	api.SetSessionCookie(w, token, a.Sessions.TTL(), a.Secure)

	zap.S().Infow("user logged in", "id", user.ID.Hex(), "role", user.Role)
	config.WriteJSON(w, http.StatusOK, loginResponse{
		Success: true,
		Message: "Login successful",
		Token:   token,
		User:    user.Projection(),
	})
}

// LogoutHandler clears the session cookie and revokes the presented token
func (a Auth) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if token := api.TokenFromRequest(r); token != "" && a.Denylist != nil {
		if claims, err := a.Sessions.Parse(token); err == nil && claims.ExpiresAt != nil {
			ctx, cancel := api.WithQueryTimeout(r.Context())
			defer cancel()
			if err := a.Denylist.Revoke(ctx, claims.RegisteredClaims.ID, claims.ExpiresAt.Time); err != nil {
				zap.S().Warnw("failed to revoke token", "error", err)
			}
		}
	}
	api.ClearSessionCookie(w, a.Secure)
	config.WriteJSON(w, http.StatusOK, models.MessageResponse{Success: true, Message: "Logged out successfully"})
}

// MeHandler returns the user behind the current session
func (a Auth) MeHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := api.UserFromContext(r.Context())
	if !ok {
		config.ErrorStatus("Unauthorized request", http.StatusUnauthorized, w, nil)
		return
	}
	config.WriteJSON(w, http.StatusOK, meResponse{Success: true, User: user.Projection()})
}
