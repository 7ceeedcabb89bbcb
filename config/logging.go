package config

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/efir-portal/efir-api/logging"
	"github.com/efir-portal/efir-api/models"
)

func setLogger(env string) (*zap.Logger, error) {
	return logging.New(env)
}

// ErrorStatus is a useful function that will log, write http headers and body for a
// give message, status code and err
func ErrorStatus(message string, httpStatusCode int, w http.ResponseWriter, err error) {
	resp := models.ErrorResponse{Success: false, Message: message}
	if err != nil {
		resp.Error = err.Error()
	}
	if httpStatusCode >= http.StatusInternalServerError {
		zap.S().Errorw(message, "status", httpStatusCode, "error", err)
	} else {
		zap.S().Infow(message, "status", httpStatusCode, "error", err)
	}
	WriteJSON(w, httpStatusCode, resp)
}

// WriteJSON writes v as the JSON body with the given status code
func WriteJSON(w http.ResponseWriter, httpStatusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.S().Errorw("failed to encode response", "error", err)
	}
}
