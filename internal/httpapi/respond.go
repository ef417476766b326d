package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/roach88/orchard/internal/engine"
	"github.com/roach88/orchard/internal/session"
)

// envelope wraps every successful response.
type envelope struct {
	Data any `json:"data"`
	// ReloadError is set when the write succeeded but the projection could
	// not be refreshed.
	ReloadError string `json:"reload_error,omitempty"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	EntityID string `json:"entity_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeResult writes data with status. A reload failure still reports the
// data, since the command itself committed.
func writeResult(w http.ResponseWriter, status int, data any, err error) {
	var rerr *session.ReloadError
	if err != nil && !errors.As(err, &rerr) {
		writeError(w, err)
		return
	}
	env := envelope{Data: data}
	if rerr != nil {
		env.ReloadError = rerr.Error()
	}
	writeJSON(w, status, env)
}

// writeError maps engine error codes onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	detail := errorDetail{Code: "INTERNAL", Message: err.Error()}
	status := http.StatusInternalServerError

	var ee *engine.Error
	if errors.As(err, &ee) {
		detail.Code = string(ee.Code)
		detail.Message = ee.Message
		detail.EntityID = ee.EntityID
		switch ee.Code {
		case engine.ErrCodeNotFound:
			status = http.StatusNotFound
		case engine.ErrCodeInvalidTransition:
			status = http.StatusConflict
		case engine.ErrCodeValidationFailure:
			status = http.StatusUnprocessableEntity
		}
	}
	writeJSON(w, status, errorBody{Error: detail})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{Code: "BAD_REQUEST", Message: msg}})
}

// decode reads a JSON body, rejecting unknown fields.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
