package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/vibotaj/tracehub/internal/apperr"
	"github.com/vibotaj/tracehub/internal/logging"
)

// errorEnvelope is the uniform error body:
// {"error":{"code","message","details","request_id"}}.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			log.Error().Err(err).Msg("Failed to encode response body")
		}
	}
}

// writeError maps an error onto the contract's status codes and the
// envelope. Internal causes are logged, never echoed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	body := errorBody{
		Code:      string(apperr.KindOf(err)),
		Message:   "internal error",
		RequestID: logging.RequestID(r.Context()),
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		body.Message = ae.Message
		body.Details = ae.Details
		if ae.Field != "" {
			if body.Details == nil {
				body.Details = map[string]any{}
			}
			body.Details["field"] = ae.Field
		}
	}
	if status >= 500 {
		log.Error().Err(err).
			Str("request_id", body.RequestID).
			Str("path", r.URL.Path).
			Msg("Request failed")
		body.Message = "internal error"
		body.Details = nil
	}
	writeJSON(w, status, errorEnvelope{Error: body})
}

// decodeBody parses a JSON request body into dst, rejecting unknown
// fields so typos fail loudly.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Wrap(apperr.KindValidation, "api.decode_body", err)
	}
	return nil
}
