package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/treasury-engine/internal/rule"
)

type ruleRequest struct {
	ChatID string        `json:"chat_id,omitempty"`
	Rule   rule.Document `json:"rule"`
}

type validateResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

func decodeRuleRequest(w http.ResponseWriter, r *http.Request, maxBytes int64) (*ruleRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	var req ruleRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "body_too_large")
		} else {
			writeError(w, r, http.StatusBadRequest, "malformed_json")
		}
		return nil, false
	}
	return &req, true
}

func handleValidate(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeRuleRequest(w, r, deps.MaxBodyBytes)
		if !ok {
			return
		}

		errs := deps.Engine.ValidateRule(&req.Rule)
		writeJSON(w, r, http.StatusOK, validateResponse{
			Valid:  len(errs) == 0,
			Errors: errs,
		})
	}
}

func handlePreview(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeRuleRequest(w, r, deps.MaxBodyBytes)
		if !ok {
			return
		}

		res, err := deps.Engine.Preview(r.Context(), req.ChatID, &req.Rule)
		if err != nil {
			deps.Logger.Error("preview failed", "error", err)
			writeError(w, r, http.StatusInternalServerError, "internal_error")
			return
		}
		writeJSON(w, r, http.StatusOK, res)
	}
}

func handleExecute(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeRuleRequest(w, r, deps.MaxBodyBytes)
		if !ok {
			return
		}

		res, err := deps.Engine.Run(r.Context(), req.ChatID, &req.Rule)
		if err != nil {
			deps.Logger.Error("execute failed", "error", err)
			writeError(w, r, http.StatusInternalServerError, "internal_error")
			return
		}
		// Domain failures (invalid document, blocked policy) are part of
		// the result body, not transport errors.
		writeJSON(w, r, http.StatusOK, res)
	}
}

func handleSources(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := deps.Engine.Sources(r.Context())
		if err != nil {
			deps.Logger.Error("listing sources failed", "error", err)
			writeError(w, r, http.StatusInternalServerError, "internal_error")
			return
		}
		writeJSON(w, r, http.StatusOK, map[string][]string{"sources": sources})
	}
}
