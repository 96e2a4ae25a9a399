package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jrsteele09/go-highlevel-auth/oauthmodel"
	"github.com/jrsteele09/go-highlevel-auth/sessions"
)

// SessionSummary is the token-free view of a stored session returned by the API.
type SessionSummary struct {
	ResourceID  string              `json:"resourceId"`
	UserType    oauthmodel.UserType `json:"userType"`
	CompanyID   string              `json:"companyId,omitempty"`
	LocationID  string              `json:"locationId,omitempty"`
	UserID      string              `json:"userId,omitempty"`
	Scope       string              `json:"scope,omitempty"`
	ExpireAt    *time.Time          `json:"expireAt,omitempty"`
	Refreshable bool                `json:"refreshable"`
}

func summarise(rec sessions.Record) SessionSummary {
	summary := SessionSummary{
		ResourceID:  rec.ResourceID,
		UserType:    rec.EffectiveUserType(),
		CompanyID:   rec.CompanyID,
		LocationID:  rec.LocationID,
		UserID:      rec.UserID,
		Scope:       rec.Scope,
		Refreshable: rec.RefreshToken != "",
	}
	if !rec.ExpireAt.IsZero() {
		expireAt := rec.ExpireAt
		summary.ExpireAt = &expireAt
	}
	return summary
}

// OAuthCallbackHandler completes an installation from the marketplace redirect
// (?code=...&user_type=Company|Location) and stores the resulting session.
func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if errCode := query.Get("error"); errCode != "" {
			writeJSONError(w, errCode, query.Get("error_description"), http.StatusBadRequest)
			return
		}
		code := query.Get("code")
		if code == "" {
			writeJSONError(w, "invalid_request", "code is required", http.StatusBadRequest)
			return
		}

		userType := oauthmodel.UserType(query.Get("user_type"))
		switch userType {
		case "", oauthmodel.UserTypeCompany, oauthmodel.UserTypeLocation:
		default:
			writeJSONError(w, "invalid_request", "user_type must be Company or Location", http.StatusBadRequest)
			return
		}

		rec, err := s.installer.ExchangeCode(r.Context(), code, userType)
		if err != nil {
			s.logger.Error().Err(err).Msg("install code exchange failed")
			writeJSONError(w, "exchange_failed", "the authorization code could not be exchanged", http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(summarise(*rec))
	}
}

// SessionsHandler lists the sessions of the bound application without their tokens.
func (s *Server) SessionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := s.installer.Sessions().GetSessionsByApplication(r.Context())
		if err != nil {
			s.logger.Error().Err(err).Msg("listing sessions failed")
			writeJSONError(w, "server_error", "sessions unavailable", http.StatusInternalServerError)
			return
		}

		summaries := make([]SessionSummary, 0, len(records))
		for _, rec := range records {
			summaries = append(summaries, summarise(rec))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(summaries)
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}
