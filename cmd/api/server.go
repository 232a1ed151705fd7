package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"dealflow/actionlog"
	"dealflow/auth"
	"dealflow/deal"
	"dealflow/undo"
)

type dealService interface {
	Upsert(ctx context.Context, intent deal.Intent) (deal.UpsertResult, error)
	Delete(ctx context.Context, dealID string) (deal.Deal, error)
	Get(ctx context.Context, dealID string) (deal.Deal, error)
	List(ctx context.Context, f deal.Filters) ([]deal.Deal, int, error)
}

type gateService interface {
	RequestTransition(ctx context.Context, dealID string, target deal.Status) (deal.TransitionResult, error)
	ConfirmOrder(ctx context.Context, c deal.OrderConfirmation) (deal.Deal, error)
}

type logService interface {
	ListByDeal(ctx context.Context, dealID string) ([]actionlog.Entry, error)
}

type undoService interface {
	Undo(ctx context.Context) (string, error)
}

type authService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	VerifyToken(token string) (auth.Session, error)
}

type server struct {
	auth    authService
	deals   dealService
	gate    gateService
	logs    logService
	history undoService
	logger  *log.Logger
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/register", s.handleRegister)
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/deals", s.handleDeals)
	mux.HandleFunc("/deals/", s.handleDealDetail)
	mux.HandleFunc("/undo", s.handleUndo)
	return mux
}

func (s *server) authenticate(w http.ResponseWriter, r *http.Request) (auth.Session, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return auth.Session{}, false
	}
	session, err := s.auth.VerifyToken(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return auth.Session{}, false
	}
	return session, true
}

// canSee enforces the partner visibility rule: partners only touch deals
// whose referrer matches their partner name.
func canSee(session auth.Session, d deal.Deal) bool {
	if session.Role != auth.RolePartner {
		return true
	}
	return d.ReferrerName != nil && *d.ReferrerName == session.PartnerName
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	user, err := s.auth.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, auth.ErrDuplicateEmail):
			writeError(w, http.StatusConflict, "email already registered")
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":        user.ID,
		"email":     user.Email,
		"full_name": user.FullName,
		"role":      user.Role,
	})
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	result, err := s.auth.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.logger.Printf("login: %v", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token": result.Token,
		"user": map[string]any{
			"id":        result.User.ID,
			"email":     result.User.Email,
			"full_name": result.User.FullName,
			"role":      result.User.Role,
		},
	})
}

type intentPayload struct {
	ProductName      string       `json:"product_name"`
	ProposalMenuName string       `json:"proposal_menu_name"`
	Status           *deal.Status `json:"status,omitempty"`
	InternalOwner    *string      `json:"internal_owner,omitempty"`
	PartnerOwner     *string      `json:"partner_owner,omitempty"`
	ReferrerName     *string      `json:"referrer_name,omitempty"`
	LastContactAt    *time.Time   `json:"last_contact_at,omitempty"`
	NextActionAt     *time.Time   `json:"next_action_at,omitempty"`
	NextActionText   *string      `json:"next_action_text,omitempty"`
	ActionLabel      string       `json:"action_label"`
	Description      string       `json:"description"`
}

func (s *server) handleDeals(w http.ResponseWriter, r *http.Request) {
	session, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		filters := deal.Filters{
			Status:       deal.Status(r.URL.Query().Get("status")),
			ReferrerName: r.URL.Query().Get("referrer"),
		}
		if session.Role == auth.RolePartner {
			filters.ReferrerName = session.PartnerName
		}
		deals, total, err := s.deals.List(r.Context(), filters)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": deals, "total": total})

	case http.MethodPost:
		var payload intentPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		intent := deal.Intent{
			ProductName:      payload.ProductName,
			ProposalMenuName: payload.ProposalMenuName,
			Status:           payload.Status,
			InternalOwner:    payload.InternalOwner,
			PartnerOwner:     payload.PartnerOwner,
			ReferrerName:     payload.ReferrerName,
			LastContactAt:    payload.LastContactAt,
			NextActionAt:     payload.NextActionAt,
			NextActionText:   payload.NextActionText,
			ActionLabel:      payload.ActionLabel,
			Description:      payload.Description,
		}
		if session.Role == auth.RolePartner {
			// Partner submissions are pinned to their own referrer scope.
			partner := session.PartnerName
			intent.ReferrerName = &partner
		}
		result, err := s.deals.Upsert(r.Context(), intent)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		status := http.StatusOK
		if result.Created {
			status = http.StatusCreated
		}
		writeJSON(w, status, map[string]any{
			"deal":                result.Deal,
			"created":             result.Created,
			"casting_proposal_id": result.CastingProposalID,
		})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *server) handleDealDetail(w http.ResponseWriter, r *http.Request) {
	session, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/deals/"), "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	dealID := parts[0]

	existing, err := s.deals.Get(r.Context(), dealID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if !canSee(session, existing) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, existing)

	case len(parts) == 1 && r.Method == http.MethodDelete:
		deleted, err := s.deals.Delete(r.Context(), dealID)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, deleted)

	case len(parts) == 2 && parts[1] == "status" && r.Method == http.MethodPost:
		var payload struct {
			Target deal.Status `json:"target"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		result, err := s.gate.RequestTransition(r.Context(), dealID, payload.Target)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"outcome": result.Outcome, "deal": result.Deal})

	case len(parts) == 2 && parts[1] == "order-confirmation" && r.Method == http.MethodPost:
		var payload struct {
			OrderMonth  string `json:"order_month"`
			OrderAmount int64  `json:"order_amount"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		updated, err := s.gate.ConfirmOrder(r.Context(), deal.OrderConfirmation{
			DealID:      dealID,
			OrderMonth:  payload.OrderMonth,
			OrderAmount: payload.OrderAmount,
		})
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)

	case len(parts) == 2 && parts[1] == "log" && r.Method == http.MethodGet:
		entries, err := s.logs.ListByDeal(r.Context(), dealID)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": entries})

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *server) handleUndo(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(w, r); !ok {
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	description, err := s.history.Undo(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, undo.ErrNothingToUndo):
			writeError(w, http.StatusConflict, "nothing to undo")
		case errors.Is(err, undo.ErrCompensationFailed):
			s.logger.Printf("undo: %v", err)
			writeError(w, http.StatusInternalServerError, "undo failed; the action cannot be recovered")
		default:
			s.logger.Printf("undo: %v", err)
			writeError(w, http.StatusInternalServerError, "undo failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": description})
}

func (s *server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, deal.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, deal.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, deal.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "record store unavailable")
	default:
		s.logger.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
