package http

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strogmv/renodesk/internal/domain"
	"github.com/strogmv/renodesk/internal/pkg/errors"
	"github.com/strogmv/renodesk/internal/pkg/logger"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready runs every dependency check and reports 503 if any fails.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.Checks))
	for name, check := range h.Checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}
	writeJSON(w, status, map[string]any{"checks": results})
}

type snsControl struct {
	Type         string `json:"Type"`
	SubscribeURL string `json:"SubscribeURL"`
}

// ReceiveFeedback accepts a provider notification pushed over HTTP.
// Malformed payloads are rejected with 400 so the sender stops retrying them;
// storage failures return 500 so it retries.
func (h *Handler) ReceiveFeedback(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		badRequest(w, r, "unreadable body")
		return
	}

	var ctl snsControl
	if json.Unmarshal(raw, &ctl) == nil && ctl.Type == "SubscriptionConfirmation" {
		logger.From(r.Context()).Warn("sns subscription confirmation received, confirm manually",
			slog.String("subscribe_url", ctl.SubscribeURL))
		writeJSON(w, http.StatusOK, map[string]string{"status": "pending_confirmation"})
		return
	}

	if err := h.Feedback.Handle(r.Context(), raw); err != nil {
		if stderrors.Is(err, domain.ErrMalformedFeedback) {
			badRequest(w, r, err.Error())
			return
		}
		errors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type createSuppressionRequest struct {
	EmailAddress    string `json:"emailAddress" validate:"required,email"`
	SuppressionType string `json:"suppressionType" validate:"omitempty,oneof=Bounce Complaint Manual"`
	Reason          string `json:"reason" validate:"max=500"`
}

func (h *Handler) CreateSuppression(w http.ResponseWriter, r *http.Request) {
	var req createSuppressionRequest
	if err := decodeJSONRequest(r, &req); err != nil {
		badRequest(w, r, "invalid JSON body")
		return
	}
	if err := validate.Struct(req); err != nil {
		errors.WriteError(w, r, errors.New(http.StatusUnprocessableEntity, "Validation Error", err.Error()))
		return
	}

	typ := domain.SuppressionType(req.SuppressionType)
	if typ == "" {
		typ = domain.SuppressionManual
	}
	reason := req.Reason
	if reason == "" {
		reason = "manual"
	}
	entry := domain.SuppressionEntry{
		EmailAddress:    domain.NormalizeAddress(req.EmailAddress),
		SuppressionType: typ,
		Reason:          reason,
		IsActive:        true,
		SuppressedAt:    h.now().UTC(),
		Metadata:        map[string]any{"source": "api"},
	}
	if err := h.Suppressions.Upsert(r.Context(), entry); err != nil {
		errors.WriteError(w, r, err)
		return
	}
	logger.From(r.Context()).Info("suppression added",
		slog.String("recipient", entry.EmailAddress),
		slog.String("suppression_type", string(typ)),
	)
	writeJSON(w, http.StatusCreated, entry)
}

func (h *Handler) GetSuppressions(w http.ResponseWriter, r *http.Request) {
	address := domain.NormalizeAddress(chi.URLParam(r, "email"))
	entries, err := h.Suppressions.FindByAddress(r.Context(), address)
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.SuppressionEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"emailAddress": address,
		"suppressed":   domain.AnyActive(entries),
		"entries":      entries,
	})
}

// DeleteSuppression deactivates entries for an address. Without ?type= it lifts
// Manual and Bounce entries; a Complaint entry is only lifted when named explicitly.
func (h *Handler) DeleteSuppression(w http.ResponseWriter, r *http.Request) {
	address := domain.NormalizeAddress(chi.URLParam(r, "email"))
	if err := validate.Var(address, "required,email"); err != nil {
		badRequest(w, r, "invalid email address")
		return
	}

	types := []domain.SuppressionType{domain.SuppressionManual, domain.SuppressionBounce}
	if t := r.URL.Query().Get("type"); t != "" {
		typ := domain.SuppressionType(t)
		if !typ.Valid() {
			badRequest(w, r, "unknown suppression type "+strconv.Quote(t))
			return
		}
		types = []domain.SuppressionType{typ}
	}

	var lifted []domain.SuppressionType
	for _, typ := range types {
		ok, err := h.Suppressions.Deactivate(r.Context(), address, typ)
		if err != nil {
			errors.WriteError(w, r, err)
			return
		}
		if ok {
			lifted = append(lifted, typ)
		}
	}
	if len(lifted) == 0 {
		errors.WriteError(w, r, errors.New(http.StatusNotFound, "Not Found", "no active suppression for "+address))
		return
	}
	logger.From(r.Context()).Info("suppression lifted", slog.String("recipient", address), slog.Any("types", lifted))
	writeJSON(w, http.StatusOK, map[string]any{"emailAddress": address, "deactivated": lifted})
}

func (h *Handler) GetReputation(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if date == "today" {
		date = domain.DayKey(h.now())
	}
	if _, err := time.Parse(domain.DateLayout, date); err != nil {
		badRequest(w, r, "date must be YYYY-MM-DD")
		return
	}
	m, err := h.Metrics.FindByDate(r.Context(), date)
	if stderrors.Is(err, domain.ErrNotFound) {
		errors.WriteError(w, r, errors.New(http.StatusNotFound, "Not Found", "no reputation record for "+date))
		return
	}
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ListEvents filters the event log by notification, by recipient, or by time range.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := defaultEventLimit
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			badRequest(w, r, "limit must be a positive integer")
			return
		}
		limit = min(n, maxEventLimit)
	}

	var (
		events []domain.NotificationEvent
		err    error
	)
	switch {
	case q.Get("notification") != "":
		events, err = h.Events.ListByNotification(r.Context(), q.Get("notification"))
	case q.Get("recipient") != "":
		events, err = h.Events.ListByRecipient(r.Context(), domain.NormalizeAddress(q.Get("recipient")), limit)
	default:
		to := h.now().UTC()
		from := to.Add(-24 * time.Hour)
		if s := q.Get("from"); s != "" {
			if from, err = time.Parse(time.RFC3339, s); err != nil {
				badRequest(w, r, "from must be RFC 3339")
				return
			}
		}
		if s := q.Get("to"); s != "" {
			if to, err = time.Parse(time.RFC3339, s); err != nil {
				badRequest(w, r, "to must be RFC 3339")
				return
			}
		}
		if !from.Before(to) {
			badRequest(w, r, "from must be before to")
			return
		}
		events, err = h.Events.ListRange(r.Context(), from, to, limit)
	}
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	if events == nil {
		events = []domain.NotificationEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": events, "count": len(events)})
}
