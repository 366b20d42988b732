// Package handlers exposes the wizard over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/wolfman30/funcionariopro/internal/billing"
	"github.com/wolfman30/funcionariopro/internal/chat"
	"github.com/wolfman30/funcionariopro/internal/profile"
	"github.com/wolfman30/funcionariopro/internal/publish"
	"github.com/wolfman30/funcionariopro/internal/simulation"
	"github.com/wolfman30/funcionariopro/internal/wizard"
	"github.com/wolfman30/funcionariopro/pkg/logging"
)

const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a bounded JSON body. An empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, wizard.ErrSessionNotFound),
		errors.Is(err, billing.ErrCheckoutNotFound),
		errors.Is(err, publish.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, wizard.ErrUnknownTemplate),
		errors.Is(err, wizard.ErrInvalidStep),
		errors.Is(err, profile.ErrInvalidPatch),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, simulation.ErrEmptyQuestion),
		errors.Is(err, simulation.ErrQuestionTooLong),
		errors.Is(err, publish.ErrInvalidRequest),
		errors.Is(err, billing.ErrUnknownPlan),
		errors.Is(err, billing.ErrPlanNotPurchasable):
		return http.StatusBadRequest
	case errors.Is(err, wizard.ErrNotConfigured),
		errors.Is(err, simulation.ErrSimulationNotComplete),
		errors.Is(err, simulation.ErrQuestionPending),
		errors.Is(err, profile.ErrUnsupportedSchema):
		return http.StatusConflict
	case errors.Is(err, wizard.ErrUpgradeRequired):
		return http.StatusPaymentRequired
	case errors.Is(err, chat.ErrUnavailable),
		errors.Is(err, billing.ErrCheckoutUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs server-side failures and hides their details.
func writeError(w http.ResponseWriter, logger *logging.Logger, err error, args ...any) {
	status := statusFor(err)
	switch {
	case status == http.StatusPaymentRequired:
		writeJSON(w, status, map[string]any{"error": err.Error(), "plans": billing.Plans()})
	case status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable:
		logger.Error("request failed", append(args, "error", err)...)
		jsonError(w, "internal error", status)
	default:
		jsonError(w, err.Error(), status)
	}
}
