// AngelaMos | 2026
// handler.go

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/templates/imagegate/internal/account"
	"github.com/carterperez-dev/templates/imagegate/internal/checkout"
	"github.com/carterperez-dev/templates/imagegate/internal/core"
	"github.com/carterperez-dev/templates/imagegate/internal/entitlement"
	"github.com/carterperez-dev/templates/imagegate/internal/imagesearch"
	"github.com/carterperez-dev/templates/imagegate/internal/middleware"
)

const maxWebhookBytes = 64 << 10

type Handler struct {
	gateway   *Gateway
	validator *validator.Validate
}

func NewHandler(gateway *Gateway) *Handler {
	return &Handler{
		gateway:   gateway,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// RegisterRoutes mounts the public API. featureLimits wrap only the
// metered image route and run after authentication.
func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
	featureLimits ...func(http.Handler) http.Handler,
) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", h.Signup)
		r.Post("/login", h.Login)

		r.With(authenticator).Post("/logout", h.Logout)
	})

	r.Route("/billing", func(r chi.Router) {
		r.Get("/success", h.CheckoutSuccess)
		r.Get("/cancel", h.CheckoutCancel)
		r.Post("/webhook", h.Webhook)

		r.Group(func(r chi.Router) {
			r.Use(authenticator)
			r.Post("/checkout", h.StartCheckout)
			r.Post("/checkout/cancel", h.CancelCheckout)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(authenticator)
		r.With(featureLimits...).Post("/images", h.UseFeature)
		r.Get("/usage", h.Usage)
		r.Get("/history", h.History)
		r.Delete("/history/{recordID}", h.DeleteHistory)
	})
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	a, err := h.gateway.Signup(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	core.Created(w, ToAccountResponse(a))
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.gateway.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, TokenResponse{
		AccessToken: result.Token,
		TokenType:   "Bearer",
		ExpiresIn:   int(result.ExpiresAt.Sub(h.gateway.now()).Seconds()),
		ExpiresAt:   result.ExpiresAt,
		Account:     ToAccountResponse(result.Account),
	})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.gateway.Logout(r.Context(), middleware.GetSessionID(r.Context())); err != nil {
		writeError(w, err)
		return
	}

	core.NoContent(w)
}

func (h *Handler) UseFeature(w http.ResponseWriter, r *http.Request) {
	var req FeatureRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.gateway.UseFeature(
		r.Context(),
		middleware.GetAccountID(r.Context()),
		req.Query,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	core.Created(w, FeatureResponse{
		Record: ToRecordResponse(*result.Record),
		Usage: UsageResponse{
			Count:     result.Used,
			Quota:     result.Quota,
			Paid:      result.Paid,
			Remaining: result.Remaining,
		},
	})
}

func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	summary, err := h.gateway.UsageSummary(r.Context(), middleware.GetAccountID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, UsageResponse{
		Count:     summary.Count,
		Quota:     summary.Quota,
		Paid:      summary.Paid,
		Remaining: max(summary.Quota-summary.Count, 0),
	})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	records, err := h.gateway.ListHistory(r.Context(), middleware.GetAccountID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	resp := HistoryResponse{Records: make([]RecordResponse, 0, len(records))}
	for _, rec := range records {
		resp.Records = append(resp.Records, ToRecordResponse(rec))
	}

	core.OK(w, resp)
}

func (h *Handler) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	recordID, err := strconv.ParseInt(chi.URLParam(r, "recordID"), 10, 64)
	if err != nil {
		core.BadRequest(w, "invalid record id")
		return
	}

	err = h.gateway.DeleteHistory(r.Context(), middleware.GetAccountID(r.Context()), recordID)
	if err != nil {
		writeError(w, err)
		return
	}

	core.NoContent(w)
}

func (h *Handler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	started, err := h.gateway.StartUpgrade(
		r.Context(),
		middleware.GetAccountID(r.Context()),
		middleware.GetSessionID(r.Context()),
	)
	if err != nil {
		writeError(w, err)
		return
	}

	core.Created(w, CheckoutResponse{
		Reference:   started.Reference,
		RedirectURL: started.RedirectURL,
	})
}

func (h *Handler) CancelCheckout(w http.ResponseWriter, r *http.Request) {
	result, err := h.gateway.CancelUpgrade(
		r.Context(),
		middleware.GetAccountID(r.Context()),
		middleware.GetSessionID(r.Context()),
	)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, CancelResponse{Canceled: !result.Paid, Paid: result.Paid})
}

func (h *Handler) CheckoutSuccess(w http.ResponseWriter, r *http.Request) {
	result, err := h.gateway.ConfirmUpgrade(r.Context(), r.URL.Query().Get("ref"))
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, UpgradeResponse{Paid: true, AlreadyConfirmed: result.AlreadyConfirmed})
}

func (h *Handler) CheckoutCancel(w http.ResponseWriter, r *http.Request) {
	result, err := h.gateway.AbandonUpgrade(r.Context(), r.URL.Query().Get("ref"))
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, CancelResponse{Canceled: !result.Paid, Paid: result.Paid})
}

func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		core.BadRequest(w, "unreadable payload")
		return
	}

	err = h.gateway.HandlePaymentEvent(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, map[string]bool{"received": true})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		core.BadRequest(w, "invalid request body")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return false
	}

	return true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		core.BadRequest(w, "invalid input")
	case errors.Is(err, account.ErrUsernameTaken):
		core.JSONError(w, core.DuplicateError("username"))
	case errors.Is(err, account.ErrInvalidCredentials):
		core.Unauthorized(w, "invalid username or password")
	case errors.Is(err, entitlement.ErrQuotaExceeded):
		core.JSONError(w, core.NewAppError(err,
			"free quota used up, upgrade to continue",
			http.StatusPaymentRequired, "QUOTA_EXCEEDED"))
	case errors.Is(err, imagesearch.ErrNoResults):
		core.NotFound(w, "image")
	case errors.Is(err, core.ErrUpstream):
		core.JSONError(w, core.UpstreamError("upstream service"))
	case errors.Is(err, checkout.ErrUnknownReference):
		core.JSONError(w, core.NewAppError(err,
			"unknown checkout reference", http.StatusNotFound, "UNKNOWN_REFERENCE"))
	case errors.Is(err, checkout.ErrAlreadyTerminal):
		core.JSONError(w, core.NewAppError(err,
			"checkout already completed", http.StatusConflict, "CHECKOUT_COMPLETED"))
	case errors.Is(err, checkout.ErrAttemptAlreadyPending):
		core.JSONError(w, core.NewAppError(err,
			"a checkout is already pending", http.StatusConflict, "CHECKOUT_PENDING"))
	case errors.Is(err, checkout.ErrAlreadyPaid):
		core.JSONError(w, core.NewAppError(err,
			"account already upgraded", http.StatusConflict, "ALREADY_PAID"))
	case errors.Is(err, checkout.ErrPaymentProcessing):
		core.JSONError(w, core.NewAppError(err,
			"payment is still processing", http.StatusConflict, "PAYMENT_PROCESSING"))
	case errors.Is(err, ErrPaymentIncomplete):
		core.JSONError(w, core.NewAppError(err,
			"payment not completed yet", http.StatusConflict, "PAYMENT_INCOMPLETE"))
	case errors.Is(err, checkout.ErrInvalidSignature):
		core.JSONError(w, core.NewAppError(err,
			"invalid webhook signature", http.StatusBadRequest, "INVALID_SIGNATURE"))
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, "resource")
	default:
		core.InternalServerError(w, err)
	}
}
