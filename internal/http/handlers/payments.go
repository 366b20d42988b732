package handlers

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/funcionariopro/internal/billing"
	"github.com/wolfman30/funcionariopro/internal/wizard"
	"github.com/wolfman30/funcionariopro/pkg/logging"
)

// CheckoutCompleter is satisfied by *wizard.Service.
type CheckoutCompleter interface {
	CompleteCheckout(ctx context.Context, checkoutID uuid.UUID) (wizard.View, error)
}

// CheckoutLoader is satisfied by *billing.Service.
type CheckoutLoader interface {
	Checkout(ctx context.Context, id uuid.UUID) (billing.Checkout, error)
}

// FakePaymentsHandler serves a demo checkout page so the publish step can be
// reached without a payment processor. Mount only when ALLOW_FAKE_PAYMENTS
// is set.
type FakePaymentsHandler struct {
	completer CheckoutCompleter
	checkouts CheckoutLoader
	logger    *logging.Logger
}

func NewFakePaymentsHandler(completer CheckoutCompleter, checkouts CheckoutLoader, logger *logging.Logger) *FakePaymentsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &FakePaymentsHandler{completer: completer, checkouts: checkouts, logger: logger}
}

// Routes mounts under /payments/fake.
func (h *FakePaymentsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{checkoutID}", h.HandleCheckout)
	r.Post("/{checkoutID}", h.HandleComplete)
	return r
}

var checkoutPage = template.Must(template.New("checkout").Parse(`<!doctype html>
<html lang="pt-BR">
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Checkout de demonstração</title>
    <style>
      body{font-family:system-ui,-apple-system,Segoe UI,Roboto,sans-serif;max-width:680px;margin:40px auto;padding:0 16px;}
      .card{border:1px solid #e5e7eb;border-radius:12px;padding:18px;}
      .btn{display:inline-block;background:#111827;color:#fff;padding:12px 16px;border-radius:10px;border:0;cursor:pointer;}
      .muted{color:#6b7280;font-size:14px;}
    </style>
  </head>
  <body>
    <h1>{{.Plan.Name}}</h1>
    <div class="card">
      <p><strong>Valor:</strong> {{.Price}}</p>
      <ul>{{range .Plan.Features}}<li>{{.}}</li>{{end}}</ul>
      {{if .Completed}}
      <p>Pagamento confirmado. Você já pode voltar e publicar seu funcionário.</p>
      {{else}}
      <p class="muted">Página de demonstração. Nenhum pagamento real é processado.</p>
      <form method="POST" action="/payments/fake/{{.ID}}">
        <button class="btn" type="submit">Confirmar assinatura</button>
      </form>
      {{end}}
      <p class="muted">Checkout: <code>{{.ID}}</code></p>
    </div>
  </body>
</html>`))

type checkoutPageData struct {
	ID        string
	Plan      billing.Plan
	Price     string
	Completed bool
}

func formatBRL(cents int64) string {
	return fmt.Sprintf("R$ %d,%02d", cents/100, cents%100)
}

func (h *FakePaymentsHandler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "checkoutID")
	if !ok {
		return
	}
	c, err := h.checkouts.Checkout(r.Context(), id)
	if err != nil || !c.IsFake() {
		http.Error(w, "checkout not found", http.StatusNotFound)
		return
	}
	plan, err := billing.LookupPlan(string(c.Plan))
	if err != nil {
		http.Error(w, "checkout not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := checkoutPage.Execute(w, checkoutPageData{
		ID:        id.String(),
		Plan:      plan,
		Price:     formatBRL(plan.PriceCents),
		Completed: c.Status == billing.CheckoutCompleted,
	}); err != nil {
		h.logger.Error("render fake checkout failed", "checkout_id", id, "error", err)
	}
}

func (h *FakePaymentsHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "checkoutID")
	if !ok {
		return
	}
	c, err := h.checkouts.Checkout(r.Context(), id)
	if err != nil || !c.IsFake() {
		jsonError(w, "checkout not found", http.StatusNotFound)
		return
	}
	v, err := h.completer.CompleteCheckout(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err, "op", "complete_fake_checkout", "checkout_id", id)
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		http.Redirect(w, r, "/payments/fake/"+id.String(), http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func parseUUIDParam(w http.ResponseWriter, r *http.Request, key string) (uuid.UUID, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	if raw == "" {
		jsonError(w, "missing id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		jsonError(w, "invalid id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return parsed, true
}
