package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/funcionariopro/internal/billing"
	"github.com/wolfman30/funcionariopro/internal/catalog"
	"github.com/wolfman30/funcionariopro/internal/onboarding"
	"github.com/wolfman30/funcionariopro/pkg/logging"
)

// Classifier is satisfied by *onboarding.Classifier.
type Classifier interface {
	Classify(ctx context.Context, phrase string) onboarding.Classification
}

// CatalogHandler serves the landing page data: templates, plans and phrase
// classification.
type CatalogHandler struct {
	catalog    *catalog.Catalog
	classifier Classifier
	logger     *logging.Logger
}

func NewCatalogHandler(c *catalog.Catalog, classifier Classifier, logger *logging.Logger) *CatalogHandler {
	if c == nil {
		c = catalog.Default()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CatalogHandler{catalog: c, classifier: classifier, logger: logger}
}

type templateResponse struct {
	catalog.Template
	Info string `json:"info"`
}

func (h *CatalogHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	list := h.catalog.List()
	out := make([]templateResponse, 0, len(list))
	for _, t := range list {
		out = append(out, templateResponse{Template: t, Info: t.InfoSummary()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": out})
}

func (h *CatalogHandler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	t, ok := h.catalog.Lookup(chi.URLParam(r, "key"))
	if !ok {
		jsonError(w, "template not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, templateResponse{Template: t, Info: t.InfoSummary()})
}

func (h *CatalogHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"plans": billing.Plans()})
}

type classifyRequest struct {
	Phrase string `json:"phrase"`
}

type classifyResponse struct {
	onboarding.Classification
	Template *templateResponse `json:"template,omitempty"`
}

func (h *CatalogHandler) Classify(w http.ResponseWriter, r *http.Request) {
	if h.classifier == nil {
		jsonError(w, "classification unavailable", http.StatusServiceUnavailable)
		return
	}
	var req classifyRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Phrase) == "" {
		jsonError(w, "phrase is required", http.StatusBadRequest)
		return
	}
	result := h.classifier.Classify(r.Context(), req.Phrase)
	resp := classifyResponse{Classification: result}
	if t, ok := h.catalog.Lookup(result.Category); ok {
		resp.Template = &templateResponse{Template: t, Info: t.InfoSummary()}
	}
	writeJSON(w, http.StatusOK, resp)
}
