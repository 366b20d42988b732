// Package onboarding turns the landing-page phrase into a category and a
// tailored set of wizard questions.
package onboarding

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wolfman30/funcionariopro/pkg/logging"
)

// FallbackCategory is used whenever the model reply cannot be trusted.
const FallbackCategory = "loja"

// Prompter performs one JSON-mode completion; *llm.JSONCaller satisfies it.
type Prompter interface {
	Prompt(ctx context.Context, prompt string) string
}

// Catalog reports the known category keys; *catalog.Catalog satisfies it.
type Catalog interface {
	Keys() []string
	Has(key string) bool
}

// Classification is the tailored configuration for a phrase.
type Classification struct {
	Category     string            `json:"categoria_template"`
	BusinessKind string            `json:"nome_negocio_especifico"`
	Questions    map[string]string `json:"perguntas_personalizadas,omitempty"`
	Placeholders map[string]string `json:"placeholders_exemplos,omitempty"`
	Fallback     bool              `json:"fallback"`
}

type Classifier struct {
	prompter Prompter
	catalog  Catalog
	logger   *logging.Logger
}

func NewClassifier(prompter Prompter, catalog Catalog, logger *logging.Logger) *Classifier {
	if prompter == nil {
		panic("onboarding: prompter cannot be nil")
	}
	if catalog == nil {
		panic("onboarding: catalog cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Classifier{prompter: prompter, catalog: catalog, logger: logger}
}

// Classify never fails: unusable replies yield the fallback classification.
func (c *Classifier) Classify(ctx context.Context, phrase string) Classification {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return fallback()
	}
	reply := c.prompter.Prompt(ctx, c.buildPrompt(phrase))
	result, err := c.parse(reply)
	if err != nil {
		c.logger.Warn("onboarding: classification fell back", "error", err)
		return fallback()
	}
	c.logger.Info("onboarding: phrase classified", "category", result.Category, "kind", result.BusinessKind)
	return result
}

func fallback() Classification {
	return Classification{Category: FallbackCategory, Fallback: true}
}

func (c *Classifier) parse(reply string) (Classification, error) {
	reply = strings.TrimSpace(reply)
	if !strings.HasSuffix(reply, "}") {
		return Classification{}, fmt.Errorf("reply truncated")
	}
	var out Classification
	if err := json.Unmarshal([]byte(reply), &out); err != nil {
		return Classification{}, fmt.Errorf("decode reply: %w", err)
	}
	out.Category = strings.ToLower(strings.TrimSpace(out.Category))
	out.BusinessKind = strings.TrimSpace(out.BusinessKind)
	if out.Category == "" || out.BusinessKind == "" {
		return Classification{}, fmt.Errorf("reply missing category or business kind")
	}
	if !c.catalog.Has(out.Category) {
		return Classification{}, fmt.Errorf("unknown category %q", out.Category)
	}
	out.Fallback = false
	return out, nil
}

func (c *Classifier) buildPrompt(phrase string) string {
	return fmt.Sprintf(`Analise a frase do usuário e retorne um objeto JSON completo para personalizar todo o fluxo de configuração.

Categorias disponíveis: [%s]

Use "clinica" para: médicos, dentistas, psicólogos
Use "restaurante" para: lanchonetes, bares, cafeterias, delivery de comida
Use "loja" para: comércio em geral, varejo, e-commerce
Use "salao" para: barbearias, cabeleireiros, estética, spa

Frase do usuário: %q

Adapte as perguntas de entrega e agendamento ao contexto do negócio.

Retorne um JSON compacto:
{
  "categoria_template": "clinica",
  "nome_negocio_especifico": "Consultório de Psicologia",
  "perguntas_personalizadas": {
    "businessName": "Nome do seu consultório?",
    "contactPhone": "WhatsApp para contato?",
    "services": "Quais atendimentos oferece?",
    "workingHours": "Horário de atendimento?",
    "paymentMethods": "Como recebe pagamento?",
    "location": "Localização?",
    "hasDelivery": "Atende online?",
    "acceptsReservations": "Trabalha com agendamento?"
  },
  "placeholders_exemplos": {
    "businessName": "Ex: Espaço Mente Sã",
    "contactPhone": "Ex: (11) 99999-9999"
  }
}

Responda APENAS com o objeto JSON válido.`, strings.Join(c.catalog.Keys(), ", "), phrase)
}
