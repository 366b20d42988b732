package simulation

import (
	"fmt"
	"strings"

	"github.com/wolfman30/funcionariopro/internal/profile"
)

const notInformed = "Não informado"

func orDefault(s string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return notInformed
}

func yesNo(v *bool) string {
	switch {
	case v == nil:
		return notInformed
	case *v:
		return "Sim"
	default:
		return "Não"
	}
}

func writeProfile(b *strings.Builder, p profile.BusinessProfile) {
	fmt.Fprintf(b, "- Nome: %s\n", orDefault(p.Name))
	fmt.Fprintf(b, "- Categoria: %s\n", orDefault(p.Category))
	fmt.Fprintf(b, "- Descrição: %s\n", orDefault(p.Description))
	fmt.Fprintf(b, "- Personalidade do atendente: %s\n", profile.PersonalityInstruction(p.Personality))
	fmt.Fprintf(b, "- Mensagem de boas-vindas: %s\n", orDefault(p.WelcomeMessage))
	fmt.Fprintf(b, "- Serviços: %s\n", orDefault(p.Services))
	fmt.Fprintf(b, "- Horários: %s\n", orDefault(p.Hours))
	fmt.Fprintf(b, "- Localização: %s\n", orDefault(p.Location))
	fmt.Fprintf(b, "- Formas de pagamento: %s\n", orDefault(p.PaymentMethods))
	fmt.Fprintf(b, "- Telefone: %s\n", orDefault(p.ContactPhone))
	fmt.Fprintf(b, "- Faz delivery: %s\n", yesNo(p.HasDelivery))
	fmt.Fprintf(b, "- Aceita reservas/agendamentos: %s\n", yesNo(p.AcceptsReservations))
}

// BuildScriptPrompt renders the instruction that asks the model for a
// {"simulation": [...]} object. It is a pure function of p.
func BuildScriptPrompt(p profile.BusinessProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Crie uma simulação realista de conversa no WhatsApp entre um cliente e o assistente virtual de %s.\n\n", orDefault(p.Name))
	b.WriteString("DADOS DO NEGÓCIO:\n")
	writeProfile(&b, p)
	fmt.Fprintf(&b, `
REGRAS:
1. A conversa deve ter entre 6 e 8 mensagens no total.
2. Alterne aproximadamente entre cliente ("customer") e atendente ("agent"), começando pelo cliente.
3. A última mensagem deve ser sempre do atendente ("agent").
4. "delay" é o tempo de digitação em milissegundos, entre %d e %d.
5. "id" é sequencial, começando em 1.
6. Use apenas as informações do negócio acima e não invente preços.
7. Escreva em português brasileiro.

Responda APENAS com um objeto JSON neste formato:
{"simulation":[{"id":1,"sender":"customer","content":"...","delay":1200},{"id":2,"sender":"agent","content":"...","delay":1800}]}`,
		MinTurnDelayMS, MaxTurnDelayMS)
	return b.String()
}

// BuildFollowUpPrompt asks for a single {"response": "..."} answer to question,
// given the transcript so far.
func BuildFollowUpPrompt(p profile.BusinessProfile, transcript []TranscriptEntry, question string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Você é o assistente virtual de %s no WhatsApp.\n\n", orDefault(p.Name))
	b.WriteString("DADOS DO NEGÓCIO:\n")
	writeProfile(&b, p)
	if len(transcript) > 0 {
		b.WriteString("\nCONVERSA ATÉ AGORA:\n")
		for _, e := range transcript {
			fmt.Fprintf(&b, "%s: %s\n", speakerLabel(e.Speaker), e.Text)
		}
	}
	fmt.Fprintf(&b, "\nNOVA PERGUNTA DO CLIENTE:\n%s\n", strings.TrimSpace(question))
	b.WriteString(`
Responda como o atendente, em português brasileiro, de forma breve e fiel aos dados do negócio.
Responda APENAS com um objeto JSON neste formato: {"response":"..."}`)
	return b.String()
}

func speakerLabel(s Speaker) string {
	switch s {
	case SpeakerAgent:
		return "Atendente"
	case SpeakerCustomer:
		return "Cliente"
	}
	return string(s)
}
