package chat

import (
	"fmt"
	"strings"

	"github.com/wolfman30/funcionariopro/internal/profile"
)

// Persona decides how a chat speaks and where its history lives.
type Persona struct {
	Name         string
	KeyPrefix    string
	SystemPrompt func(p profile.BusinessProfile) string
	Greeting     func(p profile.BusinessProfile) string
	// FailureReply is appended when the model call fails. Empty means the
	// failure is returned to the caller instead.
	FailureReply string
	EmptyReply   string
}

const (
	technicalDifficulties = "Desculpe, estou com dificuldades técnicas no momento. Tente novamente em instantes."
	couldNotProcess       = "Desculpe, não consegui processar sua mensagem."
)

// AgentPersona is the configured virtual employee talking to a customer.
var AgentPersona = Persona{
	Name:         "agent",
	KeyPrefix:    "chat:history",
	SystemPrompt: agentSystemPrompt,
	Greeting:     func(p profile.BusinessProfile) string { return p.Welcome() },
	FailureReply: technicalDifficulties,
	EmptyReply:   couldNotProcess,
}

// CalibrationPersona helps the owner describe the business.
var CalibrationPersona = Persona{
	Name:         "calibration",
	KeyPrefix:    "chat:calibration",
	SystemPrompt: calibrationSystemPrompt,
	Greeting: func(profile.BusinessProfile) string {
		return "Olá! Sou seu assistente para configurar o funcionário IA perfeito para seu negócio. Vamos começar? Que tipo de negócio você tem?"
	},
	EmptyReply: couldNotProcess,
}

func agentSystemPrompt(p profile.BusinessProfile) string {
	var info strings.Builder
	for _, line := range []struct{ label, value string }{
		{"Descrição", p.Description},
		{"Serviços", p.Services},
		{"Horários", p.Hours},
		{"Localização", p.Location},
		{"Pagamentos", p.PaymentMethods},
		{"Contato", p.ContactPhone},
	} {
		if v := strings.TrimSpace(line.value); v != "" {
			fmt.Fprintf(&info, "%s: %s\n", line.label, v)
		}
	}
	return fmt.Sprintf(`Você é um assistente virtual do %s.

INFORMAÇÕES DO NEGÓCIO:
%s
PERSONALIDADE:
%s

INSTRUÇÕES:
- Responda sempre em português brasileiro
- Seja útil e prestativo
- Se não souber algo específico, seja honesto
- Mantenha as respostas focadas no negócio
- Tente sempre ajudar o cliente a resolver sua necessidade
- Se apropriado para o tipo de negócio, tente conduzir para agendamentos ou vendas

Responda de forma natural e conversacional.`, p.Name, info.String(), profile.PersonalityInstruction(p.Personality))
}

func orUndefined(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Não definido"
	}
	return s
}

func calibrationSystemPrompt(p profile.BusinessProfile) string {
	return fmt.Sprintf(`Você é um assistente especializado em configurar agentes de IA para negócios. Seu objetivo é entender o negócio do usuário e ajudar a configurar um funcionário virtual perfeito.

INSTRUÇÕES IMPORTANTES:
- Faça perguntas específicas sobre o negócio
- Sugira melhorias na personalidade do agente
- Ajude a definir informações importantes do negócio
- Seja conversacional e amigável
- Quando o usuário fornecer informações, confirme e sugira próximos passos
- Foque em: nome do negócio, tipo, horários, serviços, personalidade do atendimento

INFORMAÇÕES ATUAIS DO AGENTE:
- Nome: %s
- Tipo: %s
- Informações: %s
- Personalidade: %s

Responda sempre em português brasileiro de forma natural e útil.`,
		orUndefined(p.Name), orUndefined(p.Category), orUndefined(p.Description), p.Personality)
}
