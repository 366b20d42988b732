package profile

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var businessNamePattern = regexp.MustCompile(`(?:chama|nome|é)\s+(.+?)(?:\s|$|,|\.)`)

type categoryRule struct {
	category string
	keywords []string
}

var categoryRules = []categoryRule{
	{category: "restaurante", keywords: []string{"restaurante", "lanchonete", "comida"}},
	{category: "loja", keywords: []string{"loja", "comércio", "vendo"}},
	{category: "clinica", keywords: []string{"clínica", "médico", "saúde"}},
}

const (
	minStatementLength = 20
	descriptionProbe   = 50
)

// Calibrate derives a patch from a free-text message typed during the
// calibration chat. The current profile decides which fields may be filled.
func Calibrate(current BusinessProfile, message string) Patch {
	var patch Patch
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return patch
	}
	lower := strings.ToLower(trimmed)

	if current.Name == "" {
		if m := businessNamePattern.FindStringSubmatch(lower); m != nil {
			if name := strings.TrimSpace(m[1]); name != "" {
				patch.Name = &name
			}
		}
	}

	for _, rule := range categoryRules {
		if containsAny(lower, rule.keywords) {
			category := rule.category
			patch.Category = &category
			break
		}
	}

	if utf8.RuneCountInString(lower) > minStatementLength && !strings.Contains(lower, "?") {
		if !strings.Contains(current.Description, prefix(trimmed, descriptionProbe)) {
			desc := trimmed
			if current.Description != "" {
				desc = current.Description + "\n\n" + trimmed
			}
			patch.Description = &desc
		}
	}
	return patch
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func prefix(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
