package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/edustack-ai/llm-router/internal/types"
)

// Simulated is a deterministic stand-in for real provider clients. It
// produces per-provider-type responses, honoring module content contracts
// where the real backend would, and never blocks. Used in tests and as the
// fallback content source when no real adapter is configured.
type Simulated struct{}

// NewSimulated creates a simulated invoker.
func NewSimulated() *Simulated {
	return &Simulated{}
}

// Invoke generates a deterministic response for the provider type.
func (s *Simulated) Invoke(ctx context.Context, provider types.Provider, text string, reqContext map[string]interface{}) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	switch provider.Type {
	case "grok":
		return generateStructured(text, reqContext, "Resposta Grok 4 Fast"), nil
	case "openai":
		return generateStructured(text, reqContext, "Resposta OpenAI"), nil
	case "anthropic":
		return fmt.Sprintf("Resposta Claude (Anthropic) - Análise detalhada: %s", truncate(text, 50)), nil
	case "google":
		return fmt.Sprintf("Resposta Gemini (Google) - Contexto extenso: %s", truncate(text, 50)), nil
	case "mistral":
		return fmt.Sprintf("Resposta Mistral - Conciso: %s", truncate(text, 50)), nil
	case "groq":
		return fmt.Sprintf("Resposta Groq - Ultra-rápido: %s", truncate(text, 50)), nil
	default:
		return fmt.Sprintf("Resposta padrão: %s", truncate(text, 50)), nil
	}
}

// FallbackContent returns the best-effort content used by the degraded
// path. It satisfies the module's structural contract when one applies.
func FallbackContent(text string, reqContext map[string]interface{}) string {
	return generateStructured(text, reqContext, "Resposta de contingência")
}

// generateStructured returns schema-conformant JSON for modules with a
// structural contract and plain text otherwise.
func generateStructured(text string, reqContext map[string]interface{}, label string) string {
	module := ""
	if reqContext != nil {
		if v, ok := reqContext["module"].(string); ok {
			module = v
		}
	}

	switch module {
	case "aula_interativa":
		payload := map[string]interface{}{
			"slides": []map[string]string{
				{"titulo": "Introdução", "conteudo": "Conceitos básicos", "tipo": "introducao"},
				{"titulo": "Desenvolvimento", "conteudo": "Aprofundamento", "tipo": "desenvolvimento"},
			},
		}
		out, _ := json.Marshal(payload)
		return string(out)
	case "enem":
		payload := map[string]interface{}{
			"questoes": []map[string]interface{}{{
				"enunciado":    "Questão de exemplo para prática",
				"alternativas": []string{"A) Opção A", "B) Opção B", "C) Opção C", "D) Opção D", "E) Opção E"},
				"resposta":     "A",
				"explicacao":   "Explicação detalhada da alternativa correta",
			}},
		}
		out, _ := json.Marshal(payload)
		return string(out)
	case "ti":
		payload := map[string]interface{}{
			"solucao": fmt.Sprintf("Diagnóstico para: %s", truncate(text, 50)),
			"passos":  []string{"Reproduzir o problema", "Verificar logs", "Aplicar correção"},
		}
		out, _ := json.Marshal(payload)
		return string(out)
	default:
		return fmt.Sprintf("%s para: %s...", label, truncate(text, 50))
	}
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
