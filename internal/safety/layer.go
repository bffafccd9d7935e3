package safety

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/edustack-ai/llm-router/internal/types"
)

// Fixed ceilings for post-dispatch checks.
const (
	maxLatencyMs     = 30000
	maxCost          = 0.10
	minContentLength = 10
)

// piiPattern pairs a detection regex with the bracketed tag used by
// Sanitize. Tags contain no digits or address characters, so a second
// sanitize pass is a no-op.
type piiPattern struct {
	name    string
	pattern *regexp.Regexp
	tag     string
}

var piiPatterns = []piiPattern{
	{"cpf", regexp.MustCompile(`\b\d{3}\.\d{3}\.\d{3}-\d{2}\b`), "[CPF]"},
	{"cnpj", regexp.MustCompile(`\b\d{2}\.\d{3}\.\d{3}/\d{4}-\d{2}\b`), "[CNPJ]"},
	{"card", regexp.MustCompile(`\b\d{4}\s?\d{4}\s?\d{4}\s?\d{4}\b`), "[CARTAO]"},
	{"cep", regexp.MustCompile(`\b\d{5}-?\d{3}\b`), "[CEP]"},
	{"email", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "[EMAIL]"},
	{"phone", regexp.MustCompile(`\(\d{2}\)\s?\d{4,5}-?\d{4}\b`), "[TELEFONE]"},
}

var sensitiveTopics = []string{
	"suicídio", "suicidio", "suicide",
	"automutilação", "automutilacao", "self-harm",
	"drogas", "drugs", "substâncias", "substancias",
	"violência", "violencia", "violence",
	"abuso", "abuse", "maus-tratos",
}

var minorKeywords = []string{"menor", "criança", "crianca", "adolescente", "estudante", "aluno"}

var sensitiveCategoryKeywords = []string{
	"saúde", "saude", "religião", "religiao", "política", "politica",
	"racial", "étnico", "etnico", "genético", "genetico", "health",
	"religion", "politics", "ethnicity", "genetics",
}

// Roles whose requests may carry data about minors.
var minorBearingRoles = map[string]bool{
	"student": true,
	"aluno":   true,
	"minor":   true,
}

// Layer runs request validation before dispatch and response validation
// after dispatch. It holds no mutable state and is safe for concurrent use.
type Layer struct {
	schemas *SchemaCatalog
	logger  *logrus.Logger
}

// NewLayer creates a safety layer backed by the given schema catalog.
func NewLayer(schemas *SchemaCatalog, logger *logrus.Logger) *Layer {
	return &Layer{schemas: schemas, logger: logger}
}

// ValidatePre inspects the request text before dispatch. The result is
// advisory: Passed is false only on critical issues, and none of the
// built-in checks produce critical severity. That headroom is deliberate so
// stricter policies can be layered in without changing callers.
func (l *Layer) ValidatePre(text string, reqContext map[string]interface{}, userProfile map[string]interface{}) types.SafetyValidation {
	var issues []types.SafetyIssue
	var recommendations []string

	if detected := detectPII(text); len(detected) > 0 {
		issues = append(issues, types.SafetyIssue{
			Type:        "pii",
			Severity:    types.SeverityHigh,
			Description: fmt.Sprintf("PII detected: %s", strings.Join(detected, ", ")),
			Suggestion:  "Mask or remove personal information",
		})
		recommendations = append(recommendations, "Apply PII masking before processing")
	}

	if topics := detectSensitiveTopics(text); len(topics) > 0 {
		issues = append(issues, types.SafetyIssue{
			Type:        "content",
			Severity:    types.SeverityMedium,
			Description: fmt.Sprintf("Sensitive topics detected: %s", strings.Join(topics, ", ")),
			Suggestion:  "Route to a provider with advanced content filters",
		})
		recommendations = append(recommendations, "Consider routing to a provider with a strict safety filter level")
	}

	if problems := checkCompliance(text, userProfile); len(problems) > 0 {
		issues = append(issues, types.SafetyIssue{
			Type:        "compliance",
			Severity:    types.SeverityHigh,
			Description: fmt.Sprintf("Compliance concerns: %s", strings.Join(problems, ", ")),
			Suggestion:  "Ensure data is processed in an appropriate jurisdiction",
		})
		recommendations = append(recommendations, "Verify data residency of the selected provider")
	}

	validation := types.SafetyValidation{
		Passed:          !hasCritical(issues),
		Issues:          issues,
		Recommendations: recommendations,
	}

	if len(issues) > 0 {
		l.logger.WithFields(logrus.Fields{
			"issues": len(issues),
			"passed": validation.Passed,
		}).Debug("Pre-dispatch validation found issues")
	}

	return validation
}

// ValidatePost inspects a provider response. When schemaName names a
// registered structural contract the content is validated against it;
// unknown names mean no contract was expected and skip the check entirely.
func (l *Layer) ValidatePost(content string, latencyMs int64, cost float64, schemaName string) types.SafetyValidation {
	var issues []types.SafetyIssue
	var recommendations []string

	if schemaName != "" && l.schemas.Has(schemaName) {
		violations, parseErr := l.schemas.Validate(schemaName, content)
		if parseErr != nil {
			issues = append(issues, types.SafetyIssue{
				Type:        "schema",
				Severity:    types.SeverityHigh,
				Description: "invalid structured output: content is not parseable",
				Suggestion:  "Regenerate the response with the expected schema",
			})
			recommendations = append(recommendations, "Retry with an alternative provider or adjusted parameters")
		} else if len(violations) > 0 {
			issues = append(issues, types.SafetyIssue{
				Type:        "schema",
				Severity:    types.SeverityHigh,
				Description: fmt.Sprintf("schema violations: %s", strings.Join(violations, "; ")),
				Suggestion:  "Regenerate the response with the expected schema",
			})
			recommendations = append(recommendations, "Retry with an alternative provider or adjusted parameters")
		}
	}

	if latencyMs > maxLatencyMs {
		issues = append(issues, types.SafetyIssue{
			Type:        "timeout",
			Severity:    types.SeverityMedium,
			Description: fmt.Sprintf("slow response: %dms", latencyMs),
			Suggestion:  "Prefer a faster provider for similar requests",
		})
		recommendations = append(recommendations, "Adjust routing weights to prioritize speed")
	}

	if cost > maxCost {
		issues = append(issues, types.SafetyIssue{
			Type:        "cost",
			Severity:    types.SeverityLow,
			Description: fmt.Sprintf("high cost: $%.4f", cost),
			Suggestion:  "Prefer a cheaper provider for similar requests",
		})
		recommendations = append(recommendations, "Adjust budget or provider selection")
	}

	if problems := checkQuality(content); len(problems) > 0 {
		issues = append(issues, types.SafetyIssue{
			Type:        "content",
			Severity:    types.SeverityMedium,
			Description: fmt.Sprintf("quality issues: %s", strings.Join(problems, ", ")),
			Suggestion:  "Review the prompt or try an alternative provider",
		})
		recommendations = append(recommendations, "Adjust generation parameters or model selection")
	}

	return types.SafetyValidation{
		Passed:          !hasCritical(issues),
		Issues:          issues,
		Recommendations: recommendations,
	}
}

// Sanitize replaces PII with bracketed tags. It is idempotent: sanitizing
// already-sanitized text changes nothing.
func Sanitize(text string) string {
	sanitized := text
	for _, p := range piiPatterns {
		sanitized = p.pattern.ReplaceAllString(sanitized, p.tag)
	}
	return sanitized
}

func detectPII(text string) []string {
	var detected []string
	for _, p := range piiPatterns {
		if p.pattern.MatchString(text) {
			detected = append(detected, p.name)
		}
	}
	return detected
}

func detectSensitiveTopics(text string) []string {
	var detected []string
	lower := strings.ToLower(text)
	for _, topic := range sensitiveTopics {
		if strings.Contains(lower, topic) {
			detected = append(detected, topic)
		}
	}
	return detected
}

func checkCompliance(text string, userProfile map[string]interface{}) []string {
	var problems []string
	lower := strings.ToLower(text)

	role := ""
	if userProfile != nil {
		if v, ok := userProfile["role"].(string); ok {
			role = v
		}
	}

	if minorBearingRoles[role] && containsAnyKeyword(lower, minorKeywords) {
		problems = append(problems, "data about a minor detected")
	}
	if containsAnyKeyword(lower, sensitiveCategoryKeywords) {
		problems = append(problems, "sensitive category data detected")
	}
	return problems
}

func checkQuality(content string) []string {
	var problems []string

	if strings.TrimSpace(content) == "" {
		problems = append(problems, "empty response")
		return problems
	}
	if strings.Contains(content, "[PLACEHOLDER]") || strings.Contains(content, "[TODO]") {
		problems = append(problems, "unresolved placeholders")
	}
	if strings.Contains(content, "ERROR:") || strings.Contains(content, "FALHA:") {
		problems = append(problems, "embedded error markers")
	}
	if len(content) < minContentLength {
		problems = append(problems, "response too short")
	}
	return problems
}

func hasCritical(issues []types.SafetyIssue) bool {
	for _, issue := range issues {
		if issue.Severity == types.SeverityCritical {
			return true
		}
	}
	return false
}

func containsAnyKeyword(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
