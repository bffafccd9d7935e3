package features

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/edustack-ai/llm-router/internal/types"
)

// Reference word lists for language detection. Detection is a token-overlap
// count; a language wins only when it dominates the other by more than 2x.
var (
	portugueseWords = []string{
		"o", "a", "os", "as", "um", "uma", "de", "do", "da", "em", "no", "na",
		"que", "para", "com", "por", "como", "mais", "ser", "ter", "fazer",
		"explique", "conceito", "sobre", "qual", "quais", "porque", "quando",
	}
	englishWords = []string{
		"the", "a", "an", "of", "in", "on", "that", "for", "with", "by",
		"how", "more", "be", "have", "do", "make", "explain", "concept",
		"about", "which", "why", "when", "what", "is", "are",
	}
)

// Complexity keyword sets. Simple terms subtract from the score, moderate
// terms add half a point each, complex terms add two points each.
var (
	simpleKeywords = []string{
		"simples", "básico", "basico", "fácil", "facil", "resumo", "resumir",
		"introdução", "introducao", "simple", "basic", "easy", "summary", "brief",
	}
	moderateKeywords = []string{
		"compare", "comparar", "análise", "analise", "analisar", "relacione",
		"relacionar", "discuta", "discutir", "analyze", "discuss", "relate",
	}
	complexKeywords = []string{
		"demonstre", "demonstrar", "prove", "provar", "derive", "derivar",
		"otimize", "otimizar", "implemente", "implementar", "avalie",
		"optimize", "implement", "evaluate", "justify",
	}
	technicalTerms = []string{
		"algoritmo", "equação", "equacao", "teorema", "protocolo", "derivada",
		"integral", "molécula", "molecula", "algorithm", "equation", "theorem",
		"protocol", "derivative", "compiler", "recursão", "recursao",
	}
)

// Domain keyword sets for the educational/technical/conversational argmax.
var (
	educationalKeywords = []string{
		"aula", "ensinar", "ensino", "aprender", "estudar", "explicar",
		"explique", "exercício", "exercicio", "prova", "quiz", "questão",
		"questao", "lesson", "teach", "learn", "study", "homework",
	}
	technicalKeywords = []string{
		"código", "codigo", "programar", "software", "api", "servidor",
		"bug", "deploy", "banco de dados", "code", "server", "database",
		"debug", "function", "script", "instalar", "configurar",
	}
	conversationalKeywords = []string{
		"olá", "ola", "oi", "obrigado", "obrigada", "ajuda", "como vai",
		"hello", "hi", "thanks", "help", "please", "bom dia", "boa tarde",
	}
)

// Structural requirement keywords.
var (
	jsonStrictKeywords = []string{"json", "estruturado", "structured", "schema"}
	toolUseKeywords    = []string{"ferramenta", "tool", "buscar", "search", "calcular", "calculate", "consultar"}
	streamingKeywords  = []string{"tempo real", "streaming", "ao vivo", "real-time", "real time"}
)

// Modules whose content contract requires strict structured output.
var strictOutputModules = map[string]bool{
	"aula_interativa": true,
	"enem":            true,
	"ti":              true,
}

// Extractor converts raw request material into a ContextualFeatures
// snapshot. Extraction is pure apart from the injected clock, which exists
// so tests can freeze the temporal factors.
type Extractor struct {
	now func() time.Time
}

// NewExtractor creates an extractor using the wall clock.
func NewExtractor() *Extractor {
	return &Extractor{now: time.Now}
}

// NewExtractorWithClock creates an extractor with an injected clock.
func NewExtractorWithClock(now func() time.Time) *Extractor {
	return &Extractor{now: now}
}

// Extract computes the feature snapshot for one request. Identical inputs at
// the same instant always produce identical output.
func (e *Extractor) Extract(text string, reqContext map[string]interface{}, userProfile map[string]interface{}) types.ContextualFeatures {
	lower := strings.ToLower(text)
	module := stringFromMap(reqContext, "module")

	features := types.ContextualFeatures{
		Language:           detectLanguage(lower),
		Complexity:         detectComplexity(lower, text),
		Domain:             detectDomain(lower, module),
		RequiresJSONStrict: containsAny(lower, jsonStrictKeywords) || strictOutputModules[module],
		RequiresToolUse:    containsAny(lower, toolUseKeywords) || boolFromMap(reqContext, "requires_tools"),
		RequiresStreaming:  containsAny(lower, streamingKeywords) || boolFromMap(reqContext, "stream"),
		ContextLength:      contextLength(text, reqContext),
		UserType:           userType(userProfile),
		SessionHistory:     sessionHistory(module, reqContext),
		Preferences:        preferences(userProfile),
	}

	now := e.now()
	features.TimeOfDay = timeOfDay(now)
	features.DayType = dayType(now)
	features.SystemLoad = systemLoad(now)

	return features
}

// detectLanguage compares token overlap against the two reference lists.
func detectLanguage(lower string) string {
	tokens := strings.FieldsFunc(lower, func(r rune) bool {
		return r == ' ' || r == '\n' || r == '\t' || r == ',' || r == '.' ||
			r == '?' || r == '!' || r == ';' || r == ':'
	})

	ptSet := toSet(portugueseWords)
	enSet := toSet(englishWords)

	var ptCount, enCount int
	for _, tok := range tokens {
		if ptSet[tok] {
			ptCount++
		}
		if enSet[tok] {
			enCount++
		}
	}

	switch {
	case ptCount > 2*enCount && ptCount > 0:
		return "pt"
	case enCount > 2*ptCount && enCount > 0:
		return "en"
	default:
		return "mixed"
	}
}

// detectComplexity computes the signed complexity score and maps it to a
// tier: <=1 simple, <=4 moderate, above that complex.
func detectComplexity(lower, original string) types.Complexity {
	var score float64

	score -= float64(countMatches(lower, simpleKeywords))
	score += 0.5 * float64(countMatches(lower, moderateKeywords))
	score += 2.0 * float64(countMatches(lower, complexKeywords))

	words := strings.Fields(original)
	sentences := countSentences(original)
	if sentences > 0 && len(words)/sentences > 20 {
		score += 1.0
	}
	if len(words) > 100 {
		score += 1.0
	}

	score += 0.5 * float64(countMatches(lower, technicalTerms))

	switch {
	case score <= 1:
		return types.ComplexitySimple
	case score <= 4:
		return types.ComplexityModerate
	default:
		return types.ComplexityComplex
	}
}

// detectDomain is the argmax of the three keyword counters; the module tag
// biases the count for its natural domain. Ties and zero scores resolve to
// conversational.
func detectDomain(lower, module string) types.Domain {
	educational := countMatches(lower, educationalKeywords)
	technical := countMatches(lower, technicalKeywords)
	conversational := countMatches(lower, conversationalKeywords)

	switch module {
	case "aula_interativa", "enem", "professor":
		educational += 2
	case "ti":
		technical += 2
	case "atendimento":
		conversational += 2
	}

	if educational > technical && educational > conversational {
		return types.DomainEducational
	}
	if technical > educational && technical > conversational {
		return types.DomainTechnical
	}
	return types.DomainConversational
}

// contextLength is the text length plus the serialized session history
// contribution from the request context.
func contextLength(text string, reqContext map[string]interface{}) int {
	length := len(text)
	if reqContext == nil {
		return length
	}
	if history, ok := reqContext["history"]; ok {
		if serialized, err := json.Marshal(history); err == nil {
			length += len(serialized)
		}
	}
	return length
}

func userType(userProfile map[string]interface{}) string {
	if role := stringFromMap(userProfile, "role"); role != "" {
		return role
	}
	return "anonymous"
}

func sessionHistory(module string, reqContext map[string]interface{}) types.SessionHistory {
	history := types.SessionHistory{Module: module}
	if reqContext == nil {
		return history
	}
	if v, ok := reqContext["interaction_count"].(int); ok {
		history.InteractionCount = v
	} else if v, ok := reqContext["interaction_count"].(float64); ok {
		history.InteractionCount = int(v)
	}
	if v, ok := reqContext["avg_response_time_ms"].(float64); ok {
		history.AvgResponseTimeMs = v
	}
	if v, ok := reqContext["satisfaction"].(float64); ok {
		history.Satisfaction = v
	}
	return history
}

func preferences(userProfile map[string]interface{}) types.UserPreferences {
	prefs := types.UserPreferences{
		ResponseStyle:   "balanced",
		MaxLatencyMs:    5000,
		CostSensitivity: types.CostSensitivityMedium,
	}
	if userProfile == nil {
		return prefs
	}
	if style := stringFromMap(userProfile, "response_style"); style != "" {
		prefs.ResponseStyle = style
	}
	if v, ok := userProfile["max_latency_ms"].(float64); ok && v > 0 {
		prefs.MaxLatencyMs = v
	}
	switch stringFromMap(userProfile, "cost_sensitivity") {
	case "low":
		prefs.CostSensitivity = types.CostSensitivityLow
	case "high":
		prefs.CostSensitivity = types.CostSensitivityHigh
	}
	return prefs
}

// Temporal factors use fixed business-hour and weekday thresholds.

func timeOfDay(now time.Time) string {
	hour := now.Hour()
	if hour >= 9 && hour < 18 && isWeekday(now) {
		return "peak"
	}
	return "off_peak"
}

func dayType(now time.Time) string {
	if isWeekday(now) {
		return "weekday"
	}
	return "weekend"
}

func systemLoad(now time.Time) string {
	hour := now.Hour()
	switch {
	case hour >= 9 && hour < 18 && isWeekday(now):
		return "high"
	case hour >= 7 && hour < 22:
		return "medium"
	default:
		return "low"
	}
}

func isWeekday(now time.Time) bool {
	day := now.Weekday()
	return day != time.Saturday && day != time.Sunday
}

// Helpers

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func countMatches(text string, keywords []string) int {
	count := 0
	for _, kw := range keywords {
		count += strings.Count(text, kw)
	}
	return count
}

func countSentences(text string) int {
	count := 0
	for _, r := range text {
		if r == '.' || r == '!' || r == '?' {
			count++
		}
	}
	if count == 0 && strings.TrimSpace(text) != "" {
		count = 1
	}
	return count
}

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

func stringFromMap(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func boolFromMap(m map[string]interface{}, key string) bool {
	if m == nil {
		return false
	}
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}
