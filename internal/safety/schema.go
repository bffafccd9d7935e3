package safety

import (
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

// SchemaCatalog maps module names to the structural contract their provider
// responses must satisfy. The catalog is populated at construction time and
// read-only afterwards, so no lock is needed.
type SchemaCatalog struct {
	schemas map[string]*openapi3.Schema
}

// NewSchemaCatalog creates a catalog preloaded with the default module
// contracts.
func NewSchemaCatalog() *SchemaCatalog {
	c := &SchemaCatalog{schemas: make(map[string]*openapi3.Schema)}
	c.Register("aula_interativa", aulaInterativaSchema())
	c.Register("enem", enemSchema())
	c.Register("ti", tiSchema())
	return c
}

// Register adds or replaces the contract for a module name.
func (c *SchemaCatalog) Register(name string, schema *openapi3.Schema) {
	c.schemas[name] = schema
}

// Has reports whether a contract is registered under the given name.
func (c *SchemaCatalog) Has(name string) bool {
	_, ok := c.schemas[name]
	return ok
}

// Names returns the registered module names.
func (c *SchemaCatalog) Names() []string {
	names := make([]string, 0, len(c.schemas))
	for name := range c.schemas {
		names = append(names, name)
	}
	return names
}

// Validate parses content as JSON and checks it against the named contract.
// A non-nil error means the content is not parseable at all; violations list
// every schema rule the parsed value breaks.
func (c *SchemaCatalog) Validate(name, content string) ([]string, error) {
	schema, ok := c.schemas[name]
	if !ok {
		return nil, fmt.Errorf("no schema registered for %q", name)
	}

	var value interface{}
	if err := json.Unmarshal([]byte(content), &value); err != nil {
		return nil, fmt.Errorf("content is not valid JSON: %w", err)
	}

	err := schema.VisitJSON(value, openapi3.MultiErrors())
	if err == nil {
		return nil, nil
	}

	var violations []string
	if multi, ok := err.(openapi3.MultiError); ok {
		for _, e := range multi {
			violations = append(violations, e.Error())
		}
	} else {
		violations = append(violations, err.Error())
	}
	return violations, nil
}

// aulaInterativaSchema describes an interactive lesson: one to nine slides,
// each with a title, content, and a slide type from the fixed set.
func aulaInterativaSchema() *openapi3.Schema {
	slide := openapi3.NewObjectSchema().
		WithProperty("titulo", openapi3.NewStringSchema().WithMinLength(1)).
		WithProperty("conteudo", openapi3.NewStringSchema().WithMinLength(1)).
		WithProperty("tipo", openapi3.NewStringSchema().WithEnum(
			"introducao", "desenvolvimento", "interativo", "resumo"))
	slide.Required = []string{"titulo", "conteudo"}

	slides := openapi3.NewArraySchema()
	slides.Items = openapi3.NewSchemaRef("", slide)
	slides.MinItems = 1
	slides.MaxItems = openapi3.Uint64Ptr(9)

	root := openapi3.NewObjectSchema().WithProperty("slides", slides)
	root.Required = []string{"slides"}
	return root
}

// enemSchema describes an exam question set: each question carries a
// statement, exactly five alternatives, an answer key, and an explanation.
func enemSchema() *openapi3.Schema {
	alternativas := openapi3.NewArraySchema()
	alternativas.Items = openapi3.NewSchemaRef("", openapi3.NewStringSchema())
	alternativas.MinItems = 5
	alternativas.MaxItems = openapi3.Uint64Ptr(5)

	questao := openapi3.NewObjectSchema().
		WithProperty("enunciado", openapi3.NewStringSchema().WithMinLength(10)).
		WithProperty("alternativas", alternativas).
		WithProperty("resposta", openapi3.NewStringSchema().WithEnum("A", "B", "C", "D", "E")).
		WithProperty("explicacao", openapi3.NewStringSchema().WithMinLength(10))
	questao.Required = []string{"enunciado", "alternativas", "resposta", "explicacao"}

	questoes := openapi3.NewArraySchema()
	questoes.Items = openapi3.NewSchemaRef("", questao)
	questoes.MinItems = 1

	root := openapi3.NewObjectSchema().WithProperty("questoes", questoes)
	root.Required = []string{"questoes"}
	return root
}

// tiSchema describes a technical support answer: a solution body plus
// optional diagnostic steps.
func tiSchema() *openapi3.Schema {
	passos := openapi3.NewArraySchema()
	passos.Items = openapi3.NewSchemaRef("", openapi3.NewStringSchema())

	root := openapi3.NewObjectSchema().
		WithProperty("solucao", openapi3.NewStringSchema().WithMinLength(1)).
		WithProperty("passos", passos)
	root.Required = []string{"solucao"}
	return root
}
