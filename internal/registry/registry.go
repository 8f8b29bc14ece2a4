// Package registry is the dispatch surface the agent calls through: a
// lookup table from operation name to schema, executor, policy and
// confirmation handler.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	"github.com/superglue-ai/agent-runtime/internal/confirm"
	"github.com/superglue-ai/agent-runtime/internal/policy"
	"github.com/superglue-ai/agent-runtime/internal/session"
	"github.com/superglue-ai/agent-runtime/internal/storage"
)

// Category groups operations for UI display. Purely a label; no effect
// on execution semantics.
type Category string

const (
	CategoryBuilding  Category = "building"
	CategorySystems   Category = "systems"
	CategoryExecution Category = "execution"
	CategoryContext   Category = "context"
	CategoryOther     Category = "other"
)

// Persona is an agent profile exposed a subset of the registry.
type Persona string

const (
	PersonaGeneral Persona = "general"
	PersonaBuilder Persona = "builder"
	PersonaSystems Persona = "systems"
)

// ExecFunc is an operation's business logic. It receives the input with
// file references already resolved. A returned error becomes a
// structured failure payload; it never reaches the agent loop raw.
type ExecFunc func(ctx context.Context, sess *session.Context, input map[string]any) (map[string]any, error)

// Operation is one registered, schema-described, agent-invocable
// action. Immutable after registration.
type Operation struct {
	Name        string
	Description string
	Category    Category

	// InputSchema is a JSON Schema for the raw input. Compiled once at
	// registration.
	InputSchema map[string]any

	// Personas lists the agent profiles that see this operation. Empty
	// means all personas.
	Personas []Persona

	Policy  policy.Policy
	Execute ExecFunc

	// Confirm finalizes this operation's pending descriptors. Nil for
	// operations whose held results are approved as-is.
	Confirm confirm.Handler

	// StringifyFileRefs coerces exact-match file substitutions to
	// strings; set by operations whose backend fields are string-typed.
	StringifyFileRefs bool
}

// Registry maps operation names to their definitions and dispatches
// invocations through policy and reference resolution.
type Registry struct {
	ops     map[string]*Operation
	order   []string
	schemas map[string]*jsonschema.Schema
	table   policy.Table
	writer  storage.EventWriter
	logger  *zap.Logger
}

// New creates an empty registry. Events are written fire-and-forget to
// the given writer.
func New(writer storage.EventWriter, logger *zap.Logger) *Registry {
	return &Registry{
		ops:     make(map[string]*Operation),
		schemas: make(map[string]*jsonschema.Schema),
		table:   make(policy.Table),
		writer:  writer,
		logger:  logger,
	}
}

// Register adds an operation, compiling its input schema.
func (r *Registry) Register(op *Operation) error {
	if op.Name == "" {
		return fmt.Errorf("Register: operation name is required")
	}
	if _, exists := r.ops[op.Name]; exists {
		return fmt.Errorf("Register: duplicate operation %q", op.Name)
	}

	if op.InputSchema != nil {
		sch, err := compileSchema(op.Name, op.InputSchema)
		if err != nil {
			return fmt.Errorf("Register: %s: %w", op.Name, err)
		}
		r.schemas[op.Name] = sch
	}

	r.ops[op.Name] = op
	r.order = append(r.order, op.Name)
	r.table[op.Name] = op.Policy
	return nil
}

// MustRegister registers operations, panicking on startup mistakes.
func (r *Registry) MustRegister(ops ...*Operation) {
	for _, op := range ops {
		if err := r.Register(op); err != nil {
			panic(err)
		}
	}
}

// Get returns the operation by name.
func (r *Registry) Get(name string) (*Operation, bool) {
	op, ok := r.ops[name]
	return op, ok
}

// Operations returns all operations in registration order.
func (r *Registry) Operations() []*Operation {
	out := make([]*Operation, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.ops[name])
	}
	return out
}

// ForPersona projects the registry onto one agent persona. Operations
// with no persona list are visible to every persona.
func (r *Registry) ForPersona(p Persona) []*Operation {
	if p == "" || p == PersonaGeneral {
		return r.Operations()
	}
	var out []*Operation
	for _, name := range r.order {
		op := r.ops[name]
		if len(op.Personas) == 0 {
			out = append(out, op)
			continue
		}
		for _, persona := range op.Personas {
			if persona == p {
				out = append(out, op)
				break
			}
		}
	}
	return out
}

func compileSchema(name string, schema map[string]any) (*jsonschema.Schema, error) {
	buf, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("compileSchema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("compileSchema: %w", err)
	}

	c := jsonschema.NewCompiler()
	url := name + ".schema.json"
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("compileSchema: %w", err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compileSchema: %w", err)
	}
	return sch, nil
}

// validateInput checks a raw input payload against the compiled schema.
func (r *Registry) validateInput(name string, input map[string]any) error {
	sch, ok := r.schemas[name]
	if !ok {
		return nil
	}
	// Round-trip through JSON so validation sees canonical types.
	buf, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("validateInput: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("validateInput: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return &validationError{op: name, err: err}
	}
	return nil
}

type validationError struct {
	op  string
	err error
}

func (e *validationError) Error() string {
	return fmt.Sprintf("invalid input for %s: %v", e.op, e.err)
}

func (e *validationError) Suggestion() string {
	return "correct the input to match the operation's input schema and retry"
}
