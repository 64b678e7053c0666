package tools

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// ToolRegistry maps tool names to definitions. Lookups never fail with an
// error: an unknown name is reported through the boolean.
type ToolRegistry interface {
	RegisterTool(name string, def ToolDefinition) error
	Lookup(name string) (*ToolDefinition, bool)
	ListTools() []ToolDefinition
}

// InMemoryToolRegistry is a thread-safe in-memory implementation of ToolRegistry
type InMemoryToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]ToolDefinition
	order []string
}

var _ ToolRegistry = (*InMemoryToolRegistry)(nil)

func NewInMemoryToolRegistry() *InMemoryToolRegistry {
	return &InMemoryToolRegistry{
		tools: make(map[string]ToolDefinition),
	}
}

// RegisterTool registers a new tool in the registry
func (r *InMemoryToolRegistry) RegisterTool(name string, def ToolDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return errors.New("tool name cannot be empty")
	}
	if def.Name != "" && def.Name != name {
		return errors.Errorf("tool definition name (%s) does not match registry name (%s)", def.Name, name)
	}
	if _, exists := r.tools[name]; exists {
		return errors.Errorf("tool %s is already registered", name)
	}

	def.Name = name
	r.tools[name] = def
	r.order = append(r.order, name)
	return nil
}

func (r *InMemoryToolRegistry) Lookup(name string) (*ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	if !exists {
		return nil, false
	}
	toolCopy := tool
	return &toolCopy, true
}

// ListTools returns the registered tools in registration order.
func (r *InMemoryToolRegistry) ListTools() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.tools[name])
	}
	return tools
}

// ParameterSummary is a flattened view of one tool argument.
type ParameterSummary struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type,omitempty" yaml:"type,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool   `json:"required" yaml:"required"`
}

type ToolSummary struct {
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description" yaml:"description"`
	Parameters  []ParameterSummary `json:"parameters" yaml:"parameters"`
}

func (t *ToolDefinition) Summary() ToolSummary {
	ret := ToolSummary{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  []ParameterSummary{},
	}
	if t.Parameters == nil || t.Parameters.Properties == nil {
		return ret
	}

	required := map[string]bool{}
	for _, r := range t.Parameters.Required {
		required[r] = true
	}
	for pair := t.Parameters.Properties.Oldest(); pair != nil; pair = pair.Next() {
		ret.Parameters = append(ret.Parameters, ParameterSummary{
			Name:        pair.Key,
			Type:        pair.Value.Type,
			Description: pair.Value.Description,
			Required:    required[pair.Key],
		})
	}
	return ret
}

// Summaries returns the summary of every registered tool.
func Summaries(r ToolRegistry) []ToolSummary {
	defs := r.ListTools()
	ret := make([]ToolSummary, 0, len(defs))
	for i := range defs {
		ret = append(ret, defs[i].Summary())
	}
	return ret
}

// Describe renders the registered tools as a markdown list, one call
// signature per tool, the way the model is expected to invoke them.
func Describe(r ToolRegistry) string {
	var sb strings.Builder
	for _, s := range Summaries(r) {
		names := make([]string, 0, len(s.Parameters))
		for _, p := range s.Parameters {
			names = append(names, fmt.Sprintf(`%s="..."`, p.Name))
		}
		_, _ = fmt.Fprintf(&sb, "- %s(%s): %s\n", s.Name, strings.Join(names, ", "), s.Description)
		params := append([]ParameterSummary(nil), s.Parameters...)
		sort.SliceStable(params, func(i, j int) bool { return params[i].Required && !params[j].Required })
		for _, p := range params {
			if p.Description == "" {
				continue
			}
			_, _ = fmt.Fprintf(&sb, "    - %s: %s\n", p.Name, p.Description)
		}
	}
	return sb.String()
}
