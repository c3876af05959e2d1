package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/capitalize-ai/persona-chat/internal/apperr"
	"github.com/capitalize-ai/persona-chat/internal/llm"
)

// ToolSpec binds a tool name to a namespace.
type ToolSpec struct {
	Name        string `yaml:"name"`
	Namespace   string `yaml:"namespace"`
	Description string `yaml:"description"`
}

// DefaultTools are the biography and career searches.
func DefaultTools() []ToolSpec {
	return []ToolSpec{
		{
			Name:        "search_biography",
			Namespace:   "biography",
			Description: "Search my CV and biography: education, skills, projects, contact details. Use it before answering questions about my background.",
		},
		{
			Name:        "search_career",
			Namespace:   "career",
			Description: "Search the story of my career: roles, decisions, what I learned and why I moved on. Use it for questions about my work history.",
		},
	}
}

type searcher interface {
	Search(ctx context.Context, namespace, query string, limit int) ([]Result, error)
}

// Tools exposes namespace searches as model tools.
type Tools struct {
	searcher searcher
	specs    map[string]ToolSpec
	limit    int
}

// NewTools creates the tool set.
func NewTools(s searcher, specs []ToolSpec) *Tools {
	m := make(map[string]ToolSpec, len(specs))
	for _, spec := range specs {
		m[spec.Name] = spec
	}
	return &Tools{searcher: s, specs: m, limit: 5}
}

// Definitions returns the tool schemas in name order.
func (t *Tools) Definitions() []llm.ToolDefinition {
	names := make([]string, 0, len(t.specs))
	for name := range t.specs {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]llm.ToolDefinition, 0, len(names))
	for _, name := range names {
		spec := t.specs[name]
		defs = append(defs, llm.ToolDefinition{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "What to look up, phrased as a search query",
					},
				},
				"required": []string{"query"},
			},
		})
	}
	return defs
}

type toolArgs struct {
	Query string `json:"query"`
}

type toolOutput struct {
	Results []Result `json:"results"`
}

type toolFailure struct {
	Tag     apperr.Tag        `json:"_tag"`
	Context map[string]string `json:"context"`
}

// Execute runs a tool call. It never fails: errors are encoded as an AiToolFailure
// object so the model can report them instead of aborting the turn.
func (t *Tools) Execute(ctx context.Context, call llm.ToolCall) (string, bool) {
	spec, ok := t.specs[call.Name]
	if !ok {
		return failure(call.Name, fmt.Sprintf("unknown tool %q", call.Name)), false
	}

	var args toolArgs
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return failure(call.Name, "invalid arguments: "+err.Error()), false
	}

	results, err := t.searcher.Search(ctx, spec.Namespace, args.Query, t.limit)
	if err != nil {
		return failure(call.Name, err.Error()), false
	}

	b, err := json.Marshal(toolOutput{Results: results})
	if err != nil {
		return failure(call.Name, err.Error()), false
	}
	return string(b), true
}

func failure(tool, msg string) string {
	b, _ := json.Marshal(toolFailure{
		Tag:     apperr.AiToolFailure,
		Context: map[string]string{"message": msg, "tool": tool},
	})
	return string(b)
}
