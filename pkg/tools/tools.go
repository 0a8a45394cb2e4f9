// Package tools implements the function-tool registry the LLM boundary and
// the voice pipeline's nested-speech handling share (spec.md §4.7):
// FunctionCallInfo describes one requested call, CalledFunction carries its
// result back into the chat context.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/duplexvox/voicecore/pkg/ai/llm"
)

// FunctionTool is a callable tool exposed to the LLM.
type FunctionTool interface {
	Name() string
	Description() string
	// Parameters is a JSON Schema object describing the tool's arguments.
	Parameters() map[string]any
	Call(ctx context.Context, argsJSON []byte) ([]byte, error)
}

// FunctionCallInfo is one tool-call request surfaced by an LLM stream,
// paired with the ToolCall.ID it must reply against in the chat context.
type FunctionCallInfo struct {
	CallID    string
	Name      string
	Arguments string // JSON-encoded
}

// CalledFunction is the outcome of executing a FunctionCallInfo.
type CalledFunction struct {
	CallID string
	Result string // JSON-encoded; empty on failure, when Err is set
	Err    error
}

// AnnouncingTool is an optional FunctionTool extension: when a requested
// call resolves to a tool implementing this, the orchestrator speaks
// Announcement() as nested speech while the call is in flight, instead of
// going silent until the call resolves (spec.md §4.2 nested tool speech).
type AnnouncingTool interface {
	FunctionTool
	Announcement() string
}

// Registry holds the tools available to one agent session.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]FunctionTool
}

// NewRegistry returns an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]FunctionTool)}
}

// Register adds tool to the registry, failing if its name is already taken.
func (r *Registry) Register(tool FunctionTool) error {
	if tool == nil {
		return fmt.Errorf("tools: tool cannot be nil")
	}
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tools: tool name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tools: tool %q already registered", name)
	}
	r.tools[name] = tool
	return nil
}

// Lookup finds a tool by name.
func (r *Registry) Lookup(name string) (FunctionTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, exists := r.tools[name]
	return tool, exists
}

// Definitions returns the registry's tools as LLM function definitions, in
// the shape every pkg/ai/llm.ChatOptions.Functions call expects.
func (r *Registry) Definitions() []llm.FunctionDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]llm.FunctionDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, llm.FunctionDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Parameters(),
		})
	}
	return defs
}

// Execute runs the named tool against a pending call, never panicking: a
// missing tool, a handler error or a handler panic all surface as
// CalledFunction.Err.
func (r *Registry) Execute(ctx context.Context, call FunctionCallInfo) (cf CalledFunction) {
	defer func() {
		if p := recover(); p != nil {
			cf = CalledFunction{CallID: call.CallID, Err: fmt.Errorf("tools: %s panicked: %v", call.Name, p)}
		}
	}()

	tool, ok := r.Lookup(call.Name)
	if !ok {
		return CalledFunction{CallID: call.CallID, Err: fmt.Errorf("tools: unknown function %q", call.Name)}
	}

	result, err := tool.Call(ctx, []byte(call.Arguments))
	if err != nil {
		return CalledFunction{CallID: call.CallID, Err: err}
	}
	return CalledFunction{CallID: call.CallID, Result: string(result)}
}

// methodTool adapts an exported Go method to FunctionTool via reflection,
// so an agent's own struct methods can double as callable tools without
// hand-written wrappers.
type methodTool struct {
	name        string
	description string
	method      reflect.Method
	receiver    reflect.Value
	schema      map[string]any
}

// NewMethodTool wraps method (bound to receiver) as a FunctionTool. The
// method must take (context.Context) optionally followed by either a
// single struct parameter or no parameters at all.
func NewMethodTool(name, description string, method reflect.Method, receiver any) (FunctionTool, error) {
	if receiver == nil {
		return nil, fmt.Errorf("tools: receiver cannot be nil")
	}
	receiverValue := reflect.ValueOf(receiver)
	if !receiverValue.IsValid() {
		return nil, fmt.Errorf("tools: invalid receiver")
	}

	methodType := method.Type
	if methodType.NumIn() > 1 {
		if methodType.In(1) != reflect.TypeOf((*context.Context)(nil)).Elem() {
			return nil, fmt.Errorf("tools: %s: first parameter must be context.Context", name)
		}
	}
	if methodType.NumIn() > 3 {
		return nil, fmt.Errorf("tools: %s: at most one parameter struct after context is supported", name)
	}

	return &methodTool{
		name:        name,
		description: description,
		method:      method,
		receiver:    receiverValue,
		schema:      schemaFor(method),
	}, nil
}

func (t *methodTool) Name() string              { return t.name }
func (t *methodTool) Description() string       { return t.description }
func (t *methodTool) Parameters() map[string]any { return t.schema }

func (t *methodTool) Call(ctx context.Context, argsJSON []byte) ([]byte, error) {
	methodType := t.method.Type
	inputs := []reflect.Value{t.receiver}

	if methodType.NumIn() > 1 {
		inputs = append(inputs, reflect.ValueOf(ctx))
	}
	if methodType.NumIn() == 3 {
		paramType := methodType.In(2)
		paramValue := reflect.New(paramType)
		if len(argsJSON) > 0 {
			if err := json.Unmarshal(argsJSON, paramValue.Interface()); err != nil {
				return nil, fmt.Errorf("tools: %s: unmarshal arguments: %w", t.name, err)
			}
		}
		inputs = append(inputs, paramValue.Elem())
	}

	results := t.method.Func.Call(inputs)
	if len(results) == 0 {
		return []byte(`{}`), nil
	}
	if last := results[len(results)-1]; last.Type() == reflect.TypeOf((*error)(nil)).Elem() && !last.IsNil() {
		return nil, last.Interface().(error)
	}
	if results[0].Kind() == reflect.String {
		return json.Marshal(results[0].String())
	}
	return json.Marshal(results[0].Interface())
}

// schemaFor generates a JSON-Schema object for a method's parameter struct,
// falling back to an empty-object schema for parameterless tools.
func schemaFor(method reflect.Method) map[string]any {
	methodType := method.Type
	if methodType.NumIn() < 3 {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}

	paramType := methodType.In(2)
	if paramType.Kind() != reflect.Struct {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}

	properties := make(map[string]any)
	var required []string
	for i := 0; i < paramType.NumField(); i++ {
		field := paramType.Field(i)
		if !field.IsExported() {
			continue
		}
		jsonName := field.Name
		if tag := field.Tag.Get("json"); tag != "" {
			jsonName = strings.Split(tag, ",")[0]
		}
		properties[jsonName] = jsonSchemaType(field.Type)
		required = append(required, jsonName)
	}

	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func jsonSchemaType(t reflect.Type) map[string]any {
	switch t.Kind() {
	case reflect.String:
		return map[string]any{"type": "string"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return map[string]any{"type": "integer"}
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}
	case reflect.Bool:
		return map[string]any{"type": "boolean"}
	default:
		return map[string]any{"type": "object"}
	}
}

// DiscoverTools reflects over agent's exported methods (skipping any whose
// name is listed in skip) and wraps each as a FunctionTool; methods
// NewMethodTool rejects are left out.
func DiscoverTools(agent any, skip ...string) ([]FunctionTool, error) {
	if agent == nil {
		return nil, fmt.Errorf("tools: agent cannot be nil")
	}
	agentType := reflect.TypeOf(agent)
	if agentType.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("tools: agent must be a pointer to a struct")
	}

	skipSet := make(map[string]struct{}, len(skip))
	for _, s := range skip {
		skipSet[s] = struct{}{}
	}

	var out []FunctionTool
	for i := 0; i < agentType.NumMethod(); i++ {
		method := agentType.Method(i)
		if !method.IsExported() {
			continue
		}
		if _, skipped := skipSet[method.Name]; skipped {
			continue
		}
		tool, err := NewMethodTool(toSnakeCase(method.Name), fmt.Sprintf("Tool function: %s", method.Name), method, agent)
		if err != nil {
			continue
		}
		out = append(out, tool)
	}
	return out, nil
}

func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 && 'A' <= r && r <= 'Z' {
			b.WriteRune('_')
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}
