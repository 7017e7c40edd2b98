package tools

import (
	"context"
	"fmt"
	"sync"

	"kakehashi/internal/domain/models/chat"
)

// Call represents a single tool invocation request.
type Call struct {
	ID    string                 `json:"id"`    // tool_use_id from LLM
	Name  string                 `json:"name"`  // tool name
	Input map[string]interface{} `json:"input"` // tool parameters
}

// Result represents the result of a tool execution.
type Result struct {
	ID      string      `json:"id"`       // tool_use_id (matches Call.ID)
	Name    string      `json:"name"`     // tool name (matches Call.Name)
	Result  interface{} `json:"result"`   // execution result (nil if error)
	Error   error       `json:"error"`    // execution error (nil if success)
	IsError bool        `json:"is_error"` // whether execution failed
}

// Registry manages tool executors and their model-facing definitions.
// It is thread-safe and can be used concurrently.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
	defs      map[string]chat.ToolDefinition
	order     []string
}

// NewRegistry creates a new tool registry.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[string]Executor),
		defs:      make(map[string]chat.ToolDefinition),
	}
}

// Register adds a tool executor with its definition to the registry.
// If a tool with the same name already exists, it will be replaced;
// otherwise registration order is preserved for Definitions.
func (r *Registry) Register(def chat.ToolDefinition, executor Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.executors[def.Name]; !exists {
		r.order = append(r.order, def.Name)
	}
	r.executors[def.Name] = executor
	r.defs[def.Name] = def
}

// Get retrieves a tool executor by name.
// Returns nil if the tool is not registered.
func (r *Registry) Get(name string) Executor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.executors[name]
}

// Definitions returns the tool definitions in registration order.
func (r *Registry) Definitions() []chat.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]chat.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.defs[name])
	}
	return defs
}

// Execute runs a single tool and returns the result.
// A missing tool or a failed execution yields an error Result, not an error
// return, so callers handle all outcomes uniformly.
func (r *Registry) Execute(ctx context.Context, call Call) Result {
	executor := r.Get(call.Name)
	if executor == nil {
		return Result{
			ID:      call.ID,
			Name:    call.Name,
			Error:   fmt.Errorf("tool not found: %s", call.Name),
			IsError: true,
		}
	}

	result, err := executor.Execute(ctx, call.Input)
	if err != nil {
		return Result{
			ID:      call.ID,
			Name:    call.Name,
			Error:   err,
			IsError: true,
		}
	}

	return Result{
		ID:     call.ID,
		Name:   call.Name,
		Result: result,
	}
}

// ExecuteParallel runs multiple tools concurrently and returns results in the same order.
// This method uses goroutines for parallel execution while preserving result order.
// Context cancellation will stop all ongoing executions.
func (r *Registry) ExecuteParallel(ctx context.Context, calls []Call) []Result {
	if len(calls) == 0 {
		return []Result{}
	}

	results := make([]Result, len(calls))
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(index int, toolCall Call) {
			defer wg.Done()

			// Check context before executing
			select {
			case <-ctx.Done():
				results[index] = Result{
					ID:      toolCall.ID,
					Name:    toolCall.Name,
					Error:   ctx.Err(),
					IsError: true,
				}
				return
			default:
			}

			results[index] = r.Execute(ctx, toolCall)
		}(i, call)
	}

	wg.Wait()

	return results
}
