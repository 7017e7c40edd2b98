package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"kakehashi/internal/domain/models/chat"
)

// mockTool is a test implementation of Executor.
type mockTool struct {
	name       string
	delay      time.Duration
	shouldFail bool
	execCount  int
	mu         sync.Mutex
}

func (m *mockTool) Execute(ctx context.Context, input map[string]interface{}) (interface{}, error) {
	m.mu.Lock()
	m.execCount++
	m.mu.Unlock()

	// Simulate work with delay
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.shouldFail {
		return nil, errors.New("mock tool failed")
	}

	return map[string]interface{}{
		"tool":  m.name,
		"input": input,
	}, nil
}

func (m *mockTool) getExecCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.execCount
}

func defFor(name string) chat.ToolDefinition {
	return chat.ToolDefinition{
		Name:        name,
		Description: "test tool",
		Parameters:  map[string]interface{}{"type": "object"},
	}
}

func TestNewRegistry(t *testing.T) {
	registry := NewRegistry()
	if registry == nil {
		t.Fatal("NewRegistry returned nil")
	}
	if registry.executors == nil {
		t.Fatal("registry.executors is nil")
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	registry := NewRegistry()
	tool := &mockTool{name: "test_tool"}

	// Register the tool
	registry.Register(defFor("test_tool"), tool)

	// Retrieve the tool
	retrieved := registry.Get("test_tool")
	if retrieved == nil {
		t.Fatal("Get returned nil for registered tool")
	}
	if retrieved != tool {
		t.Error("Get returned different tool instance")
	}

	// Try to get a non-existent tool
	nonExistent := registry.Get("non_existent")
	if nonExistent != nil {
		t.Error("Get returned non-nil for non-existent tool")
	}
}

func TestRegistry_Definitions_Order(t *testing.T) {
	registry := NewRegistry()

	names := []string{"gamma", "alpha", "beta"}
	for _, name := range names {
		registry.Register(defFor(name), &mockTool{name: name})
	}

	defs := registry.Definitions()
	if len(defs) != 3 {
		t.Fatalf("expected 3 definitions, got %d", len(defs))
	}
	for i, name := range names {
		if defs[i].Name != name {
			t.Errorf("definition %d: got %s, expected %s", i, defs[i].Name, name)
		}
	}

	// Re-registering an existing name must not duplicate it
	registry.Register(defFor("alpha"), &mockTool{name: "alpha"})
	if got := len(registry.Definitions()); got != 3 {
		t.Errorf("expected 3 definitions after re-register, got %d", got)
	}
}

func TestRegistry_Execute(t *testing.T) {
	registry := NewRegistry()
	ctx := context.Background()

	t.Run("successful execution", func(t *testing.T) {
		tool := &mockTool{name: "success_tool"}
		registry.Register(defFor("success_tool"), tool)

		call := Call{
			ID:    "call_1",
			Name:  "success_tool",
			Input: map[string]interface{}{"param": "value"},
		}

		result := registry.Execute(ctx, call)

		if result.IsError {
			t.Errorf("expected success, got error: %v", result.Error)
		}
		if result.ID != "call_1" {
			t.Errorf("expected ID 'call_1', got %s", result.ID)
		}
		if result.Result == nil {
			t.Error("expected non-nil result")
		}
	})

	t.Run("tool not found", func(t *testing.T) {
		call := Call{
			ID:   "call_2",
			Name: "non_existent_tool",
		}

		result := registry.Execute(ctx, call)

		if !result.IsError {
			t.Error("expected error for non-existent tool")
		}
		if result.Error == nil {
			t.Error("expected non-nil error")
		}
		if result.ID != "call_2" {
			t.Errorf("expected ID 'call_2', got %s", result.ID)
		}
	})

	t.Run("tool execution failure", func(t *testing.T) {
		tool := &mockTool{name: "fail_tool", shouldFail: true}
		registry.Register(defFor("fail_tool"), tool)

		call := Call{
			ID:   "call_3",
			Name: "fail_tool",
		}

		result := registry.Execute(ctx, call)

		if !result.IsError {
			t.Error("expected error for failed tool execution")
		}
		if result.Error == nil {
			t.Error("expected non-nil error")
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		tool := &mockTool{name: "slow_tool", delay: 500 * time.Millisecond}
		registry.Register(defFor("slow_tool"), tool)

		ctx, cancel := context.WithCancel(context.Background())
		cancel() // Cancel immediately

		call := Call{
			ID:   "call_4",
			Name: "slow_tool",
		}

		result := registry.Execute(ctx, call)

		if !result.IsError {
			t.Error("expected error for cancelled context")
		}
		if !errors.Is(result.Error, context.Canceled) {
			t.Errorf("expected context.Canceled error, got: %v", result.Error)
		}
	})
}

func TestRegistry_ExecuteParallel(t *testing.T) {
	t.Run("empty calls", func(t *testing.T) {
		registry := NewRegistry()
		results := registry.ExecuteParallel(context.Background(), []Call{})

		if len(results) != 0 {
			t.Errorf("expected 0 results, got %d", len(results))
		}
	})

	t.Run("parallel execution is faster than serial", func(t *testing.T) {
		registry := NewRegistry()

		// Create 3 tools that each take 100ms
		for i := 0; i < 3; i++ {
			name := fmt.Sprintf("tool_%d", i)
			registry.Register(defFor(name), &mockTool{name: name, delay: 100 * time.Millisecond})
		}

		calls := []Call{
			{ID: "call_0", Name: "tool_0"},
			{ID: "call_1", Name: "tool_1"},
			{ID: "call_2", Name: "tool_2"},
		}

		start := time.Now()
		results := registry.ExecuteParallel(context.Background(), calls)
		elapsed := time.Since(start)

		// Parallel execution should take ~100ms (not ~300ms for serial)
		// Allow some overhead, so check if it's less than 200ms
		if elapsed > 200*time.Millisecond {
			t.Errorf("parallel execution took too long: %v (expected < 200ms)", elapsed)
		}

		if len(results) != 3 {
			t.Fatalf("expected 3 results, got %d", len(results))
		}

		for i, result := range results {
			if result.IsError {
				t.Errorf("result %d has error: %v", i, result.Error)
			}
		}
	})

	t.Run("order preservation", func(t *testing.T) {
		registry := NewRegistry()

		// Different delays so tools finish out of call order
		delays := []time.Duration{
			50 * time.Millisecond,
			10 * time.Millisecond,
			100 * time.Millisecond,
		}

		for i, delay := range delays {
			name := fmt.Sprintf("tool_%d", i)
			registry.Register(defFor(name), &mockTool{name: name, delay: delay})
		}

		calls := []Call{
			{ID: "call_0", Name: "tool_0"},
			{ID: "call_1", Name: "tool_1"},
			{ID: "call_2", Name: "tool_2"},
		}

		results := registry.ExecuteParallel(context.Background(), calls)

		if len(results) != 3 {
			t.Fatalf("expected 3 results, got %d", len(results))
		}

		for i, result := range results {
			expectedID := fmt.Sprintf("call_%d", i)
			if result.ID != expectedID {
				t.Errorf("result %d has wrong ID: got %s, expected %s", i, result.ID, expectedID)
			}

			if result.IsError {
				t.Errorf("result %d has error: %v", i, result.Error)
			}

			resultMap, ok := result.Result.(map[string]interface{})
			if !ok {
				t.Errorf("result %d is not a map", i)
				continue
			}
			expectedToolName := fmt.Sprintf("tool_%d", i)
			if resultMap["tool"] != expectedToolName {
				t.Errorf("result %d has wrong tool name: got %v, expected %s", i, resultMap["tool"], expectedToolName)
			}
		}
	})

	t.Run("context cancellation propagation", func(t *testing.T) {
		registry := NewRegistry()

		for i := 0; i < 3; i++ {
			name := fmt.Sprintf("tool_%d", i)
			registry.Register(defFor(name), &mockTool{name: name, delay: 500 * time.Millisecond})
		}

		calls := []Call{
			{ID: "call_0", Name: "tool_0"},
			{ID: "call_1", Name: "tool_1"},
			{ID: "call_2", Name: "tool_2"},
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel() // Cancel immediately

		results := registry.ExecuteParallel(ctx, calls)

		for i, result := range results {
			if !result.IsError {
				t.Errorf("result %d should have error due to context cancellation", i)
			}
			if result.Error != nil && !errors.Is(result.Error, context.Canceled) {
				t.Errorf("result %d has wrong error type: %v", i, result.Error)
			}
		}
	})

	t.Run("mixed success and failure", func(t *testing.T) {
		registry := NewRegistry()

		registry.Register(defFor("success_tool"), &mockTool{name: "success_tool"})
		registry.Register(defFor("fail_tool"), &mockTool{name: "fail_tool", shouldFail: true})

		calls := []Call{
			{ID: "call_0", Name: "success_tool"},
			{ID: "call_1", Name: "fail_tool"},
			{ID: "call_2", Name: "non_existent"},
			{ID: "call_3", Name: "success_tool"},
		}

		results := registry.ExecuteParallel(context.Background(), calls)

		if len(results) != 4 {
			t.Fatalf("expected 4 results, got %d", len(results))
		}

		if results[0].IsError {
			t.Errorf("result 0 should succeed, got error: %v", results[0].Error)
		}
		if !results[1].IsError {
			t.Error("result 1 should fail")
		}
		if !results[2].IsError {
			t.Error("result 2 should fail (tool not found)")
		}
		if results[3].IsError {
			t.Errorf("result 3 should succeed, got error: %v", results[3].Error)
		}
	})

	t.Run("high concurrency thread-safety", func(t *testing.T) {
		registry := NewRegistry()

		tool := &mockTool{name: "concurrent_tool"}
		registry.Register(defFor("concurrent_tool"), tool)

		calls := make([]Call, 100)
		for i := 0; i < 100; i++ {
			calls[i] = Call{
				ID:    fmt.Sprintf("call_%d", i),
				Name:  "concurrent_tool",
				Input: map[string]interface{}{"index": i},
			}
		}

		results := registry.ExecuteParallel(context.Background(), calls)

		if len(results) != 100 {
			t.Fatalf("expected 100 results, got %d", len(results))
		}

		for i, result := range results {
			if result.IsError {
				t.Errorf("result %d has error: %v", i, result.Error)
			}
			expectedID := fmt.Sprintf("call_%d", i)
			if result.ID != expectedID {
				t.Errorf("result %d has wrong ID: got %s, expected %s", i, result.ID, expectedID)
			}
		}

		if tool.getExecCount() != 100 {
			t.Errorf("expected 100 executions, got %d", tool.getExecCount())
		}
	})
}

func TestRegistry_ConcurrentRegisterAndGet(t *testing.T) {
	registry := NewRegistry()
	var wg sync.WaitGroup

	// Concurrently register and get tools
	for i := 0; i < 50; i++ {
		wg.Add(2)

		go func(index int) {
			defer wg.Done()
			name := fmt.Sprintf("tool_%d", index)
			registry.Register(defFor(name), &mockTool{name: name})
		}(i)

		go func(index int) {
			defer wg.Done()
			// May or may not find the tool depending on race
			_ = registry.Get(fmt.Sprintf("tool_%d", index))
		}(i)
	}

	wg.Wait()

	// Verify all tools are registered
	for i := 0; i < 50; i++ {
		tool := registry.Get(fmt.Sprintf("tool_%d", i))
		if tool == nil {
			t.Errorf("tool_%d not found after concurrent registration", i)
		}
	}
}
