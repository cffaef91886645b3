package llmprovider

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// ToolSet holds the tools available to one generation, keyed by name.
// It is owned by the caller and safe for concurrent reads.
type ToolSet struct {
	tools map[string]*Tool
	mu    sync.RWMutex
}

// NewToolSet creates a tool set from the given tools.
func NewToolSet(tools ...*Tool) (*ToolSet, error) {
	ts := &ToolSet{tools: make(map[string]*Tool, len(tools))}
	for _, tool := range tools {
		if err := ts.Register(tool); err != nil {
			return nil, err
		}
	}
	return ts, nil
}

// Register adds a tool to the set
func (s *ToolSet) Register(tool *Tool) error {
	if tool == nil {
		return fmt.Errorf("tool is required")
	}
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("tool %s: %w", tool.Function.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tools[tool.Function.Name]; exists {
		return fmt.Errorf("tool %s is already registered", tool.Function.Name)
	}

	s.tools[tool.Function.Name] = tool
	return nil
}

// Unregister removes a tool from the set
func (s *ToolSet) Unregister(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tools[name]; !exists {
		return fmt.Errorf("tool %s is not registered", name)
	}

	delete(s.tools, name)
	return nil
}

// Get retrieves a tool by name
func (s *ToolSet) Get(name string) (*Tool, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	tool, exists := s.tools[name]
	return tool, exists
}

// Len returns the number of tools
func (s *ToolSet) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tools)
}

// Names returns all tool names, sorted
func (s *ToolSet) Names() []string {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the tools in name order for inclusion in a request.
func (s *ToolSet) Definitions() []Tool {
	names := s.Names()
	defs := make([]Tool, 0, len(names))
	for _, name := range names {
		tool, _ := s.Get(name)
		defs = append(defs, *tool)
	}
	return defs
}

// ParseToolCall resolves a tool call against the set and validates its
// arguments. Failures are *NoSuchToolError or *ToolArgumentsError.
func (s *ToolSet) ParseToolCall(call ToolCall) (*Tool, json.RawMessage, error) {
	tool, ok := s.Get(call.ToolName)
	if !ok {
		return nil, nil, &NoSuchToolError{
			ToolCallID:     call.ToolCallID,
			ToolName:       call.ToolName,
			AvailableTools: s.Names(),
		}
	}

	args, err := tool.ValidateArgs(call.Args)
	if err != nil {
		return nil, nil, &ToolArgumentsError{
			ToolCallID: call.ToolCallID,
			ToolName:   call.ToolName,
			Args:       string(call.Args),
			Err:        err,
		}
	}
	return tool, args, nil
}
