package tool

import (
	"fmt"
	"log/slog"
	"sync"

	"donna-ai/internal/domain"
)

// Predicate gates a tool group for one snapshot. Predicates must be pure
// functions of their inputs; they are evaluated fresh on every Snapshot call.
type Predicate func(principal string, state domain.SessionState) bool

// Always is the predicate for unconditionally included groups.
func Always(string, domain.SessionState) bool { return true }

// group is a named set of tools behind one predicate.
type group struct {
	name  string
	pred  Predicate
	tools []domain.Tool
}

// Registry declares tool groups and composes per-turn snapshots.
// Registration happens once at startup; Snapshot is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	groups []group
	names  map[string]string // tool name -> group name, for duplicate detection
	logger *slog.Logger
}

// NewRegistry creates an empty registry. If logger is non-nil, registered
// tools are wrapped with JSON Schema argument validation; a schema that fails
// to compile registers the tool unwrapped with a warning.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		names:  make(map[string]string),
		logger: logger,
	}
}

// AddGroup registers a named tool group behind a predicate. Tool names must
// be unique across all groups so no snapshot can ever contain duplicates.
func (r *Registry) AddGroup(name string, pred Predicate, tools ...domain.Tool) error {
	if pred == nil {
		pred = Always
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	wrapped := make([]domain.Tool, 0, len(tools))
	for _, t := range tools {
		toolName := t.Name()
		if owner, exists := r.names[toolName]; exists {
			return fmt.Errorf("tool %q already registered in group %q", toolName, owner)
		}
		if r.logger != nil {
			v, err := WithSchemaValidation(t)
			if err != nil {
				r.logger.Warn("schema validation disabled for tool",
					"tool", toolName, "group", name, "error", err)
			} else {
				t = v
			}
		}
		r.names[toolName] = name
		wrapped = append(wrapped, t)
	}

	r.groups = append(r.groups, group{name: name, pred: pred, tools: wrapped})
	return nil
}

// Snapshot composes the tool set visible to one turn. It is a pure function
// of (principal, state): same inputs, same ordered tool name set. The
// returned snapshot implements domain.ToolExecutor.
func (r *Registry) Snapshot(principal string, state domain.SessionState) *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := &Snapshot{byName: make(map[string]domain.Tool)}
	for _, g := range r.groups {
		if !g.pred(principal, state) {
			continue
		}
		for _, t := range g.tools {
			snap.ordered = append(snap.ordered, t)
			snap.byName[t.Name()] = t
		}
	}
	return snap
}

// Snapshot is the ordered, name-unique tool set offered to one turn.
type Snapshot struct {
	ordered []domain.Tool
	byName  map[string]domain.Tool
}

// Get retrieves a tool by name from the snapshot.
func (s *Snapshot) Get(name string) (domain.Tool, error) {
	t, ok := s.byName[name]
	if !ok {
		return nil, domain.NewDomainError("Snapshot.Get", domain.ErrToolNotFound, name)
	}
	return t, nil
}

// Schemas returns the snapshot's tool schemas in registration order.
func (s *Snapshot) Schemas() []domain.ToolSchema {
	schemas := make([]domain.ToolSchema, 0, len(s.ordered))
	for _, t := range s.ordered {
		schemas = append(schemas, t.Schema())
	}
	return schemas
}

// Names returns the snapshot's tool names in registration order.
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.ordered))
	for _, t := range s.ordered {
		names = append(names, t.Name())
	}
	return names
}
