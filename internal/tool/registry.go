package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"calendarbot/internal/domain"
)

var (
	ErrUnknownTool      = errors.New("unknown tool")
	ErrInvalidArguments = errors.New("invalid arguments")
	ErrDuplicateTool    = errors.New("tool already registered")
)

// Name is the closed set of tools the model may call.
type Name string

const (
	SavePreference      Name = "save_preference"
	AddEvents           Name = "add_events"
	GetEvents           Name = "get_events"
	DeleteEvent         Name = "delete_event"
	UpdateEvent         Name = "update_event"
	FindAvailableSlots  Name = "find_available_slots"
	GetWeather          Name = "get_weather"
	DeleteEventsByQuery Name = "delete_events_by_query"
)

// Names lists every tool in the order definitions are sent to the model.
var Names = []Name{
	SavePreference, AddEvents, GetEvents, DeleteEvent,
	UpdateEvent, FindAvailableSlots, GetWeather, DeleteEventsByQuery,
}

func (n Name) Valid() bool {
	for _, k := range Names {
		if k == n {
			return true
		}
	}
	return false
}

// Handler runs a tool with validated arguments.
type Handler func(ctx context.Context, args Args, caller domain.Caller) Outcome

// Summarizer renders an outcome into the text the model reads, without the
// status prefix.
type Summarizer func(o Outcome) (string, error)

// Definition binds a tool name to its schema and behaviour.
type Definition struct {
	Name        Name
	Description string
	Schema      Schema
	Handler     Handler
	Summarize   Summarizer
}

// Registry holds the tools available to the dispatcher.
type Registry struct {
	mu     sync.RWMutex
	tools  map[Name]Definition
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tools:  make(map[Name]Definition),
		logger: logger,
	}
}

// Register adds a tool. Names outside the closed set, duplicates and
// definitions without a handler are rejected.
func (r *Registry) Register(def Definition) error {
	if !def.Name.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownTool, def.Name)
	}
	if def.Handler == nil {
		return fmt.Errorf("tool %s has no handler", def.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[def.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, def.Name)
	}
	r.tools[def.Name] = def
	r.logger.Debug("registered tool", "name", def.Name)
	return nil
}

func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[Name(name)]
	return def, ok
}

// GetDefinitions returns tool definitions in OpenAI-compatible format for the LLM.
func (r *Registry) GetDefinitions() []domain.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]domain.ToolDefinition, 0, len(r.tools))
	for _, n := range Names {
		t, ok := r.tools[n]
		if !ok {
			continue
		}
		defs = append(defs, domain.ToolDefinition{
			Name:        string(t.Name),
			Description: t.Description,
			Parameters:  t.Schema.JSON(),
		})
	}
	return defs
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for _, n := range Names {
		if _, ok := r.tools[n]; ok {
			names = append(names, string(n))
		}
	}
	return names
}
