package commands

import (
	"fmt"
	"strings"
	"sync"
	"unicode"
)

// Registry manages command registration and lookup. Commands keep the
// position of their first registration.
type Registry struct {
	commands map[string]*Command
	order    []string
	photo    PhotoHandler
	mu       sync.RWMutex
}

// NewRegistry creates a new command registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]*Command),
	}
}

// Normalize lowercases name and strips a leading slash.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))
}

// Register adds cmd, or replaces the command already registered under the
// same name without moving it.
func (r *Registry) Register(cmd *Command) error {
	if cmd == nil {
		return fmt.Errorf("command cannot be nil")
	}

	name := Normalize(cmd.Name)
	if name == "" {
		return ErrEmptyName
	}
	if cmd.Handler == nil {
		return fmt.Errorf("%s: %w", name, ErrNilHandler)
	}

	stored := *cmd
	stored.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[name]; !exists {
		r.order = append(r.order, name)
	}
	r.commands[name] = &stored
	return nil
}

// Get retrieves a command by name.
func (r *Registry) Get(name string) (*Command, bool) {
	name = Normalize(name)

	r.mu.RLock()
	defer r.mu.RUnlock()

	cmd, exists := r.commands[name]
	return cmd, exists
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns the command names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// List returns all registered commands in registration order.
func (r *Registry) List() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmds := make([]*Command, 0, len(r.order))
	for _, name := range r.order {
		cmds = append(cmds, r.commands[name])
	}
	return cmds
}

// SetPhotoHandler installs the photo handler, replacing any previous one.
func (r *Registry) SetPhotoHandler(h PhotoHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.photo = h
}

// PhotoHandler returns the current photo handler, or nil.
func (r *Registry) PhotoHandler() PhotoHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.photo
}

// Parse parses a command from text.
// Returns command name and arguments; the name is empty if text is not a
// command. A "@botname" suffix on the command is dropped.
func (r *Registry) Parse(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}

	head, args := text, ""
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		head, args = text[:i], strings.TrimSpace(text[i:])
	}
	if at := strings.Index(head, "@"); at > 0 {
		head = head[:at]
	}

	return Normalize(head), args
}
