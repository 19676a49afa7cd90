package router

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"botfleet/core/logger"
)

// HandlerFunc processes one normalized event.
type HandlerFunc func(ev *Event) error

// Middleware wraps a handler with cross-cutting behaviour.
type Middleware func(next HandlerFunc) HandlerFunc

// Command couples a handler with its routing metadata.
type Command struct {
	Handler     HandlerFunc
	Description string
	// OwnerOnly restricts the command to the bot's owner; other senders
	// fall through to the text fallback.
	OwnerOnly bool
	Hidden    bool
	Aliases   []string
}

// Registry maps slash commands and callback names to handlers.
type Registry struct {
	commands map[string]Command

	actionsMu      sync.RWMutex
	actions        map[string]HandlerFunc
	actionNotFound HandlerFunc
	textFallback   HandlerFunc
}

// NewRegistry creates an empty Registry with default fallbacks.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]Command),
		actions:  make(map[string]HandlerFunc),
		actionNotFound: func(ev *Event) error {
			return ev.Reply("This button is no longer supported.")
		},
	}
}

// RegisterCommand adds a command. Invalid or duplicate registrations are
// logged and skipped.
func (r *Registry) RegisterCommand(name string, cmd Command) {
	ctx := logger.Background()
	if r == nil || name == "" || cmd.Handler == nil || cmd.Description == "" {
		logger.Warn(ctx, "wire", "register.command.skip",
			slog.String("name", name),
			slog.String("reason", "invalid"),
		)
		return
	}
	if name[0] != '/' {
		logger.Warn(ctx, "wire", "register.command.skip",
			slog.String("name", name),
			slog.String("reason", "no_slash_prefix"),
		)
		return
	}
	if _, exists := r.commands[name]; exists {
		logger.Warn(ctx, "wire", "register.command.duplicate", slog.String("name", name))
		return
	}
	r.commands[name] = cmd
}

// LookupCommand resolves a command by name or alias.
func (r *Registry) LookupCommand(name string) (string, Command, bool) {
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	if cmd, ok := r.commands[name]; ok {
		return name, cmd, true
	}
	for key, cmd := range r.commands {
		for _, alias := range cmd.Aliases {
			if alias == name || "/"+alias == name {
				return key, cmd, true
			}
		}
	}
	return "", Command{}, false
}

// ListCommands returns registered commands sorted by name, optionally hiding
// owner-only and hidden ones.
func (r *Registry) ListCommands(visibleOnly bool) []string {
	var list []string
	for name, meta := range r.commands {
		if visibleOnly && (meta.Hidden || meta.OwnerOnly) {
			continue
		}
		list = append(list, name)
	}
	sort.Strings(list)
	return list
}

// RegisterAction adds a callback handler under its wire name.
func (r *Registry) RegisterAction(name string, handler HandlerFunc) {
	ctx := logger.Background()
	if r == nil || name == "" || handler == nil {
		logger.Warn(ctx, "wire", "register.action.skip", slog.String("name", name))
		return
	}
	r.actionsMu.Lock()
	defer r.actionsMu.Unlock()
	if _, exists := r.actions[name]; exists {
		logger.Warn(ctx, "wire", "register.action.duplicate", slog.String("name", name))
		return
	}
	r.actions[name] = handler
}

// GetAction returns the handler registered under name.
func (r *Registry) GetAction(name string) (HandlerFunc, bool) {
	r.actionsMu.RLock()
	defer r.actionsMu.RUnlock()
	h, ok := r.actions[name]
	return h, ok
}

// ListActions returns sorted action names, for diagnostics.
func (r *Registry) ListActions() []string {
	r.actionsMu.RLock()
	defer r.actionsMu.RUnlock()
	names := make([]string, 0, len(r.actions))
	for k := range r.actions {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ActionNotFound returns the unknown-callback fallback.
func (r *Registry) ActionNotFound() HandlerFunc {
	return r.actionNotFound
}

// SetTextFallback sets the handler for plain messages no command claims.
func (r *Registry) SetTextFallback(h HandlerFunc) {
	r.textFallback = h
}

// TextFallback returns the current plain-message fallback.
func (r *Registry) TextFallback() HandlerFunc {
	return r.textFallback
}
