package messenger

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/m3rciful/mbot/core/logger"
	"log/slog"
)

// commandEntry is one command trigger in registration order. Exactly one
// of text/re is set.
type commandEntry struct {
	text    string
	re      *regexp.Regexp
	handler HandlerFunc
}

func (e commandEntry) match(text string) bool {
	if e.re != nil {
		return e.re.MatchString(text)
	}
	return text == e.text
}

func (e commandEntry) name() string {
	if e.re != nil {
		return e.re.String()
	}
	return e.text
}

// hearsEntry is one text pattern in registration order. String patterns
// match as case-insensitive substrings, regex patterns as-is.
type hearsEntry struct {
	substr  string
	raw     string
	re      *regexp.Regexp
	handler HandlerFunc
}

func (e hearsEntry) match(text string) bool {
	if e.re != nil {
		return e.re.MatchString(text)
	}
	return strings.Contains(strings.ToLower(text), e.substr)
}

func (e hearsEntry) name() string {
	if e.re != nil {
		return e.re.String()
	}
	return e.raw
}

// hearsMatch pairs a matched pattern with its handler for dispatch.
type hearsMatch struct {
	pattern string
	handler HandlerFunc
}

// Registry holds handler registrations for one bot: ordered command and
// hears lists, the action payload map, and generic per-event handlers.
type Registry struct {
	mu       sync.RWMutex
	commands []commandEntry
	hears    []hearsEntry
	actions  map[string]HandlerFunc
	generic  map[string][]HandlerFunc
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		actions: make(map[string]HandlerFunc),
		generic: make(map[string][]HandlerFunc),
	}
}

// RegisterOn appends a generic handler for the given event type. Every
// registered handler for a type runs on each matching event. Unknown
// event types are skipped with a warning.
func (r *Registry) RegisterOn(event string, h HandlerFunc) {
	if r == nil || h == nil {
		registerSkip("register.on.skip", slog.String("event_type", event), "invalid")
		return
	}
	if _, ok := knownEventTypes[event]; !ok {
		registerSkip("register.on.skip", slog.String("event_type", event), "unknown_event")
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generic[event] = append(r.generic[event], h)
}

// RegisterCommand adds command triggers for the handler. A trigger is a
// string matched against the full message text or a *regexp.Regexp;
// slices register each element. Dispatch scans commands in registration
// order and stops at the first match, so a duplicate string trigger is
// unreachable and gets skipped with a warning.
func (r *Registry) RegisterCommand(trigger any, h HandlerFunc) {
	if r == nil || h == nil {
		registerSkip("register.command.skip", slog.String("command", triggerName(trigger)), "invalid")
		return
	}
	switch t := trigger.(type) {
	case string:
		r.registerCommandString(t, h)
	case *regexp.Regexp:
		if t == nil {
			registerSkip("register.command.skip", slog.String("command", ""), "invalid")
			return
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		r.commands = append(r.commands, commandEntry{re: t, handler: h})
	case []string:
		for _, s := range t {
			r.RegisterCommand(s, h)
		}
	case []any:
		for _, v := range t {
			r.RegisterCommand(v, h)
		}
	default:
		registerSkip("register.command.skip", slog.String("command", triggerName(trigger)), "unsupported_type")
	}
}

func (r *Registry) registerCommandString(text string, h HandlerFunc) {
	text = strings.TrimSpace(text)
	if text == "" {
		registerSkip("register.command.skip", slog.String("command", text), "empty")
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.commands {
		if e.re == nil && e.text == text {
			logger.Warn(context.Background(), "bot.wire", "register.command.duplicate",
				slog.String("command", text),
			)
			return
		}
	}
	r.commands = append(r.commands, commandEntry{text: text, handler: h})
}

// RegisterHears adds text patterns for the handler. A string pattern is
// a case-insensitive substring, a *regexp.Regexp matches as-is; slices
// register each element. Unlike commands, every matching hears handler
// runs, so duplicates are legal and fire once per registration.
func (r *Registry) RegisterHears(pattern any, h HandlerFunc) {
	if r == nil || h == nil {
		registerSkip("register.hears.skip", slog.String("pattern", triggerName(pattern)), "invalid")
		return
	}
	switch p := pattern.(type) {
	case string:
		if strings.TrimSpace(p) == "" {
			registerSkip("register.hears.skip", slog.String("pattern", p), "empty")
			return
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		r.hears = append(r.hears, hearsEntry{substr: strings.ToLower(p), raw: p, handler: h})
	case *regexp.Regexp:
		if p == nil {
			registerSkip("register.hears.skip", slog.String("pattern", ""), "invalid")
			return
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		r.hears = append(r.hears, hearsEntry{re: p, handler: h})
	case []string:
		for _, s := range p {
			r.RegisterHears(s, h)
		}
	case []any:
		for _, v := range p {
			r.RegisterHears(v, h)
		}
	default:
		registerSkip("register.hears.skip", slog.String("pattern", triggerName(pattern)), "unsupported_type")
	}
}

// RegisterAction binds payload keys to the handler. Accepts a string or
// a []string. Lookup is by exact key; registering an existing payload
// replaces the previous handler with a warning.
func (r *Registry) RegisterAction(payload any, h HandlerFunc) {
	if r == nil || h == nil {
		registerSkip("register.action.skip", slog.String("action", triggerName(payload)), "invalid")
		return
	}
	switch p := payload.(type) {
	case string:
		if p == "" {
			registerSkip("register.action.skip", slog.String("action", p), "empty")
			return
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, exists := r.actions[p]; exists {
			logger.Warn(context.Background(), "bot.wire", "register.action.duplicate",
				slog.String("action", p),
			)
		}
		r.actions[p] = h
	case []string:
		for _, s := range p {
			r.RegisterAction(s, h)
		}
	default:
		registerSkip("register.action.skip", slog.String("action", triggerName(payload)), "unsupported_type")
	}
}

// matchCommand returns the first command entry matching the text.
func (r *Registry) matchCommand(text string) (string, HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.commands {
		if e.match(text) {
			return e.name(), e.handler, true
		}
	}
	return "", nil, false
}

// matchHears returns every hears entry matching the text, in
// registration order.
func (r *Registry) matchHears(text string) []hearsMatch {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []hearsMatch
	for _, e := range r.hears {
		if e.match(text) {
			out = append(out, hearsMatch{pattern: e.name(), handler: e.handler})
		}
	}
	return out
}

// GetAction returns the handler registered for the payload key.
func (r *Registry) GetAction(payload string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.actions[payload]
	return h, ok
}

// HandlersFor returns a snapshot of the generic handlers for the event
// type.
func (r *Registry) HandlersFor(event string) []HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hs := r.generic[event]
	if len(hs) == 0 {
		return nil
	}
	out := make([]HandlerFunc, len(hs))
	copy(out, hs)
	return out
}

// ListActions returns sorted action payload keys (for diagnostics).
func (r *Registry) ListActions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.actions))
	for k := range r.actions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Counts reports registration totals per registry kind.
func (r *Registry) Counts() (commands, hears, actions, generic int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, hs := range r.generic {
		generic += len(hs)
	}
	return len(r.commands), len(r.hears), len(r.actions), generic
}

func registerSkip(event string, key slog.Attr, reason string) {
	logger.Warn(context.Background(), "bot.wire", event,
		key,
		slog.String("reason", reason),
	)
}

func triggerName(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case *regexp.Regexp:
		if t != nil {
			return t.String()
		}
	}
	return ""
}
