// Package scene implements multi-step conversation flows. A scene is a
// named, ordered list of step handlers; the current position is kept in
// the user's session, so a flow survives process restarts when the
// session store is durable.
package scene

import (
	"errors"
	"time"

	"github.com/m3rciful/mbot/core/logger"
	"github.com/m3rciful/mbot/core/messenger"
	"github.com/m3rciful/mbot/core/session"
	"log/slog"
)

// ErrStay is returned by a step handler to stay on the current step and
// re-prompt, typically after failed validation. It is not an error to
// the rest of the pipeline: the pass continues normally, only the
// auto-advance is suppressed.
var ErrStay = errors.New("scene: stay on current step")

// Session keys holding the cursor of the active scene.
const (
	sceneKey = "__scene"
	stepKey  = "step"
)

// Pass-scoped stash keys for the scene backreference and the stop mark.
const (
	stashScene   = "scene"
	stashStopped = "scene_stopped"
)

// Scene is a named ordered sequence of step handlers. Immutable after
// construction; register it with a Manager to make it resumable.
type Scene struct {
	name  string
	steps []messenger.HandlerFunc
}

// New builds a scene. Zero steps is legal: entering such a scene exits
// it again before Enter returns.
func New(name string, steps ...messenger.HandlerFunc) *Scene {
	return &Scene{name: name, steps: steps}
}

// Name returns the scene's registry name.
func (s *Scene) Name() string {
	return s.name
}

// Len returns the number of steps.
func (s *Scene) Len() int {
	return len(s.steps)
}

// Enter activates the scene for this user: the cursor is written to the
// session, the scene is attached to the pass, and step 0 runs
// immediately under the normal advance rule.
func (s *Scene) Enter(c messenger.Context) error {
	sess := c.Session()
	sess.Set(sceneKey, s.name)
	sess.Set(stepKey, 0)
	c.Set(stashScene, s)
	c.Set(stashStopped, false)

	logger.Debug(c.Context(), "scene", "scene.enter",
		slog.String("scene", s.name),
	)
	return s.Handle(c)
}

// Handle runs the current step and applies the advance rule: the cursor
// moves forward one step only when the handler left it untouched, the
// event carried text, and the handler did not ask to stay. A cursor at
// or past the step count means the flow is complete and leaves instead.
//
// The advance comparison is against the raw session value, so a handler
// that leaves the scene (wiping the cursor) or repositions it is never
// double-advanced.
func (s *Scene) Handle(c messenger.Context) error {
	sess := c.Session()
	before, _ := rawStep(sess)

	if before >= len(s.steps) {
		return s.Leave(c)
	}

	c.Set(stashScene, s)

	start := time.Now()
	err := s.steps[before](c)
	stay := errors.Is(err, ErrStay)

	outcome := "ok"
	status := "ok"
	switch {
	case stay:
		outcome = "stay"
	case err != nil:
		outcome = "fail"
		status = "fail"
	}
	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("scene", s.name),
		slog.Int("step", before),
		slog.String("outcome", outcome),
		slog.Int64("duration_ms", logger.Took(start).Milliseconds()),
	}
	if err != nil && !stay {
		attrs = append(attrs, slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
	}
	logger.Info(c.Context(), "scene", "scene.step", attrs...)

	if err != nil && !stay {
		return err
	}

	if after, present := rawStep(sess); present && after == before && !stay && c.Text() != "" {
		sess.Set(stepKey, before+1)
	}
	return nil
}

// Leave ends the flow: every session key is removed, the scene is
// detached from the pass, and the pass is marked stopped so the manager
// does not re-enter the scene later in the same event.
func (s *Scene) Leave(c messenger.Context) error {
	c.Session().Reset()
	c.Set(stashScene, nil)
	c.Set(stashStopped, true)

	logger.Debug(c.Context(), "scene", "scene.leave",
		slog.String("scene", s.name),
	)
	return nil
}

// FromContext returns the scene attached to the current pass, nil when
// no scene is active.
func FromContext(c messenger.Context) *Scene {
	s, _ := c.Get(stashScene).(*Scene)
	return s
}

// Stopped reports whether a scene was left during this pass.
func Stopped(c messenger.Context) bool {
	b, _ := c.Get(stashStopped).(bool)
	return b
}

// rawStep reads the cursor without coercing absence to zero: a missing
// or non-numeric value reports present=false so the advance rule can
// tell "handler wiped the cursor" apart from "handler set it to 0".
func rawStep(sess *session.Session) (int, bool) {
	v, ok := sess.Get(stepKey)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	default:
		return 0, false
	}
}
