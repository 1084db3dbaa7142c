package scene

import (
	"context"
	"errors"
	"testing"

	"github.com/m3rciful/mbot/core/messenger"
	"github.com/m3rciful/mbot/core/session"
)

func testContext(t *testing.T, e *messenger.Event) messenger.Context {
	t.Helper()
	b, err := messenger.NewBot(messenger.Settings{Token: "test-token", Offline: true})
	if err != nil {
		t.Fatalf("NewBot: %v", err)
	}
	return b.NewContext(context.Background(), e)
}

func textEvent(text string) *messenger.Event {
	return &messenger.Event{
		Sender:    messenger.Principal{ID: "u1"},
		Recipient: messenger.Principal{ID: "p1"},
		Message:   &messenger.Message{MID: "m1", Text: text},
	}
}

func postbackEvent(payload string) *messenger.Event {
	return &messenger.Event{
		Sender:    messenger.Principal{ID: "u1"},
		Recipient: messenger.Principal{ID: "p1"},
		Postback:  &messenger.Postback{Payload: payload},
	}
}

func attachmentEvent() *messenger.Event {
	return &messenger.Event{
		Sender:    messenger.Principal{ID: "u1"},
		Recipient: messenger.Principal{ID: "p1"},
		Message: &messenger.Message{
			MID:         "m1",
			Attachments: []messenger.Attachment{{Type: messenger.AttachmentImage}},
		},
	}
}

func assertCursor(t *testing.T, store session.Store, id, scene string, step int) {
	t.Helper()
	sess, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	name, _ := sess.GetString(sceneKey)
	if name != scene {
		t.Fatalf("stored scene = %q, want %q", name, scene)
	}
	got, _ := sess.GetInt(stepKey)
	if got != step {
		t.Fatalf("stored step = %d, want %d", got, step)
	}
}

func TestSceneFlowTwoSteps(t *testing.T) {
	store := session.NewMemoryStore()
	m := NewManager(store)

	var ran []string
	m.Register(New("survey",
		func(c messenger.Context) error {
			ran = append(ran, "ask_name")
			return nil
		},
		func(c messenger.Context) error {
			ran = append(ran, "name:"+c.Text())
			c.Session().Set("name", c.Text())
			return nil
		},
	))
	mw := m.Middleware()

	fellThrough := 0
	enterNext := func(c messenger.Context) error {
		fellThrough++
		return m.Enter("survey")(c)
	}
	plainNext := func(c messenger.Context) error {
		fellThrough++
		return nil
	}

	// Event 1: no active scene yet, so the chain falls through and the
	// command handler enters. Step 0 runs; the text event advances the
	// cursor to 1.
	if err := mw(enterNext)(testContext(t, textEvent("/survey"))); err != nil {
		t.Fatalf("event 1: %v", err)
	}
	assertCursor(t, store, "u1", "survey", 1)

	// Event 2: the active scene claims the event. Step 1 reads the
	// answer and the cursor advances past the last step.
	if err := mw(plainNext)(testContext(t, textEvent("Alice"))); err != nil {
		t.Fatalf("event 2: %v", err)
	}
	assertCursor(t, store, "u1", "survey", 2)
	sess, _ := store.Get(context.Background(), "u1")
	if name, _ := sess.GetString("name"); name != "Alice" {
		t.Fatalf("stored name = %q, want Alice", name)
	}

	// Event 3: the cursor is past the end, so the scene consumes this
	// event to leave and the session is wiped.
	if err := mw(plainNext)(testContext(t, textEvent("whatever"))); err != nil {
		t.Fatalf("event 3: %v", err)
	}
	sess, _ = store.Get(context.Background(), "u1")
	if sess.Len() != 0 {
		t.Fatalf("session after leave = %v, want empty", sess.Map())
	}

	// Event 4: nothing active anymore, the chain runs normally again.
	if err := mw(plainNext)(testContext(t, textEvent("hello"))); err != nil {
		t.Fatalf("event 4: %v", err)
	}

	wantRan := []string{"ask_name", "name:Alice"}
	if len(ran) != len(wantRan) {
		t.Fatalf("ran = %v, want %v", ran, wantRan)
	}
	for i := range wantRan {
		if ran[i] != wantRan[i] {
			t.Fatalf("ran[%d] = %s, want %s", i, ran[i], wantRan[i])
		}
	}
	if fellThrough != 2 {
		t.Fatalf("chain fell through %d times, want 2 (events 1 and 4)", fellThrough)
	}
}

func TestSceneEnterWithoutTextStaysOnStepZero(t *testing.T) {
	m := NewManager(nil)
	ran := 0
	m.Register(New("flow",
		func(messenger.Context) error { ran++; return nil },
		func(messenger.Context) error { ran++; return nil },
	))
	mw := m.Middleware()

	enterNext := func(c messenger.Context) error { return m.Enter("flow")(c) }
	if err := mw(enterNext)(testContext(t, postbackEvent("START"))); err != nil {
		t.Fatalf("enter: %v", err)
	}

	// A postback carries no text, so the advance rule holds the cursor
	// and the next text event re-runs step 0's question flow from 0.
	assertCursor(t, m.Store(), "u1", "flow", 0)
	if ran != 1 {
		t.Fatalf("steps ran = %d, want 1", ran)
	}
}

func TestSceneAttachmentOnlyEventDoesNotAdvance(t *testing.T) {
	store := session.NewMemoryStore()
	m := NewManager(store)
	m.Register(New("flow",
		func(messenger.Context) error { return nil },
		func(messenger.Context) error { return nil },
	))
	seed := session.FromMap(map[string]any{sceneKey: "flow", stepKey: 0})
	if err := store.Set(context.Background(), "u1", seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	mw := m.Middleware()
	next := func(messenger.Context) error { t.Fatal("active scene must claim the event"); return nil }
	if err := mw(next)(testContext(t, attachmentEvent())); err != nil {
		t.Fatalf("handle: %v", err)
	}

	assertCursor(t, store, "u1", "flow", 0)
}

func TestSceneStayHoldsCursor(t *testing.T) {
	store := session.NewMemoryStore()
	m := NewManager(store)
	m.Register(New("guard",
		func(c messenger.Context) error {
			if c.Text() != "ok" {
				return ErrStay
			}
			return nil
		},
		func(messenger.Context) error { return nil },
	))
	mw := m.Middleware()
	enterNext := func(c messenger.Context) error { return m.Enter("guard")(c) }
	plainNext := func(messenger.Context) error { return nil }

	if err := mw(enterNext)(testContext(t, textEvent("/guard"))); err != nil {
		t.Fatalf("enter: %v", err)
	}
	assertCursor(t, store, "u1", "guard", 0)

	if err := mw(plainNext)(testContext(t, textEvent("still wrong"))); err != nil {
		t.Fatalf("stay pass: %v", err)
	}
	assertCursor(t, store, "u1", "guard", 0)

	if err := mw(plainNext)(testContext(t, textEvent("ok"))); err != nil {
		t.Fatalf("advance pass: %v", err)
	}
	assertCursor(t, store, "u1", "guard", 1)
}

func TestSceneStepErrorPropagatesAndHoldsCursor(t *testing.T) {
	store := session.NewMemoryStore()
	m := NewManager(store)
	boom := errors.New("step blew up")
	m.Register(New("fragile",
		func(messenger.Context) error { return boom },
		func(messenger.Context) error { return nil },
	))
	mw := m.Middleware()
	enterNext := func(c messenger.Context) error { return m.Enter("fragile")(c) }

	err := mw(enterNext)(testContext(t, textEvent("/fragile")))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}

	// The failing pass still persisted the cursor, un-advanced.
	assertCursor(t, store, "u1", "fragile", 0)
}

func TestSceneLeaveInsideStepWipesWithoutReadvance(t *testing.T) {
	store := session.NewMemoryStore()
	m := NewManager(store)
	m.Register(New("oneshot",
		func(c messenger.Context) error {
			return FromContext(c).Leave(c)
		},
		func(messenger.Context) error { return nil },
	))
	mw := m.Middleware()

	c := testContext(t, textEvent("/oneshot"))
	enterNext := func(c messenger.Context) error { return m.Enter("oneshot")(c) }
	if err := mw(enterNext)(c); err != nil {
		t.Fatalf("pass: %v", err)
	}

	// The handler wiped the cursor; the advance rule must not write a
	// fresh step into the emptied session even though the event had text.
	sess, _ := store.Get(context.Background(), "u1")
	if sess.Len() != 0 {
		t.Fatalf("session = %v, want empty", sess.Map())
	}
	if !Stopped(c) {
		t.Fatal("pass must be marked stopped after leave")
	}
}

func TestSceneRepositionedCursorNotAutoAdvanced(t *testing.T) {
	store := session.NewMemoryStore()
	m := NewManager(store)
	var ran []int
	m.Register(New("jump",
		func(messenger.Context) error { ran = append(ran, 0); return nil },
		func(c messenger.Context) error {
			ran = append(ran, 1)
			c.Session().Set(stepKey, 0)
			return nil
		},
		func(messenger.Context) error { ran = append(ran, 2); return nil },
	))
	seed := session.FromMap(map[string]any{sceneKey: "jump", stepKey: 1})
	if err := store.Set(context.Background(), "u1", seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	mw := m.Middleware()
	next := func(messenger.Context) error { return nil }
	if err := mw(next)(testContext(t, textEvent("back up"))); err != nil {
		t.Fatalf("pass: %v", err)
	}
	assertCursor(t, store, "u1", "jump", 0)

	if err := mw(next)(testContext(t, textEvent("again"))); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	assertCursor(t, store, "u1", "jump", 1)

	want := []int{1, 0}
	if len(ran) != len(want) || ran[0] != want[0] || ran[1] != want[1] {
		t.Fatalf("ran = %v, want %v", ran, want)
	}
}

func TestSceneZeroStepsLeavesImmediately(t *testing.T) {
	store := session.NewMemoryStore()
	m := NewManager(store)
	m.Register(New("empty"))
	mw := m.Middleware()

	c := testContext(t, textEvent("/empty"))
	enterNext := func(c messenger.Context) error { return m.Enter("empty")(c) }
	if err := mw(enterNext)(c); err != nil {
		t.Fatalf("pass: %v", err)
	}

	sess, _ := store.Get(context.Background(), "u1")
	if sess.Len() != 0 {
		t.Fatalf("session = %v, want empty", sess.Map())
	}
	if !Stopped(c) {
		t.Fatal("entering a zero-step scene must stop in the same pass")
	}
}

func TestSceneFromContextInsideStep(t *testing.T) {
	m := NewManager(nil)
	var seen string
	sc := New("who",
		func(c messenger.Context) error {
			if s := FromContext(c); s != nil {
				seen = s.Name()
			}
			return nil
		},
	)
	m.Register(sc)

	mw := m.Middleware()
	enterNext := func(c messenger.Context) error { return m.Enter("who")(c) }
	if err := mw(enterNext)(testContext(t, textEvent("/who"))); err != nil {
		t.Fatalf("pass: %v", err)
	}
	if seen != "who" {
		t.Fatalf("FromContext scene = %q, want who", seen)
	}
}

func TestRawStepCoercions(t *testing.T) {
	sess := session.New()

	if _, ok := rawStep(sess); ok {
		t.Fatal("absent cursor must report not present")
	}

	sess.Set(stepKey, 2)
	if got, ok := rawStep(sess); !ok || got != 2 {
		t.Fatalf("int cursor = (%d, %v), want (2, true)", got, ok)
	}

	// JSON round trips hand back float64.
	sess.Set(stepKey, float64(3))
	if got, ok := rawStep(sess); !ok || got != 3 {
		t.Fatalf("float cursor = (%d, %v), want (3, true)", got, ok)
	}

	sess.Set(stepKey, "not a number")
	if _, ok := rawStep(sess); ok {
		t.Fatal("non-numeric cursor must report not present")
	}
}
