package messenger

import (
	"context"
	"errors"
	"testing"
)

func chainTestContext(t *testing.T) Context {
	t.Helper()
	b, err := NewBot(Settings{Token: "test-token", Offline: true})
	if err != nil {
		t.Fatalf("NewBot: %v", err)
	}
	return b.NewContext(context.Background(), &Event{
		Sender:  Principal{ID: "u1"},
		Message: &Message{MID: "m1", Text: "hello"},
	})
}

func TestChainRunsInRegistrationOrder(t *testing.T) {
	var order []string
	mw := func(name string) MiddlewareFunc {
		return func(next HandlerFunc) HandlerFunc {
			return func(c Context) error {
				order = append(order, name+".in")
				err := next(c)
				order = append(order, name+".out")
				return err
			}
		}
	}
	terminal := func(Context) error {
		order = append(order, "handler")
		return nil
	}

	chain := applyMiddleware(terminal, []MiddlewareFunc{mw("a"), mw("b")})
	if err := chain(chainTestContext(t)); err != nil {
		t.Fatalf("chain: %v", err)
	}

	want := []string{"a.in", "b.in", "handler", "b.out", "a.out"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestChainDoubleProceedRunsRemainderOnce(t *testing.T) {
	calls := 0
	double := func(next HandlerFunc) HandlerFunc {
		return func(c Context) error {
			if err := next(c); err != nil {
				return err
			}
			// The second call must be absorbed by the single-shot guard.
			return next(c)
		}
	}
	terminal := func(Context) error {
		calls++
		return nil
	}

	chain := applyMiddleware(terminal, []MiddlewareFunc{double})
	if err := chain(chainTestContext(t)); err != nil {
		t.Fatalf("chain: %v", err)
	}
	if calls != 1 {
		t.Fatalf("terminal handler ran %d times, want 1", calls)
	}
}

func TestChainGuardIsPerPass(t *testing.T) {
	calls := 0
	terminal := func(Context) error {
		calls++
		return nil
	}
	passthrough := func(next HandlerFunc) HandlerFunc {
		return next
	}
	mws := []MiddlewareFunc{passthrough}

	c := chainTestContext(t)
	for i := 0; i < 3; i++ {
		if err := applyMiddleware(terminal, mws)(c); err != nil {
			t.Fatalf("pass %d: %v", i, err)
		}
	}
	if calls != 3 {
		t.Fatalf("terminal handler ran %d times across passes, want 3", calls)
	}
}

func TestChainShortCircuitSkipsRemainder(t *testing.T) {
	ran := false
	silent := func(HandlerFunc) HandlerFunc {
		return func(Context) error { return nil }
	}
	terminal := func(Context) error {
		ran = true
		return nil
	}

	chain := applyMiddleware(terminal, []MiddlewareFunc{silent})
	if err := chain(chainTestContext(t)); err != nil {
		t.Fatalf("chain: %v", err)
	}
	if ran {
		t.Fatal("terminal handler ran despite short-circuit")
	}
}

func TestChainErrorStopsDownstream(t *testing.T) {
	boom := errors.New("boom")
	ran := false
	failing := func(next HandlerFunc) HandlerFunc {
		return func(Context) error { return boom }
	}
	terminal := func(Context) error {
		ran = true
		return nil
	}

	chain := applyMiddleware(terminal, []MiddlewareFunc{failing})
	err := chain(chainTestContext(t))
	if !errors.Is(err, boom) {
		t.Fatalf("chain error = %v, want %v", err, boom)
	}
	if ran {
		t.Fatal("terminal handler ran after a middleware error")
	}
}
