package messenger

import (
	"context"
	"errors"
	"regexp"
	"testing"
)

func newOfflineBot(t *testing.T, pref Settings) *Bot {
	t.Helper()
	if pref.Token == "" {
		pref.Token = "test-token"
	}
	pref.Offline = true
	b, err := NewBot(pref)
	if err != nil {
		t.Fatalf("NewBot: %v", err)
	}
	return b
}

func textEvent(text string) *Event {
	return &Event{
		Sender:    Principal{ID: "u1"},
		Recipient: Principal{ID: "p1"},
		Message:   &Message{MID: "m1", Text: text},
	}
}

func quickReplyEvent(text, payload string) *Event {
	e := textEvent(text)
	e.Message.QuickReply = &QuickReply{Payload: payload}
	return e
}

func postbackEvent(payload string) *Event {
	return &Event{
		Sender:    Principal{ID: "u1"},
		Recipient: Principal{ID: "p1"},
		Postback:  &Postback{Title: "Press", Payload: payload},
	}
}

func TestDispatchQuickReplyActionClaimsMessage(t *testing.T) {
	b := newOfflineBot(t, Settings{})
	var ran []string
	b.Action("PICK", func(Context) error { ran = append(ran, "action"); return nil })
	b.Command("pick", func(Context) error { ran = append(ran, "command"); return nil })
	b.Hears("pick", func(Context) error { ran = append(ran, "hears"); return nil })
	b.On(OnMessage, func(Context) error { ran = append(ran, "observer"); return nil })

	b.HandleEvent(context.Background(), quickReplyEvent("pick", "PICK"))

	want := []string{"action", "observer"}
	if len(ran) != len(want) {
		t.Fatalf("ran = %v, want %v", ran, want)
	}
	for i := range want {
		if ran[i] != want[i] {
			t.Fatalf("ran[%d] = %s, want %s", i, ran[i], want[i])
		}
	}
}

func TestDispatchUnregisteredQuickReplyFallsThrough(t *testing.T) {
	b := newOfflineBot(t, Settings{})
	var ran []string
	b.Command("pick", func(Context) error { ran = append(ran, "command"); return nil })

	b.HandleEvent(context.Background(), quickReplyEvent("pick", "NOBODY_HOME"))

	if len(ran) != 1 || ran[0] != "command" {
		t.Fatalf("ran = %v, want [command]", ran)
	}
}

func TestDispatchCommandFirstMatchOnly(t *testing.T) {
	b := newOfflineBot(t, Settings{})
	var ran []string
	b.Command(regexp.MustCompile(`^/st`), func(Context) error { ran = append(ran, "first"); return nil })
	b.Command(regexp.MustCompile(`^/start`), func(Context) error { ran = append(ran, "second"); return nil })

	b.HandleEvent(context.Background(), textEvent("/start"))

	if len(ran) != 1 || ran[0] != "first" {
		t.Fatalf("ran = %v, want [first]", ran)
	}
}

func TestDispatchCommandBeatsHears(t *testing.T) {
	b := newOfflineBot(t, Settings{})
	var ran []string
	b.Command("/help", func(Context) error { ran = append(ran, "command"); return nil })
	b.Hears("help", func(Context) error { ran = append(ran, "hears"); return nil })

	b.HandleEvent(context.Background(), textEvent("/help"))

	if len(ran) != 1 || ran[0] != "command" {
		t.Fatalf("ran = %v, want [command]", ran)
	}
}

func TestDispatchHearsRunsAllMatches(t *testing.T) {
	b := newOfflineBot(t, Settings{})
	var ran []string
	b.Hears("hi", func(Context) error { ran = append(ran, "hi"); return nil })
	b.Hears(regexp.MustCompile(`there`), func(Context) error { ran = append(ran, "there"); return nil })
	b.Hears("nope", func(Context) error { ran = append(ran, "nope"); return nil })
	b.On(OnMessage, func(Context) error { ran = append(ran, "observer"); return nil })

	b.HandleEvent(context.Background(), textEvent("Hi there friend"))

	want := []string{"hi", "there", "observer"}
	if len(ran) != len(want) {
		t.Fatalf("ran = %v, want %v", ran, want)
	}
	for i := range want {
		if ran[i] != want[i] {
			t.Fatalf("ran[%d] = %s, want %s", i, ran[i], want[i])
		}
	}
}

func TestDispatchObserverRunsWithoutMatch(t *testing.T) {
	b := newOfflineBot(t, Settings{})
	seen := 0
	b.On(OnMessage, func(Context) error { seen++; return nil })
	b.On(OnMessage, func(Context) error { seen++; return nil })

	b.HandleEvent(context.Background(), textEvent("anything at all"))

	if seen != 2 {
		t.Fatalf("observer handlers ran %d times, want 2", seen)
	}
}

func TestDispatchExclusiveSuppressesObservers(t *testing.T) {
	b := newOfflineBot(t, Settings{ExclusiveDispatch: true})
	var ran []string
	b.Hears("hello", func(Context) error { ran = append(ran, "hears"); return nil })
	b.On(OnMessage, func(Context) error { ran = append(ran, "observer"); return nil })

	b.HandleEvent(context.Background(), textEvent("hello there"))
	if len(ran) != 1 || ran[0] != "hears" {
		t.Fatalf("matched event: ran = %v, want [hears]", ran)
	}

	ran = nil
	b.HandleEvent(context.Background(), textEvent("nothing matches this"))
	if len(ran) != 1 || ran[0] != "observer" {
		t.Fatalf("unmatched event: ran = %v, want [observer]", ran)
	}
}

func TestDispatchPostbackActionThenObservers(t *testing.T) {
	b := newOfflineBot(t, Settings{})
	var ran []string
	b.Action("GET_STARTED", func(Context) error { ran = append(ran, "action"); return nil })
	b.On(OnPostback, func(Context) error { ran = append(ran, "postback"); return nil })

	b.HandleEvent(context.Background(), postbackEvent("GET_STARTED"))

	want := []string{"action", "postback"}
	if len(ran) != len(want) {
		t.Fatalf("ran = %v, want %v", ran, want)
	}
	for i := range want {
		if ran[i] != want[i] {
			t.Fatalf("ran[%d] = %s, want %s", i, ran[i], want[i])
		}
	}
}

func TestDispatchPostbackExclusive(t *testing.T) {
	b := newOfflineBot(t, Settings{ExclusiveDispatch: true})
	var ran []string
	b.Action("GET_STARTED", func(Context) error { ran = append(ran, "action"); return nil })
	b.On(OnPostback, func(Context) error { ran = append(ran, "postback"); return nil })

	b.HandleEvent(context.Background(), postbackEvent("GET_STARTED"))

	if len(ran) != 1 || ran[0] != "action" {
		t.Fatalf("ran = %v, want [action]", ran)
	}
}

func TestDispatchDeliveryRouted(t *testing.T) {
	b := newOfflineBot(t, Settings{})
	got := int64(0)
	b.On(OnDelivery, func(c Context) error {
		got = c.Event().Delivery.Watermark
		return nil
	})

	b.HandleEvent(context.Background(), &Event{
		Sender:   Principal{ID: "u1"},
		Delivery: &Delivery{Watermark: 1458668856253},
	})

	if got != 1458668856253 {
		t.Fatalf("watermark = %d, want 1458668856253", got)
	}
}

func TestDispatchUnroutableEventIsNoop(t *testing.T) {
	b := newOfflineBot(t, Settings{})
	b.On(OnMessage, func(Context) error {
		t.Fatal("message handler ran for an empty event")
		return nil
	})

	b.HandleEvent(context.Background(), &Event{Sender: Principal{ID: "u1"}})
}

func TestDispatchHandlerErrorAbortsRemaining(t *testing.T) {
	b := newOfflineBot(t, Settings{})
	boom := errors.New("boom")
	var trapped error
	b.Catch(func(err error, _ Context) { trapped = err })

	var ran []string
	b.Hears("hi", func(Context) error { ran = append(ran, "first"); return boom })
	b.Hears("hi", func(Context) error { ran = append(ran, "second"); return nil })
	b.On(OnMessage, func(Context) error { ran = append(ran, "observer"); return nil })

	b.HandleEvent(context.Background(), textEvent("hi"))

	if len(ran) != 1 || ran[0] != "first" {
		t.Fatalf("ran = %v, want [first]", ran)
	}
	if !errors.Is(trapped, boom) {
		t.Fatalf("trapped = %v, want %v", trapped, boom)
	}
}

func TestHandleEventErrorNeverEscapes(t *testing.T) {
	b := newOfflineBot(t, Settings{})
	b.Command("/fail", func(Context) error { return errors.New("boom") })

	// No Catch installed: the trap logs and swallows.
	b.HandleEvent(context.Background(), textEvent("/fail"))
}

func TestMiddlewareErrorReachesCatch(t *testing.T) {
	b := newOfflineBot(t, Settings{})
	boom := errors.New("mw boom")
	var trapped error
	b.Catch(func(err error, _ Context) { trapped = err })

	dispatched := false
	b.Use(func(next HandlerFunc) HandlerFunc {
		return func(Context) error { return boom }
	})
	b.On(OnMessage, func(Context) error { dispatched = true; return nil })

	b.HandleEvent(context.Background(), textEvent("hi"))

	if !errors.Is(trapped, boom) {
		t.Fatalf("trapped = %v, want %v", trapped, boom)
	}
	if dispatched {
		t.Fatal("dispatch ran after a middleware error")
	}
}

func TestMiddlewareShortCircuitSkipsDispatch(t *testing.T) {
	b := newOfflineBot(t, Settings{})
	dispatched := false
	b.Use(func(HandlerFunc) HandlerFunc {
		return func(Context) error { return nil }
	})
	b.On(OnMessage, func(Context) error { dispatched = true; return nil })

	b.HandleEvent(context.Background(), textEvent("hi"))

	if dispatched {
		t.Fatal("dispatch ran despite middleware short-circuit")
	}
}

func TestProcessUpdateSequentialPerEnvelope(t *testing.T) {
	b := newOfflineBot(t, Settings{})
	var order []string
	b.On(OnMessage, func(c Context) error {
		order = append(order, c.Text())
		return nil
	})

	u := Update{
		Object: "page",
		Entry: []Entry{{
			ID: "p1",
			Messaging: []Event{
				*textEvent("one"),
				*textEvent("two"),
				*textEvent("three"),
			},
		}},
	}
	b.ProcessUpdate(context.Background(), u)

	want := []string{"one", "two", "three"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestProcessUpdateFillsRecipientFromEntry(t *testing.T) {
	b := newOfflineBot(t, Settings{})
	gotPage := ""
	b.On(OnMessage, func(c Context) error {
		gotPage = c.PageID()
		return nil
	})

	e := textEvent("hi")
	e.Recipient = Principal{}
	u := Update{Object: "page", Entry: []Entry{{ID: "page-77", Messaging: []Event{*e}}}}
	b.ProcessUpdate(context.Background(), u)

	if gotPage != "page-77" {
		t.Fatalf("page id = %q, want %q", gotPage, "page-77")
	}
}

func TestNormalizeHandlerName(t *testing.T) {
	cases := map[string]string{
		"":            "unknown",
		"  ":          "unknown",
		"Start Over":  "start_over",
		"/start":      "/start",
		"GET_STARTED": "get_started",
	}
	for in, want := range cases {
		if got := normalizeHandlerName(in); got != want {
			t.Fatalf("normalizeHandlerName(%q) = %q, want %q", in, got, want)
		}
	}
}

type codedError struct{ code string }

func (e *codedError) Error() string { return "coded" }
func (e *codedError) Code() string  { return e.code }

func TestDeriveErrorCode(t *testing.T) {
	if got := deriveErrorCode(nil); got != "" {
		t.Fatalf("nil error code = %q, want empty", got)
	}
	if got := deriveErrorCode(&codedError{code: "rate limit"}); got != "RATE_LIMIT" {
		t.Fatalf("coded error = %q, want RATE_LIMIT", got)
	}
	if got := deriveErrorCode(&APIError{Status: 400, Message: "bad"}); got != "APIERROR" {
		t.Fatalf("api error = %q, want APIERROR", got)
	}
}
