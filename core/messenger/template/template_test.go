package template

import "testing"

func TestBuildersTagKinds(t *testing.T) {
	cases := []struct {
		name string
		msg  *Message
		kind Kind
	}{
		{"text", Text("hi"), KindText},
		{"quick replies", WithQuickReplies("pick", Reply("A", "PAYLOAD_A")), KindQuickReplies},
		{"buttons", WithButtons("choose", PostbackButton("Go", "GO")), KindButtons},
		{"image", Image("https://x/a.png"), KindAttachment},
		{"video", Video("https://x/a.mp4"), KindAttachment},
		{"audio", Audio("https://x/a.mp3"), KindAttachment},
		{"file", File("https://x/a.pdf"), KindAttachment},
	}
	for _, tc := range cases {
		if tc.msg.Kind != tc.kind {
			t.Fatalf("%s: kind = %v, want %v", tc.name, tc.msg.Kind, tc.kind)
		}
	}
}

func TestReplyChipShape(t *testing.T) {
	r := Reply("Yes", "CONFIRM_YES")
	if r.ContentType != "text" {
		t.Fatalf("content type = %q, want text", r.ContentType)
	}
	if r.Title != "Yes" || r.Payload != "CONFIRM_YES" {
		t.Fatalf("chip = %+v", r)
	}
}

func TestButtonBuilders(t *testing.T) {
	pb := PostbackButton("Start", "START")
	if pb.Type != ButtonPostback || pb.Payload != "START" || pb.URL != "" {
		t.Fatalf("postback button = %+v", pb)
	}

	ub := URLButton("Open", "https://example.com")
	if ub.Type != ButtonURL || ub.URL != "https://example.com" || ub.Payload != "" {
		t.Fatalf("url button = %+v", ub)
	}

	cb := CallButton("Call us", "+15551234567")
	if cb.Type != ButtonCall || cb.Payload != "+15551234567" {
		t.Fatalf("call button = %+v", cb)
	}
}

func TestAttachmentBuilders(t *testing.T) {
	msg := Image("https://cdn/x.png")
	if msg.Attachment == nil {
		t.Fatal("attachment builder left Attachment nil")
	}
	if msg.Attachment.Type != AttachmentImage || msg.Attachment.URL != "https://cdn/x.png" {
		t.Fatalf("attachment = %+v", msg.Attachment)
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindText:         "text",
		KindQuickReplies: "quick_replies",
		KindButtons:      "buttons",
		KindAttachment:   "attachment",
		Kind(99):         "unknown",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Fatalf("Kind(%d).String() = %q, want %q", int(kind), got, want)
		}
	}
}
