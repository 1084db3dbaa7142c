// Package template builds outbound message payloads. Each builder
// returns a Message tagged with its variant so the sending side can
// switch over the kinds exhaustively instead of sniffing for populated
// fields.
package template

// Kind tags a Message variant.
type Kind int

const (
	// KindText is a plain text message.
	KindText Kind = iota
	// KindQuickReplies is text with tappable reply chips.
	KindQuickReplies
	// KindButtons is a button template with up to three buttons.
	KindButtons
	// KindAttachment is a single media attachment.
	KindAttachment
)

// String returns the variant name for logs.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindQuickReplies:
		return "quick_replies"
	case KindButtons:
		return "buttons"
	case KindAttachment:
		return "attachment"
	default:
		return "unknown"
	}
}

// Message is one outbound payload. Only the fields belonging to Kind
// are meaningful.
type Message struct {
	Kind         Kind
	Text         string
	QuickReplies []QuickReply
	Buttons      []Button
	Attachment   *Attachment
}

// QuickReply is a single suggested reply chip shown under a message.
type QuickReply struct {
	ContentType string `json:"content_type"`
	Title       string `json:"title,omitempty"`
	Payload     string `json:"payload,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// Button types supported by the button template.
const (
	ButtonPostback = "postback"
	ButtonURL      = "web_url"
	ButtonCall     = "phone_number"
)

// Button is a single button of a button template.
type Button struct {
	Type    string `json:"type"`
	Title   string `json:"title,omitempty"`
	Payload string `json:"payload,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Attachment media types.
const (
	AttachmentImage = "image"
	AttachmentVideo = "video"
	AttachmentAudio = "audio"
	AttachmentFile  = "file"
)

// Attachment points at hosted media to deliver.
type Attachment struct {
	Type     string
	URL      string
	Reusable bool
}

// Text builds a plain text message.
func Text(text string) *Message {
	return &Message{Kind: KindText, Text: text}
}

// WithQuickReplies builds a text message with reply chips attached.
func WithQuickReplies(text string, replies ...QuickReply) *Message {
	return &Message{Kind: KindQuickReplies, Text: text, QuickReplies: replies}
}

// Reply builds a text quick reply chip.
func Reply(title, payload string) QuickReply {
	return QuickReply{ContentType: "text", Title: title, Payload: payload}
}

// WithButtons builds a button template around the text.
func WithButtons(text string, buttons ...Button) *Message {
	return &Message{Kind: KindButtons, Text: text, Buttons: buttons}
}

// PostbackButton builds a button that fires a postback event with the
// payload when pressed.
func PostbackButton(title, payload string) Button {
	return Button{Type: ButtonPostback, Title: title, Payload: payload}
}

// URLButton builds a button that opens the URL when pressed.
func URLButton(title, url string) Button {
	return Button{Type: ButtonURL, Title: title, URL: url}
}

// CallButton builds a button that dials the phone number when pressed.
// The number must include the country code.
func CallButton(title, phone string) Button {
	return Button{Type: ButtonCall, Title: title, Payload: phone}
}

// Image builds a single image attachment message.
func Image(url string) *Message {
	return attachment(AttachmentImage, url)
}

// Video builds a single video attachment message.
func Video(url string) *Message {
	return attachment(AttachmentVideo, url)
}

// Audio builds a single audio attachment message.
func Audio(url string) *Message {
	return attachment(AttachmentAudio, url)
}

// File builds a single file attachment message.
func File(url string) *Message {
	return attachment(AttachmentFile, url)
}

func attachment(kind, url string) *Message {
	return &Message{Kind: KindAttachment, Attachment: &Attachment{Type: kind, URL: url}}
}
