package messenger

// Event type names accepted by Bot.On.
const (
	OnMessage  = "message"
	OnPostback = "postback"
	OnDelivery = "delivery"
	OnRead     = "read"
	OnReferral = "referral"
)

// Attachment types reported by the platform.
const (
	AttachmentImage    = "image"
	AttachmentVideo    = "video"
	AttachmentAudio    = "audio"
	AttachmentFile     = "file"
	AttachmentLocation = "location"
	AttachmentFallback = "fallback"
)

// Update is the top-level webhook delivery envelope. One POST may batch
// events for several pages and several users.
type Update struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups the events delivered for a single page.
type Entry struct {
	ID        string  `json:"id"`
	Time      int64   `json:"time"`
	Messaging []Event `json:"messaging"`
}

// Principal identifies one side of a conversation: a page-scoped user id
// or the page itself.
type Principal struct {
	ID string `json:"id"`
}

// Event is a single messaging event. Exactly one of the payload fields
// is set; Type reports which.
type Event struct {
	Sender    Principal `json:"sender"`
	Recipient Principal `json:"recipient"`
	Timestamp int64     `json:"timestamp"`

	Message  *Message  `json:"message,omitempty"`
	Postback *Postback `json:"postback,omitempty"`
	Delivery *Delivery `json:"delivery,omitempty"`
	Read     *Read     `json:"read,omitempty"`
	Referral *Referral `json:"referral,omitempty"`
}

// Message carries inbound message content.
type Message struct {
	MID         string       `json:"mid,omitempty"`
	Text        string       `json:"text,omitempty"`
	IsEcho      bool         `json:"is_echo,omitempty"`
	QuickReply  *QuickReply  `json:"quick_reply,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// QuickReply echoes the payload of the quick reply the user tapped.
type QuickReply struct {
	Payload string `json:"payload"`
}

// Attachment describes one piece of inbound media.
type Attachment struct {
	Type    string            `json:"type"`
	Payload AttachmentPayload `json:"payload"`
}

// AttachmentPayload holds the attachment body. URL is set for media,
// Coordinates for location shares.
type AttachmentPayload struct {
	URL         string       `json:"url,omitempty"`
	Title       string       `json:"title,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// Coordinates is a shared location point.
type Coordinates struct {
	Lat  float64 `json:"lat"`
	Long float64 `json:"long"`
}

// Postback is emitted when the user presses a button carrying a payload.
type Postback struct {
	Title    string    `json:"title,omitempty"`
	Payload  string    `json:"payload"`
	Referral *Referral `json:"referral,omitempty"`
}

// Delivery confirms messages delivered up to Watermark.
type Delivery struct {
	MIDs      []string `json:"mids,omitempty"`
	Watermark int64    `json:"watermark"`
}

// Read marks messages read up to Watermark.
type Read struct {
	Watermark int64 `json:"watermark"`
}

// Referral carries the ref parameter from m.me links, ads and QR codes.
type Referral struct {
	Ref    string `json:"ref,omitempty"`
	Source string `json:"source,omitempty"`
	Type   string `json:"type,omitempty"`
}

// Type derives the dispatch event type from the populated payload field.
// Returns an empty string for envelopes the dispatcher does not route.
func (e *Event) Type() string {
	switch {
	case e == nil:
		return ""
	case e.Message != nil:
		return OnMessage
	case e.Postback != nil:
		return OnPostback
	case e.Delivery != nil:
		return OnDelivery
	case e.Read != nil:
		return OnRead
	case e.Referral != nil:
		return OnReferral
	default:
		return ""
	}
}

// Text returns the message text, empty for non-message events.
func (e *Event) Text() string {
	if e == nil || e.Message == nil {
		return ""
	}
	return e.Message.Text
}

// knownEventTypes lists the event names Bot.On accepts.
var knownEventTypes = map[string]struct{}{
	OnMessage:  {},
	OnPostback: {},
	OnDelivery: {},
	OnRead:     {},
	OnReferral: {},
}
