// Package event defines the inbound event model shared by every channel.
// An Event is built once per delivered webhook item and never persisted.
package event

import (
	"strings"
	"time"

	domerrors "github.com/garyellow/menubot-go/internal/errors"
)

// Channel identifies the messaging platform an event came from.
type Channel string

// Supported channels.
const (
	ChannelMessenger Channel = "messenger"
	ChannelLINE      Channel = "line"
)

// Variant is the kind of inbound event.
type Variant string

// Event variants.
const (
	VariantText       Variant = "text"
	VariantQuickReply Variant = "quick_reply"
	VariantPostback   Variant = "postback"
	VariantAttachment Variant = "attachment"
)

// Attachment is an inbound file or sticker. Only the type is interpreted.
type Attachment struct {
	Type string
	URL  string
}

// Event is one inbound user action.
// Text is set for VariantText; Payload for quick replies and postbacks.
// SenderID always names the user; ReplyTo is set when replies go to a
// shared chat (a LINE group or room) instead of the user.
type Event struct {
	Channel     Channel
	SenderID    string
	ReplyTo     string
	Variant     Variant
	Text        string
	Payload     string
	Attachments []Attachment
	MessageID   string
	Timestamp   time.Time
}

// Recipient addresses an outbound send.
type Recipient struct {
	Channel Channel
	ID      string
}

// NewText creates a free-text message event.
func NewText(ch Channel, sender, text string) Event {
	return Event{Channel: ch, SenderID: sender, Variant: VariantText, Text: text}
}

// NewQuickReply creates a quick-reply selection event.
// text is the label the user tapped, kept for logs only.
func NewQuickReply(ch Channel, sender, payload, text string) Event {
	return Event{Channel: ch, SenderID: sender, Variant: VariantQuickReply, Payload: payload, Text: text}
}

// NewPostback creates a button postback event.
func NewPostback(ch Channel, sender, payload string) Event {
	return Event{Channel: ch, SenderID: sender, Variant: VariantPostback, Payload: payload}
}

// NewAttachment creates an attachment-only message event.
func NewAttachment(ch Channel, sender string, attachments ...Attachment) Event {
	return Event{Channel: ch, SenderID: sender, Variant: VariantAttachment, Attachments: attachments}
}

// From identifies the user behind this event. Per-user state and rate
// limits are keyed by it.
func (e Event) From() Recipient {
	return Recipient{Channel: e.Channel, ID: e.SenderID}
}

// ReplyTarget returns where replies to this event are sent.
func (e Event) ReplyTarget() Recipient {
	if e.ReplyTo != "" {
		return Recipient{Channel: e.Channel, ID: e.ReplyTo}
	}
	return e.From()
}

// Key returns the raw lookup key: the payload for quick replies and
// postbacks, the text for text messages, "" for attachments.
func (e Event) Key() string {
	switch e.Variant {
	case VariantQuickReply, VariantPostback:
		return e.Payload
	case VariantText:
		return e.Text
	}
	return ""
}

// IsSelection reports whether the event is a quick reply or postback.
func (e Event) IsSelection() bool {
	return e.Variant == VariantQuickReply || e.Variant == VariantPostback
}

// Validate checks required fields. Errors wrap ErrMalformedEvent.
func (e Event) Validate() error {
	switch e.Channel {
	case ChannelMessenger, ChannelLINE:
	default:
		return domerrors.NewValidationError("channel", "unknown channel "+string(e.Channel))
	}
	if strings.TrimSpace(e.SenderID) == "" {
		return domerrors.NewValidationError("sender_id", "sender id is required")
	}

	switch e.Variant {
	case VariantText:
		if strings.TrimSpace(e.Text) == "" {
			return domerrors.NewValidationError("text", "text message is empty")
		}
	case VariantQuickReply, VariantPostback:
		if e.Payload == "" {
			return domerrors.NewValidationError("payload", string(e.Variant)+" has no payload")
		}
	case VariantAttachment:
	default:
		return domerrors.NewValidationError("variant", "unknown variant "+string(e.Variant))
	}
	return nil
}
