package webhook

import (
	"time"

	"github.com/garyellow/menubot-go/internal/event"
)

// Callback is the body of a Messenger webhook POST.
type Callback struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry is one page entry in a callback.
type Entry struct {
	ID        string      `json:"id"`
	Time      int64       `json:"time"`
	Messaging []Messaging `json:"messaging"`
}

// Messaging is one messaging item. Exactly one of the pointer fields is
// normally set.
type Messaging struct {
	Sender    Party     `json:"sender"`
	Recipient Party     `json:"recipient"`
	Timestamp int64     `json:"timestamp"`
	Message   *Message  `json:"message,omitempty"`
	Postback  *Postback `json:"postback,omitempty"`
	Delivery  *struct{} `json:"delivery,omitempty"`
	Read      *struct{} `json:"read,omitempty"`
}

// Party identifies a sender or recipient by page-scoped id.
type Party struct {
	ID string `json:"id"`
}

// Message is an inbound message.
type Message struct {
	MID         string       `json:"mid"`
	Text        string       `json:"text,omitempty"`
	IsEcho      bool         `json:"is_echo,omitempty"`
	QuickReply  *QuickReply  `json:"quick_reply,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// QuickReply carries the payload of a tapped quick reply.
type QuickReply struct {
	Payload string `json:"payload"`
}

// Attachment is an inbound attachment.
type Attachment struct {
	Type    string `json:"type"`
	Payload struct {
		URL string `json:"url,omitempty"`
	} `json:"payload"`
}

// Postback is a button tap.
type Postback struct {
	MID     string `json:"mid,omitempty"`
	Title   string `json:"title,omitempty"`
	Payload string `json:"payload"`
}

// toEvent converts a messaging item. ok is false for items that are not
// user actions: echoes, delivery and read receipts, and unknown kinds.
func toEvent(m Messaging) (ev event.Event, ok bool) {
	sender := m.Sender.ID
	switch {
	case m.Message != nil:
		msg := m.Message
		if msg.IsEcho {
			return event.Event{}, false
		}
		switch {
		case msg.QuickReply != nil:
			ev = event.NewQuickReply(event.ChannelMessenger, sender, msg.QuickReply.Payload, msg.Text)
		case msg.Text != "":
			ev = event.NewText(event.ChannelMessenger, sender, msg.Text)
		case len(msg.Attachments) > 0:
			atts := make([]event.Attachment, 0, len(msg.Attachments))
			for _, a := range msg.Attachments {
				atts = append(atts, event.Attachment{Type: a.Type, URL: a.Payload.URL})
			}
			ev = event.NewAttachment(event.ChannelMessenger, sender, atts...)
		default:
			// Empty message; Validate rejects it downstream.
			ev = event.NewText(event.ChannelMessenger, sender, "")
		}
		ev.MessageID = msg.MID
	case m.Postback != nil:
		ev = event.NewPostback(event.ChannelMessenger, sender, m.Postback.Payload)
		ev.MessageID = m.Postback.MID
	default:
		return event.Event{}, false
	}

	if m.Timestamp > 0 {
		ev.Timestamp = time.UnixMilli(m.Timestamp)
	}
	return ev, true
}
