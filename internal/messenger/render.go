package messenger

import (
	"fmt"

	"github.com/garyellow/menubot-go/internal/catalog"
)

// Message is the "message" object of a Send API request.
type Message struct {
	Text         string       `json:"text,omitempty"`
	QuickReplies []QuickReply `json:"quick_replies,omitempty"`
	Attachment   *Attachment  `json:"attachment,omitempty"`
}

// QuickReply is one quick reply chip.
type QuickReply struct {
	ContentType string `json:"content_type"`
	Title       string `json:"title"`
	Payload     string `json:"payload"`
	ImageURL    string `json:"image_url,omitempty"`
}

// Attachment wraps a template.
type Attachment struct {
	Type    string          `json:"type"`
	Payload TemplatePayload `json:"payload"`
}

// TemplatePayload covers the button, generic and media templates.
type TemplatePayload struct {
	TemplateType string    `json:"template_type"`
	Text         string    `json:"text,omitempty"`
	Buttons      []Button  `json:"buttons,omitempty"`
	Elements     []Element `json:"elements,omitempty"`
}

// Element is a generic template card or a media template entry.
type Element struct {
	Title         string         `json:"title,omitempty"`
	Subtitle      string         `json:"subtitle,omitempty"`
	ImageURL      string         `json:"image_url,omitempty"`
	DefaultAction *DefaultAction `json:"default_action,omitempty"`
	MediaType     string         `json:"media_type,omitempty"`
	URL           string         `json:"url,omitempty"`
	Buttons       []Button       `json:"buttons,omitempty"`
}

// DefaultAction is the tap target of a generic template card.
type DefaultAction struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Button is a template or persistent menu button.
type Button struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	URL     string `json:"url,omitempty"`
	Payload string `json:"payload,omitempty"`
}

// Render converts a catalog response into a Send API message.
func Render(r *catalog.Response) (*Message, error) {
	switch r.Kind {
	case catalog.KindText:
		return &Message{Text: r.Text}, nil

	case catalog.KindButtons:
		return &Message{Attachment: &Attachment{
			Type: "template",
			Payload: TemplatePayload{
				TemplateType: "button",
				Text:         r.Text,
				Buttons:      renderButtons(r.Buttons),
			},
		}}, nil

	case catalog.KindQuickReplies:
		qr := make([]QuickReply, 0, len(r.Options))
		for _, o := range r.Options {
			qr = append(qr, QuickReply{ContentType: "text", Title: o.Label, Payload: o.Payload, ImageURL: o.ImageURL})
		}
		return &Message{Text: r.Text, QuickReplies: qr}, nil

	case catalog.KindCarousel:
		elements := make([]Element, 0, len(r.Cards))
		for _, c := range r.Cards {
			el := Element{
				Title:    c.Title,
				Subtitle: c.Subtitle,
				ImageURL: c.ImageURL,
				Buttons:  renderButtons(c.Buttons),
			}
			// Messenger only opens links from a card tap.
			if c.DefaultAction != nil && c.DefaultAction.Action == catalog.ActionOpenLink {
				el.DefaultAction = &DefaultAction{Type: "web_url", URL: c.DefaultAction.URL}
			}
			elements = append(elements, el)
		}
		return &Message{Attachment: &Attachment{
			Type:    "template",
			Payload: TemplatePayload{TemplateType: "generic", Elements: elements},
		}}, nil

	case catalog.KindMedia:
		if r.Media == nil {
			return nil, fmt.Errorf("render %s: media response without media", r.ID)
		}
		return &Message{Attachment: &Attachment{
			Type: "template",
			Payload: TemplatePayload{
				TemplateType: "media",
				Elements: []Element{{
					MediaType: string(r.Media.Type),
					URL:       r.Media.URL,
					Buttons:   renderButtons(r.Media.Buttons),
				}},
			},
		}}, nil
	}
	return nil, fmt.Errorf("render %s: unsupported kind %q", r.ID, r.Kind)
}

func renderButtons(buttons []catalog.Button) []Button {
	if len(buttons) == 0 {
		return nil
	}
	out := make([]Button, 0, len(buttons))
	for _, b := range buttons {
		out = append(out, renderButton(b))
	}
	return out
}

func renderButton(b catalog.Button) Button {
	if b.Action == catalog.ActionOpenLink {
		return Button{Type: "web_url", Title: b.Label, URL: b.URL}
	}
	return Button{Type: "postback", Title: b.Label, Payload: b.Payload}
}
