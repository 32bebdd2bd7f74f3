package lineutil

import (
	"fmt"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/garyellow/menubot-go/internal/catalog"
)

// Render converts a catalog response into LINE messages.
//
// Carousel cards without buttons use their default action as the single
// button, since LINE requires at least one per column. Media with buttons
// becomes a buttons template: images as the thumbnail, videos behind a
// "Play" link.
func Render(r *catalog.Response) ([]messaging_api.MessageInterface, error) {
	switch r.Kind {
	case catalog.KindText:
		return one(NewTextMessage(r.Text)), nil

	case catalog.KindButtons:
		return one(NewButtonsTemplate(r.Text, r.Text, actions(r.Buttons))), nil

	case catalog.KindQuickReplies:
		items := make([]QuickReplyItem, len(r.Options))
		for i, o := range r.Options {
			items[i] = QuickReplyItem{ImageURL: o.ImageURL, Action: NewPostbackAction(o.Label, o.Payload)}
		}
		msg := NewTextMessage(r.Text)
		msg.QuickReply = NewQuickReply(items)
		return one(msg), nil

	case catalog.KindCarousel:
		return renderCarousel(r)

	case catalog.KindMedia:
		if r.Media == nil {
			return nil, fmt.Errorf("response %q: media kind without media", r.ID)
		}
		return renderMedia(r.Media), nil
	}
	return nil, fmt.Errorf("response %q: unsupported kind %q", r.ID, r.Kind)
}

func renderCarousel(r *catalog.Response) ([]messaging_api.MessageInterface, error) {
	columns := make([]CarouselColumn, len(r.Cards))
	titles := make([]string, 0, len(r.Cards))
	for i, card := range r.Cards {
		col := CarouselColumn{
			ThumbnailImageURL: card.ImageURL,
			Title:             card.Title,
			Text:              card.Subtitle,
			Actions:           actions(card.Buttons),
		}
		if col.Text == "" {
			// Column text is mandatory.
			col.Title, col.Text = "", card.Title
		}
		if card.DefaultAction != nil {
			col.DefaultAction = action(*card.DefaultAction)
			if len(col.Actions) == 0 {
				col.Actions = []Action{col.DefaultAction}
			}
		}
		if len(col.Actions) == 0 {
			return nil, fmt.Errorf("response %q: card %q has no action", r.ID, card.Title)
		}
		columns[i] = col
		titles = append(titles, card.Title)
	}
	return one(NewCarouselTemplate(strings.Join(titles, ", "), columns)), nil
}

func renderMedia(m *catalog.Media) []messaging_api.MessageInterface {
	acts := actions(m.Buttons)
	switch {
	case m.Type == catalog.MediaVideo:
		acts = append([]Action{NewURIAction("Play", m.URL)}, acts...)
		return one(NewButtonsTemplate("Video", "Video", acts))
	case len(acts) > 0:
		return one(NewButtonsTemplateWithImage("Image", "Image", m.URL, acts))
	default:
		return one(NewImageMessage(m.URL, m.URL))
	}
}

func actions(buttons []catalog.Button) []Action {
	out := make([]Action, len(buttons))
	for i, b := range buttons {
		out[i] = action(b)
	}
	return out
}

func action(b catalog.Button) Action {
	if b.Action == catalog.ActionOpenLink {
		return NewURIAction(b.Label, b.URL)
	}
	label := b.Label
	if label == "" {
		label = b.Payload
	}
	return NewPostbackAction(label, b.Payload)
}

func one(msg messaging_api.MessageInterface) []messaging_api.MessageInterface {
	return []messaging_api.MessageInterface{msg}
}
