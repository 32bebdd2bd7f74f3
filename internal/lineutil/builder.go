// Package lineutil builds LINE messages and actions.
package lineutil

import (
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// CarouselColumn represents a column in a carousel template.
type CarouselColumn struct {
	ThumbnailImageURL string
	Title             string
	Text              string
	DefaultAction     Action
	Actions           []Action
}

// QuickReplyItem represents an item in a quick reply.
type QuickReplyItem struct {
	ImageURL string
	Action   Action
}

// Action is an alias for the LINE SDK action interface for convenience.
type Action = messaging_api.ActionInterface

// NewImageMessage creates an image message with the given URLs.
// LINE API requires both URLs to be HTTPS.
func NewImageMessage(originalContentURL, previewImageURL string) *messaging_api.ImageMessage {
	return &messaging_api.ImageMessage{
		OriginalContentUrl: originalContentURL,
		PreviewImageUrl:    previewImageURL,
	}
}

// NewTextMessage creates a text message, truncated to the LINE limit.
func NewTextMessage(text string) *messaging_api.TextMessage {
	return &messaging_api.TextMessage{
		Text: TruncateRunes(text, MaxTextMessageLength),
	}
}

// NewCarouselTemplate creates a carousel template message with multiple columns.
// LINE requires every column to carry the same number of actions, so all
// columns are cut to the shortest action list.
func NewCarouselTemplate(altText string, columns []CarouselColumn) *messaging_api.TemplateMessage {
	if len(columns) > MaxCarouselColumnCount {
		columns = columns[:MaxCarouselColumnCount]
	}

	actionCount := MaxCarouselActionCount
	for _, col := range columns {
		actionCount = min(actionCount, len(col.Actions))
	}

	templateColumns := make([]messaging_api.CarouselColumn, len(columns))
	for i, col := range columns {
		textLimit := MaxCarouselTextNoImage
		if col.ThumbnailImageURL != "" || col.Title != "" {
			textLimit = MaxCarouselTextWithImage
		}
		templateColumns[i] = messaging_api.CarouselColumn{
			ThumbnailImageUrl: col.ThumbnailImageURL,
			Title:             TruncateRunes(col.Title, MaxTemplateTitleLength),
			Text:              TruncateRunes(col.Text, textLimit),
			DefaultAction:     col.DefaultAction,
			Actions:           col.Actions[:actionCount],
		}
	}

	return &messaging_api.TemplateMessage{
		AltText:  TruncateRunes(altText, MaxAltTextLength),
		Template: &messaging_api.CarouselTemplate{Columns: templateColumns},
	}
}

// NewButtonsTemplate creates a buttons template message.
// LINE API limits: max 4 actions, text max 160 chars (no image) or 60 chars (with image)
func NewButtonsTemplate(altText, text string, actions []Action) *messaging_api.TemplateMessage {
	return NewButtonsTemplateWithImage(altText, text, "", actions)
}

// NewButtonsTemplateWithImage creates a buttons template message with an optional thumbnail image.
func NewButtonsTemplateWithImage(altText, text, thumbnailImageURL string, actions []Action) *messaging_api.TemplateMessage {
	if len(actions) > MaxTemplateActionCount {
		actions = actions[:MaxTemplateActionCount]
	}

	maxTextLen := MaxTemplateTextNoImage
	if thumbnailImageURL != "" {
		maxTextLen = MaxTemplateTextWithImage
	}

	return &messaging_api.TemplateMessage{
		AltText: TruncateRunes(altText, MaxAltTextLength),
		Template: &messaging_api.ButtonsTemplate{
			ThumbnailImageUrl: thumbnailImageURL,
			Text:              TruncateRunes(text, maxTextLen),
			Actions:           actions,
		},
	}
}

// NewQuickReply creates a quick reply message component.
// LINE API limits: max 13 items
func NewQuickReply(items []QuickReplyItem) *messaging_api.QuickReply {
	if len(items) > MaxQuickReplyItemCount {
		items = items[:MaxQuickReplyItemCount]
	}

	quickReplyItems := make([]messaging_api.QuickReplyItem, len(items))
	for i, item := range items {
		quickReplyItems[i] = messaging_api.QuickReplyItem{
			ImageUrl: item.ImageURL,
			Action:   item.Action,
		}
	}

	return &messaging_api.QuickReply{Items: quickReplyItems}
}

// NewPostbackAction creates a postback action that echoes its label into the
// chat and sends data to the bot.
func NewPostbackAction(label, data string) Action {
	label = TruncateRunes(label, MaxActionLabel)
	return &messaging_api.PostbackAction{
		Label:       label,
		DisplayText: label,
		Data:        TruncateRunes(data, MaxPostbackData),
	}
}

// NewURIAction creates a URI action that opens a URL when clicked.
func NewURIAction(label, uri string) Action {
	return &messaging_api.UriAction{
		Label: TruncateRunes(label, MaxActionLabel),
		Uri:   uri,
	}
}

// TruncateRunes shortens text to at most maxRunes runes, ending with "..."
// when anything was cut.
func TruncateRunes(text string, maxRunes int) string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}
