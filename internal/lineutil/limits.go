package lineutil

// LINE API Character Limits (Rune count)
// References: https://developers.line.biz/en/reference/messaging-api/
const (
	MaxTextMessageLength = 5000 // Text message max content length
	MaxAltTextLength     = 400  // Template message alt text length
	MaxPostbackData      = 300  // Postback action data length
	MaxActionLabel       = 20   // Action label length

	// Template Message Limits
	MaxTemplateTitleLength   = 40  // Buttons/Carousel template title
	MaxTemplateTextNoImage   = 160 // Buttons template text without image
	MaxTemplateTextWithImage = 60  // Buttons template text with image
	MaxCarouselTextNoImage   = 120 // Carousel column text without image or title
	MaxCarouselTextWithImage = 60  // Carousel column text with image or title
	MaxCarouselColumnCount   = 10  // Max columns in a carousel
	MaxTemplateActionCount   = 4   // Max actions per buttons template
	MaxCarouselActionCount   = 3   // Max actions per carousel column

	// Quick Reply Limits
	MaxQuickReplyItemCount = 13 // Max items in a quick reply
)
