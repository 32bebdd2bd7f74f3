package messenger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/menubot-go/internal/catalog"
)

func renderJSON(t *testing.T, r *catalog.Response) string {
	t.Helper()
	msg, err := Render(r)
	require.NoError(t, err)
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	return string(data)
}

func TestRender_ButtonTemplate(t *testing.T) {
	t.Parallel()

	got := renderJSON(t, &catalog.Response{
		ID:   "menu-categories",
		Kind: catalog.KindButtons,
		Text: "What are you craving?",
		Buttons: []catalog.Button{
			{Label: "Chicken", Action: catalog.ActionPostback, Payload: "chicken"},
			{Label: "Website", Action: catalog.ActionOpenLink, URL: "https://popchicken.example.com"},
		},
	})

	assert.JSONEq(t, `{"attachment":{"type":"template","payload":{
		"template_type":"button","text":"What are you craving?",
		"buttons":[
			{"type":"postback","title":"Chicken","payload":"chicken"},
			{"type":"web_url","title":"Website","url":"https://popchicken.example.com"}
		]}}}`, got)
}

func TestRender_QuickReplies(t *testing.T) {
	t.Parallel()

	got := renderJSON(t, &catalog.Response{
		ID:   "fallback",
		Kind: catalog.KindQuickReplies,
		Text: "Try one of these:",
		Options: []catalog.QuickReplyOption{
			{Label: "Menu", Payload: "menu"},
			{Label: "Drinks", Payload: "drinks", ImageURL: "https://x.example/cola.png"},
		},
	})

	assert.JSONEq(t, `{"text":"Try one of these:","quick_replies":[
		{"content_type":"text","title":"Menu","payload":"menu"},
		{"content_type":"text","title":"Drinks","payload":"drinks","image_url":"https://x.example/cola.png"}
	]}`, got)
}

func TestRender_Carousel(t *testing.T) {
	t.Parallel()

	got := renderJSON(t, &catalog.Response{
		ID:   "chicken-carousel",
		Kind: catalog.KindCarousel,
		Cards: []catalog.Card{
			{
				Title:         "Bucket",
				Subtitle:      "8 pieces",
				ImageURL:      "https://x.example/bucket.jpg",
				DefaultAction: &catalog.Button{Action: catalog.ActionOpenLink, URL: "https://x.example/bucket"},
				Buttons:       []catalog.Button{{Label: "Order", Action: catalog.ActionPostback, Payload: "order"}},
			},
			{
				Title:         "Wings",
				DefaultAction: &catalog.Button{Action: catalog.ActionPostback, Payload: "order"},
			},
		},
	})

	assert.JSONEq(t, `{"attachment":{"type":"template","payload":{"template_type":"generic","elements":[
		{"title":"Bucket","subtitle":"8 pieces","image_url":"https://x.example/bucket.jpg",
		 "default_action":{"type":"web_url","url":"https://x.example/bucket"},
		 "buttons":[{"type":"postback","title":"Order","payload":"order"}]},
		{"title":"Wings"}
	]}}}`, got)
}

func TestRender_Media(t *testing.T) {
	t.Parallel()

	got := renderJSON(t, &catalog.Response{
		ID:   "kitchen-video",
		Kind: catalog.KindMedia,
		Media: &catalog.Media{
			Type:    catalog.MediaVideo,
			URL:     "https://x.example/kitchen.mp4",
			Buttons: []catalog.Button{{Label: "Order", Action: catalog.ActionPostback, Payload: "order"}},
		},
	})

	assert.JSONEq(t, `{"attachment":{"type":"template","payload":{"template_type":"media","elements":[
		{"media_type":"video","url":"https://x.example/kitchen.mp4",
		 "buttons":[{"type":"postback","title":"Order","payload":"order"}]}
	]}}}`, got)
}

func TestRender_EveryBuiltinResponse(t *testing.T) {
	t.Parallel()

	cat, err := catalog.Builtin()
	require.NoError(t, err)
	for _, id := range cat.Responses() {
		r, err := cat.Resolve(id)
		require.NoError(t, err)
		_, err = Render(r)
		assert.NoError(t, err, "response %s", id)
	}
}

func TestRender_UnsupportedKind(t *testing.T) {
	t.Parallel()

	_, err := Render(&catalog.Response{ID: "x", Kind: "sticker"})
	assert.Error(t, err)
	_, err = Render(&catalog.Response{ID: "x", Kind: catalog.KindMedia})
	assert.Error(t, err)
}
