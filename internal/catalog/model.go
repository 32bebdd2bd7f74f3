// Package catalog holds the response catalog and trigger table that drive
// dispatch. A Catalog is immutable once built; hot reload swaps whole
// catalogs through Store.
package catalog

import (
	"regexp"
	"slices"
)

// ResponseID identifies one entry in the response catalog.
type ResponseID string

// TriggerKey is the lookup key derived from an inbound event.
type TriggerKey string

// DefaultTrigger is dispatched when nothing else matches. Every catalog must define it.
const DefaultTrigger TriggerKey = "default"

// Kind tags the variant held by a Response.
type Kind string

// Response kinds.
const (
	KindText         Kind = "text"
	KindButtons      Kind = "buttons"
	KindQuickReplies Kind = "quick_replies"
	KindCarousel     Kind = "carousel"
	KindMedia        Kind = "media"
)

// ActionKind is what a button does when tapped.
type ActionKind string

// Button actions.
const (
	ActionOpenLink ActionKind = "open_link"
	ActionPostback ActionKind = "postback"
)

// MediaType is the attachment type of a media response.
type MediaType string

// Media types.
const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// Button is a tappable action on a template or card.
type Button struct {
	Label   string     `yaml:"label" json:"label"`
	Action  ActionKind `yaml:"action" json:"action"`
	URL     string     `yaml:"url,omitempty" json:"url,omitempty"`
	Payload string     `yaml:"payload,omitempty" json:"payload,omitempty"`
}

// QuickReplyOption is one chip under a quick reply prompt.
type QuickReplyOption struct {
	Label    string `yaml:"label" json:"label"`
	Payload  string `yaml:"payload" json:"payload"`
	ImageURL string `yaml:"image_url,omitempty" json:"image_url,omitempty"`
}

// Card is one element of a carousel.
type Card struct {
	Title         string   `yaml:"title" json:"title"`
	Subtitle      string   `yaml:"subtitle,omitempty" json:"subtitle,omitempty"`
	ImageURL      string   `yaml:"image_url,omitempty" json:"image_url,omitempty"`
	DefaultAction *Button  `yaml:"default_action,omitempty" json:"default_action,omitempty"`
	Buttons       []Button `yaml:"buttons,omitempty" json:"buttons,omitempty"`
}

// Media is an image or video with optional buttons.
type Media struct {
	Type    MediaType `yaml:"type" json:"type"`
	URL     string    `yaml:"url" json:"url"`
	Buttons []Button  `yaml:"buttons,omitempty" json:"buttons,omitempty"`
}

// Response is a renderable message. Only the fields of its Kind are set:
//
//	text:          Text
//	buttons:       Text, Buttons
//	quick_replies: Text (the prompt), Options
//	carousel:      Cards
//	media:         Media
type Response struct {
	ID      ResponseID         `yaml:"id" json:"id"`
	Kind    Kind               `yaml:"kind" json:"kind"`
	Text    string             `yaml:"text,omitempty" json:"text,omitempty"`
	Buttons []Button           `yaml:"buttons,omitempty" json:"buttons,omitempty"`
	Options []QuickReplyOption `yaml:"options,omitempty" json:"options,omitempty"`
	Cards   []Card             `yaml:"cards,omitempty" json:"cards,omitempty"`
	Media   *Media             `yaml:"media,omitempty" json:"media,omitempty"`
}

// Postbacks returns every postback payload the response can emit.
func (r *Response) Postbacks() []string {
	var out []string
	collect := func(buttons []Button) {
		for _, b := range buttons {
			if b.Action == ActionPostback {
				out = append(out, b.Payload)
			}
		}
	}
	collect(r.Buttons)
	for _, o := range r.Options {
		out = append(out, o.Payload)
	}
	for _, c := range r.Cards {
		if c.DefaultAction != nil {
			collect([]Button{*c.DefaultAction})
		}
		collect(c.Buttons)
	}
	if r.Media != nil {
		collect(r.Media.Buttons)
	}
	return out
}

// Clone returns a deep copy.
func (r *Response) Clone() *Response {
	c := *r
	c.Buttons = slices.Clone(r.Buttons)
	c.Options = slices.Clone(r.Options)
	if r.Cards != nil {
		c.Cards = make([]Card, len(r.Cards))
		for i, card := range r.Cards {
			card.Buttons = slices.Clone(card.Buttons)
			if card.DefaultAction != nil {
				da := *card.DefaultAction
				card.DefaultAction = &da
			}
			c.Cards[i] = card
		}
	}
	if r.Media != nil {
		m := *r.Media
		m.Buttons = slices.Clone(r.Media.Buttons)
		c.Media = &m
	}
	return &c
}

// Capture asks the dispatcher to treat the sender's next free-text message
// as input. Matching input dispatches Then with the input bound to Name;
// anything else gets Invalid and the capture stays open.
type Capture struct {
	Name    string     `yaml:"name" json:"name"`
	Pattern string     `yaml:"pattern" json:"pattern"`
	Then    TriggerKey `yaml:"then" json:"then"`
	Invalid ResponseID `yaml:"invalid,omitempty" json:"invalid,omitempty"`

	re *regexp.Regexp
}

// Matches reports whether input satisfies the capture pattern.
// An empty pattern accepts any non-empty input.
func (c *Capture) Matches(input string) bool {
	if input == "" {
		return false
	}
	if c.re == nil {
		return true
	}
	return c.re.MatchString(input)
}

// Trigger maps a key (and its text aliases) to an ordered response sequence.
type Trigger struct {
	Key       TriggerKey   `yaml:"key" json:"key"`
	Aliases   []string     `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Responses []ResponseID `yaml:"responses" json:"responses"`
	Capture   *Capture     `yaml:"capture,omitempty" json:"capture,omitempty"`
}

// Profile is the Messenger profile configuration pushed by operators.
type Profile struct {
	GetStarted         string   `yaml:"get_started,omitempty" json:"get_started,omitempty"`
	Greeting           string   `yaml:"greeting,omitempty" json:"greeting,omitempty"`
	PersistentMenu     []Button `yaml:"persistent_menu,omitempty" json:"persistent_menu,omitempty"`
	WhitelistedDomains []string `yaml:"whitelisted_domains,omitempty" json:"whitelisted_domains,omitempty"`
}

// Document is the authored form of a catalog.
type Document struct {
	Profile   Profile    `yaml:"profile" json:"profile"`
	Triggers  []Trigger  `yaml:"triggers" json:"triggers"`
	Responses []Response `yaml:"responses" json:"responses"`
}
