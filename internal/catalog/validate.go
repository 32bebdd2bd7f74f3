package catalog

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"unicode/utf8"

	domerrors "github.com/garyellow/menubot-go/internal/errors"
)

// Platform limits enforced at load time. Messenger is the strictest
// channel for most of these; LINE rendering truncates further.
const (
	MaxTextLength         = 2000
	MaxTemplateTextLength = 640
	MaxButtonsPerTemplate = 3
	MaxButtonLabelLength  = 20
	MaxQuickReplies       = 13
	MaxQuickReplyLabel    = 20
	MaxCards              = 10
	MaxCardTitleLength    = 80
	MaxCardSubtitleLength = 80
	MaxPayloadLength      = 1000
	MaxPersistentMenu     = 20
)

type validator struct {
	errs []error
}

func (v *validator) add(kind domerrors.IntegrityKind, subject, ref, detail string) {
	v.errs = append(v.errs, domerrors.NewIntegrityError(kind, subject, ref, detail))
}

func (v *validator) err() error {
	return errors.Join(v.errs...)
}

func (v *validator) maxLen(subject, field, s string, limit int) {
	if n := utf8.RuneCountInString(s); n > limit {
		v.add(domerrors.KindLimitExceeded, subject, "", fmt.Sprintf("%s is %d characters, limit %d", field, n, limit))
	}
}

func (v *validator) maxCount(subject, field string, n, limit int) {
	if n > limit {
		v.add(domerrors.KindLimitExceeded, subject, "", fmt.Sprintf("%d %s, limit %d", n, field, limit))
	}
}

// checkResponse verifies a response carries exactly the fields of its kind.
func (v *validator) checkResponse(subject string, r *Response) {
	unexpected := func(field string, present bool) {
		if present {
			v.add(domerrors.KindInvalidShape, subject, "", fmt.Sprintf("%s is not allowed for kind %q", field, r.Kind))
		}
	}

	switch r.Kind {
	case KindText:
		if r.Text == "" {
			v.add(domerrors.KindInvalidShape, subject, "", "text is required")
		}
		v.maxLen(subject, "text", r.Text, MaxTextLength)
		unexpected("buttons", len(r.Buttons) > 0)
		unexpected("options", len(r.Options) > 0)
		unexpected("cards", len(r.Cards) > 0)
		unexpected("media", r.Media != nil)

	case KindButtons:
		if r.Text == "" {
			v.add(domerrors.KindInvalidShape, subject, "", "text is required")
		}
		if len(r.Buttons) == 0 {
			v.add(domerrors.KindInvalidShape, subject, "", "at least one button is required")
		}
		v.maxLen(subject, "text", r.Text, MaxTemplateTextLength)
		v.maxCount(subject, "buttons", len(r.Buttons), MaxButtonsPerTemplate)
		v.checkButtons(subject, r.Buttons)
		unexpected("options", len(r.Options) > 0)
		unexpected("cards", len(r.Cards) > 0)
		unexpected("media", r.Media != nil)

	case KindQuickReplies:
		if r.Text == "" {
			v.add(domerrors.KindInvalidShape, subject, "", "text (the prompt) is required")
		}
		if len(r.Options) == 0 {
			v.add(domerrors.KindInvalidShape, subject, "", "at least one option is required")
		}
		v.maxLen(subject, "text", r.Text, MaxTextLength)
		v.maxCount(subject, "options", len(r.Options), MaxQuickReplies)
		for i, o := range r.Options {
			osub := fmt.Sprintf("%s option[%d]", subject, i)
			if o.Label == "" || o.Payload == "" {
				v.add(domerrors.KindInvalidShape, osub, "", "label and payload are required")
			}
			v.maxLen(osub, "label", o.Label, MaxQuickReplyLabel)
			v.maxLen(osub, "payload", o.Payload, MaxPayloadLength)
			if o.ImageURL != "" {
				v.checkURL(osub, o.ImageURL)
			}
		}
		unexpected("buttons", len(r.Buttons) > 0)
		unexpected("cards", len(r.Cards) > 0)
		unexpected("media", r.Media != nil)

	case KindCarousel:
		if len(r.Cards) == 0 {
			v.add(domerrors.KindInvalidShape, subject, "", "at least one card is required")
		}
		v.maxCount(subject, "cards", len(r.Cards), MaxCards)
		for i, c := range r.Cards {
			csub := fmt.Sprintf("%s card[%d]", subject, i)
			if c.Title == "" {
				v.add(domerrors.KindInvalidShape, csub, "", "title is required")
			}
			v.maxLen(csub, "title", c.Title, MaxCardTitleLength)
			v.maxLen(csub, "subtitle", c.Subtitle, MaxCardSubtitleLength)
			v.maxCount(csub, "buttons", len(c.Buttons), MaxButtonsPerTemplate)
			if c.ImageURL != "" {
				v.checkURL(csub, c.ImageURL)
			}
			if c.DefaultAction != nil {
				v.checkAction(csub+" default_action", *c.DefaultAction, false)
			}
			v.checkButtons(csub, c.Buttons)
		}
		unexpected("text", r.Text != "")
		unexpected("buttons", len(r.Buttons) > 0)
		unexpected("options", len(r.Options) > 0)
		unexpected("media", r.Media != nil)

	case KindMedia:
		if r.Media == nil {
			v.add(domerrors.KindInvalidShape, subject, "", "media is required")
		} else {
			if r.Media.Type != MediaImage && r.Media.Type != MediaVideo {
				v.add(domerrors.KindInvalidShape, subject, string(r.Media.Type), "media type must be image or video")
			}
			v.checkURL(subject, r.Media.URL)
			v.maxCount(subject, "buttons", len(r.Media.Buttons), MaxButtonsPerTemplate)
			v.checkButtons(subject, r.Media.Buttons)
		}
		unexpected("text", r.Text != "")
		unexpected("buttons", len(r.Buttons) > 0)
		unexpected("options", len(r.Options) > 0)
		unexpected("cards", len(r.Cards) > 0)

	default:
		v.add(domerrors.KindInvalidShape, subject, string(r.Kind), "unknown kind")
	}
}

func (v *validator) checkButtons(subject string, buttons []Button) {
	for i, b := range buttons {
		v.checkAction(fmt.Sprintf("%s button[%d]", subject, i), b, true)
	}
}

// checkAction validates one button. Default actions carry no label.
func (v *validator) checkAction(subject string, b Button, needLabel bool) {
	if needLabel {
		if b.Label == "" {
			v.add(domerrors.KindInvalidShape, subject, "", "label is required")
		}
		v.maxLen(subject, "label", b.Label, MaxButtonLabelLength)
	}
	switch b.Action {
	case ActionOpenLink:
		v.checkURL(subject, b.URL)
		if b.Payload != "" {
			v.add(domerrors.KindInvalidShape, subject, "", "open_link buttons take a url, not a payload")
		}
	case ActionPostback:
		if b.Payload == "" {
			v.add(domerrors.KindInvalidShape, subject, "", "postback buttons need a payload")
		}
		v.maxLen(subject, "payload", b.Payload, MaxPayloadLength)
		if b.URL != "" {
			v.add(domerrors.KindInvalidShape, subject, "", "postback buttons take a payload, not a url")
		}
	default:
		v.add(domerrors.KindInvalidShape, subject, string(b.Action), "action must be open_link or postback")
	}
}

func (v *validator) checkURL(subject, raw string) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		v.add(domerrors.KindInvalidShape, subject, raw, "must be an absolute http(s) URL")
	}
}

func (v *validator) checkCapture(subject string, c *Capture) {
	if c.Name == "" {
		v.add(domerrors.KindInvalidShape, subject+" capture", "", "name is required")
	}
	if c.Then == "" {
		v.add(domerrors.KindInvalidShape, subject+" capture", "", "then is required")
	}
	if c.Pattern == "" {
		return
	}
	re, err := regexp.Compile(c.Pattern)
	if err != nil {
		v.add(domerrors.KindInvalidShape, subject+" capture", c.Pattern, err.Error())
		return
	}
	c.re = re
}

// checkReferences runs after every trigger and response is indexed.
func (v *validator) checkReferences(c *Catalog) {
	if _, ok := c.exact[DefaultTrigger]; !ok {
		v.add(domerrors.KindMissingDefault, "catalog", string(DefaultTrigger), "a default trigger is required")
	}

	for _, t := range c.triggers {
		subject := fmt.Sprintf("trigger %q", t.Key)
		for _, id := range t.Responses {
			if _, ok := c.responses[id]; !ok {
				v.add(domerrors.KindUnknownResponse, subject, string(id), "")
			}
		}
		if t.Capture == nil {
			continue
		}
		if t.Capture.Then != "" {
			if _, ok := c.exact[t.Capture.Then]; !ok {
				v.add(domerrors.KindDanglingTrigger, subject+" capture.then", string(t.Capture.Then), "")
			}
		}
		if t.Capture.Invalid != "" {
			if _, ok := c.responses[t.Capture.Invalid]; !ok {
				v.add(domerrors.KindUnknownResponse, subject+" capture.invalid", string(t.Capture.Invalid), "")
			}
		}
	}

	for _, id := range c.order {
		for _, payload := range c.responses[id].Postbacks() {
			if payload == "" {
				continue
			}
			if _, ok := c.exact[TriggerKey(payload)]; !ok {
				v.add(domerrors.KindDanglingTrigger, fmt.Sprintf("response %q", id), payload, "")
			}
		}
	}

	v.checkProfile(c)
}

func (v *validator) checkProfile(c *Catalog) {
	p := c.profile
	if p.GetStarted != "" {
		if _, ok := c.exact[TriggerKey(p.GetStarted)]; !ok {
			v.add(domerrors.KindDanglingTrigger, "profile get_started", p.GetStarted, "")
		}
	}
	v.maxCount("profile", "persistent_menu items", len(p.PersistentMenu), MaxPersistentMenu)
	for i, b := range p.PersistentMenu {
		subject := fmt.Sprintf("profile persistent_menu[%d]", i)
		v.checkAction(subject, b, true)
		if b.Action == ActionPostback && b.Payload != "" {
			if _, ok := c.exact[TriggerKey(b.Payload)]; !ok {
				v.add(domerrors.KindDanglingTrigger, subject, b.Payload, "")
			}
		}
	}
	for i, d := range p.WhitelistedDomains {
		u, err := url.Parse(d)
		if err != nil || u.Scheme != "https" || u.Host == "" {
			v.add(domerrors.KindInvalidShape, fmt.Sprintf("profile whitelisted_domains[%d]", i), d, "must be an https origin")
		}
	}
}
