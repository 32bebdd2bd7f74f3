package messenger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/garyellow/menubot-go/internal/catalog"
	"github.com/garyellow/menubot-go/internal/config"
)

// Profile fields accepted by DeleteProfileFields.
const (
	FieldGetStarted         = "get_started"
	FieldGreeting           = "greeting"
	FieldPersistentMenu     = "persistent_menu"
	FieldWhitelistedDomains = "whitelisted_domains"
)

// AllProfileFields lists every field this package manages.
var AllProfileFields = []string{FieldPersistentMenu, FieldGetStarted, FieldGreeting, FieldWhitelistedDomains}

const (
	profilePath       = "me/messenger_profile"
	profileRetries    = 2
	profileRetryDelay = 500 * time.Millisecond
)

type getStarted struct {
	Payload string `json:"payload"`
}

type localized struct {
	Locale string `json:"locale"`
	Text   string `json:"text"`
}

type menu struct {
	Locale                string   `json:"locale"`
	ComposerInputDisabled bool     `json:"composer_input_disabled"`
	CallToActions         []Button `json:"call_to_actions"`
}

type profileRequest struct {
	GetStarted         *getStarted `json:"get_started,omitempty"`
	Greeting           []localized `json:"greeting,omitempty"`
	PersistentMenu     []menu      `json:"persistent_menu,omitempty"`
	WhitelistedDomains []string    `json:"whitelisted_domains,omitempty"`
}

type deleteRequest struct {
	Fields []string `json:"fields"`
}

type profileResult struct {
	Result string `json:"result"`
}

// SetGetStarted sets the payload sent when a user taps Get Started.
func (c *Client) SetGetStarted(ctx context.Context, payload string) error {
	return c.updateProfile(ctx, FieldGetStarted, profileRequest{GetStarted: &getStarted{Payload: payload}})
}

// SetGreeting sets the default-locale greeting text.
func (c *Client) SetGreeting(ctx context.Context, text string) error {
	return c.updateProfile(ctx, FieldGreeting, profileRequest{Greeting: []localized{{Locale: "default", Text: text}}})
}

// SetPersistentMenu replaces the default-locale persistent menu.
// Messenger requires Get Started to be set first.
func (c *Client) SetPersistentMenu(ctx context.Context, items []catalog.Button) error {
	if len(items) == 0 {
		return errors.New("persistent menu needs at least one item")
	}
	return c.updateProfile(ctx, FieldPersistentMenu, profileRequest{
		PersistentMenu: []menu{{Locale: "default", CallToActions: renderButtons(items)}},
	})
}

// SetWhitelistedDomains replaces the domains allowed in webviews.
func (c *Client) SetWhitelistedDomains(ctx context.Context, domains []string) error {
	if len(domains) == 0 {
		return errors.New("whitelist needs at least one domain")
	}
	return c.updateProfile(ctx, FieldWhitelistedDomains, profileRequest{WhitelistedDomains: domains})
}

// DeleteProfileFields clears the named profile fields. With no fields it
// clears every field this package manages.
func (c *Client) DeleteProfileFields(ctx context.Context, fields ...string) error {
	if len(fields) == 0 {
		fields = AllProfileFields
	}
	return c.profileCall(ctx, "delete", http.MethodDelete, deleteRequest{Fields: fields})
}

// ApplyProfile pushes every field set in p, get_started first. It stops at
// the first failure since later fields depend on earlier ones.
func (c *Client) ApplyProfile(ctx context.Context, p catalog.Profile) error {
	steps := []struct {
		set bool
		fn  func() error
	}{
		{p.GetStarted != "", func() error { return c.SetGetStarted(ctx, p.GetStarted) }},
		{p.Greeting != "", func() error { return c.SetGreeting(ctx, p.Greeting) }},
		{len(p.WhitelistedDomains) > 0, func() error { return c.SetWhitelistedDomains(ctx, p.WhitelistedDomains) }},
		{len(p.PersistentMenu) > 0, func() error { return c.SetPersistentMenu(ctx, p.PersistentMenu) }},
	}

	for _, s := range steps {
		if !s.set {
			continue
		}
		if err := s.fn(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) updateProfile(ctx context.Context, field string, body profileRequest) error {
	return c.profileCall(ctx, field, http.MethodPost, body)
}

func (c *Client) profileCall(ctx context.Context, field, method string, body any) error {
	ctx, cancel := context.WithTimeout(ctx, config.ProfileRequest)
	defer cancel()

	err := retryWithBackoff(ctx, profileRetries, profileRetryDelay, func() error {
		var out profileResult
		err := c.do(ctx, method, profilePath, body, &out)
		var apiErr *apiError
		if errors.As(err, &apiErr) && !apiErr.retryable() {
			return permanent(err)
		}
		return err
	})

	status := "success"
	if err != nil {
		status = "error"
		c.logger.WithError(err).WithField("field", field).ErrorContext(ctx, "Profile update failed")
		c.metrics.RecordProfileUpdate(field, status)
		return fmt.Errorf("messenger profile %s: %w", field, err)
	}

	c.metrics.RecordProfileUpdate(field, status)
	c.logger.WithField("field", field).InfoContext(ctx, "Profile updated")
	return nil
}
