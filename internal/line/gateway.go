// Package line is the optional LINE channel: push delivery of catalog
// responses and the /callback webhook.
package line

import (
	"context"
	"fmt"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/garyellow/menubot-go/internal/catalog"
	domerrors "github.com/garyellow/menubot-go/internal/errors"
	"github.com/garyellow/menubot-go/internal/event"
	"github.com/garyellow/menubot-go/internal/lineutil"
	"github.com/garyellow/menubot-go/internal/logger"
)

const channel = string(event.ChannelLINE)

// Gateway pushes catalog responses to LINE chats.
type Gateway struct {
	api    *messaging_api.MessagingApiAPI
	logger *logger.Logger
}

// NewGateway creates a push gateway for the given channel access token.
func NewGateway(channelToken string, log *logger.Logger, opts ...messaging_api.MessagingApiAPIOption) (*Gateway, error) {
	if channelToken == "" {
		return nil, fmt.Errorf("%w: LINE channel token is required", domerrors.ErrConfiguration)
	}
	api, err := messaging_api.NewMessagingApiAPI(channelToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("create messaging API client: %w", err)
	}
	return &Gateway{api: api, logger: log.WithModule("line")}, nil
}

// Send renders resp and pushes it to the recipient chat. It is never retried.
func (g *Gateway) Send(ctx context.Context, to event.Recipient, resp *catalog.Response) error {
	msgs, err := lineutil.Render(resp)
	if err != nil {
		return domerrors.NewDeliveryError(channel, string(resp.ID), 0, err)
	}

	// WithContext mutates the client, so each send works on its own copy.
	api := *g.api
	res, _, err := api.WithContext(ctx).PushMessageWithHttpInfo(&messaging_api.PushMessageRequest{
		To:       to.ID,
		Messages: msgs,
	}, "")
	if err != nil {
		status := 0
		if res != nil {
			status = res.StatusCode
		}
		return domerrors.NewDeliveryError(channel, string(resp.ID), status, err)
	}

	g.logger.WithField("response_id", string(resp.ID)).
		WithField("messages", len(msgs)).
		DebugContext(ctx, "LINE push sent")
	return nil
}
