package halcyon

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/halcyon-dev/halcyon/discord"
	"github.com/halcyon-dev/halcyon/halcyonjson"
	"github.com/rs/zerolog"
)

const EndpointGatewayBot = "/gateway/bot"

// RatelimitInfo describes the ratelimit state observed on an HTTP response
// from the gateway endpoint.
type RatelimitInfo struct {
	Limit      int
	Remaining  int
	ResetAfter time.Duration
	Global     bool
}

// GatewayURLRetriever fetches the websocket URL and session start limits
// for the current bot.
type GatewayURLRetriever interface {
	GetGatewayBot(ctx context.Context) (discord.BotGateway, error)
}

// HTTPGatewayRetriever implements GatewayURLRetriever against the HTTP API.
// Ratelimit headers observed on responses are published to the Ratelimits
// channel; the channel is never written to blockingly, so a slow consumer
// only loses notifications.
type HTTPGatewayRetriever struct {
	logger zerolog.Logger

	client  *http.Client
	baseURL string
	token   string

	ratelimits chan RatelimitInfo
}

func NewHTTPGatewayRetriever(logger zerolog.Logger, client *http.Client, baseURL, token string) *HTTPGatewayRetriever {
	if client == nil {
		client = http.DefaultClient
	}

	return &HTTPGatewayRetriever{
		logger: logger,

		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,

		ratelimits: make(chan RatelimitInfo, 16),
	}
}

// Ratelimits returns the channel ratelimit notifications are published on.
func (r *HTTPGatewayRetriever) Ratelimits() <-chan RatelimitInfo {
	return r.ratelimits
}

// GetGatewayBot fetches /gateway/bot.
func (r *HTTPGatewayRetriever) GetGatewayBot(ctx context.Context) (discord.BotGateway, error) {
	var botGateway discord.BotGateway

	if r.token == "" {
		return botGateway, ErrNoAuthentication
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+EndpointGatewayBot, nil)
	if err != nil {
		return botGateway, fmt.Errorf("failed to create gateway request: %w", err)
	}

	token := r.token
	if !strings.HasPrefix(token, "Bot ") {
		token = "Bot " + token
	}

	req.Header.Set("Authorization", token)
	req.Header.Set("User-Agent", "Halcyon/"+Version)

	resp, err := r.client.Do(req)
	if err != nil {
		return botGateway, fmt.Errorf("failed to fetch gateway: %w", err)
	}

	defer resp.Body.Close()

	r.observeRatelimit(resp)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return botGateway, ErrInvalidAuthentication
	case resp.StatusCode != http.StatusOK:
		return botGateway, fmt.Errorf("gateway request returned status %d", resp.StatusCode)
	}

	if err = halcyonjson.UnmarshalReader(resp.Body, &botGateway); err != nil {
		return botGateway, fmt.Errorf("failed to unmarshal gateway response: %w", err)
	}

	if botGateway.URL == "" {
		return botGateway, ErrBuildingURL
	}

	return botGateway, nil
}

func (r *HTTPGatewayRetriever) observeRatelimit(resp *http.Response) {
	limitHeader := resp.Header.Get("X-RateLimit-Limit")
	if limitHeader == "" && resp.StatusCode != http.StatusTooManyRequests {
		return
	}

	info := RatelimitInfo{
		Global: resp.Header.Get("X-RateLimit-Global") == "true",
	}

	info.Limit, _ = strconv.Atoi(limitHeader)
	info.Remaining, _ = strconv.Atoi(resp.Header.Get("X-RateLimit-Remaining"))

	if resetAfter, err := strconv.ParseFloat(resp.Header.Get("X-RateLimit-Reset-After"), 64); err == nil {
		info.ResetAfter = time.Duration(resetAfter * float64(time.Second))
	}

	select {
	case r.ratelimits <- info:
	default:
		r.logger.Debug().Msg("Dropped ratelimit notification, no consumer")
	}
}
