package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"warden/internal/clock"
)

// courtesyDelay separates sends to consecutive destinations, independent of
// the per-call spacing limiter.
const courtesyDelay = 500 * time.Millisecond

type ClientConfig struct {
	BaseURL string
	Token   string

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
	// Limiter overrides the default 1 req/s outbound spacing (tests).
	Limiter *rate.Limiter
	Clock   clock.Clock
}

// Client talks to the Discord REST API. Delivery (Send) never returns an
// error: configuration problems and terminal failures are logged, matching
// the bus's silent-failure contract for notifications.
type Client struct {
	base    string
	token   string
	httpc   *http.Client
	limiter *rate.Limiter
	clk     clock.Clock
	log     zerolog.Logger
}

func NewClient(cfg ClientConfig, log zerolog.Logger) *Client {
	c := &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		httpc:   cfg.HTTPClient,
		limiter: cfg.Limiter,
		clk:     cfg.Clock,
		log:     log.With().Str("component", "discord").Logger(),
	}
	if c.httpc == nil {
		c.httpc = &http.Client{Timeout: 15 * time.Second}
	}
	if c.limiter == nil {
		c.limiter = rate.NewLimiter(rate.Every(time.Second), 1)
	}
	if c.clk == nil {
		c.clk = clock.Real{}
	}
	return c
}

// Send pushes msg to every destination channel, retrying transient failures
// per destination up to MaxAttempts. Empty/blank destinations or a missing
// token are configuration errors: logged at warn level, nothing raised.
func (c *Client) Send(ctx context.Context, channelIDs []string, msg Outbound) {
	dests := make([]string, 0, len(channelIDs))
	for _, id := range channelIDs {
		if strings.TrimSpace(id) != "" {
			dests = append(dests, id)
		}
	}
	if len(dests) == 0 {
		c.log.Warn().Msg("send skipped: no destination channels configured")
		return
	}
	if c.token == "" {
		c.log.Warn().Msg("send skipped: no bot token configured")
		return
	}

	for i, dest := range dests {
		if i > 0 {
			c.clk.Sleep(courtesyDelay)
		}
		c.sendOne(ctx, dest, msg)
	}
}

func (c *Client) sendOne(ctx context.Context, channelID string, msg Outbound) {
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		err := c.post(ctx, channelID, msg)
		if err == nil {
			c.log.Debug().Str("channel", channelID).Int("attempt", attempt).Msg("message delivered")
			return
		}
		if ctx.Err() != nil {
			return
		}

		d := NextDelay(err, attempt)
		if !d.Retry {
			c.log.Warn().Err(err).Str("channel", channelID).Msg("delivery abandoned")
			return
		}
		if attempt == MaxAttempts {
			break
		}
		c.log.Debug().Err(err).Str("channel", channelID).Int("attempt", attempt).Dur("delay", d.Delay).Msg("delivery retry")
		c.clk.Sleep(d.Delay)
	}
	c.log.Error().Str("channel", channelID).Int("attempts", MaxAttempts).Msg("delivery failed after retries")
}

func (c *Client) post(ctx context.Context, channelID string, msg Outbound) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/channels/"+channelID+"/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

// Messages fetches up to limit messages strictly after afterID (newest first,
// as the API returns them). afterID == "" fetches only the most recent
// message, used for baseline seeding.
func (c *Client) Messages(ctx context.Context, channelID, afterID string, limit int) ([]Message, error) {
	q := url.Values{}
	if afterID != "" {
		q.Set("after", afterID)
		q.Set("limit", strconv.Itoa(limit))
	} else {
		q.Set("limit", "1")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/channels/"+channelID+"/messages?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var out []Message
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MemberRoles resolves the role ids of a guild member.
func (c *Client) MemberRoles(ctx context.Context, guildID, userID string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/guilds/"+guildID+"/members/"+userID, nil)
	if err != nil {
		return nil, err
	}
	var member Member
	if err := c.do(req, &member); err != nil {
		return nil, err
	}
	return member.Roles, nil
}

// SortAscending orders messages by numeric snowflake id, oldest first, so
// commands run in the order they were typed regardless of API ordering.
func SortAscending(msgs []Message) {
	sort.Slice(msgs, func(i, j int) bool {
		return msgs[i].NumericID() < msgs[j].NumericID()
	})
}

// do executes one API call under the shared outbound spacing limiter and
// decodes a 2xx JSON body into out when non-nil.
func (c *Client) do(req *http.Request, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bot "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	re := &RESTError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.ParseFloat(ra, 64); err == nil && secs > 0 {
			re.RetryAfter = time.Duration(secs * float64(time.Second))
		}
	}
	return re
}
