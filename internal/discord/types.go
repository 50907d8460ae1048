// Package discord is a minimal REST client for the bot's needs: pushing
// channel messages with embeds, polling channel history, and resolving guild
// member roles. It deliberately does not use the gateway; the engine is a
// pure poller.
package discord

import (
	"fmt"
	"strconv"
	"time"
)

// Message is an inbound channel message as returned by
// GET channels/{id}/messages.
type Message struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Author  Author  `json:"author"`
	Member  *Member `json:"member,omitempty"`
}

// NumericID parses the snowflake id for ordering. Malformed ids sort first.
func (m Message) NumericID() uint64 {
	n, err := strconv.ParseUint(m.ID, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

type Author struct {
	ID  string `json:"id"`
	Bot bool   `json:"bot"`
}

type Member struct {
	Roles []string `json:"roles"`
}

// Outbound is the POST channels/{id}/messages body.
type Outbound struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
}

type EmbedFooter struct {
	Text string `json:"text"`
}

// RESTError carries the HTTP status of a failed API call plus the
// server-supplied Retry-After hint when present (429 responses).
type RESTError struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *RESTError) Error() string {
	return fmt.Sprintf("discord api: status %d: %s", e.Status, e.Body)
}
