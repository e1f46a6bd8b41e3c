// Copyright 2026 The Chatvault Authors
// SPDX-License-Identifier: Apache-2.0

package restapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// maxPageSize is the largest page the message-listing endpoint serves.
const maxPageSize = 100

// Messages lists a channel's message history, newest first, paging
// backwards with the `before` cursor. limit < 0 means the full
// history. Each message is returned as its raw JSON record so callers
// can archive it verbatim or decode only the fields they need.
//
// On a mid-pagination failure the messages collected so far are
// returned alongside the error.
func (c *Client) Messages(ctx context.Context, channelID string, limit int) ([]json.RawMessage, error) {
	var messages []json.RawMessage
	var beforeID string

	for limit != 0 {
		size := maxPageSize
		if limit > 0 && limit < size {
			size = limit
		}

		query := url.Values{}
		query.Set("limit", strconv.Itoa(size))
		if beforeID != "" {
			query.Set("before", beforeID)
		}

		body, err := c.do(ctx, http.MethodGet, c.channelURL(channelID, "messages")+"?"+query.Encode(), nil)
		if err != nil {
			return messages, fmt.Errorf("restapi: listing messages in %s: %w", channelID, err)
		}

		var page []json.RawMessage
		if err := json.Unmarshal(body, &page); err != nil {
			return messages, fmt.Errorf("restapi: parsing message page for %s: %w", channelID, err)
		}
		if len(page) == 0 {
			break
		}

		messages = append(messages, page...)

		if len(page) < size {
			break
		}

		// The cursor for the next page is the oldest message of this
		// one.
		var last struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(page[len(page)-1], &last); err != nil {
			return messages, fmt.Errorf("restapi: parsing pagination cursor for %s: %w", channelID, err)
		}
		beforeID = last.ID

		if limit > 0 {
			limit -= size
		}
	}

	return messages, nil
}

// DeleteMessage removes one message from a channel.
func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	_, err := c.do(ctx, http.MethodDelete, c.channelURL(channelID, "messages", url.PathEscape(messageID)), nil)
	if err != nil {
		return fmt.Errorf("restapi: deleting message %s in %s: %w", messageID, channelID, err)
	}
	return nil
}

// SendMessage posts a plain text message to a channel.
func (c *Client) SendMessage(ctx context.Context, channelID, content string) error {
	body := map[string]string{"content": content}
	_, err := c.do(ctx, http.MethodPost, c.channelURL(channelID, "messages"), body)
	if err != nil {
		return fmt.Errorf("restapi: sending message to %s: %w", channelID, err)
	}
	return nil
}

// Fetch downloads an absolute URL (attachment content) through the
// same credential and rate-limit handling as API calls. It satisfies
// the blob store's Fetcher interface.
func (c *Client) Fetch(ctx context.Context, fetchURL string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, fetchURL, nil)
}
