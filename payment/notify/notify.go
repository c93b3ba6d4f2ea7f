// Package notify delivers paid-order callbacks to merchants.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go-tokenpay/payment/order"
)

var ErrNotify = errors.New("notify merchant failed")

type Client struct {
	http *http.Client
}

func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{http: httpClient}
}

// Notify POSTs the order as JSON to its NotifyURL. Any non-2xx answer is a
// failure; the caller decides what to do with it.
func (c *Client) Notify(ctx context.Context, o order.Order) error {
	body, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("%w: encode order: %v", ErrNotify, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.NotifyURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotify, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotify, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s returned %s", ErrNotify, o.NotifyURL, resp.Status)
	}
	return nil
}
