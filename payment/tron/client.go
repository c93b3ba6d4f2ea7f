// TronGrid client for incoming TRC20 transfers of the receiving addresses.

package tron

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

var ErrLedgerQuery = errors.New("ledger query failed")

const (
	MainnetURL = "https://api.trongrid.io"
	ShastaURL  = "https://api.shasta.trongrid.io"

	defaultLimit    = 50
	defaultMaxPages = 5
)

// Transfer is one TRC20 transfer into a watched address.
type Transfer struct {
	TransactionID string
	From          string
	To            string
	Amount        decimal.Decimal
	Contract      string
	Timestamp     time.Time
}

type TransferQuery struct {
	Address       string
	Contract      string
	Since         time.Time
	OnlyConfirmed bool
	Limit         int
}

type trc20Response struct {
	Data    []trc20Transfer `json:"data"`
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Meta    meta            `json:"meta"`
}

type trc20Transfer struct {
	TransactionID  string    `json:"transaction_id"`
	TokenInfo      tokenInfo `json:"token_info"`
	BlockTimestamp int64     `json:"block_timestamp"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	Type           string    `json:"type"`
	Value          string    `json:"value"`
}

type tokenInfo struct {
	Symbol   string `json:"symbol"`
	Address  string `json:"address"`
	Decimals int32  `json:"decimals"`
	Name     string `json:"name"`
}

type meta struct {
	At       int64 `json:"at"`
	PageSize int   `json:"page_size"`
	Links    links `json:"links"`
}

type links struct {
	Next string `json:"next"`
}

type Client struct {
	baseURL  string
	apiKey   string
	maxPages int
	http     *http.Client
}

// NewClient returns a TronGrid client. maxPages <= 0 uses the default.
func NewClient(baseURL, apiKey string, maxPages int, httpClient *http.Client) *Client {
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, apiKey: apiKey, maxPages: maxPages, http: httpClient}
}

func (c *Client) transfersURL(q TransferQuery) string {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	params := url.Values{}
	if q.OnlyConfirmed {
		params.Set("only_confirmed", "true")
	} else {
		params.Set("only_unconfirmed", "true")
	}
	params.Set("only_to", "true")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("order_by", "block_timestamp,asc")
	if !q.Since.IsZero() {
		params.Set("min_timestamp", strconv.FormatInt(q.Since.UnixMilli(), 10))
	}
	if q.Contract != "" {
		params.Set("contract_address", q.Contract)
	}
	return fmt.Sprintf("%s/v1/accounts/%s/transactions/trc20?%s", c.baseURL, url.PathEscape(q.Address), params.Encode())
}

// FetchTransfers returns the incoming transfers of q.Address since q.Since in
// ascending block time, following result pages up to the page limit.
func (c *Client) FetchTransfers(ctx context.Context, q TransferQuery) ([]Transfer, error) {
	var transfers []Transfer
	next := c.transfersURL(q)
	for page := 0; next != "" && page < c.maxPages; page++ {
		res, err := c.fetchPage(ctx, next)
		if err != nil {
			return nil, err
		}
		for _, tx := range res.Data {
			if tx.Type != "" && tx.Type != "Transfer" {
				continue
			}
			value, err := decimal.NewFromString(tx.Value)
			if err != nil {
				return nil, fmt.Errorf("%w: transfer %s value %q: %v", ErrLedgerQuery, tx.TransactionID, tx.Value, err)
			}
			transfers = append(transfers, Transfer{
				TransactionID: tx.TransactionID,
				From:          tx.From,
				To:            tx.To,
				Amount:        value.Shift(-tx.TokenInfo.Decimals),
				Contract:      tx.TokenInfo.Address,
				Timestamp:     time.UnixMilli(tx.BlockTimestamp),
			})
		}
		next = res.Meta.Links.Next
	}
	return transfers, nil
}

func (c *Client) fetchPage(ctx context.Context, pageURL string) (*trc20Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerQuery, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("TRON-PRO-API-KEY", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerQuery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %s", ErrLedgerQuery, resp.Status)
	}

	var res trc20Response
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrLedgerQuery, err)
	}
	if !res.Success {
		return nil, fmt.Errorf("%w: %s", ErrLedgerQuery, res.Error)
	}
	return &res, nil
}
