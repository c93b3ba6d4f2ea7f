// Package rate keeps the stored fiat-per-token rates fresh.
package rate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

const ERAPIURL = "https://open.er-api.com/v6/latest/USD"

var ErrRateSource = errors.New("rate source failed")

type erResponse struct {
	Result   string                     `json:"result"`
	BaseCode string                     `json:"base_code"`
	Rates    map[string]decimal.Decimal `json:"rates"`
}

// ERAPISource reads USD based fiat rates from open.er-api.com.
type ERAPISource struct {
	url  string
	http *http.Client
}

func NewERAPISource(url string, httpClient *http.Client) *ERAPISource {
	if url == "" {
		url = ERAPIURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ERAPISource{url: url, http: httpClient}
}

// FiatPerUSD returns how many units of each fiat currency one USD buys.
func (s *ERAPISource) FiatPerUSD(ctx context.Context) (map[string]decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRateSource, err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRateSource, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %s", ErrRateSource, resp.Status)
	}
	var data erResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrRateSource, err)
	}
	if data.Result != "success" || data.BaseCode != "USD" || data.Rates == nil {
		return nil, fmt.Errorf("%w: result %q base %q", ErrRateSource, data.Result, data.BaseCode)
	}
	data.Rates["USD"] = decimal.NewFromInt(1)
	return data.Rates, nil
}
