package order

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending Status = "Pending"
	StatusPaid    Status = "Paid"
	StatusExpired Status = "Expired" // set by the expiry sweeper only
)

// Currency identifies the token and the network it is paid on.
type Currency string

const CurrencyUSDTTRC20 Currency = "USDT_TRC20"

var supportedCurrencies = map[Currency]bool{
	CurrencyUSDTTRC20: true,
}

func (c Currency) Supported() bool {
	return supportedCurrencies[c]
}

type Order struct {
	ID                 string          `json:"id"`
	OutOrderID         string          `json:"out_order_id"`
	Status             Status          `json:"status"`
	Currency           Currency        `json:"currency"`
	ToAddress          string          `json:"to_address"`
	Amount             decimal.Decimal `json:"amount"`        // token amount the payer must send
	ActualAmount       decimal.Decimal `json:"actual_amount"` // fiat amount requested by the merchant
	FromAddress        string          `json:"from_address,omitempty"`
	BlockTransactionID string          `json:"block_transaction_id,omitempty"`
	UserKey            string          `json:"-"`
	CreateTime         time.Time       `json:"create_time"`
	PayTime            *time.Time      `json:"pay_time,omitempty"`
	NotifyURL          string          `json:"notify_url,omitempty"`
	RedirectURL        string          `json:"redirect_url,omitempty"`
}

// Wallet binds an external user identifier to a receiving address.
type Wallet struct {
	UserKey string
	Address string
	Key     string // hex private key
}

type Rate struct {
	Currency  Currency
	Fiat      string
	Rate      decimal.Decimal // fiat units per token
	UpdatedAt time.Time
}

// Query filters orders. Zero-valued fields are ignored. Results are ordered
// by CreateTime ascending.
type Query struct {
	Status             Status
	Currency           Currency
	ToAddresses        []string
	OutOrderID         string
	BlockTransactionID string
	CreatedBefore      time.Time
}
