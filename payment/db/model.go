package db

import (
	"time"

	"github.com/shopspring/decimal"

	"go-tokenpay/payment/order"
)

// Order is the token_orders row. PendingSlot is 1 while the order is pending
// and NULL otherwise, so uk_pending_amount only constrains pending orders.
type Order struct {
	ID                 string          `gorm:"primaryKey;size:36"`
	OutOrderID         string          `gorm:"size:128;uniqueIndex"`
	Status             string          `gorm:"size:16;index"`
	Currency           string          `gorm:"size:32;uniqueIndex:uk_pending_amount,priority:2"`
	ToAddress          string          `gorm:"size:64;uniqueIndex:uk_pending_amount,priority:1"`
	Amount             decimal.Decimal `gorm:"type:decimal(30,8);uniqueIndex:uk_pending_amount,priority:3"`
	PendingSlot        *int8           `gorm:"uniqueIndex:uk_pending_amount,priority:4"`
	ActualAmount       decimal.Decimal `gorm:"type:decimal(30,8)"`
	FromAddress        string          `gorm:"size:64"`
	BlockTransactionID *string         `gorm:"size:128;uniqueIndex"`
	UserKey            string          `gorm:"size:128"`
	CreateTime         time.Time       `gorm:"index"`
	PayTime            *time.Time
	NotifyURL          string `gorm:"size:512"`
	RedirectURL        string `gorm:"size:512"`
}

func (Order) TableName() string { return "token_orders" }

type Wallet struct {
	UserKey string `gorm:"primaryKey;size:128"`
	Address string `gorm:"size:64;uniqueIndex"`
	Key     string `gorm:"size:128"`
}

func (Wallet) TableName() string { return "wallets" }

type Rate struct {
	Currency  string          `gorm:"primaryKey;size:32"`
	Fiat      string          `gorm:"primaryKey;size:16"`
	Rate      decimal.Decimal `gorm:"type:decimal(30,8)"`
	UpdatedAt time.Time
}

func (Rate) TableName() string { return "token_rates" }

func pendingSlot(status order.Status) *int8 {
	if status != order.StatusPending {
		return nil
	}
	one := int8(1)
	return &one
}

func fromOrder(o *order.Order) Order {
	row := Order{
		ID:           o.ID,
		OutOrderID:   o.OutOrderID,
		Status:       string(o.Status),
		Currency:     string(o.Currency),
		ToAddress:    o.ToAddress,
		Amount:       o.Amount,
		PendingSlot:  pendingSlot(o.Status),
		ActualAmount: o.ActualAmount,
		FromAddress:  o.FromAddress,
		UserKey:      o.UserKey,
		CreateTime:   o.CreateTime,
		PayTime:      o.PayTime,
		NotifyURL:    o.NotifyURL,
		RedirectURL:  o.RedirectURL,
	}
	if o.BlockTransactionID != "" {
		tx := o.BlockTransactionID
		row.BlockTransactionID = &tx
	}
	return row
}

func (r Order) toOrder() order.Order {
	o := order.Order{
		ID:           r.ID,
		OutOrderID:   r.OutOrderID,
		Status:       order.Status(r.Status),
		Currency:     order.Currency(r.Currency),
		ToAddress:    r.ToAddress,
		Amount:       r.Amount,
		ActualAmount: r.ActualAmount,
		FromAddress:  r.FromAddress,
		UserKey:      r.UserKey,
		CreateTime:   r.CreateTime,
		PayTime:      r.PayTime,
		NotifyURL:    r.NotifyURL,
		RedirectURL:  r.RedirectURL,
	}
	if r.BlockTransactionID != nil {
		o.BlockTransactionID = *r.BlockTransactionID
	}
	return o
}
