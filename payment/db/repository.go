package db

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"go-tokenpay/payment/order"
)

// Repository is the gorm backed order, wallet and rate store.
type Repository struct {
	db *gorm.DB
}

func NewRepository(gdb *gorm.DB) *Repository {
	return &Repository{db: gdb}
}

func (r *Repository) query(ctx context.Context, q order.Query) *gorm.DB {
	tx := r.db.WithContext(ctx).Model(&Order{})
	if q.Status != "" {
		tx = tx.Where("status = ?", string(q.Status))
	}
	if q.Currency != "" {
		tx = tx.Where("currency = ?", string(q.Currency))
	}
	if len(q.ToAddresses) > 0 {
		tx = tx.Where("to_address IN ?", q.ToAddresses)
	}
	if q.OutOrderID != "" {
		tx = tx.Where("out_order_id = ?", q.OutOrderID)
	}
	if q.BlockTransactionID != "" {
		tx = tx.Where("block_transaction_id = ?", q.BlockTransactionID)
	}
	if !q.CreatedBefore.IsZero() {
		tx = tx.Where("create_time < ?", q.CreatedBefore)
	}
	return tx
}

func (r *Repository) Get(ctx context.Context, id string) (*order.Order, error) {
	var row Order
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	o := row.toOrder()
	return &o, nil
}

func (r *Repository) Find(ctx context.Context, q order.Query) ([]order.Order, error) {
	var rows []Order
	if err := r.query(ctx, q).Order("create_time asc").Find(&rows).Error; err != nil {
		return nil, translateError(err)
	}
	res := make([]order.Order, 0, len(rows))
	for _, row := range rows {
		res = append(res, row.toOrder())
	}
	return res, nil
}

func (r *Repository) Exists(ctx context.Context, q order.Query) (bool, error) {
	var n int64
	if err := r.query(ctx, q).Count(&n).Error; err != nil {
		return false, translateError(err)
	}
	return n > 0, nil
}

func (r *Repository) PendingAddresses(ctx context.Context, currency order.Currency) ([]string, error) {
	var addrs []string
	err := r.query(ctx, order.Query{Status: order.StatusPending, Currency: currency}).
		Distinct("to_address").
		Order("to_address").
		Pluck("to_address", &addrs).Error
	if err != nil {
		return nil, translateError(err)
	}
	return addrs, nil
}

func (r *Repository) Insert(ctx context.Context, o *order.Order) error {
	row := fromOrder(o)
	return translateError(r.db.WithContext(ctx).Create(&row).Error)
}

// MarkPaid moves a pending order to Paid. The status condition makes the
// transition happen at most once even with several writers.
func (r *Repository) MarkPaid(ctx context.Context, id, fromAddress, txID string, paidAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&Order{}).
		Where("id = ? AND status = ?", id, string(order.StatusPending)).
		Updates(map[string]any{
			"status":               string(order.StatusPaid),
			"pending_slot":         nil,
			"from_address":         fromAddress,
			"block_transaction_id": txID,
			"pay_time":             paidAt,
		})
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return order.ErrNotPending
	}
	return nil
}

func (r *Repository) ExpirePending(ctx context.Context, createdBefore time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&Order{}).
		Where("status = ? AND create_time < ?", string(order.StatusPending), createdBefore).
		Updates(map[string]any{
			"status":       string(order.StatusExpired),
			"pending_slot": nil,
		})
	if res.Error != nil {
		return 0, translateError(res.Error)
	}
	return res.RowsAffected, nil
}

func (r *Repository) GetWallet(ctx context.Context, userKey string) (*order.Wallet, error) {
	var row Wallet
	if err := r.db.WithContext(ctx).First(&row, "user_key = ?", userKey).Error; err != nil {
		return nil, translateError(err)
	}
	return &order.Wallet{UserKey: row.UserKey, Address: row.Address, Key: row.Key}, nil
}

func (r *Repository) InsertWallet(ctx context.Context, w *order.Wallet) error {
	row := Wallet{UserKey: w.UserKey, Address: w.Address, Key: w.Key}
	return translateError(r.db.WithContext(ctx).Create(&row).Error)
}

// Rate returns zero when no rate has been stored for the pair yet.
func (r *Repository) Rate(ctx context.Context, currency order.Currency, fiat string) (decimal.Decimal, error) {
	var rows []Rate
	err := r.db.WithContext(ctx).
		Where("currency = ? AND fiat = ?", string(currency), fiat).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return decimal.Zero, translateError(err)
	}
	if len(rows) == 0 {
		return decimal.Zero, nil
	}
	return rows[0].Rate, nil
}

func (r *Repository) UpsertRate(ctx context.Context, rate order.Rate) error {
	row := Rate{
		Currency:  string(rate.Currency),
		Fiat:      rate.Fiat,
		Rate:      rate.Rate,
		UpdatedAt: rate.UpdatedAt,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "currency"}, {Name: "fiat"}},
		DoUpdates: clause.AssignmentColumns([]string{"rate", "updated_at"}),
	}).Create(&row).Error
	return translateError(err)
}
