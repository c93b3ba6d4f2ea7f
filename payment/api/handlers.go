package api

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"go-tokenpay/payment/order"
	"go-tokenpay/payment/qrcode"
)

type Orders interface {
	CreateOrder(ctx context.Context, req order.CreateRequest) (*order.Order, bool, error)
	Get(ctx context.Context, id string) (*order.Order, error)
}

type ReturnData struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type createOrderRequest struct {
	OutOrderID   string `form:"OutOrderId" json:"OutOrderId"`
	OrderUserKey string `form:"OrderUserKey" json:"OrderUserKey"`
	ActualAmount string `form:"ActualAmount" json:"ActualAmount"`
	Currency     string `form:"Currency" json:"Currency"`
	NotifyURL    string `form:"NotifyUrl" json:"NotifyUrl"`
	RedirectURL  string `form:"RedirectUrl" json:"RedirectUrl"`
}

type orderView struct {
	*order.Order
	ExpireTime time.Time `json:"expire_time"`
	PayURL     string    `json:"pay_url"`
}

type Handler struct {
	orders     Orders
	expireTime func(created time.Time) time.Time
	logger     *zap.Logger
}

func NewHandler(orders Orders, expireTime func(time.Time) time.Time, logger *zap.Logger) *Handler {
	return &Handler{orders: orders, expireTime: expireTime, logger: logger}
}

func (h *Handler) view(o *order.Order) orderView {
	return orderView{Order: o, ExpireTime: h.expireTime(o.CreateTime), PayURL: "/Pay/" + o.ID}
}

func (h *Handler) CreateOrder(c *gin.Context) {
	var body createOrderRequest
	if err := c.ShouldBind(&body); err != nil {
		c.JSON(http.StatusBadRequest, ReturnData{Message: "Failed to read body"})
		return
	}
	amount, err := decimal.NewFromString(body.ActualAmount)
	if err != nil {
		c.JSON(http.StatusBadRequest, ReturnData{Message: "ActualAmount is not a number"})
		return
	}
	currency := order.Currency(body.Currency)
	if currency == "" {
		currency = order.CurrencyUSDTTRC20
	}

	o, existing, err := h.orders.CreateOrder(c.Request.Context(), order.CreateRequest{
		OutOrderID:   body.OutOrderID,
		Currency:     currency,
		ActualAmount: amount,
		UserKey:      body.OrderUserKey,
		NotifyURL:    body.NotifyURL,
		RedirectURL:  body.RedirectURL,
	})
	if err != nil {
		status, msg := errorResponse(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("create order failed", zap.String("out_order_id", body.OutOrderID), zap.Error(err))
		}
		c.JSON(status, ReturnData{Message: msg})
		return
	}

	msg := "Order created"
	if existing {
		msg = "Order exists, returning the old one"
	}
	c.JSON(http.StatusOK, ReturnData{Success: true, Message: msg, Data: h.view(o)})
}

func (h *Handler) Pay(c *gin.Context) {
	o, err := h.orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		status, msg := errorResponse(err)
		c.JSON(status, ReturnData{Message: msg})
		return
	}
	png, err := qrcode.AddressPNG(o.ToAddress)
	if err != nil {
		h.logger.Error("qr code failed", zap.String("id", o.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ReturnData{Message: "Internal error"})
		return
	}
	c.JSON(http.StatusOK, ReturnData{Success: true, Data: gin.H{
		"order":   h.view(o),
		"qr_code": "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	}})
}

// Check answers with the bare status; unknown ids read as Pending.
func (h *Handler) Check(c *gin.Context) {
	o, err := h.orders.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, order.ErrNotFound) {
		c.String(http.StatusOK, string(order.StatusPending))
		return
	}
	if err != nil {
		h.logger.Error("check order failed", zap.String("id", c.Param("id")), zap.Error(err))
		c.String(http.StatusInternalServerError, "Error")
		return
	}
	c.String(http.StatusOK, string(o.Status))
}

func (h *Handler) Health(c *gin.Context) {
	vm, err := mem.VirtualMemoryWithContext(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"memory": gin.H{
			"total":        vm.Total,
			"used":         vm.Used,
			"used_percent": vm.UsedPercent,
		},
	})
}

func errorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, order.ErrOutOrderIDRequired):
		return http.StatusBadRequest, "OutOrderId is required"
	case errors.Is(err, order.ErrInvalidAmount):
		return http.StatusBadRequest, "ActualAmount must be positive"
	case errors.Is(err, order.ErrUnsupportedCurrency):
		return http.StatusBadRequest, "Currency is not supported"
	case errors.Is(err, order.ErrUserKeyRequired):
		return http.StatusBadRequest, "OrderUserKey is required"
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, "Order not found"
	case errors.Is(err, order.ErrNoAddressConfigured):
		return http.StatusServiceUnavailable, "No receiving address configured"
	case errors.Is(err, order.ErrRateUnavailable):
		return http.StatusServiceUnavailable, "Exchange rate unavailable"
	case errors.Is(err, order.ErrAllocationExhausted), errors.Is(err, order.ErrDuplicateKey):
		return http.StatusServiceUnavailable, "Too many pending orders, please try again later"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}
