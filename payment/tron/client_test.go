package tron

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usdt = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"

func TestFetchTransfers(t *testing.T) {
	since := time.UnixMilli(1700000000000)
	var calls int32

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/v1/accounts/TWatch/transactions/trc20", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("TRON-PRO-API-KEY"))

		w.Header().Set("Content-Type", "application/json")
		if n == 1 {
			q := r.URL.Query()
			assert.Equal(t, "true", q.Get("only_confirmed"))
			assert.Equal(t, "true", q.Get("only_to"))
			assert.Equal(t, "50", q.Get("limit"))
			assert.Equal(t, "1700000000000", q.Get("min_timestamp"))
			assert.Equal(t, usdt, q.Get("contract_address"))
			assert.Equal(t, "block_timestamp,asc", q.Get("order_by"))
			fmt.Fprintf(w, `{"success":true,"data":[
				{"transaction_id":"tx1","token_info":{"symbol":"USDT","address":%q,"decimals":6},
				 "block_timestamp":1700000001000,"from":"TFrom","to":"TWatch","type":"Transfer","value":"10000100"},
				{"transaction_id":"tx-approve","token_info":{"address":%q,"decimals":6},
				 "block_timestamp":1700000001500,"from":"TFrom","to":"TWatch","type":"Approval","value":"1"}
			],"meta":{"links":{"next":"%s/v1/accounts/TWatch/transactions/trc20?fingerprint=abc"}}}`, usdt, usdt, srv.URL)
			return
		}
		assert.Equal(t, "abc", r.URL.Query().Get("fingerprint"))
		fmt.Fprintf(w, `{"success":true,"data":[
			{"transaction_id":"tx2","token_info":{"address":%q,"decimals":6},
			 "block_timestamp":1700000002000,"from":"TOther","to":"TWatch","type":"Transfer","value":"5"}
		],"meta":{}}`, usdt)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", 0, srv.Client())
	got, err := c.FetchTransfers(context.Background(), TransferQuery{
		Address:       "TWatch",
		Contract:      usdt,
		Since:         since,
		OnlyConfirmed: true,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "tx1", got[0].TransactionID)
	assert.Equal(t, "10.0001", got[0].Amount.String())
	assert.Equal(t, usdt, got[0].Contract)
	assert.Equal(t, "TFrom", got[0].From)
	assert.Equal(t, "TWatch", got[0].To)
	assert.True(t, got[0].Timestamp.Equal(time.UnixMilli(1700000001000)))

	assert.Equal(t, "tx2", got[1].TransactionID)
	assert.Equal(t, "0.000005", got[1].Amount.String())
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestFetchTransfersUnconfirmedAndPageLimit(t *testing.T) {
	var calls int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "true", r.URL.Query().Get("only_unconfirmed"))
		assert.Empty(t, r.Header.Get("TRON-PRO-API-KEY"))
		fmt.Fprintf(w, `{"success":true,"data":[],"meta":{"links":{"next":"%s%s"}}}`, srv.URL, r.URL.RequestURI())
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 3, srv.Client())
	got, err := c.FetchTransfers(context.Background(), TransferQuery{Address: "TWatch"})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestFetchTransfersErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}},
		{"bad json", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"data":`)
		}},
		{"not successful", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"success":false,"error":"invalid address"}`)
		}},
		{"bad value", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"success":true,"data":[{"transaction_id":"x","value":"abc","type":"Transfer"}]}`)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewClient(srv.URL, "", 1, srv.Client()).
				FetchTransfers(context.Background(), TransferQuery{Address: "TWatch"})
			assert.ErrorIs(t, err, ErrLedgerQuery)
		})
	}
}

func TestFetchTransfersTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewClient(srv.URL, "", 1, srv.Client()).FetchTransfers(ctx, TransferQuery{Address: "TWatch"})
	assert.ErrorIs(t, err, ErrLedgerQuery)
}
