package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/storesync/backend/internal/domain/integration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, baseURL string, mutate func(*Config)) *Client {
	t.Helper()
	store, err := integration.NewStoreProfile("alpha", baseURL, "ck_test", "cs_test")
	require.NoError(t, err)
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	client, err := NewClient(store, cfg, nil, nil)
	require.NoError(t, err)
	return client
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ---------------------------------------------------------------------------
// Config Tests
// ---------------------------------------------------------------------------

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{name: "zero values get defaults", config: Config{}},
		{name: "negative timeout", config: Config{ReadTimeout: -time.Second}, wantErr: ErrConfigInvalidTimeout},
		{name: "negative rate", config: Config{RateLimit: -1}, wantErr: ErrConfigInvalidRateLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, DefaultReadTimeout, tt.config.ReadTimeout)
			assert.Equal(t, DefaultWriteTimeout, tt.config.WriteTimeout)
			assert.Equal(t, DefaultRateBurst, tt.config.RateBurst)
			assert.Equal(t, DefaultPageSize, tt.config.PageSize)
		})
	}
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	store := &integration.StoreProfile{BaseURL: "https://shop.example.com"}
	_, err := NewClient(store, DefaultConfig(), nil, nil)
	assert.ErrorIs(t, err, integration.ErrMissingCredentials)
}

// ---------------------------------------------------------------------------
// Product Tests
// ---------------------------------------------------------------------------

func TestClient_FindByNaturalKey(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantID    string
		wantFound bool
		wantErr   error
	}{
		{name: "found numeric id", status: 200, body: `[{"id": 42, "sku": "SKU-X"}]`, wantID: "42", wantFound: true},
		{name: "found string id", status: 200, body: `[{"id": "abc"}]`, wantID: "abc", wantFound: true},
		{name: "not found", status: 200, body: `[]`},
		{name: "server error", status: 500, body: `{"code":"internal","message":"boom"}`, wantErr: integration.ErrTransport},
		{name: "malformed body", status: 200, body: `{"id": 1}`, wantErr: integration.ErrInvalidResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				user, pass, ok := r.BasicAuth()
				assert.True(t, ok)
				assert.Equal(t, "ck_test", user)
				assert.Equal(t, "cs_test", pass)
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/products", r.URL.Path)
				assert.Equal(t, "SKU-X", r.URL.Query().Get("sku"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			client := newTestClient(t, srv.URL, nil)

			id, found, err := client.FindByNaturalKey(context.Background(), "SKU-X")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				var te *integration.TransportError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, opFindByNaturalKey, te.Op)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantFound, found)
		})
	}
}

func TestClient_CreateReportsVariationFailures(t *testing.T) {
	var mu sync.Mutex
	var variationSKUs []string

	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/products":
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "SKU-P", body["sku"])
			assert.NotContains(t, body, "variations")
			writeJSON(w, http.StatusCreated, map[string]any{"id": 77})
		case r.Method == http.MethodPost && r.URL.Path == "/products/77/variations":
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			sku, _ := body["sku"].(string)
			mu.Lock()
			variationSKUs = append(variationSKUs, sku)
			mu.Unlock()
			if sku == "SKU-P-2" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"code": "invalid_attribute", "message": "bad attribute"})
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"id": 100})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
	client := newTestClient(t, srv.URL, nil)

	item := integration.TransferItem{
		Name: "Parent",
		SKU:  "SKU-P",
		Type: "variable",
		Variations: []integration.TransferVariation{
			{SKU: "SKU-P-1", RegularPrice: "10.00"},
			{SKU: "SKU-P-2", RegularPrice: "11.00"},
			{SKU: "SKU-P-3", RegularPrice: "12.00"},
		},
	}

	id, report, err := client.Create(context.Background(), item)
	require.NoError(t, err, "a variation failure never fails the parent")
	assert.Equal(t, "77", id)
	assert.Equal(t, []string{"SKU-P-1", "SKU-P-3"}, report.Created)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "SKU-P-2", report.Failed[0].SKU)
	assert.Contains(t, report.Failed[0].Error, "bad attribute")
	assert.Equal(t, []string{"SKU-P-1", "SKU-P-2", "SKU-P-3"}, variationSKUs)
}

func TestClient_CreateRejectsUnexpectedStatus(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": 1})
	})
	client := newTestClient(t, srv.URL, nil)

	_, _, err := client.Create(context.Background(), integration.TransferItem{SKU: "A"})
	var te *integration.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusOK, te.StatusCode)
}

func TestClient_UpdateGatesFields(t *testing.T) {
	qty := 7
	item := integration.TransferItem{
		Name:          "Widget",
		SKU:           "SKU-W",
		RegularPrice:  "19.90",
		SalePrice:     "15.00",
		StockQuantity: &qty,
		StockStatus:   "instock",
		ManageStock:   true,
		Status:        "publish",
	}

	tests := []struct {
		name       string
		opts       integration.UpdateOptions
		wantPrices bool
		wantStock  bool
	}{
		{name: "prices and stock", opts: integration.UpdateOptions{UpdatePrices: true, UpdateStock: true}, wantPrices: true, wantStock: true},
		{name: "preserve prices", opts: integration.UpdateOptions{UpdateStock: true}, wantStock: true},
		{name: "content only", opts: integration.UpdateOptions{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]any
			srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPut, r.Method)
				assert.Equal(t, "/products/55", r.URL.Path)
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				writeJSON(w, http.StatusOK, map[string]any{"id": 55})
			})
			client := newTestClient(t, srv.URL, nil)

			require.NoError(t, client.Update(context.Background(), "55", item, tt.opts))
			assert.Equal(t, "Widget", body["name"])
			for _, key := range []string{"regular_price", "sale_price"} {
				_, ok := body[key]
				assert.Equal(t, tt.wantPrices, ok, key)
			}
			for _, key := range []string{"stock_quantity", "stock_status", "manage_stock"} {
				_, ok := body[key]
				assert.Equal(t, tt.wantStock, ok, key)
			}
		})
	}
}

func TestClient_UpdateNotFound(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"code": "woocommerce_rest_product_invalid_id", "message": "Invalid ID."})
	})
	client := newTestClient(t, srv.URL, nil)

	err := client.Update(context.Background(), "9", integration.TransferItem{SKU: "A"}, integration.UpdateOptions{})
	var te *integration.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusNotFound, te.StatusCode)
	assert.Contains(t, te.Error(), "Invalid ID.")
}

func TestClient_Probe(t *testing.T) {
	tests := []struct {
		name           string
		status         int
		wantCredential bool
		wantErr        bool
	}{
		{name: "ok", status: http.StatusOK},
		{name: "unauthorized", status: http.StatusUnauthorized, wantCredential: true, wantErr: true},
		{name: "forbidden", status: http.StatusForbidden, wantCredential: true, wantErr: true},
		{name: "unavailable", status: http.StatusServiceUnavailable, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "1", r.URL.Query().Get("per_page"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`[]`))
			})
			client := newTestClient(t, srv.URL, nil)

			err := client.Probe(context.Background())
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var ce *integration.CredentialError
			assert.Equal(t, tt.wantCredential, errors.As(err, &ce))
			if tt.wantCredential {
				assert.Equal(t, client.storeID, ce.StoreID)
			}
			assert.ErrorIs(t, err, integration.ErrTransport)
		})
	}
}

func TestClient_ReadTimeout(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	client := newTestClient(t, srv.URL, func(c *Config) { c.ReadTimeout = 20 * time.Millisecond })

	_, _, err := client.FindByNaturalKey(context.Background(), "SKU-X")
	assert.ErrorIs(t, err, integration.ErrTransport)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_RateLimited(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	client := newTestClient(t, srv.URL, func(c *Config) {
		c.RateLimit = 0.1
		c.RateBurst = 1
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, _, err := client.FindByNaturalKey(ctx, "A")
	require.NoError(t, err)
	_, _, err = client.FindByNaturalKey(ctx, "B")
	assert.ErrorIs(t, err, integration.ErrTransport, "a wait beyond the deadline fails fast")
}

// ---------------------------------------------------------------------------
// Order Tests
// ---------------------------------------------------------------------------

func TestClient_ListOrdersAfterPages(t *testing.T) {
	after := time.Date(2026, 3, 31, 10, 0, 0, 0, time.UTC)
	var pages []string

	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders", r.URL.Path)
		assert.Equal(t, "2026-03-31T10:00:00Z", r.URL.Query().Get("after"))
		assert.Equal(t, "2", r.URL.Query().Get("per_page"))
		page := r.URL.Query().Get("page")
		pages = append(pages, page)

		switch page {
		case "1":
			_, _ = w.Write([]byte(`[
				{"id": 1, "date_created_gmt": "2026-04-01T08:00:00", "line_items": [{"id": 10, "sku": "SKU-A", "quantity": 2, "total": "20.00"}]},
				{"id": 2, "date_created_gmt": "2026-04-01T09:30:00", "line_items": [{"id": 11, "sku": "SKU-B", "quantity": 1, "total": "5.50"}]}
			]`))
		default:
			_, _ = w.Write([]byte(`[{"id": 3, "date_created": "2026-04-02T12:00:00+02:00", "line_items": []}]`))
		}
	})
	client := newTestClient(t, srv.URL, func(c *Config) { c.PageSize = 2 })

	orders, err := client.ListOrdersAfter(context.Background(), after)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, pages)
	require.Len(t, orders, 3)

	assert.Equal(t, time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC), orders[0].CreatedAt)
	require.Len(t, orders[0].LineItems, 1)
	assert.Equal(t, "SKU-A", orders[0].LineItems[0].SKU)
	assert.Equal(t, 2, orders[0].LineItems[0].Quantity)
	assert.True(t, decimal.RequireFromString("20").Equal(orders[0].LineItems[0].Total))
	assert.Equal(t, time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC), orders[2].CreatedAt)
}

func TestClient_ListOrdersAfterInvalidTotal(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id": 1, "date_created_gmt": "2026-04-01T08:00:00", "line_items": [{"id": 10, "sku": "A", "quantity": 1, "total": "abc"}]}]`))
	})
	client := newTestClient(t, srv.URL, nil)

	orders, err := client.ListOrdersAfter(context.Background(), time.Now())
	assert.ErrorIs(t, err, integration.ErrInvalidResponse)
	assert.Nil(t, orders)
}

// ---------------------------------------------------------------------------
// Factory Tests
// ---------------------------------------------------------------------------

func TestClientFactory(t *testing.T) {
	factory, err := NewClientFactory(DefaultConfig(), nil, nil)
	require.NoError(t, err)

	store, err := integration.NewStoreProfile("alpha", "https://alpha.example.com", "ck", "cs")
	require.NoError(t, err)

	first, err := factory.ClientFor(store)
	require.NoError(t, err)
	second, err := factory.ClientFor(store)
	require.NoError(t, err)
	assert.Same(t, first, second)

	store.ConsumerSecret = "rotated"
	rotated, err := factory.ClientFor(store)
	require.NoError(t, err)
	assert.NotSame(t, first, rotated, "changed credentials rebuild the client")

	factory.Forget(store.ID)
	fresh, err := factory.ClientFor(store)
	require.NoError(t, err)
	assert.NotSame(t, rotated, fresh)

	store.ConsumerKey = ""
	_, err = factory.ClientFor(store)
	assert.ErrorIs(t, err, integration.ErrMissingCredentials)
}
