package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/storesync/backend/internal/domain/integration"
	"github.com/storesync/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Operation names, used for spans and TransportError.Op
const (
	opFindByNaturalKey = "find_by_natural_key"
	opCreate           = "create"
	opUpdate           = "update"
	opCreateVariation  = "create_variation"
	opProbe            = "probe"
	opListOrders       = "list_orders"
)

// errorSnippetLength caps how much of an error response body is kept
const errorSnippetLength = 200

// Client talks to the catalog API of one destination store
type Client struct {
	storeID    uuid.UUID
	baseURL    string
	key        string
	secret     string
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a client for the store profile. A nil httpClient uses a
// client without a global timeout; per-call timeouts come from config.
func NewClient(store *integration.StoreProfile, config Config, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if store.BaseURL == "" {
		return nil, ErrStoreMissingBaseURL
	}
	if store.ConsumerKey == "" || store.ConsumerSecret == "" {
		return nil, integration.ErrMissingCredentials
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		storeID:    store.ID,
		baseURL:    strings.TrimRight(store.BaseURL, "/"),
		key:        store.ConsumerKey,
		secret:     store.ConsumerSecret,
		config:     config,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst),
		logger:     logger.With(zap.String("store_id", store.ID.String())),
	}, nil
}

// ---------------------------------------------------------------------------
// Product Operations
// ---------------------------------------------------------------------------

// FindByNaturalKey looks a product up by SKU
func (c *Client) FindByNaturalKey(ctx context.Context, sku string) (string, bool, error) {
	query := url.Values{}
	query.Set("sku", sku)

	body, err := c.doRequest(ctx, opFindByNaturalKey, http.MethodGet, "/products", query, nil, c.config.ReadTimeout, http.StatusOK)
	if err != nil {
		return "", false, err
	}

	var products []productRef
	if err := json.Unmarshal(body, &products); err != nil {
		return "", false, invalidResponse(opFindByNaturalKey, err)
	}
	if len(products) == 0 {
		return "", false, nil
	}
	if products[0].ID == "" {
		return "", false, invalidResponse(opFindByNaturalKey, errors.New("product without id"))
	}
	return string(products[0].ID), true, nil
}

// Create creates the product, then each of its variations. A failed
// variation is logged and reported; it never fails the parent.
func (c *Client) Create(ctx context.Context, item integration.TransferItem) (string, integration.VariationReport, error) {
	var report integration.VariationReport

	body, err := c.doRequest(ctx, opCreate, http.MethodPost, "/products", nil, item, c.config.WriteTimeout, http.StatusCreated)
	if err != nil {
		return "", report, err
	}

	var created productRef
	if err := json.Unmarshal(body, &created); err != nil {
		return "", report, invalidResponse(opCreate, err)
	}
	if created.ID == "" {
		return "", report, invalidResponse(opCreate, errors.New("product without id"))
	}
	id := string(created.ID)

	for _, variation := range item.Variations {
		if err := c.CreateVariation(ctx, id, variation); err != nil {
			c.logger.Warn("Failed to create variation",
				zap.String("parent_id", id),
				zap.String("sku", variation.SKU),
				zap.Error(err),
			)
			report.Failed = append(report.Failed, integration.VariationFailure{
				SKU:   variation.SKU,
				Error: integration.TruncateMessage(err.Error()),
			})
			continue
		}
		report.Created = append(report.Created, variation.SKU)
	}

	return id, report, nil
}

// Update sends a partial update. Price and stock fields are included only
// when opts allows them.
func (c *Client) Update(ctx context.Context, id string, item integration.TransferItem, opts integration.UpdateOptions) error {
	path := "/products/" + url.PathEscape(id)
	_, err := c.doRequest(ctx, opUpdate, http.MethodPut, path, nil, updatePayload(item, opts), c.config.WriteTimeout, http.StatusOK)
	return err
}

// CreateVariation creates one variation under an existing parent
func (c *Client) CreateVariation(ctx context.Context, parentID string, variation integration.TransferVariation) error {
	path := "/products/" + url.PathEscape(parentID) + "/variations"
	_, err := c.doRequest(ctx, opCreateVariation, http.MethodPost, path, nil, variation, c.config.WriteTimeout, http.StatusCreated)
	return err
}

// Probe performs a read-only call. Rejected credentials come back as a
// *integration.CredentialError.
func (c *Client) Probe(ctx context.Context) error {
	query := url.Values{}
	query.Set("per_page", "1")

	_, err := c.doRequest(ctx, opProbe, http.MethodGet, "/products", query, nil, c.config.ReadTimeout, http.StatusOK)
	if err == nil {
		return nil
	}
	var te *integration.TransportError
	if errors.As(err, &te) && (te.StatusCode == http.StatusUnauthorized || te.StatusCode == http.StatusForbidden) {
		return &integration.CredentialError{StoreID: c.storeID, Err: err}
	}
	return err
}

// ---------------------------------------------------------------------------
// Order Operations
// ---------------------------------------------------------------------------

// ListOrdersAfter pages through the orders created after the given instant
func (c *Client) ListOrdersAfter(ctx context.Context, after time.Time) ([]integration.RemoteOrder, error) {
	var orders []integration.RemoteOrder

	for page := 1; page <= c.config.MaxPages; page++ {
		query := url.Values{}
		query.Set("after", after.UTC().Format(time.RFC3339))
		query.Set("page", strconv.Itoa(page))
		query.Set("per_page", strconv.Itoa(c.config.PageSize))

		body, err := c.doRequest(ctx, opListOrders, http.MethodGet, "/orders", query, nil, c.config.ReadTimeout, http.StatusOK)
		if err != nil {
			return nil, err
		}

		var payload []orderPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, invalidResponse(opListOrders, err)
		}
		for _, o := range payload {
			order, err := convertOrder(o)
			if err != nil {
				return nil, invalidResponse(opListOrders, err)
			}
			orders = append(orders, order)
		}

		if len(payload) < c.config.PageSize {
			return orders, nil
		}
	}

	c.logger.Warn("Order listing hit the page cap", zap.Int("max_pages", c.config.MaxPages))
	return orders, nil
}

// convertOrder maps the wire order into the domain order
func convertOrder(o orderPayload) (integration.RemoteOrder, error) {
	createdAt, ok := o.createdAt()
	if !ok {
		return integration.RemoteOrder{}, fmt.Errorf("order %d: unparseable creation date", o.ID)
	}

	lines := make([]integration.RemoteLineItem, 0, len(o.LineItems))
	for _, li := range o.LineItems {
		total := decimal.Zero
		if strings.TrimSpace(li.Total) != "" {
			parsed, err := decimal.NewFromString(strings.TrimSpace(li.Total))
			if err != nil {
				return integration.RemoteOrder{}, fmt.Errorf("order %d line %d: invalid total %q", o.ID, li.ID, li.Total)
			}
			total = parsed
		}
		lines = append(lines, integration.RemoteLineItem{
			ID:       li.ID,
			SKU:      li.SKU,
			Quantity: li.Quantity,
			Total:    total,
		})
	}

	return integration.RemoteOrder{ID: o.ID, CreatedAt: createdAt, LineItems: lines}, nil
}

// updatePayload builds the partial update body
func updatePayload(item integration.TransferItem, opts integration.UpdateOptions) map[string]any {
	body := map[string]any{
		"name":              item.Name,
		"sku":               item.SKU,
		"description":       item.Description,
		"short_description": item.ShortDescription,
		"status":            item.Status,
	}
	if len(item.Images) > 0 {
		body["images"] = item.Images
	}
	if len(item.Categories) > 0 {
		body["categories"] = item.Categories
	}
	if len(item.Tags) > 0 {
		body["tags"] = item.Tags
	}
	if len(item.Attributes) > 0 {
		body["attributes"] = item.Attributes
	}
	if opts.UpdatePrices {
		body["regular_price"] = item.RegularPrice
		body["sale_price"] = item.SalePrice
	}
	if opts.UpdateStock {
		body["manage_stock"] = item.ManageStock
		body["stock_status"] = item.StockStatus
		if item.StockQuantity != nil {
			body["stock_quantity"] = *item.StockQuantity
		}
	}
	return body
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

// doRequest performs one authenticated call and checks the status code.
// Every failure is returned as a *integration.TransportError.
func (c *Client) doRequest(
	ctx context.Context,
	op, method, path string,
	query url.Values,
	payload any,
	timeout time.Duration,
	wantStatus int,
) ([]byte, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "storefront", op,
		telemetry.WithSpanKind(trace.SpanKindClient),
		telemetry.WithAttribute(telemetry.SpanAttrStoreID, c.storeID.String()),
		telemetry.WithAttribute("http.method", method),
	)
	defer span.End()

	body, err := c.roundTrip(ctx, op, method, path, query, payload, timeout, wantStatus)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return body, nil
}

func (c *Client) roundTrip(
	ctx context.Context,
	op, method, path string,
	query url.Values,
	payload any,
	timeout time.Duration,
	wantStatus int,
) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &integration.TransportError{Op: op, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, &integration.TransportError{Op: op, Err: fmt.Errorf("encode body: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, &integration.TransportError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	req.SetBasicAuth(c.key, c.secret)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &integration.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &integration.TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode != wantStatus {
		return nil, &integration.TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        errors.New(errorSnippet(body, resp.Status)),
		}
	}
	return body, nil
}

// errorSnippet extracts a short message from an error response body
func errorSnippet(body []byte, fallback string) string {
	var apiErr struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		if apiErr.Code != "" {
			return integration.TruncateRunes(apiErr.Code+": "+apiErr.Message, errorSnippetLength)
		}
		return integration.TruncateRunes(apiErr.Message, errorSnippetLength)
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return fallback
	}
	return integration.TruncateRunes(text, errorSnippetLength)
}

func invalidResponse(op string, err error) error {
	return &integration.TransportError{Op: op, Err: fmt.Errorf("%w: %v", integration.ErrInvalidResponse, err)}
}

var _ integration.StorefrontClient = (*Client)(nil)
