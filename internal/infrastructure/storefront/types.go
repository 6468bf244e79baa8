package storefront

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// remoteID accepts a product id encoded either as a JSON number or string
type remoteID string

func (id *remoteID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = remoteID(s)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return err
	}
	*id = remoteID(n.String())
	return nil
}

// productRef is the subset of a product response the engine reads
type productRef struct {
	ID  remoteID `json:"id"`
	SKU string   `json:"sku"`
}

// orderPayload is an order as returned by GET /orders
type orderPayload struct {
	ID             int64             `json:"id"`
	DateCreated    string            `json:"date_created"`
	DateCreatedGMT string            `json:"date_created_gmt"`
	LineItems      []lineItemPayload `json:"line_items"`
}

// lineItemPayload is one line of an order
type lineItemPayload struct {
	ID       int64  `json:"id"`
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
	Total    string `json:"total"`
}

// remoteTimeLayouts are tried in order when parsing order timestamps.
// Layouts without a zone are read as UTC.
var remoteTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseRemoteTime parses a storefront timestamp
func parseRemoteTime(s string) (time.Time, bool) {
	for _, layout := range remoteTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// createdAt prefers the GMT timestamp over the store-local one
func (o orderPayload) createdAt() (time.Time, bool) {
	if t, ok := parseRemoteTime(o.DateCreatedGMT); ok {
		return t, true
	}
	return parseRemoteTime(o.DateCreated)
}
