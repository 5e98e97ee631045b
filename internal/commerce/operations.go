package commerce

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"halo-bridge/internal/domain"
)

// GetCustomer looks a customer up by email.
func (c *Client) GetCustomer(ctx context.Context, email string) Result {
	q := url.Values{}
	q.Set("searchCriteria[filterGroups][0][filters][0][field]", "email")
	q.Set("searchCriteria[filterGroups][0][filters][0][value]", email)
	q.Set("searchCriteria[filterGroups][0][filters][0][conditionType]", "eq")
	return c.do(ctx, http.MethodGet, "V1/customers/search?"+q.Encode(), nil)
}

// GetCustomerGroup fetches a customer group by id.
func (c *Client) GetCustomerGroup(ctx context.Context, groupID int) Result {
	return c.do(ctx, http.MethodGet, "V1/customerGroups/"+strconv.Itoa(groupID), nil)
}

// GroupCode extracts the group code from a GetCustomerGroup result.
func GroupCode(res Result) (string, error) {
	if !res.Success {
		if res.StatusCode == http.StatusNotFound {
			return "", fmt.Errorf("customer group: %w", domain.ErrNotFound)
		}
		return "", fmt.Errorf("customer group lookup failed: %s", res.Message)
	}
	var group struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(res.Body, &group); err != nil {
		return "", fmt.Errorf("decode customer group: %w", err)
	}
	return group.Code, nil
}

// GetProductsBySku fetches products matching any of the given SKUs.
func (c *Client) GetProductsBySku(ctx context.Context, skus []string) Result {
	q := url.Values{}
	q.Set("searchCriteria[filterGroups][0][filters][0][field]", "sku")
	q.Set("searchCriteria[filterGroups][0][filters][0][value]", strings.Join(skus, ","))
	q.Set("searchCriteria[filterGroups][0][filters][0][conditionType]", "in")
	return c.do(ctx, http.MethodGet, "V1/products?"+q.Encode(), nil)
}

// GetAttributeByCode fetches a product attribute definition.
func (c *Client) GetAttributeByCode(ctx context.Context, code string) Result {
	return c.do(ctx, http.MethodGet, "V1/products/attributes/"+url.PathEscape(code), nil)
}

// GetOrders returns up to pageSize open orders (status not complete,
// canceled or closed) sorted by entity_id ascending.
func (c *Client) GetOrders(ctx context.Context, pageSize int) Result {
	q := url.Values{}
	q.Set("searchCriteria[filterGroups][0][filters][0][field]", "status")
	q.Set("searchCriteria[filterGroups][0][filters][0][value]", "complete,canceled,closed")
	q.Set("searchCriteria[filterGroups][0][filters][0][conditionType]", "nin")
	q.Set("searchCriteria[sortOrders][0][field]", "entity_id")
	q.Set("searchCriteria[sortOrders][0][direction]", "ASC")
	q.Set("searchCriteria[pageSize]", strconv.Itoa(pageSize))
	return c.do(ctx, http.MethodGet, "V1/orders?"+q.Encode(), nil)
}

// GetOrdersByIncrementId fetches the order with the given increment id.
func (c *Client) GetOrdersByIncrementId(ctx context.Context, incrementID string) Result {
	q := url.Values{}
	q.Set("searchCriteria[filterGroups][0][filters][0][field]", "increment_id")
	q.Set("searchCriteria[filterGroups][0][filters][0][value]", incrementID)
	q.Set("searchCriteria[filterGroups][0][filters][0][conditionType]", "eq")
	return c.do(ctx, http.MethodGet, "V1/orders?"+q.Encode(), nil)
}

// StatusHistory is one order comment / status transition entry.
type StatusHistory struct {
	Comment          string `json:"comment"`
	Status           string `json:"status,omitempty"`
	IsCustomerNotifd int    `json:"is_customer_notified"`
	IsVisibleOnFront int    `json:"is_visible_on_front"`
}

// OrderStatusUpdate transitions an order's state/status with a history
// comment.
func (c *Client) OrderStatusUpdate(ctx context.Context, entityID int64, state, status string, history StatusHistory) Result {
	history.Status = status
	payload := map[string]interface{}{
		"entity": map[string]interface{}{
			"entity_id":        entityID,
			"state":            state,
			"status":           status,
			"status_histories": []StatusHistory{history},
		},
	}
	return c.do(ctx, http.MethodPost, "V1/orders", payload)
}

// OrderCommentUpdate appends a comment without changing status.
func (c *Client) OrderCommentUpdate(ctx context.Context, entityID int64, history StatusHistory) Result {
	payload := map[string]interface{}{"statusHistory": history}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("V1/orders/%d/comments", entityID), payload)
}

// InvoiceOrder creates a capturing invoice for the order.
func (c *Client) InvoiceOrder(ctx context.Context, entityID int64) Result {
	payload := map[string]interface{}{"capture": true}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("V1/order/%d/invoice", entityID), payload)
}

// Track identifies one shipment tracking entry.
type Track struct {
	CarrierCode string `json:"carrier_code"`
	Title       string `json:"title"`
	TrackNumber string `json:"track_number"`
}

// ShipmentOrder creates a shipment with tracking, notifying the customer.
func (c *Client) ShipmentOrder(ctx context.Context, entityID int64, tracks []Track, comment string) Result {
	payload := map[string]interface{}{
		"notify":        true,
		"appendComment": true,
		"tracks":        tracks,
	}
	if comment != "" {
		payload["comment"] = map[string]interface{}{
			"comment":             comment,
			"is_visible_on_front": 0,
		}
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("V1/order/%d/ship", entityID), payload)
}

// GetProductSalableQuantity returns the salable quantity for a SKU in the
// default stock.
func (c *Client) GetProductSalableQuantity(ctx context.Context, sku string) Result {
	return c.do(ctx, http.MethodGet, "V1/inventory/get-product-salable-quantity/"+url.PathEscape(sku)+"/1", nil)
}

// GetBundleChildProductSalableQuantity resolves a bundle's children and
// returns the minimum salable quantity across them.
func (c *Client) GetBundleChildProductSalableQuantity(ctx context.Context, childSKUs []string) Result {
	minQty := -1.0
	for _, sku := range childSKUs {
		res := c.GetProductSalableQuantity(ctx, sku)
		if !res.Success {
			return res
		}
		var qty float64
		if err := json.Unmarshal(res.Body, &qty); err != nil {
			return Result{Success: false, StatusCode: 500, Message: "Unexpected error"}
		}
		if minQty < 0 || qty < minQty {
			minQty = qty
		}
	}
	body, _ := json.Marshal(minQty)
	return Result{Success: true, StatusCode: http.StatusOK, Body: body}
}

// GetCart fetches the minimal cart projection the webhooks need.
func (c *Client) GetCart(ctx context.Context, cartID string) Result {
	return c.do(ctx, http.MethodGet, "V1/carts/"+url.PathEscape(cartID)+"?fields=id,customer[group_id],customer_is_guest", nil)
}

// SourceItem updates one inventory source row.
type SourceItem struct {
	SKU        string  `json:"sku"`
	SourceCode string  `json:"source_code"`
	Quantity   float64 `json:"quantity"`
	Status     int     `json:"status"`
}

// UpdateInventorySourceItems pushes inventory source rows.
func (c *Client) UpdateInventorySourceItems(ctx context.Context, items []SourceItem) Result {
	payload := map[string]interface{}{"sourceItems": items}
	return c.do(ctx, http.MethodPost, "V1/inventory/source-items", payload)
}
