package tax

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"halo-bridge/internal/domain"
	"halo-bridge/internal/state"
)

// Zonos API version pin.
const zonosVersion = "2019-11-21"

// FlatFallbackPct is the deterministic landed-cost fallback applied when
// Zonos rejects our credentials: 30% of the subtotal on the shipping line.
const FlatFallbackPct = 30

// Zonos calculates landed cost for non-US destinations. Item HS codes come
// from the KV store (seeded by the HTS importer).
type Zonos struct {
	apiURL       string
	serviceToken string
	store        state.Store
	http         *http.Client
}

func NewZonos(apiURL, serviceToken string, store state.Store, httpClient *http.Client) *Zonos {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Zonos{apiURL: apiURL, serviceToken: serviceToken, store: store, http: httpClient}
}

type zonosItem struct {
	ID             string  `json:"id"`
	Amount         float64 `json:"amount"`
	AmountDiscount float64 `json:"amount_discount"`
	HSCode         string  `json:"hs_code,omitempty"`
	Quantity       float64 `json:"quantity"`
}

type zonosRequest struct {
	Currency   string      `json:"currency"`
	LandedCost string      `json:"landed_cost"`
	Items      []zonosItem `json:"items"`
	ShipTo     struct {
		Country    string `json:"country"`
		City       string `json:"city"`
		PostalCode string `json:"postal_code"`
	} `json:"ship_to"`
	Shipping struct {
		Amount float64 `json:"amount"`
	} `json:"shipping"`
}

type zonosCharge struct {
	Amount float64 `json:"amount"`
}

type zonosResponse struct {
	StatusCode *int          `json:"statusCode"`
	Taxes      []zonosCharge `json:"taxes"`
	Duties     []zonosCharge `json:"duties"`
	Fees       []zonosCharge `json:"fees"`
}

func (z *Zonos) Calculate(ctx context.Context, quote *Quote) ([]domain.Operation, error) {
	shippingLine := findShippingLine(quote.Items)
	if shippingLine == nil {
		return nil, fmt.Errorf("quote has no shipping line")
	}

	payload := zonosRequest{Currency: "USD", LandedCost: "delivery_duty_paid"}
	payload.ShipTo.Country = quote.ShipTo.CountryID
	payload.ShipTo.City = quote.ShipTo.City
	payload.ShipTo.PostalCode = quote.ShipTo.PostCode
	payload.Shipping.Amount = shippingLine.RowTotal

	for _, item := range quote.Items {
		if item.Type == LineShipping {
			continue
		}
		payload.Items = append(payload.Items, zonosItem{
			ID:             item.Code,
			Amount:         item.UnitPrice,
			AmountDiscount: item.Discount,
			HSCode:         z.htsCode(ctx, item.SKU),
			Quantity:       item.Quantity,
		})
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, z.apiURL, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("serviceToken", z.serviceToken)
	req.Header.Set("zonos-version", zonosVersion)

	resp, err := z.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
		return flatFallbackOps(quote, shippingLine), nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &domain.UpstreamError{StatusCode: resp.StatusCode, Message: "landed cost request failed"}
	}

	var decoded zonosResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, errors.New("Invalid response format")
	}
	// the API reports auth problems in-body with no status code
	if decoded.StatusCode == nil && len(decoded.Taxes) == 0 && len(decoded.Duties) == 0 && len(decoded.Fees) == 0 {
		return flatFallbackOps(quote, shippingLine), nil
	}

	return zonosOps(quote, shippingLine, decoded), nil
}

// htsCode reads the SKU's HS code from the KV store; a miss ships the item
// unclassified and lets Zonos decide.
func (z *Zonos) htsCode(ctx context.Context, sku string) string {
	if z.store == nil {
		return ""
	}
	code, _, _ := z.store.Get(ctx, state.KeyHTSCode+sku)
	return code
}

func findShippingLine(items []Line) *Line {
	for i := range items {
		if items[i].Type == LineShipping || items[i].Code == LineShipping {
			return &items[i]
		}
	}
	return nil
}

// zonosOps attaches the aggregate of taxes, duties and fees to the
// shipping line; Zonos does not return item-level rates.
func zonosOps(quote *Quote, shippingLine *Line, decoded zonosResponse) []domain.Operation {
	aggregate := decimal.Zero
	for _, group := range [][]zonosCharge{decoded.Taxes, decoded.Duties, decoded.Fees} {
		for _, charge := range group {
			aggregate = aggregate.Add(decimal.NewFromFloat(charge.Amount))
		}
	}

	rate := 0.0
	if quote.Subtotal > 0 {
		rate, _ = aggregate.Div(decimal.NewFromFloat(quote.Subtotal)).Mul(decimal.NewFromInt(100)).Round(2).Float64()
	}
	amount, _ := aggregate.Round(2).Float64()

	return []domain.Operation{
		domain.Replace("result/items/"+shippingLine.Code+"/tax", TaxValue{Rate: rate, Amount: amount}),
		domain.Add("result/items/"+shippingLine.Code+"/tax_breakdown", Breakdown{
			Code:   "landed-cost",
			Title:  "Duties, Taxes & Fees",
			Rate:   rate,
			Amount: amount,
		}, ""),
	}
}

// flatFallbackOps is the documented unauthorized fallback: a flat 30% of
// subtotal on the shipping line.
func flatFallbackOps(quote *Quote, shippingLine *Line) []domain.Operation {
	amount, _ := decimal.NewFromFloat(quote.Subtotal).
		Mul(decimal.NewFromInt(FlatFallbackPct)).
		Div(decimal.NewFromInt(100)).
		Round(2).
		Float64()

	return []domain.Operation{
		domain.Replace("result/items/"+shippingLine.Code+"/tax", TaxValue{Rate: FlatFallbackPct, Amount: amount}),
		domain.Add("result/items/"+shippingLine.Code+"/tax_breakdown", Breakdown{
			Code:   "international-flat-fee",
			Title:  "International Flat Fee",
			Rate:   FlatFallbackPct,
			Amount: amount,
		}, ""),
	}
}
