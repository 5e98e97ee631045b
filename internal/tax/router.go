// Package tax routes collect-taxes webhook quotes: Vertex for US
// destinations, Zonos landed cost for everything else.
package tax

import (
	"context"
	"fmt"
	"log"
	"strings"

	"halo-bridge/internal/domain"
)

// Line codes with special handling in the quote.
const (
	LineShipping    = "shipping"
	LineQuoteGW     = "quote_gw"
	LinePrintedCard = "printed_card_gw"

	giftCardSKU      = "gift-card"
	giftCardTaxClass = "Gift Certificates/Cards"
)

// Quote is the decoded collect-taxes payload.
type Quote struct {
	ID               string         `json:"id"`
	Currency         string         `json:"currency"`
	Subtotal         float64        `json:"subtotal"`
	CustomerTaxClass string         `json:"customer_tax_class"`
	ShipTo           domain.Address `json:"ship_to_address"`
	Items            []Line         `json:"items"`
}

// Line is one taxable quote line.
type Line struct {
	Code      string  `json:"code"`
	SKU       string  `json:"sku"`
	Type      string  `json:"type"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	RowTotal  float64 `json:"row_total"`
	Discount  float64 `json:"discount_amount"`
	TaxClass  string  `json:"tax_class"`
}

// TaxValue is the replace payload for a line's tax.
type TaxValue struct {
	Rate   float64 `json:"rate"`
	Amount float64 `json:"amount"`
}

// Breakdown is one jurisdiction-level tax breakdown entry.
type Breakdown struct {
	Code   string  `json:"code"`
	Title  string  `json:"title,omitempty"`
	Rate   float64 `json:"rate"`
	Amount float64 `json:"amount"`
}

type engine interface {
	Calculate(ctx context.Context, quote *Quote) ([]domain.Operation, error)
}

// Router holds the preflight rules and the per-country engines.
type Router struct {
	vertex        engine
	zonos         engine
	exemptClasses []string
	logger        *log.Logger
}

func NewRouter(vertex, zonos engine, exemptClasses []string, logger *log.Logger) *Router {
	return &Router{vertex: vertex, zonos: zonos, exemptClasses: exemptClasses, logger: logger}
}

// Collect runs the preflight scrub and routes the quote. A nil, nil return
// means "success, no operations" (tax-exempt customer).
func (r *Router) Collect(ctx context.Context, quote *Quote) ([]domain.Operation, error) {
	for _, exempt := range r.exemptClasses {
		if strings.EqualFold(strings.TrimSpace(exempt), strings.TrimSpace(quote.CustomerTaxClass)) {
			return nil, nil
		}
	}

	scrubbed := *quote
	scrubbed.Items = scrubLines(quote.Items)
	if len(scrubbed.Items) == 0 {
		return nil, nil
	}

	if quote.ShipTo.CountryID == "US" {
		ops, err := r.vertex.Calculate(ctx, &scrubbed)
		if err != nil {
			return nil, fmt.Errorf("vertex: %w", err)
		}
		return ops, nil
	}

	ops, err := r.zonos.Calculate(ctx, &scrubbed)
	if err != nil {
		return nil, fmt.Errorf("zonos: %w", err)
	}
	return ops, nil
}

// scrubLines drops zero-value lines, keeps the first of each synthetic
// gift-wrap line, and coerces the gift-card tax class.
func scrubLines(items []Line) []Line {
	var (
		out         []Line
		seenQuoteGW bool
		seenPrinted bool
	)
	for _, item := range items {
		if item.Quantity*item.UnitPrice == 0 && item.Type != LineShipping {
			continue
		}
		switch item.Code {
		case LineQuoteGW:
			if seenQuoteGW {
				continue
			}
			seenQuoteGW = true
		case LinePrintedCard:
			if seenPrinted {
				continue
			}
			seenPrinted = true
		}
		if item.SKU == giftCardSKU {
			item.TaxClass = giftCardTaxClass
		}
		out = append(out, item)
	}
	return out
}
