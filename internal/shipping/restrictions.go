package shipping

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"halo-bridge/internal/commerce"
)

// ProductRestrictions resolves each SKU's eligible_shipping_countries
// custom attribute from the commerce catalog. An empty set means the SKU
// ships anywhere.
type ProductRestrictions struct {
	client *commerce.Client
}

func NewProductRestrictions(client *commerce.Client) *ProductRestrictions {
	return &ProductRestrictions{client: client}
}

func (p *ProductRestrictions) EligibleCountries(ctx context.Context, skus []string) (map[string][]string, error) {
	res := p.client.GetProductsBySku(ctx, skus)
	if !res.Success {
		return nil, fmt.Errorf("product lookup: %s", res.Message)
	}

	var decoded struct {
		Items []struct {
			SKU              string `json:"sku"`
			CustomAttributes []struct {
				AttributeCode string      `json:"attribute_code"`
				Value         interface{} `json:"value"`
			} `json:"custom_attributes"`
		} `json:"items"`
	}
	if err := json.Unmarshal(res.Body, &decoded); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}

	out := make(map[string][]string, len(decoded.Items))
	for _, item := range decoded.Items {
		var countries []string
		for _, attr := range item.CustomAttributes {
			if attr.AttributeCode != "eligible_shipping_countries" {
				continue
			}
			countries = parseCountries(attr.Value)
			break
		}
		out[item.SKU] = countries
	}
	return out, nil
}

// parseCountries accepts the comma-joined string and array shapes the
// attribute arrives in.
func parseCountries(value interface{}) []string {
	switch v := value.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	case []interface{}:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
