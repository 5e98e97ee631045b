package tax

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"halo-bridge/internal/domain"
)

const vertexReply = `<?xml version="1.0" encoding="UTF-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/">
  <soapenv:Body>
    <VertexEnvelope xmlns="urn:vertexinc:o-series:tps:9:0">
      <QuotationResponse documentDate="2026-02-10" transactionType="SALE">
        <LineItem lineItemNumber="sequence-1">
          <Product productClass="000">SKU-A</Product>
          <Quantity>2</Quantity>
          <Taxes taxResult="TAXABLE" taxType="SALES">
            <Jurisdiction jurisdictionLevel="STATE" jurisdictionId="31152">CALIFORNIA</Jurisdiction>
            <CalculatedTax>1.45</CalculatedTax>
            <EffectiveRate>0.0725</EffectiveRate>
          </Taxes>
          <Taxes taxResult="TAXABLE" taxType="SALES">
            <Jurisdiction jurisdictionLevel="STATE" jurisdictionId="31152">CALIFORNIA</Jurisdiction>
            <CalculatedTax>0.00</CalculatedTax>
            <EffectiveRate>0.0</EffectiveRate>
          </Taxes>
          <Taxes taxResult="TAXABLE" taxType="SALES">
            <Jurisdiction jurisdictionLevel="COUNTY" jurisdictionId="90210">SANTA CLARA</Jurisdiction>
            <CalculatedTax>0.25</CalculatedTax>
            <EffectiveRate>0.0125</EffectiveRate>
          </Taxes>
          <TotalTax>1.70</TotalTax>
        </LineItem>
      </QuotationResponse>
    </VertexEnvelope>
  </soapenv:Body>
</soapenv:Envelope>`

func TestVertex_CalculateEmitsTaxAndDedupedBreakdown(t *testing.T) {
	var gotSOAPAction string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSOAPAction = r.Header.Get("SOAPAction")
		_, _ = w.Write([]byte(vertexReply))
	}))
	defer srv.Close()

	v := NewVertex(srv.URL, "trusted", VertexSeller{Company: "Store"}, nil, srv.Client())
	quote := &Quote{
		ShipTo: domain.Address{CountryID: "US", City: "San Jose", RegionCode: "CA", PostCode: "95110"},
		Items:  []Line{{Code: "sequence-1", SKU: "SKU-A", Quantity: 2, UnitPrice: 10, RowTotal: 20}},
	}

	ops, err := v.Calculate(context.Background(), quote)
	require.NoError(t, err)
	assert.Equal(t, vertexSOAPAction, gotSOAPAction)

	// one tax replace + two deduplicated breakdowns
	require.Len(t, ops, 3)

	require.Equal(t, domain.OpReplace, ops[0].Op)
	assert.Equal(t, "result/items/sequence-1/tax", ops[0].Path)
	tax := ops[0].Value.(TaxValue)
	// 1.70 / (2 * 10) * 100 = 8.5
	assert.InDelta(t, 8.5, tax.Rate, 0.001)
	assert.InDelta(t, 1.70, tax.Amount, 0.001)

	assert.Equal(t, "result/items/sequence-1/tax_breakdown", ops[1].Path)
	state := ops[1].Value.(Breakdown)
	assert.Equal(t, "STATE", state.Code)
	county := ops[2].Value.(Breakdown)
	assert.Equal(t, "COUNTY", county.Code)
}

func TestVertex_ProductCodeDefaults(t *testing.T) {
	v := NewVertex("", "", VertexSeller{}, map[string]string{"Gift Certificates/Cards": "GC01"}, nil)
	assert.Equal(t, "GC01", v.productCode("Gift Certificates/Cards"))
	assert.Equal(t, "000", v.productCode("Taxable Goods"))
}

func TestVertex_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<not-even"))
	}))
	defer srv.Close()

	v := NewVertex(srv.URL, "", VertexSeller{}, nil, srv.Client())
	_, err := v.Calculate(context.Background(), &Quote{Items: []Line{{Code: "sequence-1"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid response format")
}
