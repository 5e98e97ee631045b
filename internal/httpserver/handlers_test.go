package httpserver

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"halo-bridge/internal/domain"
	"halo-bridge/internal/export"
	"halo-bridge/internal/shipping"
	"halo-bridge/internal/tax"
	"halo-bridge/internal/webhook"
)

type stubRates struct {
	ops []domain.Operation
	err error
	got *shipping.RateRequest
}

func (s *stubRates) Quote(_ context.Context, rr shipping.RateRequest) ([]domain.Operation, error) {
	s.got = &rr
	return s.ops, s.err
}

type stubTaxes struct {
	ops []domain.Operation
	err error
}

func (s *stubTaxes) Collect(context.Context, *tax.Quote) ([]domain.Operation, error) {
	return s.ops, s.err
}

type stubDispatcher struct {
	orders []*domain.Order
	err    error
}

func (s *stubDispatcher) Dispatch(_ context.Context, order *domain.Order) (*export.Task, error) {
	s.orders = append(s.orders, order)
	return nil, s.err
}

type stubGroups struct {
	code string
	err  error
}

func (s *stubGroups) Resolve(context.Context, int) (string, error) {
	return s.code, s.err
}

func testRouter(t *testing.T, deps Deps) (*gin.Engine, *rsa.PrivateKey) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	verifier, err := webhook.NewVerifier(string(pubPEM))
	require.NoError(t, err)
	deps.Verifier = verifier

	router, err := buildRouter(log.New(io.Discard, "", 0), nil, deps)
	require.NoError(t, err)
	return router, priv
}

// postHook base64-encodes payload, signs the encoded body and performs
// the request the way the commerce platform delivers webhooks.
func postHook(t *testing.T, router *gin.Engine, priv *rsa.PrivateKey, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	body := []byte(base64.StdEncoding.EncodeToString(raw))

	digest := sha256.Sum256(body)
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set(webhook.SignatureHeader, base64.StdEncoding.EncodeToString(sig))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeOps(t *testing.T, rec *httptest.ResponseRecorder) []domain.Operation {
	t.Helper()
	var ops []domain.Operation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ops))
	return ops
}

func TestWebhook_BadSignatureIsException(t *testing.T) {
	router, _ := testRouter(t, Deps{Rates: &stubRates{}})

	req := httptest.NewRequest(http.MethodPost, "/webhook/shipping-rates", bytes.NewReader([]byte(`{}`)))
	req.Header.Set(webhook.SignatureHeader, base64.StdEncoding.EncodeToString([]byte("forged")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var reply domain.ExceptionReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, domain.OpException, reply.Op)
	assert.Contains(t, reply.Message, "signature")
}

func TestShippingRates_ReturnsOperations(t *testing.T) {
	rates := &stubRates{ops: []domain.Operation{
		domain.Add("result", map[string]interface{}{"carrier_code": "ups", "price": 14.5}, "Magento\\Quote\\Model\\Quote\\Address\\RateResult\\Method"),
	}}
	router, priv := testRouter(t, Deps{Rates: rates})

	rec := postHook(t, router, priv, "/webhook/shipping-rates", map[string]interface{}{
		"rateRequest": map[string]interface{}{"dest_country_id": "US", "package_weight": 2.5},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	ops := decodeOps(t, rec)
	require.Len(t, ops, 1)
	assert.Equal(t, domain.OpAdd, ops[0].Op)
	require.NotNil(t, rates.got)
	assert.Equal(t, "US", rates.got.DestCountryID)
}

func TestShippingRates_RestrictedDestination(t *testing.T) {
	rates := &stubRates{err: &domain.RestrictionError{Country: "RU", SKUs: []string{"HL-200", "HL-201"}}}
	router, priv := testRouter(t, Deps{Rates: rates})

	rec := postHook(t, router, priv, "/webhook/shipping-rates", map[string]interface{}{
		"rateRequest": map[string]interface{}{"dest_country_id": "RU"},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	var reply domain.ExceptionReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, domain.OpException, reply.Op)
	assert.Contains(t, reply.Message, "cannot be shipped to RU")
	assert.Contains(t, reply.Message, "HL-200, HL-201")
}

func TestCollectTaxes_NoOpsIsSuccess(t *testing.T) {
	router, priv := testRouter(t, Deps{Taxes: &stubTaxes{}})

	rec := postHook(t, router, priv, "/webhook/collect-taxes", map[string]interface{}{
		"quote": map[string]interface{}{"id": "77", "subtotal": 49.99},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	var reply domain.ExceptionReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, domain.OpSuccess, reply.Op)
}

func TestCollectTaxes_ProviderFailureIsException(t *testing.T) {
	router, priv := testRouter(t, Deps{Taxes: &stubTaxes{err: errors.New("vertex: status 500")}})

	rec := postHook(t, router, priv, "/webhook/collect-taxes", map[string]interface{}{
		"quote": map[string]interface{}{"id": "77"},
	})

	var reply domain.ExceptionReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, domain.OpException, reply.Op)
	assert.Contains(t, reply.Message, "Unable to calculate taxes")
	// provider internals never leak into the shopper-visible message
	assert.NotContains(t, reply.Message, "vertex")
}

func TestValidateQuote_PurchaseOrderStripsGiftCardsAndCoupon(t *testing.T) {
	rules := QuoteRules{POGroup: "Purchase Order Eligible"}
	router, priv := testRouter(t, Deps{Groups: &stubGroups{code: "Purchase Order Eligible"}, Quote: rules})

	rec := postHook(t, router, priv, "/webhook/validate-quote", map[string]interface{}{
		"quote": map[string]interface{}{
			"customer_group_id": 7,
			"gift_cards":        []map[string]interface{}{{"code": "GC-1", "amount": 25}},
			"coupon_code":       "SAVE10",
		},
	})

	ops := decodeOps(t, rec)
	require.Len(t, ops, 2)
	for _, op := range ops {
		assert.Equal(t, domain.OpReplace, op.Op)
		assert.Nil(t, op.Value)
	}
	assert.Equal(t, "result/gift_cards", ops[0].Path)
	assert.Equal(t, "result/coupon_code", ops[1].Path)

	// value key must be present and explicitly null on the wire
	assert.Contains(t, rec.Body.String(), `"value":null`)
}

func TestValidateQuote_OtherGroupsUntouched(t *testing.T) {
	router, priv := testRouter(t, Deps{Groups: &stubGroups{code: "General"}, Quote: QuoteRules{POGroup: "Purchase Order Eligible"}})

	rec := postHook(t, router, priv, "/webhook/validate-quote", map[string]interface{}{
		"quote": map[string]interface{}{
			"customer_group_id": 1,
			"coupon_code":       "SAVE10",
		},
	})

	var reply domain.ExceptionReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, domain.OpSuccess, reply.Op)
}

func TestValidateQuote_EmployeeOnlyProductGated(t *testing.T) {
	rules := QuoteRules{EmployeeGroup: "Adobe Employees", EmployeeSKUs: []string{"EMP-HOODIE"}}

	router, priv := testRouter(t, Deps{Groups: &stubGroups{code: "General"}, Quote: rules})
	rec := postHook(t, router, priv, "/webhook/validate-quote", map[string]interface{}{
		"quote": map[string]interface{}{
			"customer_group_id": 1,
			"items":             []map[string]interface{}{{"sku": "EMP-HOODIE", "qty": 1}},
		},
	})

	var reply domain.ExceptionReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, domain.OpException, reply.Op)
	assert.Contains(t, reply.Message, "Adobe employees")

	// same cart passes for the employee group
	router, priv = testRouter(t, Deps{Groups: &stubGroups{code: "Adobe Employees"}, Quote: rules})
	rec = postHook(t, router, priv, "/webhook/validate-quote", map[string]interface{}{
		"quote": map[string]interface{}{
			"customer_group_id": 9,
			"items":             []map[string]interface{}{{"sku": "EMP-HOODIE", "qty": 1}},
		},
	})
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, domain.OpSuccess, reply.Op)
}

func TestOrderExport_AcknowledgesAndForwards(t *testing.T) {
	dispatcher := &stubDispatcher{}
	router, _ := testRouter(t, Deps{Dispatcher: dispatcher})

	body, err := json.Marshal(map[string]interface{}{
		"entity_id": 41, "increment_id": "000000123", "status": "pending",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/order/export", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var reply struct {
		Success    bool `json:"success"`
		StatusCode int  `json:"statusCode"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.True(t, reply.Success)
	assert.Equal(t, http.StatusOK, reply.StatusCode)

	require.Len(t, dispatcher.orders, 1)
	assert.Equal(t, "000000123", dispatcher.orders[0].IncrementID)
}

func TestOrderExport_RejectedOrderReportsError(t *testing.T) {
	dispatcher := &stubDispatcher{err: errors.New("order is missing a billing address")}
	router, _ := testRouter(t, Deps{Dispatcher: dispatcher})

	req := httptest.NewRequest(http.MethodPost, "/api/order/export", bytes.NewReader([]byte(`{"entity_id":1}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var reply struct {
		Success    bool   `json:"success"`
		StatusCode int    `json:"statusCode"`
		Error      string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.False(t, reply.Success)
	assert.Equal(t, http.StatusBadRequest, reply.StatusCode)
	assert.Contains(t, reply.Error, "billing address")
}
