package shipping

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"halo-bridge/internal/domain"
	"halo-bridge/internal/state"
)

func upsFixture(t *testing.T, rateCalls, tokenCalls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "oauth/token"):
			if tokenCalls != nil {
				atomic.AddInt32(tokenCalls, 1)
			}
			user, pass, _ := r.BasicAuth()
			if user != "client-id" || pass != "client-secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"tok-1","expires_in":"3600"}`))
		case strings.Contains(r.URL.Path, "surepost"):
			_, _ = w.Write([]byte(`{"RateResponse":{"RatedShipment":{"Service":{"Code":"92"},"TotalCharges":{"CurrencyCode":"USD","MonetaryValue":"8.40"}}}}`))
		default:
			if rateCalls != nil {
				atomic.AddInt32(rateCalls, 1)
			}
			_, _ = w.Write([]byte(`{"RateResponse":{"RatedShipment":[
				{"Service":{"Code":"03"},"TotalCharges":{"CurrencyCode":"USD","MonetaryValue":"10.00"}},
				{"Service":{"Code":"01"},"TotalCharges":{"CurrencyCode":"USD","MonetaryValue":"40.00"}},
				{"Service":{"Code":"65"},"TotalCharges":{"CurrencyCode":"USD","MonetaryValue":"55.00"}},
				{"Service":{"Code":"99"},"TotalCharges":{"CurrencyCode":"USD","MonetaryValue":"1.00"}}
			]}}`))
		}
	}))
}

func newTestUPS(srvURL string, store state.Store) *UPS {
	return NewUPS(UPSConfig{
		ServiceDomain:       srvURL,
		RateEndpoint:        srvURL + "/rating/Shop",
		SurepostEndpoint:    srvURL + "/surepost/Rate",
		ClientID:            "client-id",
		ClientSecret:        "client-secret",
		RequestOption:       "Shop",
		DomesticPayPct:      110,
		InternationalPayPct: 120,
		CacheSalt:           "test",
	}, &http.Client{}, store, discard())
}

func TestUPS_MapsCodesAndAppliesPayPercentage(t *testing.T) {
	srv := upsFixture(t, nil, nil)
	defer srv.Close()

	ups := newTestUPS(srv.URL, state.NewMemory())
	ops, err := ups.Quote(context.Background(), &Request{RateRequest: RateRequest{
		DestCountryID: "US", DestPostcode: "95110", DestRegionID: "CA", PackageWeight: 2,
	}})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}

	// code 65 (non MX/CA) and the unmapped 99 are skipped; surepost appended
	if len(ops) != 3 {
		t.Fatalf("expected 3 ops, got %d: %+v", len(ops), ops)
	}

	ground := ops[0].Value.(RateValue)
	if ground.Method != "UPS" {
		t.Fatalf("expected ground mapped to UPS, got %s", ground.Method)
	}
	if ground.Price != 11.00 {
		t.Fatalf("expected 10.00 * 110%% = 11.00, got %v", ground.Price)
	}

	saver := ops[2].Value.(RateValue)
	if saver.Method != "USP" || saver.MethodTitle != "UPS Ground Saver" {
		t.Fatalf("expected surepost appended as ground saver, got %+v", saver)
	}
}

func TestUPS_Code65OnlyForMXCA(t *testing.T) {
	srv := upsFixture(t, nil, nil)
	defer srv.Close()

	ups := newTestUPS(srv.URL, state.NewMemory())
	ops, err := ups.Quote(context.Background(), &Request{RateRequest: RateRequest{
		DestCountryID: "MX", DestPostcode: "01000", PackageWeight: 2,
	}})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}

	found := false
	for _, op := range ops {
		if v, ok := op.Value.(RateValue); ok && v.Method == "UCM" {
			found = true
			if v.Price != 66.00 { // 55.00 * 120%
				t.Fatalf("expected international pay pct, got %v", v.Price)
			}
		}
	}
	if !found {
		t.Fatalf("expected code 65 honored for MX")
	}
}

func TestUPS_CacheServesSecondCall(t *testing.T) {
	var rateCalls int32
	srv := upsFixture(t, &rateCalls, nil)
	defer srv.Close()

	store := state.NewMemory()
	ups := newTestUPS(srv.URL, store)
	req := &Request{RateRequest: RateRequest{DestCountryID: "US", DestPostcode: "95110", DestRegionID: "CA", PackageWeight: 2}}

	first, err := ups.Quote(context.Background(), req)
	if err != nil {
		t.Fatalf("first quote: %v", err)
	}
	second, err := ups.Quote(context.Background(), req)
	if err != nil {
		t.Fatalf("second quote: %v", err)
	}

	if got := atomic.LoadInt32(&rateCalls); got != 1 {
		t.Fatalf("expected a single rating call, got %d", got)
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Fatalf("cached ops not byte-identical:\n%s\n%s", a, b)
	}
}

func TestUPS_TokenCachedAcrossQuotes(t *testing.T) {
	var tokenCalls int32
	srv := upsFixture(t, nil, &tokenCalls)
	defer srv.Close()

	store := state.NewMemory()
	ups := newTestUPS(srv.URL, store)

	_, _ = ups.Quote(context.Background(), &Request{RateRequest: RateRequest{DestCountryID: "US", DestPostcode: "1", PackageWeight: 1}})
	_, _ = ups.Quote(context.Background(), &Request{RateRequest: RateRequest{DestCountryID: "US", DestPostcode: "2", PackageWeight: 1}})

	if got := atomic.LoadInt32(&tokenCalls); got != 1 {
		t.Fatalf("expected one token fetch, got %d", got)
	}

	if _, ok, _ := store.Get(context.Background(), state.KeyUPSToken); !ok {
		t.Fatalf("expected token persisted in state store")
	}
}

func TestDecodeRatedShipments_BothShapes(t *testing.T) {
	many, err := decodeRatedShipments(json.RawMessage(`[{"Service":{"Code":"03"}}]`))
	if err != nil || len(many) != 1 {
		t.Fatalf("array form: %v %d", err, len(many))
	}
	one, err := decodeRatedShipments(json.RawMessage(`{"Service":{"Code":"92"}}`))
	if err != nil || len(one) != 1 || one[0].Service.Code != "92" {
		t.Fatalf("object form: %v %+v", err, one)
	}
}

func TestUPS_UnmappedCodesEmitNothing(t *testing.T) {
	for _, code := range []string{"99", "14", ""} {
		if _, ok := domain.UPSServiceMethods[code]; ok {
			t.Fatalf("code %q unexpectedly mapped", code)
		}
	}
}
