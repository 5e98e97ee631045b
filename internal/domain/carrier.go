package domain

// CarrierMethod maps a commerce shipping code to its ERP-side method code.
type CarrierMethod struct {
	Method string `json:"method"`
	Label  string `json:"label"`
	Code   string `json:"code"`
}

// NullMethod is returned for shipping codes with no ERP mapping.
var NullMethod = CarrierMethod{}

// MethodTable is an ordered carrier-method sequence; first match on the
// commerce code wins.
type MethodTable []CarrierMethod

// Resolve returns the ERP method for a commerce shipping code, or
// NullMethod when the code is unmapped.
func (t MethodTable) Resolve(code string) CarrierMethod {
	for _, m := range t {
		if m.Code == code {
			return m
		}
	}
	return NullMethod
}

// DefaultMethods is the deployment's carrier table. Codes are the commerce
// shipping codes, methods the ERP transport codes.
var DefaultMethods = MethodTable{
	{Method: "03", Label: "UPS Ground", Code: "UPS_ups_ground"},
	{Method: "01", Label: "UPS Next Day Air", Code: "UPS_ups_next_day_air"},
	{Method: "02", Label: "UPS 2nd Day Air", Code: "UPS_ups_2nd_day_air"},
	{Method: "12", Label: "UPS 3 Day Select", Code: "UPS_ups_3_day_select"},
	{Method: "07", Label: "UPS Worldwide Express", Code: "UPS_ups_worldwide_express"},
	{Method: "08", Label: "UPS Worldwide Expedited", Code: "UPS_ups_worldwide_expedited"},
	{Method: "65", Label: "UPS Worldwide Saver", Code: "UPS_ups_worldwide_saver"},
	{Method: "92", Label: "UPS SurePost", Code: "UPS_ups_surepost"},
	{Method: "FDX", Label: "FedEx", Code: "FEDEX_fedex_ground"},
	{Method: "WHP", Label: "Warehouse Pickup", Code: MethodWarehousePickup},
	{Method: "CUR", Label: "Courier", Code: MethodCourier},
}

// UPSServiceMethods maps UPS Rating service codes to ERP method codes.
// Code 65 is honored only for MX/CA destinations; the aggregator enforces
// that restriction.
var UPSServiceMethods = map[string]string{
	"01": "URD",
	"02": "UBL",
	"03": "UPS",
	"07": "UPX",
	"08": "UXP",
	"12": "3DY",
	"65": "UCM",
	"92": "USP",
}

// Customer group codes with special pipeline behavior.
const (
	GroupNotLoggedIn   = "NOT LOGGED IN"
	GroupNonLoggedUser = "NON_LOGGED_USER"
)
