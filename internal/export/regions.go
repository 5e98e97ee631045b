package export

// regionCodes maps region display names to the two-letter codes used in
// cXML State elements. Covers US states, DC and territories, plus the
// Canadian provinces the store ships to.
var regionCodes = map[string]string{
	"Alabama":                   "AL",
	"Alaska":                    "AK",
	"Arizona":                   "AZ",
	"Arkansas":                  "AR",
	"California":                "CA",
	"Colorado":                  "CO",
	"Connecticut":               "CT",
	"Delaware":                  "DE",
	"District of Columbia":      "DC",
	"Florida":                   "FL",
	"Georgia":                   "GA",
	"Hawaii":                    "HI",
	"Idaho":                     "ID",
	"Illinois":                  "IL",
	"Indiana":                   "IN",
	"Iowa":                      "IA",
	"Kansas":                    "KS",
	"Kentucky":                  "KY",
	"Louisiana":                 "LA",
	"Maine":                     "ME",
	"Maryland":                  "MD",
	"Massachusetts":             "MA",
	"Michigan":                  "MI",
	"Minnesota":                 "MN",
	"Mississippi":               "MS",
	"Missouri":                  "MO",
	"Montana":                   "MT",
	"Nebraska":                  "NE",
	"Nevada":                    "NV",
	"New Hampshire":             "NH",
	"New Jersey":                "NJ",
	"New Mexico":                "NM",
	"New York":                  "NY",
	"North Carolina":            "NC",
	"North Dakota":              "ND",
	"Ohio":                      "OH",
	"Oklahoma":                  "OK",
	"Oregon":                    "OR",
	"Pennsylvania":              "PA",
	"Puerto Rico":               "PR",
	"Rhode Island":              "RI",
	"South Carolina":            "SC",
	"South Dakota":              "SD",
	"Tennessee":                 "TN",
	"Texas":                     "TX",
	"Utah":                      "UT",
	"Vermont":                   "VT",
	"Virginia":                  "VA",
	"Washington":                "WA",
	"West Virginia":             "WV",
	"Wisconsin":                 "WI",
	"Wyoming":                   "WY",
	"Alberta":                   "AB",
	"British Columbia":          "BC",
	"Manitoba":                  "MB",
	"New Brunswick":             "NB",
	"Newfoundland and Labrador": "NL",
	"Nova Scotia":               "NS",
	"Ontario":                   "ON",
	"Prince Edward Island":      "PE",
	"Quebec":                    "QC",
	"Saskatchewan":              "SK",
}

// RegionCode resolves a region name to its two-letter code. Inputs that
// already look like codes pass through unchanged.
func RegionCode(region string) string {
	if code, ok := regionCodes[region]; ok {
		return code
	}
	return region
}
