package export

// countryNames maps ISO-2 country codes to the names the ERP expects in
// cXML address blocks. Unmapped codes fall back to the code itself.
var countryNames = map[string]string{
	"AE": "United Arab Emirates",
	"AR": "Argentina",
	"AT": "Austria",
	"AU": "Australia",
	"BE": "Belgium",
	"BR": "Brazil",
	"CA": "Canada",
	"CH": "Switzerland",
	"CL": "Chile",
	"CN": "China",
	"CO": "Colombia",
	"CZ": "Czech Republic",
	"DE": "Germany",
	"DK": "Denmark",
	"ES": "Spain",
	"FI": "Finland",
	"FR": "France",
	"GB": "United Kingdom",
	"HK": "Hong Kong",
	"IE": "Ireland",
	"IL": "Israel",
	"IN": "India",
	"IT": "Italy",
	"JP": "Japan",
	"KR": "South Korea",
	"MX": "Mexico",
	"MY": "Malaysia",
	"NL": "Netherlands",
	"NO": "Norway",
	"NZ": "New Zealand",
	"PH": "Philippines",
	"PL": "Poland",
	"PT": "Portugal",
	"RO": "Romania",
	"SE": "Sweden",
	"SG": "Singapore",
	"TH": "Thailand",
	"TW": "Taiwan",
	"US": "United States",
	"VN": "Vietnam",
	"ZA": "South Africa",
}

// CountryName resolves an ISO-2 code to a display name.
func CountryName(iso string) string {
	if name, ok := countryNames[iso]; ok {
		return name
	}
	return iso
}
