package geo

// regionNames maps ISO 3166-1 alpha-2 codes to English short names for
// the country API response. Codes outside this table fall back to the
// code itself.
var regionNames = map[string]string{
	"AT": "Austria",
	"AU": "Australia",
	"BE": "Belgium",
	"BR": "Brazil",
	"CA": "Canada",
	"CH": "Switzerland",
	"CN": "China",
	"CZ": "Czechia",
	"DE": "Germany",
	"DK": "Denmark",
	"ES": "Spain",
	"FI": "Finland",
	"FR": "France",
	"GB": "United Kingdom",
	"GR": "Greece",
	"IE": "Ireland",
	"IN": "India",
	"IT": "Italy",
	"JP": "Japan",
	"KR": "South Korea",
	"MC": "Monaco",
	"MX": "Mexico",
	"NL": "Netherlands",
	"NO": "Norway",
	"NZ": "New Zealand",
	"PL": "Poland",
	"PT": "Portugal",
	"RU": "Russia",
	"SE": "Sweden",
	"US": "United States",
	"ZA": "South Africa",
}

// RegionName returns the display name for a region code.
func RegionName(code string) string {
	if name, ok := regionNames[code]; ok {
		return name
	}
	return code
}
