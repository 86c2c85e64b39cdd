package normalize

import "strings"

// cityAliases maps alternative and historical spellings onto canonical
// city names.
var cityAliases = map[string]string{
	"bombay":      "Mumbai",
	"bengaluru":   "Bangalore",
	"bangaluru":   "Bangalore",
	"calcutta":    "Kolkata",
	"madras":      "Chennai",
	"poona":       "Pune",
	"gurugram":    "Gurgaon",
	"trivandrum":  "Thiruvananthapuram",
	"cochin":      "Kochi",
	"benares":     "Varanasi",
	"baroda":      "Vadodara",
	"mysuru":      "Mysore",
	"new delhi":   "Delhi",
	"navi mumbai": "Navi Mumbai",
}

// knownCities is the canonical city table; keys are lowercase
var knownCities = map[string]string{
	"mumbai":             "Mumbai",
	"delhi":              "Delhi",
	"bangalore":          "Bangalore",
	"hyderabad":          "Hyderabad",
	"chennai":            "Chennai",
	"kolkata":            "Kolkata",
	"pune":               "Pune",
	"ahmedabad":          "Ahmedabad",
	"jaipur":             "Jaipur",
	"surat":              "Surat",
	"lucknow":            "Lucknow",
	"kanpur":             "Kanpur",
	"nagpur":             "Nagpur",
	"indore":             "Indore",
	"bhopal":             "Bhopal",
	"patna":              "Patna",
	"vadodara":           "Vadodara",
	"gurgaon":            "Gurgaon",
	"noida":              "Noida",
	"kochi":              "Kochi",
	"coimbatore":         "Coimbatore",
	"chandigarh":         "Chandigarh",
	"mysore":             "Mysore",
	"varanasi":           "Varanasi",
	"thiruvananthapuram": "Thiruvananthapuram",
	"navi mumbai":        "Navi Mumbai",
	"goa":                "Goa",
}

// stateAliases maps state abbreviations and variants to canonical names
var stateAliases = map[string]string{
	"mh":          "Maharashtra",
	"maharashtra": "Maharashtra",
	"ka":          "Karnataka",
	"karnataka":   "Karnataka",
	"tn":          "Tamil Nadu",
	"tamil nadu":  "Tamil Nadu",
	"tamilnadu":   "Tamil Nadu",
	"dl":          "Delhi",
	"up":          "Uttar Pradesh",
	"wb":          "West Bengal",
	"west bengal": "West Bengal",
	"gj":          "Gujarat",
	"gujarat":     "Gujarat",
	"rj":          "Rajasthan",
	"rajasthan":   "Rajasthan",
	"kl":          "Kerala",
	"kerala":      "Kerala",
	"telangana":   "Telangana",
	"ts":          "Telangana",
}

// NormalizeLocationName canonicalizes a city or state name via the alias
// and known-city tables.
func NormalizeLocationName(input string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "" {
		return "", false
	}
	if canonical, ok := cityAliases[s]; ok {
		return canonical, true
	}
	if canonical, ok := knownCities[s]; ok {
		return canonical, true
	}
	if canonical, ok := stateAliases[s]; ok {
		return canonical, true
	}
	return "", false
}

// KnownCity reports whether the input resolves to a known city and returns
// its canonical spelling.
func KnownCity(input string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(input))
	if canonical, ok := cityAliases[s]; ok {
		return canonical, true
	}
	if canonical, ok := knownCities[s]; ok {
		return canonical, true
	}
	return "", false
}
