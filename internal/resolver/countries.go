package resolver

// callingCodes maps ISO 3166-1 alpha-2 codes to E.164 calling codes (without "+").
var callingCodes = map[string]string{
	"GH": "233", "UG": "256", "RW": "250", "CM": "237", "CI": "225",
	"SN": "221", "ML": "223", "KE": "254", "TZ": "255", "ZM": "260",
	"MW": "265", "CD": "243", "NG": "234", "BJ": "229", "GN": "224",
	"BF": "226", "NE": "227", "CG": "242", "MG": "261", "SL": "232",
	"LR": "231", "ET": "251", "MZ": "258", "ZA": "27",
}

// CallingCode returns the calling code for an ISO alpha-2 country.
func CallingCode(country string) (string, bool) {
	code, ok := callingCodes[country]
	return code, ok
}

// CountryForPhone returns the ISO alpha-2 country of a normalized "+<digits>" number.
func CountryForPhone(normalized string) (string, bool) {
	if len(normalized) < 2 || normalized[0] != '+' {
		return "", false
	}
	digits := normalized[1:]
	best, bestLen := "", 0
	for country, code := range callingCodes {
		if len(code) > bestLen && len(digits) >= len(code) && digits[:len(code)] == code {
			best, bestLen = country, len(code)
		}
	}
	return best, bestLen > 0
}
