package geocode

import "strings"

// emergencyNumbers ISO 国家码 → 当地急救号码。未收录的国家用 112（GSM 通用）
var emergencyNumbers = map[string]string{
	"US": "911",
	"CA": "911",
	"GB": "112",
	"IN": "112",
	"AU": "000",
	"JP": "110",
}

// EmergencyNumber 按国家码查急救号码，空或未知一律 112
func EmergencyNumber(isoCountry string) string {
	if number, ok := emergencyNumbers[strings.ToUpper(strings.TrimSpace(isoCountry))]; ok {
		return number
	}
	return "112"
}
