package units

// Condition is the normalized weather-condition label derived from the
// various numeric weather codes DWD products carry. The empty string means
// the code did not map to a known condition.
type Condition string

const (
	Dry          Condition = "dry"
	Fog          Condition = "fog"
	Rain         Condition = "rain"
	Sleet        Condition = "sleet"
	Snow         Condition = "snow"
	Hail         Condition = "hail"
	Thunderstorm Condition = "thunderstorm"
)

// SynopCurrentWeather maps a WMO 4677 present-weather code (ww, 0-99) to a
// condition. Codes describing phenomena without precipitation resolve to Dry;
// unknown or reserved codes resolve to the empty condition.
func SynopCurrentWeather(code int) Condition {
	switch {
	case code < 0 || code > 99:
		return ""
	case code >= 95: // thunderstorm, with or without precipitation
		return Thunderstorm
	case code == 89 || code == 90 || code == 93 || code == 94: // hail showers
		return Hail
	case code >= 85 && code <= 88: // snow showers
		return Snow
	case code >= 91 && code <= 92: // rain after recent thunderstorm
		return Rain
	case code >= 80 && code <= 84: // rain showers
		return Rain
	case code >= 70 && code <= 79:
		if code == 79 {
			return Sleet // ice pellets
		}
		return Snow
	case code >= 68 && code <= 69: // rain and snow mixed
		return Sleet
	case code >= 60 && code <= 67:
		if code >= 66 { // freezing rain
			return Sleet
		}
		return Rain
	case code >= 56 && code <= 57: // freezing drizzle
		return Sleet
	case code >= 50 && code <= 59:
		return Rain // drizzle
	case code >= 40 && code <= 49:
		return Fog
	case code == 28: // fog during the preceding hour
		return Fog
	default:
		return Dry
	}
}

// SynopPastWeather maps a WMO 4561 past-weather code (W1/W2, 0-9) to a
// condition.
func SynopPastWeather(code int) Condition {
	switch code {
	case 0, 1, 2, 3:
		return Dry
	case 4:
		return Fog
	case 5, 6, 8:
		return Rain
	case 7:
		return Snow
	case 9:
		return Thunderstorm
	default:
		return ""
	}
}

// CurrentObservationsWeather maps the present-weather code of the DWD
// current-observations (POI) feed to a condition. The feed uses a compact
// 1-31 code set rather than WMO 4677.
func CurrentObservationsWeather(code int) Condition {
	switch {
	case code >= 1 && code <= 4: // clear to overcast
		return Dry
	case code == 5 || code == 6: // fog, freezing fog
		return Fog
	case code >= 7 && code <= 9: // drizzle / rain
		return Rain
	case code >= 10 && code <= 13: // freezing rain, sleet
		return Sleet
	case code >= 14 && code <= 17: // snow
		return Snow
	case code == 18 || code == 19: // rain / snow showers
		return Rain
	case code >= 20 && code <= 25: // shower variants
		return Snow
	case code >= 26 && code <= 28:
		return Thunderstorm
	case code >= 29 && code <= 31: // hail, thunderstorm with hail
		return Hail
	default:
		return ""
	}
}

// PrecipitationForm maps the WRTR column of the hourly precipitation product
// to a condition. WRTR encodes the form of fallen precipitation; 9 marks an
// undeterminable form and yields the empty condition.
func PrecipitationForm(code int) Condition {
	switch code {
	case 0, 1: // none / only deposition (dew, frost)
		return Dry
	case 6:
		return Rain
	case 7:
		return Snow
	case 8:
		return Sleet
	default:
		return ""
	}
}
