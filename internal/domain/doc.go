// Package domain models observation records parsed from Deutscher
// Wetterdienst (DWD) open-data products.
//
// # Data Sources
//
// DWD publishes measurement archives at https://opendata.dwd.de covering
// several networks: hourly and 10-minute station observations (zip archives
// of semicolon-delimited product files plus station metadata), current
// observations per station (semicolon-delimited CSV with German locale
// numbers), MOSMIX point forecasts (KML), SYNOP reports (BUFR rendered as
// JSON), and RADOLAN radar composites (binary grids).
//
// # DWD Data Conventions
//
// Station identifiers:
//
//	Each station carries a network-local DWD id (numeric, zero-padded to
//	five characters) and, where registered, an international WMO id. Which
//	of the two a product file carries depends on the family: observation
//	archives name stations by DWD id, MOSMIX and SYNOP by WMO id. Records
//	carry both when the station list mapping is loaded.
//
// Missing values:
//
//	Observation products use the sentinel -999 (sometimes padded with
//	spaces); current observations use "---"; MOSMIX uses "-". Individual
//	columns declare additional per-format ignored codes, e.g. cloud cover
//	-1/9 ("not observable") and wind direction 990 ("variable"). A sentinel
//	resolves to an explicit missing value (nil in the parameter map),
//	distinct from a parameter that the file does not report at all (absent
//	from the map).
//
// Timestamps:
//
//	Hourly products stamp YYYYMMDDHH, 10-minute products YYYYMMDDHHMM,
//	current observations DD.MM.YY HH:MM, RADOLAN headers ddHHMMmmyy. All
//	are UTC and normalized to time.Time in UTC.
//
// Units:
//
//	Source files report DWD-native units (tenths of degrees Celsius are
//	pre-divided, hPa, km/h, eighths of cloud cover, J/cm²...). Values carry
//	both the SI-normalized number and the original native number so the
//	serialization layer can emit either.
//
// # Merge Semantics
//
// Within one parse, (station id, timestamp) is unique after merging. Partial
// records produced by single-parameter decoders are unioned by that key;
// a genuine disagreement on one parameter is a ConflictError resolved by the
// caller-chosen policy, never a silent overwrite.
package domain
