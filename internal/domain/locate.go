package domain

// ResultSource names where a locate answer came from, in priority order.
type ResultSource string

const (
	ResultBlue     ResultSource = "blue"
	ResultWifi     ResultSource = "wifi"
	ResultCell     ResultSource = "cell"
	ResultCellArea ResultSource = "cellarea"
	ResultFallback ResultSource = "fallback"
	ResultGeoIP    ResultSource = "geoip"
)

// SourcePriority orders result sources; lower is tried first and trusted
// more.
func SourcePriority(s ResultSource) int {
	switch s {
	case ResultBlue:
		return 0
	case ResultWifi:
		return 1
	case ResultCell:
		return 2
	case ResultCellArea:
		return 3
	case ResultFallback:
		return 4
	case ResultGeoIP:
		return 5
	}
	return 6
}

// FallbackFlags are the client toggles for the cell-area and GeoIP
// fallbacks; both default to enabled.
type FallbackFlags struct {
	LACF bool
	IPF  bool
}

// LocateQuery is the parsed, canonicalized position query.
type LocateQuery struct {
	APIKey    *APIKey
	Blues     []BlueNetwork
	Wifis     []WifiNetwork
	Cells     []CellNetwork
	Radio     string // report-level radio, overridden per tower
	ClientIP  string
	Fallbacks FallbackFlags

	// MaxAccuracy is the accuracy floor that short-circuits the source
	// chain once satisfied.
	MaxAccuracy float64
}

// LocateResult is a position candidate from one source.
type LocateResult struct {
	Lat      float64
	Lon      float64
	Accuracy float64 // meters
	Source   ResultSource
	Region   string
	// Fallback carries the wire marker ("lacf" or "ipf") when the answer
	// did not come from a full station match.
	Fallback string
}

// Better reports whether r is preferable over other: more accurate, with
// source priority as the tie-break.
func (r *LocateResult) Better(other *LocateResult) bool {
	if other == nil {
		return true
	}
	if r.Accuracy != other.Accuracy {
		return r.Accuracy < other.Accuracy
	}
	return SourcePriority(r.Source) < SourcePriority(other.Source)
}
