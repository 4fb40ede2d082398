package domain

import (
	"fmt"
	"strings"
)

// Radio is the cell radio technology. Only GSM, WCDMA and LTE cells are
// stored; anything else is dropped at the parse boundary.
type Radio int

const (
	RadioGSM Radio = iota
	RadioWCDMA
	RadioLTE
)

var radioNames = map[Radio]string{
	RadioGSM:   "gsm",
	RadioWCDMA: "wcdma",
	RadioLTE:   "lte",
}

func (r Radio) String() string {
	if name, ok := radioNames[r]; ok {
		return name
	}
	return fmt.Sprintf("radio(%d)", int(r))
}

// ParseRadio accepts the wire spellings of the radio type, including the
// legacy "umts" alias for WCDMA.
func ParseRadio(s string) (Radio, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gsm":
		return RadioGSM, nil
	case "wcdma", "umts":
		return RadioWCDMA, nil
	case "lte":
		return RadioLTE, nil
	}
	return 0, fmt.Errorf("unknown radio type %q", s)
}

// Radios lists every supported radio, in shard order.
func Radios() []Radio {
	return []Radio{RadioGSM, RadioWCDMA, RadioLTE}
}
