package domain

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	minMCC = 1
	maxMCC = 999
	minMNC = 0
	maxMNC = 999

	maxLACGSM = 65533
	maxCIDGSM = 65535
	maxCIDUMT = 1<<28 - 1 // WCDMA and LTE cid fit in 28 bits
)

// CellID identifies one cell tower.
type CellID struct {
	Radio Radio `json:"radio"`
	MCC   int   `json:"mcc"`
	MNC   int   `json:"mnc"`
	LAC   int   `json:"lac"`
	CID   int   `json:"cid"`
}

// Valid checks the per-radio identifier ranges. Zero lac, cid or mcc
// values mark incomplete towers and are invalid.
func (c CellID) Valid() bool {
	if c.MCC < minMCC || c.MCC > maxMCC {
		return false
	}
	if c.MNC < minMNC || c.MNC > maxMNC {
		return false
	}
	if c.LAC < 1 || c.LAC > maxLACGSM {
		return false
	}
	switch c.Radio {
	case RadioGSM:
		return c.CID >= 1 && c.CID <= maxCIDGSM
	case RadioWCDMA, RadioLTE:
		return c.CID >= 1 && c.CID <= maxCIDUMT
	}
	return false
}

// String renders the canonical storage key, e.g. "gsm_234_15_2_1234".
func (c CellID) String() string {
	return fmt.Sprintf("%s_%d_%d_%d_%d", c.Radio, c.MCC, c.MNC, c.LAC, c.CID)
}

// ParseCellID parses the canonical storage key form back into a CellID.
func ParseCellID(s string) (CellID, error) {
	var c CellID
	parts := strings.SplitN(s, "_", 5)
	if len(parts) != 5 {
		return c, fmt.Errorf("malformed cell id %q", s)
	}
	radio, err := ParseRadio(parts[0])
	if err != nil {
		return c, err
	}
	c.Radio = radio
	for i, dst := range []*int{&c.MCC, &c.MNC, &c.LAC, &c.CID} {
		v, err := strconv.Atoi(parts[i+1])
		if err != nil {
			return c, fmt.Errorf("malformed cell id %q", s)
		}
		*dst = v
	}
	return c, nil
}

// Area returns the cell-area this cell aggregates into.
func (c CellID) Area() AreaID {
	return AreaID{Radio: c.Radio, MCC: c.MCC, MNC: c.MNC, LAC: c.LAC}
}

// AreaID identifies a cell-area, the set of cells sharing a location
// area code.
type AreaID struct {
	Radio Radio `json:"radio"`
	MCC   int   `json:"mcc"`
	MNC   int   `json:"mnc"`
	LAC   int   `json:"lac"`
}

func (a AreaID) String() string {
	return fmt.Sprintf("%s_%d_%d_%d", a.Radio, a.MCC, a.MNC, a.LAC)
}

// ParseAreaID parses the canonical area key form back into an AreaID.
func ParseAreaID(s string) (AreaID, error) {
	var a AreaID
	parts := strings.SplitN(s, "_", 4)
	if len(parts) != 4 {
		return a, fmt.Errorf("malformed area id %q", s)
	}
	radio, err := ParseRadio(parts[0])
	if err != nil {
		return a, err
	}
	a.Radio = radio
	for i, dst := range []*int{&a.MCC, &a.MNC, &a.LAC} {
		v, err := strconv.Atoi(parts[i+1])
		if err != nil {
			return a, fmt.Errorf("malformed area id %q", s)
		}
		*dst = v
	}
	return a, nil
}

// CellArea is the aggregate over all unblocked cells in one area.
type CellArea struct {
	ID            AreaID
	Lat           float64
	Lon           float64
	Radius        float64
	NumCells      int
	AvgCellRadius float64
	Region        string
	LastSeen      string // ISO date
}
