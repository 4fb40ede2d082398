package domain

// RegionStat counts stored stations per region and kind.
type RegionStat struct {
	Region string `db:"region"`
	GSM    int64  `db:"gsm"`
	WCDMA  int64  `db:"wcdma"`
	LTE    int64  `db:"lte"`
	Blue   int64  `db:"blue"`
	Wifi   int64  `db:"wifi"`
}
