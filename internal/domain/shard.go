package domain

import (
	"fmt"

	"github.com/ichnaea-service/internal/geo"
)

// Queue names. Every queue is a durable Redis-backed FIFO; the per-shard
// queues carry observations, the set-semantic queues carry ids.
const (
	QueueIncoming   = "update_incoming"
	QueueCellArea   = "update_cellarea"
	QueueDeadLetter = "update_deadletter"
)

// MacShardIDs lists the sixteen MAC shard labels.
var MacShardIDs = []string{
	"0", "1", "2", "3", "4", "5", "6", "7",
	"8", "9", "a", "b", "c", "d", "e", "f",
}

// BlueQueue returns the shard queue for a Bluetooth station.
func BlueQueue(mac MAC) string {
	return "update_blue_" + mac.ShardID()
}

// WifiQueue returns the shard queue for a Wi-Fi station.
func WifiQueue(mac MAC) string {
	return "update_wifi_" + mac.ShardID()
}

// CellQueue returns the shard queue for a cell station; cells shard by
// radio technology.
func CellQueue(radio Radio) string {
	return "update_cell_" + radio.String()
}

// DatamapQueue returns the datamap shard queue for a position, one of the
// four geographic quadrants.
func DatamapQueue(grid geo.GridID) string {
	return "update_datamap_" + string(grid.Quadrant())
}

// ObservationQueue routes an observation to its shard queue. Total over
// all valid observations.
func ObservationQueue(obs *Observation) string {
	switch obs.Kind {
	case KindBlue:
		return "update_blue_" + MAC(obs.ID).ShardID()
	case KindWifi:
		return "update_wifi_" + MAC(obs.ID).ShardID()
	case KindCell:
		return CellQueue(obs.Radio)
	}
	return QueueDeadLetter
}

// StationShardQueues enumerates every per-shard station queue, used to
// spawn one updater worker each.
func StationShardQueues() []string {
	queues := make([]string, 0, 2*len(MacShardIDs)+len(Radios()))
	for _, s := range MacShardIDs {
		queues = append(queues, "update_blue_"+s)
	}
	for _, s := range MacShardIDs {
		queues = append(queues, "update_wifi_"+s)
	}
	for _, r := range Radios() {
		queues = append(queues, CellQueue(r))
	}
	return queues
}

// DatamapQueues enumerates the four datamap shard queues.
func DatamapQueues() []string {
	return []string{
		"update_datamap_" + string(geo.GridNE),
		"update_datamap_" + string(geo.GridNW),
		"update_datamap_" + string(geo.GridSE),
		"update_datamap_" + string(geo.GridSW),
	}
}

// ShardKindFromQueue recovers the station kind and shard id from a shard
// queue name.
func ShardKindFromQueue(queue string) (StationKind, string, error) {
	switch {
	case len(queue) > 12 && queue[:12] == "update_blue_":
		return KindBlue, queue[12:], nil
	case len(queue) > 12 && queue[:12] == "update_wifi_":
		return KindWifi, queue[12:], nil
	case len(queue) > 12 && queue[:12] == "update_cell_":
		return KindCell, queue[12:], nil
	}
	return "", "", fmt.Errorf("not a station shard queue: %q", queue)
}
