package usecase

import (
	"context"
	"sort"
	"time"

	"github.com/ichnaea-service/internal/domain"
)

const (
	CellMinAccuracy = 100.0

	// AreaMaxAccuracy caps a cell-area answer; areas larger than this
	// say nothing useful about the client.
	AreaMaxAccuracy = 500000.0
)

// queryCellIDs extracts the complete, valid cell identifiers from a
// query, deduplicated in query order.
func queryCellIDs(query *domain.LocateQuery) []domain.CellID {
	var ids []domain.CellID
	seen := make(map[domain.CellID]struct{})
	for i := range query.Cells {
		c := &query.Cells[i]
		radio, err := domain.ParseRadio(c.Radio)
		if err != nil {
			continue
		}
		id := domain.CellID{Radio: radio, MCC: c.MCC, MNC: c.MNC, LAC: c.LAC, CID: c.CID}
		if !id.Valid() {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// positionFromCells answers from exact cell tower matches. Cells shard
// by radio technology, so one store read per radio in the query.
func (uc *LocateUseCase) positionFromCells(ctx context.Context, query *domain.LocateQuery, now time.Time) (*domain.LocateResult, error) {
	ids := queryCellIDs(query)
	if len(ids) == 0 {
		return nil, nil
	}

	byRadio := make(map[domain.Radio][]string)
	for _, id := range ids {
		byRadio[id.Radio] = append(byRadio[id.Radio], id.String())
	}

	var matched []*domain.Station
	for _, radio := range domain.Radios() {
		keys := byRadio[radio]
		if len(keys) == 0 {
			continue
		}
		rows, err := uc.stations.GetMany(ctx, domain.KindCell, radio.String(), keys)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if row.HasPosition() && !row.Blocked(now) {
				matched = append(matched, row)
			}
		}
	}
	if len(matched) == 0 {
		return nil, nil
	}

	// A single matched tower answers with its own estimate; several
	// matched towers aggregate the same way a MAC cluster does.
	if len(matched) == 1 {
		s := matched[0]
		return &domain.LocateResult{
			Lat:      *s.Lat,
			Lon:      *s.Lon,
			Accuracy: clampAccuracy(s.Radius, CellMinAccuracy, 0),
			Source:   domain.ResultCell,
		}, nil
	}

	members := make([]macMember, len(matched))
	for i, s := range matched {
		members[i] = macMember{station: s}
	}
	lat, lon, accuracy := aggregatePosition(members)
	return &domain.LocateResult{
		Lat:      lat,
		Lon:      lon,
		Accuracy: clampAccuracy(accuracy, CellMinAccuracy, 0),
		Source:   domain.ResultCell,
	}, nil
}

// positionFromAreas is the lacf fallback: when no exact tower matched,
// the location area aggregates still bound the client's position. The
// smallest matching area wins.
func (uc *LocateUseCase) positionFromAreas(ctx context.Context, query *domain.LocateQuery) (*domain.LocateResult, error) {
	if !query.Fallbacks.LACF {
		return nil, nil
	}

	var areaIDs []domain.AreaID
	seen := make(map[domain.AreaID]struct{})
	for i := range query.Cells {
		c := &query.Cells[i]
		radio, err := domain.ParseRadio(c.Radio)
		if err != nil {
			continue
		}
		id := domain.AreaID{Radio: radio, MCC: c.MCC, MNC: c.MNC, LAC: c.LAC}
		if id.MCC < 1 || id.MCC > 999 || id.LAC < 1 || id.LAC > 65533 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		areaIDs = append(areaIDs, id)
	}
	if len(areaIDs) == 0 {
		return nil, nil
	}

	var areas []*domain.CellArea
	for _, id := range areaIDs {
		area, err := uc.areas.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if area != nil && area.Radius <= AreaMaxAccuracy {
			areas = append(areas, area)
		}
	}
	if len(areas) == 0 {
		return nil, nil
	}

	sort.SliceStable(areas, func(i, j int) bool {
		return areas[i].Radius < areas[j].Radius
	})
	best := areas[0]

	return &domain.LocateResult{
		Lat:      best.Lat,
		Lon:      best.Lon,
		Accuracy: clampAccuracy(best.Radius, CellMinAccuracy, AreaMaxAccuracy),
		Source:   domain.ResultCellArea,
		Region:   best.Region,
		Fallback: "lacf",
	}, nil
}

// regionForResult fills the region code of a result from the polygon
// index when the source itself did not provide one.
func (uc *LocateUseCase) regionForResult(r *domain.LocateResult) {
	if r == nil || r.Region != "" || uc.regions == nil {
		return
	}
	r.Region = uc.regions.Lookup(r.Lat, r.Lon)
}
