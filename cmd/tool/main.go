package main

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/config"
	"github.com/ichnaea-service/internal/domain"
	"github.com/ichnaea-service/internal/domain/repository"
	"github.com/ichnaea-service/internal/geo"
	"github.com/ichnaea-service/internal/pkg/logger"
	"github.com/ichnaea-service/internal/repository/cache"
	"github.com/ichnaea-service/internal/repository/postgres"
	redisRepo "github.com/ichnaea-service/internal/repository/redis"
	"github.com/ichnaea-service/internal/usecase"
)

const usageText = `Usage: tool <command> [flags]

Commands:
  dump            export station shards as gzipped CSV
  load            import observations from gzipped CSV
  export-targets  list configured report export targets
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()
	var cmdErr error
	switch os.Args[1] {
	case "dump":
		cmdErr = runDump(ctx, cfg, log, os.Args[2:])
	case "load":
		cmdErr = runLoad(ctx, cfg, log, os.Args[2:])
	case "export-targets":
		cmdErr = runExportTargets(ctx, cfg, log)
	default:
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}
	if cmdErr != nil {
		log.Fatal("Command failed", zap.String("command", os.Args[1]), zap.Error(cmdErr))
	}
}

const dumpPageSize = 10000

var csvHeader = []string{
	"id", "radio", "lat", "lon", "radius",
	"samples", "weight", "source", "region", "modified",
}

func runDump(ctx context.Context, cfg *config.Config, log *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	datatype := fs.String("datatype", "wifi", "station datatype: blue, wifi or cell")
	filename := fs.String("filename", "", "output file, gzipped CSV (default stdout)")
	since := fs.String("since", "", "only stations modified after this RFC 3339 time")
	lat := fs.Float64("lat", 0, "center latitude of the dump area")
	lon := fs.Float64("lon", 0, "center longitude of the dump area")
	radius := fs.Float64("radius", 0, "radius in meters around --lat/--lon")
	if err := fs.Parse(args); err != nil {
		return err
	}

	kind := domain.StationKind(*datatype)
	shards, err := shardsForKind(kind)
	if err != nil {
		return err
	}

	var sinceTime time.Time
	if *since != "" {
		sinceTime, err = time.Parse(time.RFC3339, *since)
		if err != nil {
			return fmt.Errorf("bad --since value: %w", err)
		}
	}
	box, err := dumpArea(*lat, *lon, *radius)
	if err != nil {
		return err
	}

	var sink io.Writer = os.Stdout
	if *filename != "" {
		f, err := os.Create(*filename)
		if err != nil {
			return err
		}
		defer f.Close()
		sink = f
	}
	gz := gzip.NewWriter(sink)
	defer gz.Close()
	w := csv.NewWriter(gz)
	defer w.Flush()

	db, err := postgres.New(&cfg.Database, log)
	if err != nil {
		return err
	}
	defer db.Close()
	stations := postgres.NewStationRepository(db)

	if err := w.Write(csvHeader); err != nil {
		return err
	}

	total := 0
	for _, shard := range shards {
		n, err := dumpShard(ctx, stations, w, kind, shard, sinceTime, box)
		if err != nil {
			return err
		}
		total += n
	}
	w.Flush()
	log.Info("Dump complete", zap.String("kind", string(kind)), zap.Int("stations", total))
	return w.Error()
}

func dumpShard(
	ctx context.Context,
	stations repository.StationRepository,
	w *csv.Writer,
	kind domain.StationKind,
	shard string,
	since time.Time,
	box []float64,
) (int, error) {
	var (
		rows []*domain.Station
		err  error
	)
	if box != nil {
		rows, err = stations.IterByBoundingBox(ctx, kind, shard, box[0], box[1], box[2], box[3], dumpPageSize)
	} else {
		rows, err = stations.ScanModifiedSince(ctx, kind, shard, since, dumpPageSize)
	}
	if err != nil {
		return 0, err
	}

	written := 0
	for _, s := range rows {
		if !s.HasPosition() {
			continue
		}
		record := []string{
			s.ID,
			s.Radio.String(),
			strconv.FormatFloat(*s.Lat, 'f', 7, 64),
			strconv.FormatFloat(*s.Lon, 'f', 7, 64),
			strconv.FormatFloat(s.Radius, 'f', 1, 64),
			strconv.FormatUint(s.Samples, 10),
			strconv.FormatFloat(s.Weight, 'f', 3, 64),
			string(s.Source),
			s.Region,
			s.Modified.UTC().Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// runLoad feeds a dump file back through the normal report pipeline:
// every row becomes a single-network report on the incoming queue.
func runLoad(ctx context.Context, cfg *config.Config, log *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	datatype := fs.String("datatype", "wifi", "station datatype: blue, wifi or cell")
	filename := fs.String("filename", "", "input file, gzipped CSV as written by dump")
	batch := fs.Int("batch", 1000, "reports per enqueue batch")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *filename == "" {
		return fmt.Errorf("--filename is required")
	}
	kind := domain.StationKind(*datatype)
	if _, err := shardsForKind(kind); err != nil {
		return err
	}

	f, err := os.Open(*filename)
	if err != nil {
		return err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()
	r := csv.NewReader(gz)
	r.FieldsPerRecord = len(csvHeader)

	redisClient, err := cache.NewRedis(&cfg.Redis, log)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	queueRepo := redisRepo.NewQueueRepository(redisClient.Client(), log)
	submitUC := usecase.NewSubmitUseCase(queueRepo, cfg.Ingest, log)

	// Header row.
	if _, err := r.Read(); err != nil {
		return err
	}

	now := time.Now().UTC()
	var reports []domain.Report
	total := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		report, err := rowToReport(kind, record, now)
		if err != nil {
			log.Warn("Skipping malformed row", zap.Error(err))
			continue
		}
		reports = append(reports, report)
		if len(reports) >= *batch {
			if err := submitUC.Queue(ctx, reports); err != nil {
				return err
			}
			total += len(reports)
			reports = reports[:0]
		}
	}
	if len(reports) > 0 {
		if err := submitUC.Queue(ctx, reports); err != nil {
			return err
		}
		total += len(reports)
	}

	log.Info("Load complete", zap.String("kind", string(kind)), zap.Int("reports", total))
	return nil
}

func rowToReport(kind domain.StationKind, record []string, now time.Time) (domain.Report, error) {
	lat, err := strconv.ParseFloat(record[2], 64)
	if err != nil {
		return domain.Report{}, fmt.Errorf("bad lat %q", record[2])
	}
	lon, err := strconv.ParseFloat(record[3], 64)
	if err != nil {
		return domain.Report{}, fmt.Errorf("bad lon %q", record[3])
	}
	radius, _ := strconv.ParseFloat(record[4], 64)

	report := domain.Report{
		Timestamp: now,
		Position: domain.Position{
			Lat:      lat,
			Lon:      lon,
			Accuracy: radius,
			Source:   domain.SourceGNSS,
		},
	}

	switch kind {
	case domain.KindBlue:
		mac := domain.NormalizeMAC(record[0])
		if !mac.Valid() {
			return domain.Report{}, fmt.Errorf("bad mac %q", record[0])
		}
		report.Blues = []domain.BlueNetwork{{MAC: mac}}
	case domain.KindWifi:
		mac := domain.NormalizeMAC(record[0])
		if !mac.Valid() {
			return domain.Report{}, fmt.Errorf("bad mac %q", record[0])
		}
		report.Wifis = []domain.WifiNetwork{{MAC: mac}}
	case domain.KindCell:
		id, err := domain.ParseCellID(record[0])
		if err != nil {
			return domain.Report{}, err
		}
		report.Cells = []domain.CellNetwork{{
			Radio: id.Radio.String(),
			MCC:   id.MCC,
			MNC:   id.MNC,
			LAC:   id.LAC,
			CID:   id.CID,
		}}
	}
	return report, nil
}

func runExportTargets(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	db, err := postgres.New(&cfg.Database, log)
	if err != nil {
		return err
	}
	defer db.Close()

	targets, err := postgres.NewExportConfigRepository(db).GetAll(ctx)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		fmt.Println("No export targets configured")
		return nil
	}
	for _, t := range targets {
		fmt.Printf("%s\tschema=%s\tbatch=%d\turl=%s\n", t.Name, t.Schema, t.Batch, t.URL)
	}
	return nil
}

func shardsForKind(kind domain.StationKind) ([]string, error) {
	switch kind {
	case domain.KindBlue, domain.KindWifi:
		return domain.MacShardIDs, nil
	case domain.KindCell:
		shards := make([]string, 0, len(domain.Radios()))
		for _, r := range domain.Radios() {
			shards = append(shards, r.String())
		}
		return shards, nil
	}
	return nil, fmt.Errorf("unknown station kind %q", kind)
}

// dumpArea turns the --lat/--lon/--radius flags into a bounding box for the
// shard scan. A zero radius means no area filter.
func dumpArea(lat, lon, radius float64) ([]float64, error) {
	if radius <= 0 {
		return nil, nil
	}
	if !geo.ValidateCoordinates(lat, lon) {
		return nil, fmt.Errorf("bad --lat/--lon values %f,%f", lat, lon)
	}
	minLat, maxLat, minLon, maxLon := geo.BoundingBox(lat, lon, radius)
	return []float64{minLat, maxLat, minLon, maxLon}, nil
}
