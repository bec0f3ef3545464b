package database

import (
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// StatsResult holds the dashboard counters for fixed windows computed in
// local time; Today starts at local midnight.
type StatsResult struct {
	Today int64 `json:"today"`
	Week  int64 `json:"week"`
	Month int64 `json:"month"`
	Total int64 `json:"total"`
}

// DailyBucket is one heatmap cell aggregated per calendar day.
type DailyBucket struct {
	Date            string         `json:"date"`
	Count           int            `json:"count"`
	CameraBreakdown map[string]int `json:"camera_breakdown,omitempty"`
}

// HourlyBucket is one heatmap cell for the trailing 24 hours, keyed by
// the bucket's start-of-hour (0..23).
type HourlyBucket struct {
	Hour            int            `json:"hour"`
	Count           int            `json:"count"`
	CameraBreakdown map[string]int `json:"camera_breakdown,omitempty"`
}

// CounterDrift reports a camera whose cached counters disagree with a
// full recount over the detections table.
type CounterDrift struct {
	CameraID      uint
	StoredDetects int
	ActualDetects int
	StoredAlerts  int
	ActualAlerts  int
}

func countDetectionsSince(db *sql.DB, since *time.Time, cameraIDs []uint) (int64, error) {
	queryBuilder := psql.Select("COUNT(id)").
		From("detections").
		Where(sq.Eq{"processed": true})
	if since != nil {
		queryBuilder = queryBuilder.Where(sq.GtOrEq{"file_timestamp": *since})
	}
	if len(cameraIDs) > 0 {
		queryBuilder = queryBuilder.Where(sq.Eq{"camera_id": cameraIDs})
	}

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build stats count query: %w", err)
	}

	var count int64
	if err := db.QueryRow(sqlStr, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to run stats count query: %w", err)
	}
	return count, nil
}

// DetectionStats computes the today/week/month/total counters used by
// the dashboard, in the system's local time zone.
func DetectionStats(db *sql.DB, cameraIDs []uint) (StatsResult, error) {
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekAgo := now.AddDate(0, 0, -7)
	monthAgo := now.AddDate(0, 0, -30)

	var result StatsResult
	var err error
	if result.Today, err = countDetectionsSince(db, &midnight, cameraIDs); err != nil {
		return result, err
	}
	if result.Week, err = countDetectionsSince(db, &weekAgo, cameraIDs); err != nil {
		return result, err
	}
	if result.Month, err = countDetectionsSince(db, &monthAgo, cameraIDs); err != nil {
		return result, err
	}
	if result.Total, err = countDetectionsSince(db, nil, cameraIDs); err != nil {
		return result, err
	}
	return result, nil
}

// detectionTimeRow is the projection used for heatmap bucketing, which
// happens application-side to keep the time zone handling in one place.
type detectionTimeRow struct {
	timestamp  time.Time
	cameraName string
}

func queryDetectionTimes(db *sql.DB, since time.Time, cameraIDs []uint) ([]detectionTimeRow, error) {
	queryBuilder := psql.Select("d.file_timestamp", "c.full_name").
		From("detections d").
		Join("cameras c ON c.id = d.camera_id").
		Where(sq.Eq{"d.processed": true}).
		Where(sq.GtOrEq{"d.file_timestamp": since}).
		Where(sq.NotEq{"d.file_timestamp": nil})
	if len(cameraIDs) > 0 {
		queryBuilder = queryBuilder.Where(sq.Eq{"d.camera_id": cameraIDs})
	}

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build heatmap query: %w", err)
	}

	rows, err := db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run heatmap query: %w", err)
	}
	defer rows.Close()

	var results []detectionTimeRow
	for rows.Next() {
		var row detectionTimeRow
		if err := rows.Scan(&row.timestamp, &row.cameraName); err != nil {
			return nil, fmt.Errorf("failed to scan heatmap row: %w", err)
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// HeatmapDaily aggregates detection counts per calendar day over the
// trailing days window.
func HeatmapDaily(db *sql.DB, days int, perCamera bool, cameraIDs []uint) ([]DailyBucket, error) {
	if days <= 0 {
		days = 30
	}
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, -(days - 1))

	rows, err := queryDetectionTimes(db, start, cameraIDs)
	if err != nil {
		return nil, err
	}

	buckets := map[string]*DailyBucket{}
	for _, row := range rows {
		date := row.timestamp.In(now.Location()).Format("2006-01-02")
		bucket, ok := buckets[date]
		if !ok {
			bucket = &DailyBucket{Date: date}
			if perCamera {
				bucket.CameraBreakdown = map[string]int{}
			}
			buckets[date] = bucket
		}
		bucket.Count++
		if perCamera {
			bucket.CameraBreakdown[row.cameraName]++
		}
	}

	// emit every day in the window, zero-filled, oldest first
	out := make([]DailyBucket, 0, days)
	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i).Format("2006-01-02")
		if bucket, ok := buckets[date]; ok {
			out = append(out, *bucket)
		} else {
			entry := DailyBucket{Date: date}
			if perCamera {
				entry.CameraBreakdown = map[string]int{}
			}
			out = append(out, entry)
		}
	}
	return out, nil
}

// HeatmapHourly aggregates counts for the last 24 hours ending now,
// bucketed by start-of-hour.
func HeatmapHourly(db *sql.DB, perCamera bool, cameraIDs []uint) ([]HourlyBucket, error) {
	now := time.Now()
	start := now.Add(-24 * time.Hour)

	rows, err := queryDetectionTimes(db, start, cameraIDs)
	if err != nil {
		return nil, err
	}

	buckets := map[int]*HourlyBucket{}
	for _, row := range rows {
		local := row.timestamp.In(now.Location())
		if local.Before(start) || local.After(now) {
			continue
		}
		hour := local.Hour()
		bucket, ok := buckets[hour]
		if !ok {
			bucket = &HourlyBucket{Hour: hour}
			if perCamera {
				bucket.CameraBreakdown = map[string]int{}
			}
			buckets[hour] = bucket
		}
		bucket.Count++
		if perCamera {
			bucket.CameraBreakdown[row.cameraName]++
		}
	}

	// 24 buckets ordered from the window's first hour to the current one
	out := make([]HourlyBucket, 0, 24)
	for i := 0; i < 24; i++ {
		hour := (start.Hour() + 1 + i) % 24
		if bucket, ok := buckets[hour]; ok {
			out = append(out, *bucket)
		} else {
			entry := HourlyBucket{Hour: hour}
			if perCamera {
				entry.CameraBreakdown = map[string]int{}
			}
			out = append(out, entry)
		}
	}
	return out, nil
}

// RecountCameraCounters recomputes the cached per-camera aggregates and
// returns the cameras whose stored counters drifted. It does not write;
// the repository applies fixes.
func RecountCameraCounters(db *sql.DB) ([]CounterDrift, error) {
	queryBuilder := psql.Select(
		"c.id",
		"c.total_detections",
		"c.total_alerts",
		"COUNT(d.id)",
		"COALESCE(SUM(d.alert_count), 0)",
	).
		From("cameras c").
		LeftJoin("detections d ON d.camera_id = c.id").
		GroupBy("c.id")

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build recount query: %w", err)
	}

	rows, err := db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run recount query: %w", err)
	}
	defer rows.Close()

	var drifts []CounterDrift
	for rows.Next() {
		var d CounterDrift
		if err := rows.Scan(&d.CameraID, &d.StoredDetects, &d.StoredAlerts, &d.ActualDetects, &d.ActualAlerts); err != nil {
			return nil, fmt.Errorf("failed to scan recount row: %w", err)
		}
		if d.StoredDetects != d.ActualDetects || d.StoredAlerts != d.ActualAlerts {
			drifts = append(drifts, d)
		}
	}
	return drifts, rows.Err()
}
