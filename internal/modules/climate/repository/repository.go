package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"climate-server/internal/modules/climate/types"
)

//go:embed sql/get-most-recent-date.sql
var getMostRecentDateSQL string

//go:embed sql/get-precipitation-after.sql
var getPrecipitationAfterSQL string

//go:embed sql/get-station-activity.sql
var getStationActivitySQL string

//go:embed sql/get-most-active-station.sql
var getMostActiveStationSQL string

//go:embed sql/get-temperatures-after.sql
var getTemperaturesAfterSQL string

//go:embed sql/get-temperature-values-from.sql
var getTemperatureValuesFromSQL string

//go:embed sql/get-temperature-values-between.sql
var getTemperatureValuesBetweenSQL string

//go:embed sql/get-table-counts.sql
var getTableCountsSQL string

var (
	queriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "climate_db_queries_total",
			Help: "Total number of climate queries by name and outcome",
		},
		[]string{"query", "outcome"},
	)

	queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "climate_db_query_duration_seconds",
			Help:    "Climate query latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)
)

// ClimateRepository hands out read-only query sessions.
type ClimateRepository interface {
	// ReadOnly runs fn inside one read-only transaction. The transaction is
	// released when ReadOnly returns, whatever fn does.
	ReadOnly(ctx context.Context, fn func(q Queries) error) error
}

// Queries are the reads available inside a session. Dates are YYYY-MM-DD
// strings and are compared as strings.
type Queries interface {
	// MostRecentDate returns the greatest measurement date; ok is false when
	// the measurement table is empty.
	MostRecentDate(ctx context.Context) (date string, ok bool, err error)
	// PrecipitationAfter returns every (date, prcp) with date > after, newest first.
	PrecipitationAfter(ctx context.Context, after string) ([]types.Precipitation, error)
	// StationActivity returns stations with at least one measurement, busiest
	// first, ties by station code.
	StationActivity(ctx context.Context) ([]types.StationActivity, error)
	// MostActiveStation returns the station code with the most measurements,
	// ties by station code; ok is false when there are no measurements.
	MostActiveStation(ctx context.Context) (station string, ok bool, err error)
	// TemperaturesAfter returns (date, tobs) for station with date > after.
	TemperaturesAfter(ctx context.Context, station, after string) ([]types.TemperatureObservation, error)
	// TemperatureValues returns non-null tobs for station with start <= date,
	// and date < end when end is not empty.
	TemperatureValues(ctx context.Context, station, start, end string) ([]float64, error)
	TableCounts(ctx context.Context) (types.TableCounts, error)
}

type repositoryImpl struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) ClimateRepository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) ReadOnly(ctx context.Context, fn func(q Queries) error) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin read-only tx: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			slog.Error("rollback read-only tx", "error", err)
		}
	}()
	return fn(&queries{tx: tx})
}

type queries struct {
	tx *sqlx.Tx
}

func (q *queries) MostRecentDate(ctx context.Context) (string, bool, error) {
	var date string
	err := q.get(ctx, "most_recent_date", &date, getMostRecentDateSQL)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("most recent date: %w", err)
	}
	return date, true, nil
}

func (q *queries) PrecipitationAfter(ctx context.Context, after string) ([]types.Precipitation, error) {
	out := []types.Precipitation{}
	if err := q.selectAll(ctx, "precipitation_after", &out, getPrecipitationAfterSQL, after); err != nil {
		return nil, fmt.Errorf("precipitation after %s: %w", after, err)
	}
	return out, nil
}

func (q *queries) StationActivity(ctx context.Context) ([]types.StationActivity, error) {
	out := []types.StationActivity{}
	if err := q.selectAll(ctx, "station_activity", &out, getStationActivitySQL); err != nil {
		return nil, fmt.Errorf("station activity: %w", err)
	}
	return out, nil
}

func (q *queries) MostActiveStation(ctx context.Context) (string, bool, error) {
	var station string
	err := q.get(ctx, "most_active_station", &station, getMostActiveStationSQL)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("most active station: %w", err)
	}
	return station, true, nil
}

func (q *queries) TemperaturesAfter(ctx context.Context, station, after string) ([]types.TemperatureObservation, error) {
	out := []types.TemperatureObservation{}
	if err := q.selectAll(ctx, "temperatures_after", &out, getTemperaturesAfterSQL, station, after); err != nil {
		return nil, fmt.Errorf("temperatures for %s after %s: %w", station, after, err)
	}
	return out, nil
}

func (q *queries) TemperatureValues(ctx context.Context, station, start, end string) ([]float64, error) {
	var out []float64
	var err error
	if end == "" {
		err = q.selectAll(ctx, "temperature_values_from", &out, getTemperatureValuesFromSQL, station, start)
	} else {
		err = q.selectAll(ctx, "temperature_values_between", &out, getTemperatureValuesBetweenSQL, station, start, end)
	}
	if err != nil {
		return nil, fmt.Errorf("temperature values for %s [%s, %s): %w", station, start, end, err)
	}
	return out, nil
}

func (q *queries) TableCounts(ctx context.Context) (types.TableCounts, error) {
	var out types.TableCounts
	if err := q.get(ctx, "table_counts", &out, getTableCountsSQL); err != nil {
		return types.TableCounts{}, fmt.Errorf("table counts: %w", err)
	}
	return out, nil
}

func (q *queries) get(ctx context.Context, name string, dest any, query string, args ...any) error {
	start := time.Now()
	err := q.tx.GetContext(ctx, dest, q.tx.Rebind(query), args...)
	observe(name, start, err)
	return err
}

func (q *queries) selectAll(ctx context.Context, name string, dest any, query string, args ...any) error {
	start := time.Now()
	err := q.tx.SelectContext(ctx, dest, q.tx.Rebind(query), args...)
	observe(name, start, err)
	return err
}

func observe(name string, start time.Time, err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, sql.ErrNoRows):
		outcome = "empty"
	case err != nil:
		outcome = "error"
	}
	queriesTotal.WithLabelValues(name, outcome).Inc()
	queryDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}
