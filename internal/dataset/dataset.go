// Package dataset loads the station and measurement CSV exports into the
// climate schema.
package dataset

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"climate-server/internal/modules/climate/types"
)

const dateLayout = "2006-01-02"

var (
	stationColumns     = []string{"station", "name", "latitude", "longitude", "elevation"}
	measurementColumns = []string{"station", "date", "prcp", "tobs"}
)

const (
	insertStation = `INSERT INTO station (station, name, latitude, longitude, elevation)
VALUES (:station, :name, :latitude, :longitude, :elevation)`
	insertMeasurement = `INSERT INTO measurement (station, date, prcp, tobs)
VALUES (:station, :date, :prcp, :tobs)`
)

// Counts reports how many rows a load inserted.
type Counts struct {
	Stations     int
	Measurements int
}

// LineError points at the CSV record that could not be loaded.
type LineError struct {
	File string
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("%s line %d: %v", e.File, e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// Load inserts every station and then every measurement in one
// transaction. Nothing is committed if any row fails.
func Load(ctx context.Context, db *sqlx.DB, stations io.Reader, measurements io.Reader) (Counts, error) {
	var counts Counts

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return counts, fmt.Errorf("begin load: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.Error("dataset rollback failed", "error", rbErr)
		}
	}()

	counts.Stations, err = loadStations(ctx, tx, stations)
	if err != nil {
		return Counts{}, err
	}
	counts.Measurements, err = loadMeasurements(ctx, tx, measurements)
	if err != nil {
		return Counts{}, err
	}

	if err := tx.Commit(); err != nil {
		return Counts{}, fmt.Errorf("commit load: %w", err)
	}
	slog.Info("dataset loaded", "stations", counts.Stations, "measurements", counts.Measurements)
	return counts, nil
}

func loadStations(ctx context.Context, tx *sqlx.Tx, r io.Reader) (int, error) {
	stmt, err := tx.PrepareNamedContext(ctx, insertStation)
	if err != nil {
		return 0, fmt.Errorf("prepare station insert: %w", err)
	}
	defer stmt.Close()

	return eachRecord(r, "stations", stationColumns, func(get func(string) string) error {
		s := types.Station{Station: get("station"), Name: get("name")}
		if s.Station == "" {
			return errors.New("empty station code")
		}
		var err error
		if s.Latitude, err = parseNullable("latitude", get("latitude")); err != nil {
			return err
		}
		if s.Longitude, err = parseNullable("longitude", get("longitude")); err != nil {
			return err
		}
		if s.Elevation, err = parseNullable("elevation", get("elevation")); err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx, s)
		return err
	})
}

func loadMeasurements(ctx context.Context, tx *sqlx.Tx, r io.Reader) (int, error) {
	stmt, err := tx.PrepareNamedContext(ctx, insertMeasurement)
	if err != nil {
		return 0, fmt.Errorf("prepare measurement insert: %w", err)
	}
	defer stmt.Close()

	return eachRecord(r, "measurements", measurementColumns, func(get func(string) string) error {
		m := types.Measurement{Station: get("station"), Date: get("date")}
		if m.Station == "" {
			return errors.New("empty station code")
		}
		if _, err := time.Parse(dateLayout, m.Date); err != nil {
			return fmt.Errorf("date %q is not YYYY-MM-DD", m.Date)
		}
		var err error
		if m.Prcp, err = parseNullable("prcp", get("prcp")); err != nil {
			return err
		}
		if m.Tobs, err = parseNullable("tobs", get("tobs")); err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx, m)
		return err
	})
}

// eachRecord reads the header, checks that every required column is
// present and calls fn once per data record. Columns may appear in any
// order; extra columns are ignored.
func eachRecord(r io.Reader, file string, required []string, fn func(get func(string) string) error) (int, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, &LineError{File: file, Line: 1, Err: errors.New("missing header row")}
		}
		return 0, &LineError{File: file, Line: 1, Err: err}
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return 0, &LineError{File: file, Line: 1, Err: fmt.Errorf("missing column %q", col)}
		}
	}

	n := 0
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return n, &LineError{File: file, Line: pe.Line, Err: pe.Err}
			}
			return n, fmt.Errorf("read %s: %w", file, err)
		}
		line, _ := cr.FieldPos(0)
		get := func(col string) string {
			i := index[col]
			if i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		if err := fn(get); err != nil {
			return n, &LineError{File: file, Line: line, Err: err}
		}
		n++
	}
}

func parseNullable(column, s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("invalid %s %q", column, s)
	}
	return &v, nil
}
