// Package testutil builds throwaway climate databases for tests.
package testutil

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"climate-server/internal/modules/climate/types"
	"climate-server/internal/schema"
)

// NewDB returns an in-memory SQLite database with the climate schema applied.
func NewDB(t testing.TB) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close db: %v", err)
		}
	})
	if err := schema.Run(context.Background(), db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db
}

func InsertStations(t testing.TB, db *sqlx.DB, stations ...types.Station) {
	t.Helper()
	for _, s := range stations {
		_, err := db.NamedExec(`
			INSERT INTO station (station, name, latitude, longitude, elevation)
			VALUES (:station, :name, :latitude, :longitude, :elevation)`, s)
		if err != nil {
			t.Fatalf("insert station %s: %v", s.Station, err)
		}
	}
}

func InsertMeasurements(t testing.TB, db *sqlx.DB, measurements ...types.Measurement) {
	t.Helper()
	for _, m := range measurements {
		_, err := db.NamedExec(`
			INSERT INTO measurement (station, date, prcp, tobs)
			VALUES (:station, :date, :prcp, :tobs)`, m)
		if err != nil {
			t.Fatalf("insert measurement %s/%s: %v", m.Station, m.Date, err)
		}
	}
}

// F returns a pointer to v for nullable columns.
func F(v float64) *float64 {
	return &v
}

// Station builds a station row with coordinates filled in.
func Station(code, name string) types.Station {
	return types.Station{
		Station:   code,
		Name:      name,
		Latitude:  F(21.2716),
		Longitude: F(-157.8168),
		Elevation: F(3.0),
	}
}

// Measurement builds a measurement row; nil pointers are stored as NULL.
func Measurement(station, date string, prcp, tobs *float64) types.Measurement {
	return types.Measurement{Station: station, Date: date, Prcp: prcp, Tobs: tobs}
}
