package dataset

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"climate-server/internal/config"
	db "climate-server/internal/db"
	"climate-server/internal/modules/climate/types"
	"climate-server/internal/schema"
	"climate-server/internal/testutil"
)

const stationsCSV = `station,name,latitude,longitude,elevation
USC00519397,"WAIKIKI 717.2, HI US",21.2716,-157.8168,3.0
USC00513117,"KANEOHE 838.1, HI US",21.4234,-157.8015,14.6
USC00517948,"PEARL CITY, HI US",,,
`

const measurementsCSV = `station,date,prcp,tobs
USC00519397,2010-01-01,0.08,65.0
USC00519397,2010-01-02,,63.0
USC00513117,2010-01-01,0.28,67.0
`

func TestLoad(t *testing.T) {
	conn := testutil.NewDB(t)
	ctx := context.Background()

	counts, err := Load(ctx, conn, strings.NewReader(stationsCSV), strings.NewReader(measurementsCSV))
	require.NoError(t, err)
	assert.Equal(t, Counts{Stations: 3, Measurements: 3}, counts)

	var station types.Station
	require.NoError(t, conn.GetContext(ctx, &station, `SELECT * FROM station WHERE station = 'USC00519397'`))
	assert.Equal(t, "WAIKIKI 717.2, HI US", station.Name)
	require.NotNil(t, station.Elevation)
	assert.Equal(t, 3.0, *station.Elevation)

	var pearl types.Station
	require.NoError(t, conn.GetContext(ctx, &pearl, `SELECT * FROM station WHERE station = 'USC00517948'`))
	assert.Nil(t, pearl.Latitude)
	assert.Nil(t, pearl.Longitude)
	assert.Nil(t, pearl.Elevation)

	var m types.Measurement
	require.NoError(t, conn.GetContext(ctx, &m, `SELECT * FROM measurement WHERE station = 'USC00519397' AND date = '2010-01-02'`))
	assert.Nil(t, m.Prcp)
	require.NotNil(t, m.Tobs)
	assert.Equal(t, 63.0, *m.Tobs)
}

func TestLoad_columnOrderAndBOM(t *testing.T) {
	conn := testutil.NewDB(t)

	stations := "\ufeffname,station,elevation,latitude,longitude,extra\nWAIKIKI,USC1,3,21.2,-157.8,x\n"
	measurements := "date,tobs,station,prcp\n2017-08-23,81,USC1,0\n"

	counts, err := Load(context.Background(), conn, strings.NewReader(stations), strings.NewReader(measurements))
	require.NoError(t, err)
	assert.Equal(t, Counts{Stations: 1, Measurements: 1}, counts)
}

func TestLoad_rejectsBadRows(t *testing.T) {
	tests := []struct {
		name         string
		stations     string
		measurements string
		wantFile     string
		wantLine     int
		wantMsg      string
	}{
		{
			name:         "missing column",
			stations:     "station,name,latitude,longitude\nUSC1,A,1,2\n",
			measurements: measurementsCSV,
			wantFile:     "stations",
			wantLine:     1,
			wantMsg:      `missing column "elevation"`,
		},
		{
			name:         "empty stations file",
			stations:     "",
			measurements: measurementsCSV,
			wantFile:     "stations",
			wantLine:     1,
			wantMsg:      "missing header row",
		},
		{
			name:         "bad latitude",
			stations:     "station,name,latitude,longitude,elevation\nUSC1,A,1,2,3\nUSC2,B,north,2,3\n",
			measurements: measurementsCSV,
			wantFile:     "stations",
			wantLine:     3,
			wantMsg:      `invalid latitude "north"`,
		},
		{
			name:         "bad date",
			stations:     stationsCSV,
			measurements: "station,date,prcp,tobs\nUSC00519397,2010-01-01,0,65\nUSC00519397,1/2/2010,0,65\n",
			wantFile:     "measurements",
			wantLine:     3,
			wantMsg:      `date "1/2/2010" is not YYYY-MM-DD`,
		},
		{
			name:         "bad tobs",
			stations:     stationsCSV,
			measurements: "station,date,prcp,tobs\nUSC00519397,2010-01-01,0,warm\n",
			wantFile:     "measurements",
			wantLine:     2,
			wantMsg:      `invalid tobs "warm"`,
		},
		{
			name:         "non-finite prcp",
			stations:     stationsCSV,
			measurements: "station,date,prcp,tobs\nUSC00519397,2010-01-01,0,65\nUSC00519397,2017-08-23,Inf,70\n",
			wantFile:     "measurements",
			wantLine:     3,
			wantMsg:      `invalid prcp "Inf"`,
		},
		{
			name:         "nan tobs",
			stations:     stationsCSV,
			measurements: "station,date,prcp,tobs\nUSC00519397,2017-08-23,0.1,NaN\n",
			wantFile:     "measurements",
			wantLine:     2,
			wantMsg:      `invalid tobs "NaN"`,
		},
		{
			name:         "infinite elevation",
			stations:     "station,name,latitude,longitude,elevation\nUSC1,A,1,2,-Inf\n",
			measurements: measurementsCSV,
			wantFile:     "stations",
			wantLine:     2,
			wantMsg:      `invalid elevation "-Inf"`,
		},
		{
			name:         "empty station code",
			stations:     stationsCSV,
			measurements: "station,date,prcp,tobs\n,2010-01-01,0,65\n",
			wantFile:     "measurements",
			wantLine:     2,
			wantMsg:      "empty station code",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := testutil.NewDB(t)

			_, err := Load(context.Background(), conn, strings.NewReader(tt.stations), strings.NewReader(tt.measurements))
			require.Error(t, err)

			var lineErr *LineError
			require.True(t, errors.As(err, &lineErr), "error %v is not a *LineError", err)
			assert.Equal(t, tt.wantFile, lineErr.File)
			assert.Equal(t, tt.wantLine, lineErr.Line)
			assert.Contains(t, err.Error(), tt.wantMsg)

			// Nothing from a failed load is committed.
			var n int
			require.NoError(t, conn.Get(&n, `SELECT COUNT(*) FROM station`))
			assert.Zero(t, n)
		})
	}
}

func TestLoad_unknownStationViolatesForeignKey(t *testing.T) {
	ctx := context.Background()
	cfg := config.Config{
		Driver:       config.DriverSQLite,
		Path:         filepath.Join(t.TempDir(), "climate.sqlite"),
		MaxOpenConns: 1,
	}
	conn, err := db.Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(conn) })
	require.NoError(t, schema.Run(ctx, conn))

	_, err = Load(ctx, conn,
		strings.NewReader(stationsCSV),
		strings.NewReader("station,date,prcp,tobs\nUSC99999999,2010-01-01,0,65\n"),
	)
	require.Error(t, err)

	var lineErr *LineError
	require.True(t, errors.As(err, &lineErr))
	assert.Equal(t, 2, lineErr.Line)
}
