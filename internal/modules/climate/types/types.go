package types

// Station is one row of the station table.
type Station struct {
	Station   string   `db:"station" json:"station"`
	Name      string   `db:"name" json:"name"`
	Latitude  *float64 `db:"latitude" json:"latitude"`
	Longitude *float64 `db:"longitude" json:"longitude"`
	Elevation *float64 `db:"elevation" json:"elevation"`
}

// Measurement is one row of the measurement table. Date is YYYY-MM-DD.
type Measurement struct {
	Station string   `db:"station" json:"station"`
	Date    string   `db:"date" json:"date"`
	Prcp    *float64 `db:"prcp" json:"prcp"`
	Tobs    *float64 `db:"tobs" json:"tobs"`
}

type Precipitation struct {
	Date          string   `db:"date" json:"date"`
	Precipitation *float64 `db:"prcp" json:"Precipitation"`
}

// StationActivity is a station together with its measurement count.
type StationActivity struct {
	Station          string   `db:"station" json:"station"`
	Name             string   `db:"name" json:"name"`
	Elevation        *float64 `db:"elevation" json:"elevation"`
	Latitude         *float64 `db:"latitude" json:"latitude"`
	Longitude        *float64 `db:"longitude" json:"longitude"`
	MeasurementCount int64    `db:"measurement_count" json:"measurementCount"`
}

type TemperatureObservation struct {
	Date        string   `db:"date" json:"date"`
	Temperature *float64 `db:"tobs" json:"temperature"`
}

type TemperatureSummary struct {
	Min float64 `json:"Min Temp"`
	Max float64 `json:"Max Temp"`
	Avg float64 `json:"Avg Temp"`
}

// TableCounts reports how many rows each table holds.
type TableCounts struct {
	Stations     int64 `db:"stations" json:"stations"`
	Measurements int64 `db:"measurements" json:"measurements"`
}
