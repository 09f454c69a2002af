package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"climate-server/internal/modules/climate/repository"
	"climate-server/internal/modules/climate/types"
)

const (
	// DateLayout is how measurement dates are stored.
	DateLayout = "2006-01-02"
	// TrailingWindowDays is the length of the trailing window ending at the
	// most recent measurement date.
	TrailingWindowDays = 365
)

var (
	// ErrNoMeasurements is returned when a query needs the most recent date
	// or the most active station and the measurement table is empty.
	ErrNoMeasurements = errors.New("no measurements recorded")
	// ErrNoTemperatures is returned when a summary range selects no
	// temperature values.
	ErrNoTemperatures = errors.New("no temperature observations in range")
)

type Service struct {
	repository repository.ClimateRepository
}

func NewService(repository repository.ClimateRepository) *Service {
	return &Service{repository: repository}
}

// Precipitation returns every precipitation reading inside the trailing
// window, newest first. Rows from different stations on the same date are
// all kept.
func (s *Service) Precipitation(ctx context.Context) ([]types.Precipitation, error) {
	var out []types.Precipitation
	err := s.repository.ReadOnly(ctx, func(q repository.Queries) error {
		windowStart, err := trailingWindowStart(ctx, q)
		if err != nil {
			return err
		}
		out, err = q.PrecipitationAfter(ctx, windowStart)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Stations returns every station that has measurements, busiest first.
func (s *Service) Stations(ctx context.Context) ([]types.StationActivity, error) {
	var out []types.StationActivity
	err := s.repository.ReadOnly(ctx, func(q repository.Queries) error {
		var err error
		out, err = q.StationActivity(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TemperatureObservations returns the most active station's temperatures
// inside the trailing window. The window is global, not per station.
func (s *Service) TemperatureObservations(ctx context.Context) ([]types.TemperatureObservation, error) {
	var out []types.TemperatureObservation
	err := s.repository.ReadOnly(ctx, func(q repository.Queries) error {
		station, err := mostActiveStation(ctx, q)
		if err != nil {
			return err
		}
		windowStart, err := trailingWindowStart(ctx, q)
		if err != nil {
			return err
		}
		out, err = q.TemperaturesAfter(ctx, station, windowStart)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TemperatureSummary aggregates the most active station's temperatures with
// start <= date, and date < end when end is given. Neither bound is
// validated; both are compared to stored dates as strings.
func (s *Service) TemperatureSummary(ctx context.Context, start, end string) (types.TemperatureSummary, error) {
	var values []float64
	err := s.repository.ReadOnly(ctx, func(q repository.Queries) error {
		station, err := mostActiveStation(ctx, q)
		if err != nil {
			return err
		}
		values, err = q.TemperatureValues(ctx, station, start, end)
		return err
	})
	if err != nil {
		return types.TemperatureSummary{}, err
	}
	return Summarize(values)
}

// Summarize returns min, max and arithmetic mean of values. The mean is
// always within [Min, Max].
func Summarize(values []float64) (types.TemperatureSummary, error) {
	if len(values) == 0 {
		return types.TemperatureSummary{}, ErrNoTemperatures
	}
	out := types.TemperatureSummary{Min: values[0], Max: values[0]}
	var sum float64
	for _, v := range values {
		out.Min = min(out.Min, v)
		out.Max = max(out.Max, v)
		sum += v
	}
	// Rounding in the sum can land the mean just outside [Min, Max].
	out.Avg = min(max(sum/float64(len(values)), out.Min), out.Max)
	return out, nil
}

// TrailingWindowStart returns the exclusive lower bound of the trailing
// window ending at mostRecent.
func TrailingWindowStart(mostRecent string) (string, error) {
	t, err := time.Parse(DateLayout, mostRecent)
	if err != nil {
		return "", fmt.Errorf("parse most recent date %q: %w", mostRecent, err)
	}
	return t.AddDate(0, 0, -TrailingWindowDays).Format(DateLayout), nil
}

func trailingWindowStart(ctx context.Context, q repository.Queries) (string, error) {
	recent, ok, err := q.MostRecentDate(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNoMeasurements
	}
	return TrailingWindowStart(recent)
}

func mostActiveStation(ctx context.Context, q repository.Queries) (string, error) {
	station, ok, err := q.MostActiveStation(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNoMeasurements
	}
	return station, nil
}
