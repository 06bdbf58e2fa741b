package domain

import "math"

const (
	DefaultBaseFare  = 150.0
	DefaultPerKmRate = 100.0
)

// FareModel prices a ride from its great-circle distance.
type FareModel struct {
	BaseFare  float64
	PerKmRate float64
}

// DefaultFareModel returns the standard base + per-kilometer model.
func DefaultFareModel() FareModel {
	return FareModel{BaseFare: DefaultBaseFare, PerKmRate: DefaultPerKmRate}
}

// Price returns round(base + perKm * distance) in fare units.
func (m FareModel) Price(pickup, destination Coordinate) float64 {
	return math.Round(m.BaseFare + m.PerKmRate*HaversineKm(pickup, destination))
}
