package models

import "time"

// CapacityRecord venue_capacity 表记录，每个 (venue_id, zone_id) 仅一条
type CapacityRecord struct {
	VenueID          string    `json:"venueId"`
	ZoneID           string    `json:"zoneId"`
	CurrentOccupancy int       `json:"currentOccupancy"`
	MaxCapacity      int       `json:"maxCapacity"`
	UtilizationRate  float64   `json:"utilizationRate"`
	LastUpdated      time.Time `json:"lastUpdated"`
	UpdatedBySensor  string    `json:"updatedBySensor"`
}

// UtilizationRate 计算利用率，结果限制在 [0,100]
func UtilizationRate(occupancy, maxCapacity int) float64 {
	if maxCapacity <= 0 {
		return 100
	}
	rate := float64(occupancy) / float64(maxCapacity) * 100
	if rate > 100 {
		return 100
	}
	if rate < 0 {
		return 0
	}
	return rate
}
