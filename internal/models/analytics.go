package models

import "time"

// Event events 表中分析需要的字段
type Event struct {
	ID        string
	VenueID   *string
	StartDate time.Time
	EndDate   time.Time
}

// VenueAnalytics venue_analytics 表记录
type VenueAnalytics struct {
	EventID          string  `json:"eventId"`
	VenueID          string  `json:"venueId"`
	Date             string  `json:"date"`
	PeakOccupancy    int     `json:"peakOccupancy"`
	AverageOccupancy float64 `json:"averageOccupancy"`
	TotalCheckins    int     `json:"totalCheckins"`
	AverageDwellTime float64 `json:"averageDwellTime"`
}
