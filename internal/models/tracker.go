package models

import "time"

// Tracker is one inbound or outbound movement through a distribution center
type Tracker struct {
	ID                int       `json:"id"`
	TrackingCode      string    `json:"tracking_code"`
	DistributorCenter string    `json:"distributor_center"`
	Status            string    `json:"status"`
	Type              string    `json:"type"`
	CreatedAt         time.Time `json:"created_at"`
}
