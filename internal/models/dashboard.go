package models

// Dashboard aggregates claim counters for the landing page
type Dashboard struct {
	TotalClaims int            `json:"total_claims"`
	ByStatus    map[string]int `json:"by_status"`
	ByClaimType map[string]int `json:"by_claim_type"`
	Trackers    int            `json:"trackers"`
}

// DashboardFilter narrows the dashboard to a period and center
type DashboardFilter struct {
	DateFrom          string
	DateTo            string
	DistributorCenter string
}
