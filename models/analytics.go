package models

// GroupCount is a single bucket of a $group aggregation
type GroupCount struct {
	ID    string `json:"_id" bson:"_id"`
	Count int64  `json:"count" bson:"count"`
}

// FirStats holds the headline counters of the analytics endpoint
type FirStats struct {
	Total    int64        `json:"total"`
	Pending  int64        `json:"pending"`
	Resolved int64        `json:"resolved"`
	ByCity   []GroupCount `json:"byCity"`
	ByType   []GroupCount `json:"byType"`
}

// StatusDistribution counts FIRs in each of the five statuses
type StatusDistribution struct {
	Pending    int64 `json:"pending"`
	Accepted   int64 `json:"accepted"`
	InProgress int64 `json:"inProgress"`
	Resolved   int64 `json:"resolved"`
	Rejected   int64 `json:"rejected"`
}

// FirLocation is a map point for a FIR that carries coordinates
type FirLocation struct {
	Latitude     float64      `json:"latitude"`
	Longitude    float64      `json:"longitude"`
	IncidentType IncidentType `json:"incidentType"`
	Description  string       `json:"description"`
}

// Analytics is the response body of GET /api/firs/analytics
type Analytics struct {
	Success            bool               `json:"success"`
	Stats              FirStats           `json:"stats"`
	StatusDistribution StatusDistribution `json:"statusDistribution"`
	Locations          []FirLocation      `json:"locations"`
}

// AdminStats is the response body of GET /api/admin/stats
type AdminStats struct {
	Citizens        int64 `json:"citizens"`
	Officers        int64 `json:"officers"`
	PendingOfficers int64 `json:"pendingOfficers"`
	Firs            int64 `json:"firs"`
}
