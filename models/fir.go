package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IncidentType is the category a FIR is filed under
type IncidentType string

// Incident categories accepted by the portal
const (
	IncidentTheft        IncidentType = "Theft"
	IncidentAssault      IncidentType = "Assault"
	IncidentFraud        IncidentType = "Fraud"
	IncidentCybercrime   IncidentType = "Cybercrime"
	IncidentLostProperty IncidentType = "Lost Property"
	IncidentOther        IncidentType = "Other"
)

// IncidentTypes lists every valid incident category
var IncidentTypes = []IncidentType{
	IncidentTheft,
	IncidentAssault,
	IncidentFraud,
	IncidentCybercrime,
	IncidentLostProperty,
	IncidentOther,
}

// Valid reports whether t is a known category
func (t IncidentType) Valid() bool {
	for _, it := range IncidentTypes {
		if it == t {
			return true
		}
	}
	return false
}

// FirStatus is the investigative state of a FIR
type FirStatus string

// Statuses a FIR can be in. Pending is the initial state.
const (
	StatusPending    FirStatus = "Pending"
	StatusAccepted   FirStatus = "Accepted"
	StatusInProgress FirStatus = "In Progress"
	StatusResolved   FirStatus = "Resolved"
	StatusRejected   FirStatus = "Rejected"
)

// Statuses lists every valid status in display order
var Statuses = []FirStatus{
	StatusPending,
	StatusAccepted,
	StatusInProgress,
	StatusResolved,
	StatusRejected,
}

// statusTransitions is only consulted when strict transitions are enabled.
// Resolved and Rejected are final.
var statusTransitions = map[FirStatus][]FirStatus{
	StatusPending:    {StatusAccepted, StatusInProgress, StatusRejected},
	StatusAccepted:   {StatusInProgress, StatusResolved, StatusRejected},
	StatusInProgress: {StatusResolved, StatusRejected},
	StatusResolved:   {},
	StatusRejected:   {},
}

// Valid reports whether s is a known status
func (s FirStatus) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// CanTransition reports whether the strict transition table allows s -> to
func (s FirStatus) CanTransition(to FirStatus) bool {
	for _, next := range statusTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// InvestigationLog is a single case-diary entry written by staff
type InvestigationLog struct {
	ID          primitive.ObjectID `json:"_id" bson:"_id"`
	Entry       string             `json:"entry" bson:"entry"`
	OfficerName string             `json:"officerName" bson:"officerName"`
	Timestamp   time.Time          `json:"timestamp" bson:"timestamp"`
}

// Message is a single entry of the complainant/staff thread on a FIR
type Message struct {
	ID          primitive.ObjectID `json:"_id" bson:"_id"`
	Sender      primitive.ObjectID `json:"sender" bson:"sender"`
	SenderModel string             `json:"senderModel" bson:"senderModel"`
	SenderName  string             `json:"senderName" bson:"senderName"`
	Role        Role               `json:"role" bson:"role"`
	Message     string             `json:"message" bson:"message"`
	Timestamp   time.Time          `json:"timestamp" bson:"timestamp"`
}

// Fir holds the structure for the firs collection in mongo
type Fir struct {
	ID                primitive.ObjectID  `json:"_id" bson:"_id,omitempty"`
	Complainant       *primitive.ObjectID `json:"complainant,omitempty" bson:"complainant,omitempty"`
	IsAnonymous       bool                `json:"isAnonymous" bson:"isAnonymous"`
	TrackingID        string              `json:"anonymousRefId,omitempty" bson:"anonymousRefId,omitempty"`
	AccusedName       string              `json:"accusedName,omitempty" bson:"accusedName,omitempty"`
	IncidentType      IncidentType        `json:"incidentType" bson:"incidentType"`
	Description       string              `json:"description" bson:"description"`
	Evidence          []string            `json:"evidence" bson:"evidence"`
	DateOfIncident    time.Time           `json:"dateOfIncident" bson:"dateOfIncident"`
	TimeOfIncident    string              `json:"timeOfIncident,omitempty" bson:"timeOfIncident,omitempty"`
	Address           string              `json:"address" bson:"address"`
	City              string              `json:"city" bson:"city"`
	State             string              `json:"state" bson:"state"`
	Pincode           string              `json:"pincode" bson:"pincode"`
	Latitude          *float64            `json:"latitude,omitempty" bson:"latitude,omitempty"`
	Longitude         *float64            `json:"longitude,omitempty" bson:"longitude,omitempty"`
	Status            FirStatus           `json:"status" bson:"status"`
	AssignedOfficer   *primitive.ObjectID `json:"assignedOfficer,omitempty" bson:"assignedOfficer,omitempty"`
	InvestigationLogs []InvestigationLog  `json:"investigationLogs" bson:"investigationLogs"`
	Messages          []Message           `json:"messages" bson:"messages"`
	CreatedAt         time.Time           `json:"createdAt" bson:"createdAt"`
	UpdatedAt         time.Time           `json:"updatedAt" bson:"updatedAt"`
}

// FirView is a FIR with its complainant resolved to a contact projection.
// Complainant is nil for anonymous FIRs and for complainants that no longer exist.
type FirView struct {
	Fir
	Complainant *Complainant `json:"complainant"`
}

// FirFilter narrows FIR listings. Zero fields are ignored and the rest are ANDed.
type FirFilter struct {
	City          string
	State         string
	IncidentType  IncidentType
	Status        FirStatus
	Complainant   *primitive.ObjectID
	CreatedBefore *time.Time
}

// Matches reports whether fir satisfies every set field of f. City and state
// are case-insensitive substring matches, the rest are exact.
func (f FirFilter) Matches(fir Fir) bool {
	if f.City != "" && !containsFold(fir.City, f.City) {
		return false
	}
	if f.State != "" && !containsFold(fir.State, f.State) {
		return false
	}
	if f.IncidentType != "" && fir.IncidentType != f.IncidentType {
		return false
	}
	if f.Status != "" && fir.Status != f.Status {
		return false
	}
	if f.Complainant != nil && (fir.Complainant == nil || *fir.Complainant != *f.Complainant) {
		return false
	}
	if f.CreatedBefore != nil && !fir.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
