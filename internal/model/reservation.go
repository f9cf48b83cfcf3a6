package model

import (
	"errors"
	"strings"
)

// Category is the service type of a reservation.  It decides which
// Details variant is active.
type Category string

const (
	CategoryStudent       Category = "Student Transport"
	CategorySpecial       Category = "Special Services"
	CategoryInternational Category = "International Trips"
)

// ErrUnknownCategory is returned by ParseCategory.
var ErrUnknownCategory = errors.New("unknown service category")

// ParseCategory accepts the canonical labels case-insensitively as well as
// the short form values used by the booking form (student, special,
// international).
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "student transport", "student", "estudiantes":
		return CategoryStudent, nil
	case "special services", "special", "especiales":
		return CategorySpecial, nil
	case "international trips", "international", "internacional":
		return CategoryInternational, nil
	}
	return "", ErrUnknownCategory
}

// Status is the lifecycle state of a reservation.  Values are stored as the
// Spanish labels used by the dashboard.
type Status string

const (
	StatusPending   Status = "Pendiente"
	StatusReviewed  Status = "Revisado"
	StatusApproved  Status = "Aprobada"
	StatusRejected  Status = "Rechazada"
	StatusCompleted Status = "Completada"
	StatusCancelled Status = "Cancelada"
)

// ErrUnknownStatus is returned by ParseStatus for labels outside the enum.
var ErrUnknownStatus = errors.New("unknown reservation status")

var statusAliases = map[string]Status{
	"pendiente":  StatusPending,
	"pending":    StatusPending,
	"revisado":   StatusReviewed,
	"reviewed":   StatusReviewed,
	"aprobada":   StatusApproved,
	"approved":   StatusApproved,
	"rechazada":  StatusRejected,
	"rejected":   StatusRejected,
	"completada": StatusCompleted,
	"completed":  StatusCompleted,
	"cancelada":  StatusCancelled,
	"cancelled":  StatusCancelled,
	"canceled":   StatusCancelled,
}

// ParseStatus maps a Spanish or English label onto the closed Status enum.
func ParseStatus(s string) (Status, error) {
	if st, ok := statusAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return st, nil
	}
	return "", ErrUnknownStatus
}

// Statuses lists every status in dashboard order.
func Statuses() []Status {
	return []Status{StatusPending, StatusReviewed, StatusApproved, StatusRejected, StatusCompleted, StatusCancelled}
}

// DatePending is stored in place of the trip date when the form did not
// provide a complete day/month/year selection.
const DatePending = "Pending"

// Details holds the category-specific part of a reservation.  Exactly one
// variant is attached to a Reservation, matching its Category.
type Details interface {
	Category() Category
}

// StudentDetails belongs to CategoryStudent.
type StudentDetails struct {
	InstitutionName string `json:"institution_name"`
	ScheduleType    string `json:"schedule_type"`
}

// InternationalDetails belongs to CategoryInternational.
type InternationalDetails struct {
	Country      string `json:"country"`
	ReturnDate   string `json:"return_date"`
	TripDuration int    `json:"trip_duration"`
}

// SpecialDetails belongs to CategorySpecial and carries no extra fields.
type SpecialDetails struct{}

func (StudentDetails) Category() Category       { return CategoryStudent }
func (InternationalDetails) Category() Category { return CategoryInternational }
func (SpecialDetails) Category() Category       { return CategorySpecial }

// Reservation is one transport request.  ClientID is nil for legacy rows
// created before clients were tracked.
//
// Fields:
//  Date        – DD-MM-YYYY departure date, the departure date field for
//                international trips, or DatePending.
//  Details     – category-specific variant; never nil on loaded rows.
//  CancelledAt – human-readable timestamp set when the client cancels.
type Reservation struct {
	ID              uint64   `json:"id"`
	ClientID        *uint64  `json:"client_id,omitempty"`
	Date            string   `json:"date"`
	Origin          string   `json:"origin"`
	OriginURL       string   `json:"origin_url,omitempty"`
	DepartureTime   string   `json:"departure_time"`
	NeedsPickup     bool     `json:"needs_pickup"`
	PickupLocations string   `json:"pickup_locations,omitempty"`
	Destination     string   `json:"destination"`
	DestinationURL  string   `json:"destination_url,omitempty"`
	Category        Category `json:"service_category"`
	CapacityNeeded  int      `json:"capacity_needed"`
	Comments        string   `json:"comments,omitempty"`
	Status          Status   `json:"status"`
	Details         Details  `json:"details"`
	CancelledAt     *string  `json:"cancelled_at,omitempty"`
}

// IsPending reports whether the client may still edit or cancel.
func (r Reservation) IsPending() bool { return r.Status == StatusPending }

// ReservationForm is the raw booking form as submitted by a client, before
// the category decides which fields are meaningful.  Numeric fields are kept
// as strings so that malformed input can be coerced instead of rejected.
type ReservationForm struct {
	ServiceCategory string
	Day             string
	Month           string
	Year            string
	Origin          string
	OriginURL       string
	DepartureTime   string
	NeedsPickup     bool
	PickupLocations string
	Destination     string
	DestinationURL  string
	Capacity        string
	Comments        string

	// Student Transport
	InstitutionName string
	ScheduleType    string

	// International Trips
	DepartureDate   string
	TripDescription string
	Country         string
	ReturnDate      string
	TripDuration    string
}
