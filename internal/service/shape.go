package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/iliyamo/busbooking/internal/model"
)

// shapeReservation turns a raw booking form into the stored shape for its
// category. Exactly one Details variant is set. Status and ownership are
// left to the caller.
func shapeReservation(f model.ReservationForm) (model.Reservation, error) {
	cat, err := model.ParseCategory(f.ServiceCategory)
	if err != nil {
		return model.Reservation{}, invalid("service_category", "unknown category")
	}
	r := model.Reservation{
		Origin:         strings.TrimSpace(f.Origin),
		OriginURL:      strings.TrimSpace(f.OriginURL),
		DepartureTime:  strings.TrimSpace(f.DepartureTime),
		NeedsPickup:    f.NeedsPickup,
		DestinationURL: strings.TrimSpace(f.DestinationURL),
		Category:       cat,
		CapacityNeeded: coerceInt(f.Capacity),
		Comments:       strings.TrimSpace(f.Comments),
	}
	if f.NeedsPickup {
		r.PickupLocations = strings.TrimSpace(f.PickupLocations)
	}

	switch cat {
	case model.CategoryInternational:
		r.Date = strings.TrimSpace(f.DepartureDate)
		if r.Date == "" {
			r.Date = model.DatePending
		}
		r.Destination = strings.TrimSpace(f.TripDescription)
		r.Details = model.InternationalDetails{
			Country:      strings.TrimSpace(f.Country),
			ReturnDate:   strings.TrimSpace(f.ReturnDate),
			TripDuration: coerceInt(f.TripDuration),
		}
	case model.CategoryStudent:
		r.Date = formatDate(f.Day, f.Month, f.Year)
		r.Destination = strings.TrimSpace(f.Destination)
		r.Details = model.StudentDetails{
			InstitutionName: strings.TrimSpace(f.InstitutionName),
			ScheduleType:    strings.TrimSpace(f.ScheduleType),
		}
	default:
		r.Date = formatDate(f.Day, f.Month, f.Year)
		r.Destination = strings.TrimSpace(f.Destination)
		r.Details = model.SpecialDetails{}
	}
	return r, nil
}

// formatDate joins the day/month/year selectors as DD-MM-YYYY. Numeric day
// and month are zero padded; a missing part yields model.DatePending.
func formatDate(day, month, year string) string {
	day, month, year = strings.TrimSpace(day), strings.TrimSpace(month), strings.TrimSpace(year)
	if day == "" || month == "" || year == "" {
		return model.DatePending
	}
	return pad2(day) + "-" + pad2(month) + "-" + year
}

func pad2(s string) string {
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n < 100 {
		return fmt.Sprintf("%02d", n)
	}
	return s
}

// coerceInt parses a form number. Absent, unparsable, negative and values
// beyond a MySQL INT column become 0 instead of failing the submission.
func coerceInt(s string) int {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil || n < 0 {
		return 0
	}
	return int(n)
}
