package handler

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/busbooking/internal/model"
	"github.com/iliyamo/busbooking/internal/service"
)

// flexString binds a JSON string, number or bool as text, so numeric and
// checkbox inputs reach the service untouched whether they come from a form
// post or a script.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		*f = ""
	case float64:
		*f = flexString(strconv.FormatFloat(t, 'f', -1, 64))
	case bool:
		*f = flexString(strconv.FormatBool(t))
	default:
		*f = ""
	}
	return nil
}

func (f flexString) truthy() bool {
	switch strings.ToLower(strings.TrimSpace(string(f))) {
	case "1", "true", "on", "yes", "si", "sí":
		return true
	}
	return false
}

// contactReq is the client part of the booking form.
type contactReq struct {
	Name      string `json:"name" form:"name"`
	LastName1 string `json:"last_name1" form:"last_name1"`
	LastName2 string `json:"last_name2" form:"last_name2"`
	Phone     string `json:"phone" form:"phone"`
	Email     string `json:"email" form:"email"`
}

func (r contactReq) contact() model.Contact {
	return model.Contact{
		Name:      r.Name,
		LastName1: r.LastName1,
		LastName2: r.LastName2,
		Phone:     r.Phone,
		Email:     r.Email,
	}
}

// formReq is the reservation part of the booking form.
type formReq struct {
	ServiceCategory string     `json:"service_category" form:"service_category"`
	Day             flexString `json:"day" form:"day"`
	Month           flexString `json:"month" form:"month"`
	Year            flexString `json:"year" form:"year"`
	Origin          string     `json:"origin" form:"origin"`
	OriginURL       string     `json:"origin_url" form:"origin_url"`
	DepartureTime   string     `json:"departure_time" form:"departure_time"`
	NeedsPickup     flexString `json:"needs_pickup" form:"needs_pickup"`
	PickupLocations string     `json:"pickup_locations" form:"pickup_locations"`
	Destination     string     `json:"destination" form:"destination"`
	DestinationURL  string     `json:"destination_url" form:"destination_url"`
	Capacity        flexString `json:"capacity" form:"capacity"`
	Comments        string     `json:"comments" form:"comments"`
	InstitutionName string     `json:"institution_name" form:"institution_name"`
	ScheduleType    string     `json:"schedule_type" form:"schedule_type"`
	DepartureDate   string     `json:"departure_date" form:"departure_date"`
	TripDescription string     `json:"trip_description" form:"trip_description"`
	Country         string     `json:"country" form:"country"`
	ReturnDate      string     `json:"return_date" form:"return_date"`
	TripDuration    flexString `json:"trip_duration" form:"trip_duration"`
}

func (r formReq) form() model.ReservationForm {
	return model.ReservationForm{
		ServiceCategory: r.ServiceCategory,
		Day:             string(r.Day),
		Month:           string(r.Month),
		Year:            string(r.Year),
		Origin:          r.Origin,
		OriginURL:       r.OriginURL,
		DepartureTime:   r.DepartureTime,
		NeedsPickup:     r.NeedsPickup.truthy(),
		PickupLocations: r.PickupLocations,
		Destination:     r.Destination,
		DestinationURL:  r.DestinationURL,
		Capacity:        string(r.Capacity),
		Comments:        r.Comments,
		InstitutionName: r.InstitutionName,
		ScheduleType:    r.ScheduleType,
		DepartureDate:   r.DepartureDate,
		TripDescription: r.TripDescription,
		Country:         r.Country,
		ReturnDate:      r.ReturnDate,
		TripDuration:    string(r.TripDuration),
	}
}

type submitReq struct {
	PIN string `json:"pin" form:"pin"`
	contactReq
	formReq
}

type editReq struct {
	PIN string `json:"pin" form:"pin"`
	formReq
}

type pinReq struct {
	PIN string `json:"pin" form:"pin" query:"pin"`
}

type recoverReq struct {
	Phone string `json:"phone" form:"phone"`
	Email string `json:"email" form:"email"`
}

type registerReq struct {
	Username        string `json:"username" form:"username"`
	Email           string `json:"email" form:"email"`
	Password        string `json:"password" form:"password"`
	ConfirmPassword string `json:"confirm_password" form:"confirm_password"`
}

func (r registerReq) input() service.RegisterInput {
	return service.RegisterInput(r)
}

type loginReq struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token" form:"refresh_token"`
}

// issuedToken is one half of a session pair as returned to API clients.
type issuedToken struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type sessionResp struct {
	User    model.User  `json:"user"`
	Access  issuedToken `json:"access"`
	Refresh issuedToken `json:"refresh"`
}
