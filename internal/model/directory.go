package model

// Collaborator is a driver or vehicle owner working with the company.  A
// collaborator owns zero or more buses; deleting the collaborator deletes
// the buses.
type Collaborator struct {
	ID          uint64 `json:"id"`
	Photo       string `json:"photo,omitempty"`
	Name        string `json:"name"`
	LastName1   string `json:"last_name1"`
	LastName2   string `json:"last_name2"`
	PhoneFixed  string `json:"phone_fixed,omitempty"`
	Mobile      string `json:"mobile"`
	Email       string `json:"email"`
	LicenseType string `json:"license_type"`
	Ownership   string `json:"ownership"`
	Buses       []Bus  `json:"buses"`
}

// Bus is a vehicle registered under a collaborator.
type Bus struct {
	ID             uint64 `json:"id"`
	CollaboratorID uint64 `json:"collaborator_id"`
	Brand          string `json:"brand"`
	Plate          string `json:"plate"`
	Year           int    `json:"year"`
	Capacity       int    `json:"capacity"`
	ServiceType    string `json:"service_type"`
}

// OwnershipSummary aggregates the fleet of one collaborator.
type OwnershipSummary struct {
	CollaboratorID uint64 `json:"collaborator_id"`
	Name           string `json:"name"`
	Ownership      string `json:"ownership"`
	Buses          int    `json:"buses"`
	TotalCapacity  int    `json:"total_capacity"`
}

// CompanyProfile is the singleton "about us" record shown on the home page.
type CompanyProfile struct {
	ID            uint64 `json:"id"`
	Logo          string `json:"logo,omitempty"`
	Mission       string `json:"mission"`
	Vision        string `json:"vision"`
	PhoneAdmin    string `json:"phone_admin"`
	MobileAdmin   string `json:"mobile_admin"`
	MobileService string `json:"mobile_service"`
	Email         string `json:"email"`
	Description   string `json:"description"`
}

// DashboardStats are the counters shown at the top of the dashboard.
type DashboardStats struct {
	Reservations int `json:"reservations"`
	Pending      int `json:"pending"`
	Clients      int `json:"clients"`
	Users        int `json:"users"`
	Colabs       int `json:"colabs"`
	Buses        int `json:"buses"`
}
