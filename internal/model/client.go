package model

import "strings"

// Client is the identity record of a repeat customer.  Clients do not hold
// accounts; they are recognised by their PIN, an 8 character code from
// [A-Z0-9] that is issued once and never changes.
//
// Fields:
//  ID        – primary key identifier.
//  PIN       – unique, immutable, upper-case code.
//  Name      – given name.
//  LastName1 – first surname.
//  LastName2 – second surname.
//  Phone     – contact phone, unique across clients at creation time.
//  Email     – contact email, unique across clients at creation time.
type Client struct {
	ID        uint64 `json:"id"`         // client.id
	PIN       string `json:"pin"`        // client.pin
	Name      string `json:"name"`       // client.name
	LastName1 string `json:"last_name1"` // client.last_name1
	LastName2 string `json:"last_name2"` // client.last_name2
	Phone     string `json:"phone"`      // client.phone
	Email     string `json:"email"`      // client.email
}

// Contact carries the mutable part of a Client as submitted with a
// reservation form.
type Contact struct {
	Name      string
	LastName1 string
	LastName2 string
	Phone     string
	Email     string
}

// Normalized trims every field and lower-cases the email.
func (c Contact) Normalized() Contact {
	return Contact{
		Name:      strings.TrimSpace(c.Name),
		LastName1: strings.TrimSpace(c.LastName1),
		LastName2: strings.TrimSpace(c.LastName2),
		Phone:     strings.TrimSpace(c.Phone),
		Email:     strings.ToLower(strings.TrimSpace(c.Email)),
	}
}

// Apply overwrites the mutable fields of the client with the contact data.
func (c *Client) Apply(ct Contact) {
	c.Name = ct.Name
	c.LastName1 = ct.LastName1
	c.LastName2 = ct.LastName2
	c.Phone = ct.Phone
	c.Email = ct.Email
}

// FullName joins name and surnames, skipping empty parts.
func (c Client) FullName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{c.Name, c.LastName1, c.LastName2} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// NormalizePIN trims and upper-cases a user supplied PIN.
func NormalizePIN(pin string) string {
	return strings.ToUpper(strings.TrimSpace(pin))
}
