// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

// Wire types for the PMS cloud API. The provider wraps every payload in a
// success envelope and dates are ISO 8601 strings; amounts come back as
// JSON numbers.

package models

import (
	"github.com/goccy/go-json"
)

// Envelope is the provider's standard response wrapper. Some endpoints
// omit the success flag entirely; absence means success, so decoders
// must start from a true default.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Count   int             `json:"count,omitempty"`
	Total   int             `json:"total,omitempty"`
}

// TokenResponse is the OAuth token endpoint payload for both the
// authorization_code and refresh_token grants.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
}

// UserInfo is returned by the /userinfo endpoint and doubles as the
// connection test payload.
type UserInfo struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Hotel is a property as the provider reports it.
type Hotel struct {
	PropertyID   string `json:"propertyID"`
	PropertyName string `json:"propertyName"`
	Timezone     string `json:"propertyTimezone"`
	Currency     string `json:"propertyCurrency"`
	City         string `json:"propertyCity,omitempty"`
	Country      string `json:"propertyCountry,omitempty"`
}

// RoomType is a bookable room category.
type RoomType struct {
	RoomTypeID      string  `json:"roomTypeID"`
	PropertyID      string  `json:"propertyID"`
	RoomTypeName    string  `json:"roomTypeName"`
	RoomTypeNameS   string  `json:"roomTypeNameShort,omitempty"`
	MaxGuests       int     `json:"maxGuests"`
	UnitsAvailable  int     `json:"roomTypeUnits"`
	IsPrivate       bool    `json:"isPrivate"`
	BaseRate        float64 `json:"roomRate,omitempty"`
	RoomTypeDetails string  `json:"roomTypeDescription,omitempty"`
}

// Room is a physical unit of a room type.
type Room struct {
	RoomID     string `json:"roomID"`
	RoomTypeID string `json:"roomTypeID"`
	PropertyID string `json:"propertyID"`
	RoomName   string `json:"roomName"`
	RoomBlock  string `json:"roomBlocked,omitempty"`
}

// Guest is a guest profile.
type Guest struct {
	GuestID    string `json:"guestID"`
	PropertyID string `json:"propertyID"`
	FirstName  string `json:"guestFirstName"`
	LastName   string `json:"guestLastName"`
	Email      string `json:"guestEmail,omitempty"`
	Phone      string `json:"guestPhone,omitempty"`
	Country    string `json:"guestCountry,omitempty"`
	Address    string `json:"guestAddress,omitempty"`
	City       string `json:"guestCity,omitempty"`
	Zip        string `json:"guestZip,omitempty"`
}

// ReservationRoom is one room assignment inside a reservation.
type ReservationRoom struct {
	RoomTypeID string  `json:"roomTypeID"`
	RoomID     string  `json:"roomID,omitempty"`
	Adults     int     `json:"adults"`
	Children   int     `json:"children"`
	DailyRate  float64 `json:"dailyRate,omitempty"`
}

// Reservation is a booking with its room assignments.
type Reservation struct {
	ReservationID string            `json:"reservationID"`
	PropertyID    string            `json:"propertyID"`
	GuestID       string            `json:"guestID"`
	Status        string            `json:"status"`
	StartDate     string            `json:"startDate"`
	EndDate       string            `json:"endDate"`
	Balance       float64           `json:"balance"`
	Total         float64           `json:"total,omitempty"`
	Source        string            `json:"sourceName,omitempty"`
	ThirdPartyID  string            `json:"thirdPartyIdentifier,omitempty"`
	Rooms         []ReservationRoom `json:"rooms,omitempty"`
	DateCreated   string            `json:"dateCreated,omitempty"`
	DateModified  string            `json:"dateModified,omitempty"`
}

// Payment is a payment transaction against a reservation.
type Payment struct {
	TransactionID string  `json:"transactionID"`
	PropertyID    string  `json:"propertyID"`
	ReservationID string  `json:"reservationID"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency,omitempty"`
	Type          string  `json:"type,omitempty"`
	CardType      string  `json:"cardType,omitempty"`
	Description   string  `json:"description,omitempty"`
	TransactionAt string  `json:"transactionDateTime,omitempty"`
}

// Rate is a nightly rate quote for a room type over an interval.
type Rate struct {
	RoomTypeID string  `json:"roomTypeID"`
	PropertyID string  `json:"propertyID"`
	Date       string  `json:"date"`
	Rate       float64 `json:"rate"`
	MinStay    int     `json:"minLos,omitempty"`
	MaxStay    int     `json:"maxLos,omitempty"`
	Closed     bool    `json:"closed,omitempty"`
}

// HousekeepingStatus is the housekeeping condition of one room.
type HousekeepingStatus struct {
	RoomID        string `json:"roomID"`
	PropertyID    string `json:"propertyID"`
	RoomCondition string `json:"roomCondition"`
	FrontdeskNote string `json:"doNotDisturb,omitempty"`
}

// Dashboard is the property daily summary.
type Dashboard struct {
	PropertyID   string  `json:"propertyID"`
	ArrivalCount int     `json:"arrivals"`
	Departures   int     `json:"departures"`
	InHouse      int     `json:"inHouse"`
	Occupancy    float64 `json:"occupancyRate,omitempty"`
}

// WebhookSubscription is a provider-side webhook registration.
type WebhookSubscription struct {
	SubscriptionID string `json:"subscriptionID"`
	PropertyID     string `json:"propertyID"`
	Object         string `json:"object"`
	Action         string `json:"action"`
	EndpointURL    string `json:"endpointUrl"`
}

// WebhookEvent is the body the provider posts to a webhook endpoint.
type WebhookEvent struct {
	Version    string          `json:"version,omitempty"`
	Timestamp  float64         `json:"timestamp"`
	Object     string          `json:"object"`
	Action     string          `json:"action"`
	PropertyID string          `json:"propertyID"`
	Payload    json.RawMessage `json:"-"`

	// Common object identifiers; at most one is set per event.
	ReservationID string `json:"reservationID,omitempty"`
	GuestID       string `json:"guestID,omitempty"`
	TransactionID string `json:"transactionID,omitempty"`
	RoomID        string `json:"roomID,omitempty"`
}

// EventType reconstructs the "object/action" event type string.
func (e *WebhookEvent) EventType() string {
	return e.Object + "/" + e.Action
}

// ObjectID returns the identifier of the affected object, preferring the
// most specific one present.
func (e *WebhookEvent) ObjectID() string {
	switch {
	case e.ReservationID != "":
		return e.ReservationID
	case e.TransactionID != "":
		return e.TransactionID
	case e.GuestID != "":
		return e.GuestID
	case e.RoomID != "":
		return e.RoomID
	}
	return ""
}

// Record store kinds for synced provider entities. Records are keyed by
// their provider identifiers, which are unique per account deployment.
const (
	KindRoomType    = "room_type"
	KindRoom        = "room"
	KindGuest       = "guest"
	KindReservation = "reservation"
	KindPayment     = "payment"
)
