// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

package pms

import (
	"context"
	"net/url"
	"strconv"

	"github.com/stayware/cloudsync/internal/models"
)

// Typed wrappers over Client.Do for the provider endpoints CloudSync uses.
// Endpoint names match the provider's API operations.

// GetUserInfo fetches the authenticated user's profile. Used as the
// connection test during account setup.
func (c *Client) GetUserInfo(ctx context.Context, accountID string) (*models.UserInfo, error) {
	var info models.UserInfo
	if err := c.Get(ctx, accountID, "userinfo", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetHotels lists every property the account can access.
func (c *Client) GetHotels(ctx context.Context, accountID string) ([]models.Hotel, error) {
	var hotels []models.Hotel
	if err := c.Get(ctx, accountID, "getHotels", nil, &hotels); err != nil {
		return nil, err
	}
	return hotels, nil
}

// GetHotelDetails fetches one property.
func (c *Client) GetHotelDetails(ctx context.Context, accountID, propertyID string) (*models.Hotel, error) {
	params := url.Values{"propertyID": {propertyID}}
	var hotel models.Hotel
	if err := c.Get(ctx, accountID, "getHotelDetails", params, &hotel); err != nil {
		return nil, err
	}
	return &hotel, nil
}

// ReservationQuery filters getReservations.
type ReservationQuery struct {
	PropertyID    string
	Status        string
	ModifiedSince string
	CheckInFrom   string
	CheckInTo     string
	PageNumber    int
	PageSize      int
}

func (q ReservationQuery) values() url.Values {
	params := url.Values{}
	if q.PropertyID != "" {
		params.Set("propertyID", q.PropertyID)
	}
	if q.Status != "" {
		params.Set("status", q.Status)
	}
	if q.ModifiedSince != "" {
		params.Set("modifiedSince", q.ModifiedSince)
	}
	if q.CheckInFrom != "" {
		params.Set("checkInFrom", q.CheckInFrom)
	}
	if q.CheckInTo != "" {
		params.Set("checkInTo", q.CheckInTo)
	}
	if q.PageNumber > 0 {
		params.Set("pageNumber", strconv.Itoa(q.PageNumber))
	}
	if q.PageSize > 0 {
		params.Set("pageSize", strconv.Itoa(q.PageSize))
	}
	return params
}

// GetReservations lists reservations matching the query.
func (c *Client) GetReservations(ctx context.Context, accountID string, q ReservationQuery) ([]models.Reservation, error) {
	var reservations []models.Reservation
	if err := c.Get(ctx, accountID, "getReservations", q.values(), &reservations); err != nil {
		return nil, err
	}
	return reservations, nil
}

// GetReservation fetches one reservation with its room assignments.
func (c *Client) GetReservation(ctx context.Context, accountID, propertyID, reservationID string) (*models.Reservation, error) {
	params := url.Values{
		"propertyID":    {propertyID},
		"reservationID": {reservationID},
	}
	var reservation models.Reservation
	if err := c.Get(ctx, accountID, "getReservation", params, &reservation); err != nil {
		return nil, err
	}
	return &reservation, nil
}

// PostReservation creates a reservation on the provider.
func (c *Client) PostReservation(ctx context.Context, accountID string, params url.Values) (*models.Reservation, error) {
	var reservation models.Reservation
	if err := c.Post(ctx, accountID, "postReservation", params, &reservation); err != nil {
		return nil, err
	}
	return &reservation, nil
}

// PutReservation updates a reservation on the provider.
func (c *Client) PutReservation(ctx context.Context, accountID string, params url.Values) error {
	return c.Put(ctx, accountID, "putReservation", params, nil)
}

// GetGuests lists guests for a property, optionally filtered by
// modification time.
func (c *Client) GetGuests(ctx context.Context, accountID, propertyID, modifiedSince string, pageNumber, pageSize int) ([]models.Guest, error) {
	params := url.Values{"propertyID": {propertyID}}
	if modifiedSince != "" {
		params.Set("modifiedSince", modifiedSince)
	}
	if pageNumber > 0 {
		params.Set("pageNumber", strconv.Itoa(pageNumber))
	}
	if pageSize > 0 {
		params.Set("pageSize", strconv.Itoa(pageSize))
	}

	var guests []models.Guest
	if err := c.Get(ctx, accountID, "getGuestList", params, &guests); err != nil {
		return nil, err
	}
	return guests, nil
}

// GetGuest fetches one guest profile.
func (c *Client) GetGuest(ctx context.Context, accountID, propertyID, guestID string) (*models.Guest, error) {
	params := url.Values{
		"propertyID": {propertyID},
		"guestID":    {guestID},
	}
	var guest models.Guest
	if err := c.Get(ctx, accountID, "getGuest", params, &guest); err != nil {
		return nil, err
	}
	return &guest, nil
}

// PostGuest creates a guest profile on the provider.
func (c *Client) PostGuest(ctx context.Context, accountID string, params url.Values) (*models.Guest, error) {
	var guest models.Guest
	if err := c.Post(ctx, accountID, "postGuest", params, &guest); err != nil {
		return nil, err
	}
	return &guest, nil
}

// PutGuest updates a guest profile on the provider.
func (c *Client) PutGuest(ctx context.Context, accountID string, params url.Values) error {
	return c.Put(ctx, accountID, "putGuest", params, nil)
}

// GetRoomTypes lists the property's room categories.
func (c *Client) GetRoomTypes(ctx context.Context, accountID, propertyID string) ([]models.RoomType, error) {
	params := url.Values{"propertyID": {propertyID}}
	var roomTypes []models.RoomType
	if err := c.Get(ctx, accountID, "getRoomTypes", params, &roomTypes); err != nil {
		return nil, err
	}
	return roomTypes, nil
}

// GetRooms lists the property's physical rooms.
func (c *Client) GetRooms(ctx context.Context, accountID, propertyID string) ([]models.Room, error) {
	params := url.Values{"propertyID": {propertyID}}
	var rooms []models.Room
	if err := c.Get(ctx, accountID, "getRooms", params, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// GetRate fetches nightly rates for a room type over a date range.
func (c *Client) GetRate(ctx context.Context, accountID, propertyID, roomTypeID, startDate, endDate string) ([]models.Rate, error) {
	params := url.Values{
		"propertyID": {propertyID},
		"roomTypeID": {roomTypeID},
		"startDate":  {startDate},
		"endDate":    {endDate},
	}
	var rates []models.Rate
	if err := c.Get(ctx, accountID, "getRate", params, &rates); err != nil {
		return nil, err
	}
	return rates, nil
}

// GetPayments lists payment transactions, optionally scoped to one
// reservation.
func (c *Client) GetPayments(ctx context.Context, accountID, propertyID, reservationID, modifiedSince string) ([]models.Payment, error) {
	params := url.Values{"propertyID": {propertyID}}
	if reservationID != "" {
		params.Set("reservationID", reservationID)
	}
	if modifiedSince != "" {
		params.Set("modifiedSince", modifiedSince)
	}

	var payments []models.Payment
	if err := c.Get(ctx, accountID, "getPayments", params, &payments); err != nil {
		return nil, err
	}
	return payments, nil
}

// PostPayment records a payment against a reservation on the provider.
func (c *Client) PostPayment(ctx context.Context, accountID string, params url.Values) (*models.Payment, error) {
	var payment models.Payment
	if err := c.Post(ctx, accountID, "postPayment", params, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetHousekeepingStatus lists room conditions for a property.
func (c *Client) GetHousekeepingStatus(ctx context.Context, accountID, propertyID string) ([]models.HousekeepingStatus, error) {
	params := url.Values{"propertyID": {propertyID}}
	var statuses []models.HousekeepingStatus
	if err := c.Get(ctx, accountID, "getHousekeepingStatus", params, &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

// GetDashboard fetches the property's daily summary.
func (c *Client) GetDashboard(ctx context.Context, accountID, propertyID string) (*models.Dashboard, error) {
	params := url.Values{"propertyID": {propertyID}}
	var dashboard models.Dashboard
	if err := c.Get(ctx, accountID, "getDashboard", params, &dashboard); err != nil {
		return nil, err
	}
	return &dashboard, nil
}

// GetWebhooks lists the provider-side webhook subscriptions.
func (c *Client) GetWebhooks(ctx context.Context, accountID string) ([]models.WebhookSubscription, error) {
	var subscriptions []models.WebhookSubscription
	if err := c.Get(ctx, accountID, "getWebhooks", nil, &subscriptions); err != nil {
		return nil, err
	}
	return subscriptions, nil
}

// PostWebhook subscribes an endpoint URL to an object/action event.
func (c *Client) PostWebhook(ctx context.Context, accountID, propertyID, object, action, endpointURL string) (*models.WebhookSubscription, error) {
	params := url.Values{
		"propertyID":  {propertyID},
		"object":      {object},
		"action":      {action},
		"endpointUrl": {endpointURL},
	}
	var subscription models.WebhookSubscription
	if err := c.Post(ctx, accountID, "postWebhook", params, &subscription); err != nil {
		return nil, err
	}
	return &subscription, nil
}

// DeleteWebhook removes a provider-side webhook subscription.
func (c *Client) DeleteWebhook(ctx context.Context, accountID, subscriptionID string) error {
	params := url.Values{"subscriptionID": {subscriptionID}}
	return c.Delete(ctx, accountID, "deleteWebhook", params)
}
