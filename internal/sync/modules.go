// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/stayware/cloudsync/internal/models"
	"github.com/stayware/cloudsync/internal/pms"
	"github.com/stayware/cloudsync/internal/store"
)

// apiTimeFormat is the provider's modifiedSince parameter format.
const apiTimeFormat = "2006-01-02 15:04:05"

// defaultPageSize bounds list endpoints; the provider caps pages at 100.
const defaultPageSize = 100

// ProviderAPI is the slice of the API client the built-in modules use.
type ProviderAPI interface {
	GetHotelDetails(ctx context.Context, accountID, propertyID string) (*models.Hotel, error)
	GetRoomTypes(ctx context.Context, accountID, propertyID string) ([]models.RoomType, error)
	GetRooms(ctx context.Context, accountID, propertyID string) ([]models.Room, error)
	GetGuests(ctx context.Context, accountID, propertyID, modifiedSince string, pageNumber, pageSize int) ([]models.Guest, error)
	GetReservations(ctx context.Context, accountID string, q pms.ReservationQuery) ([]models.Reservation, error)
	GetPayments(ctx context.Context, accountID, propertyID, reservationID, modifiedSince string) ([]models.Payment, error)
}

// RegisterBuiltins wires the standard provider entity modules into the
// orchestrator. Items has no built-in module; it is claimed by extension
// registrations.
func RegisterBuiltins(o *Orchestrator, s store.Store, api ProviderAPI) {
	o.Register(&PropertiesModule{store: s, api: api})
	o.Register(&RoomTypesModule{store: s, api: api})
	o.Register(&GuestsModule{store: s, api: api})
	o.Register(&ReservationsModule{store: s, api: api})
	o.Register(&PaymentsModule{store: s, api: api})
}

func since(scope Scope) string {
	if scope.Since.IsZero() {
		return ""
	}
	return scope.Since.UTC().Format(apiTimeFormat)
}

// PropertiesModule refreshes the local property record from the provider's
// hotel details.
type PropertiesModule struct {
	store store.Store
	api   ProviderAPI
}

func (m *PropertiesModule) Name() string        { return ModuleProperties }
func (m *PropertiesModule) DependsOn() []string { return nil }

func (m *PropertiesModule) Sync(ctx context.Context, scope Scope) (Stats, error) {
	hotel, err := m.api.GetHotelDetails(ctx, scope.Account.ID, scope.Property.ExternalID)
	if err != nil {
		return Stats{}, fmt.Errorf("fetch hotel details: %w", err)
	}

	scope.Property.Name = hotel.PropertyName
	if hotel.Currency != "" {
		scope.Property.Currency = hotel.Currency
	}
	if hotel.Timezone != "" {
		scope.Property.Timezone = hotel.Timezone
	}
	scope.Property.UpdatedAt = time.Now().UTC()

	if err := store.PutProperty(ctx, m.store, scope.Property); err != nil {
		return Stats{}, fmt.Errorf("store property: %w", err)
	}
	return Stats{Fetched: 1, Stored: 1}, nil
}

// RoomTypesModule mirrors room types and their physical rooms.
type RoomTypesModule struct {
	store store.Store
	api   ProviderAPI
}

func (m *RoomTypesModule) Name() string        { return ModuleRoomTypes }
func (m *RoomTypesModule) DependsOn() []string { return []string{ModuleProperties} }

func (m *RoomTypesModule) Sync(ctx context.Context, scope Scope) (Stats, error) {
	var stats Stats

	roomTypes, err := m.api.GetRoomTypes(ctx, scope.Account.ID, scope.Property.ExternalID)
	if err != nil {
		return stats, fmt.Errorf("fetch room types: %w", err)
	}
	for i := range roomTypes {
		rt := &roomTypes[i]
		stats.Fetched++
		if rt.RoomTypeID == "" {
			stats.Skipped++
			continue
		}
		if err := m.store.Put(ctx, models.KindRoomType, rt.RoomTypeID, rt); err != nil {
			return stats, fmt.Errorf("store room type %s: %w", rt.RoomTypeID, err)
		}
		stats.Stored++
	}

	rooms, err := m.api.GetRooms(ctx, scope.Account.ID, scope.Property.ExternalID)
	if err != nil {
		return stats, fmt.Errorf("fetch rooms: %w", err)
	}
	for i := range rooms {
		room := &rooms[i]
		stats.Fetched++
		if room.RoomID == "" {
			stats.Skipped++
			continue
		}
		if err := m.store.Put(ctx, models.KindRoom, room.RoomID, room); err != nil {
			return stats, fmt.Errorf("store room %s: %w", room.RoomID, err)
		}
		stats.Stored++
	}

	return stats, nil
}

// GuestsModule mirrors guest profiles modified since the last batch.
type GuestsModule struct {
	store store.Store
	api   ProviderAPI
}

func (m *GuestsModule) Name() string        { return ModuleGuests }
func (m *GuestsModule) DependsOn() []string { return []string{ModuleProperties} }

func (m *GuestsModule) Sync(ctx context.Context, scope Scope) (Stats, error) {
	var stats Stats
	modifiedSince := since(scope)

	for page := 1; ; page++ {
		guests, err := m.api.GetGuests(ctx, scope.Account.ID, scope.Property.ExternalID, modifiedSince, page, defaultPageSize)
		if err != nil {
			return stats, fmt.Errorf("fetch guests page %d: %w", page, err)
		}
		for i := range guests {
			guest := &guests[i]
			stats.Fetched++
			if guest.GuestID == "" {
				stats.Skipped++
				continue
			}
			if err := m.store.Put(ctx, models.KindGuest, guest.GuestID, guest); err != nil {
				return stats, fmt.Errorf("store guest %s: %w", guest.GuestID, err)
			}
			stats.Stored++
		}
		if len(guests) < defaultPageSize {
			return stats, nil
		}
	}
}

// ReservationsModule mirrors reservations modified since the last batch.
type ReservationsModule struct {
	store store.Store
	api   ProviderAPI
}

func (m *ReservationsModule) Name() string { return ModuleReservations }

func (m *ReservationsModule) DependsOn() []string {
	return []string{ModuleRoomTypes, ModuleGuests}
}

func (m *ReservationsModule) Sync(ctx context.Context, scope Scope) (Stats, error) {
	var stats Stats
	modifiedSince := since(scope)

	for page := 1; ; page++ {
		reservations, err := m.api.GetReservations(ctx, scope.Account.ID, pms.ReservationQuery{
			PropertyID:    scope.Property.ExternalID,
			ModifiedSince: modifiedSince,
			PageNumber:    page,
			PageSize:      defaultPageSize,
		})
		if err != nil {
			return stats, fmt.Errorf("fetch reservations page %d: %w", page, err)
		}
		for i := range reservations {
			res := &reservations[i]
			stats.Fetched++
			if res.ReservationID == "" {
				stats.Skipped++
				continue
			}
			if err := m.store.Put(ctx, models.KindReservation, res.ReservationID, res); err != nil {
				return stats, fmt.Errorf("store reservation %s: %w", res.ReservationID, err)
			}
			stats.Stored++
		}
		if len(reservations) < defaultPageSize {
			return stats, nil
		}
	}
}

// PaymentsModule mirrors payment transactions modified since the last
// batch.
type PaymentsModule struct {
	store store.Store
	api   ProviderAPI
}

func (m *PaymentsModule) Name() string        { return ModulePayments }
func (m *PaymentsModule) DependsOn() []string { return []string{ModuleReservations} }

func (m *PaymentsModule) Sync(ctx context.Context, scope Scope) (Stats, error) {
	var stats Stats

	payments, err := m.api.GetPayments(ctx, scope.Account.ID, scope.Property.ExternalID, "", since(scope))
	if err != nil {
		return stats, fmt.Errorf("fetch payments: %w", err)
	}
	for i := range payments {
		payment := &payments[i]
		stats.Fetched++
		if payment.TransactionID == "" {
			stats.Skipped++
			continue
		}
		if err := m.store.Put(ctx, models.KindPayment, payment.TransactionID, payment); err != nil {
			return stats, fmt.Errorf("store payment %s: %w", payment.TransactionID, err)
		}
		stats.Stored++
	}

	return stats, nil
}
