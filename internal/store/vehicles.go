package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/dealer-core/internal/infrastructure/database"
)

type vehicleRow struct {
	id, vin              string
	stockNumber          sql.NullString
	year                 int
	make, model          string
	trim, body           sql.NullString
	doors                sql.NullInt64
	transmission, engine sql.NullString
	cylinders            sql.NullInt64
	titleNumber          sql.NullString
	mileage              int
	color                sql.NullString
	price                float64
	cost                 sql.NullFloat64
	status               string
	description          sql.NullString
	images               sql.NullString
	createdAt, updatedAt int64
	syncedAt             sql.NullInt64
}

func (r *vehicleRow) targets() map[string]any {
	return map[string]any{
		"id":           &r.id,
		"vin":          &r.vin,
		"stock_number": &r.stockNumber,
		"year":         &r.year,
		"make":         &r.make,
		"model":        &r.model,
		"trim":         &r.trim,
		"body":         &r.body,
		"doors":        &r.doors,
		"transmission": &r.transmission,
		"engine":       &r.engine,
		"cylinders":    &r.cylinders,
		"title_number": &r.titleNumber,
		"mileage":      &r.mileage,
		"color":        &r.color,
		"price":        &r.price,
		"cost":         &r.cost,
		"status":       &r.status,
		"description":  &r.description,
		"images":       &r.images,
		"created_at":   &r.createdAt,
		"updated_at":   &r.updatedAt,
		"synced_at":    &r.syncedAt,
	}
}

func (r *vehicleRow) decode() (Vehicle, error) {
	images, err := decodeList("images", r.images)
	if err != nil {
		return Vehicle{}, err
	}
	return Vehicle{
		ID:           r.id,
		VIN:          r.vin,
		StockNumber:  strPtr(r.stockNumber),
		Year:         r.year,
		Make:         r.make,
		Model:        r.model,
		Trim:         strPtr(r.trim),
		Body:         strPtr(r.body),
		Doors:        intPtr(r.doors),
		Transmission: strPtr(r.transmission),
		Engine:       strPtr(r.engine),
		Cylinders:    intPtr(r.cylinders),
		TitleNumber:  strPtr(r.titleNumber),
		Mileage:      r.mileage,
		Color:        strPtr(r.color),
		Price:        r.price,
		Cost:         floatPtr(r.cost),
		Status:       r.status,
		Description:  strPtr(r.description),
		Images:       images,
		CreatedAt:    fromMillis(r.createdAt),
		UpdatedAt:    fromMillis(r.updatedAt),
		SyncedAt:     timePtr(r.syncedAt),
	}, nil
}

func vehicleValues(v *Vehicle) (map[string]any, error) {
	images, err := encodeList("images", v.Images)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":           v.ID,
		"vin":          v.VIN,
		"stock_number": nullStr(v.StockNumber),
		"year":         v.Year,
		"make":         v.Make,
		"model":        v.Model,
		"trim":         nullStr(v.Trim),
		"body":         nullStr(v.Body),
		"doors":        nullInt(v.Doors),
		"transmission": nullStr(v.Transmission),
		"engine":       nullStr(v.Engine),
		"cylinders":    nullInt(v.Cylinders),
		"title_number": nullStr(v.TitleNumber),
		"mileage":      v.Mileage,
		"color":        nullStr(v.Color),
		"price":        v.Price,
		"cost":         nullFloat(v.Cost),
		"status":       v.Status,
		"description":  nullStr(v.Description),
		"images":       images,
		"created_at":   toMillis(v.CreatedAt),
		"updated_at":   toMillis(v.UpdatedAt),
		"synced_at":    nullMillis(v.SyncedAt),
	}, nil
}

var vehicleSearchColumns = []string{"make", "model", "vin", "stock_number"}

func validateVehicle(v *Vehicle) error {
	if strings.TrimSpace(v.VIN) == "" {
		return fmt.Errorf("%w: vehicle vin is required", ErrInvalidInput)
	}
	return nil
}

// getVehicleBy reads the vehicle whose col equals value.
func (s *Store) getVehicleBy(ctx context.Context, q database.Querier, col, value string) (*Vehicle, error) {
	query := "SELECT " + s.schema.vehicles.selectList() + " FROM vehicles WHERE " + col + " = ? ORDER BY created_at DESC LIMIT 1"
	return queryEntity[Vehicle, vehicleRow](ctx, q, vehicleLayouts.required(), query, value)
}

// CreateVehicle stores v. A VIN already in the store yields ErrDuplicateKey
// and nothing is written. Status defaults to "available".
func (s *Store) CreateVehicle(ctx context.Context, v Vehicle) (_ *Vehicle, err error) {
	defer s.metrics.observe(EntityVehicle, OpCreate, time.Now(), &err)

	l := s.schema.vehicles
	if err := writable(l, vehicleLayouts); err != nil {
		return nil, err
	}
	if err := validateVehicle(&v); err != nil {
		return nil, err
	}

	v.ID = newID(v.ID)
	if v.Status == "" {
		v.Status = VehicleAvailable
	}
	s.stamp(&v.CreatedAt, &v.UpdatedAt)
	v.SyncedAt = truncMillisPtr(v.SyncedAt)

	values, err := vehicleValues(&v)
	if err != nil {
		return nil, err
	}

	err = s.db.WithTx(ctx, nil, func(ctx context.Context, tx database.Querier) error {
		if _, err := tx.ExecContext(ctx, l.insert(), args(values, l.columns)...); err != nil {
			return fmt.Errorf("inserting vehicle %s: %w", v.VIN, mapWriteError(err, ErrInvalidReference))
		}
		return s.recordChange(ctx, tx, EntityVehicle, v.ID, OpCreate, "")
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// GetVehicle returns the vehicle, or nil if there is none with id.
func (s *Store) GetVehicle(ctx context.Context, id string) (_ *Vehicle, err error) {
	defer s.metrics.observe(EntityVehicle, "get", time.Now(), &err)
	return s.readVehicle(ctx, "id", id)
}

// GetVehicleByVIN looks a vehicle up by its natural key.
func (s *Store) GetVehicleByVIN(ctx context.Context, vin string) (_ *Vehicle, err error) {
	defer s.metrics.observe(EntityVehicle, "get", time.Now(), &err)
	return s.readVehicle(ctx, "vin", vin)
}

// GetVehicleByStockNumber returns the newest vehicle with the stock number.
// Stock numbers are not unique.
func (s *Store) GetVehicleByStockNumber(ctx context.Context, stockNumber string) (_ *Vehicle, err error) {
	defer s.metrics.observe(EntityVehicle, "get", time.Now(), &err)
	return s.readVehicle(ctx, "stock_number", stockNumber)
}

func (s *Store) readVehicle(ctx context.Context, col, value string) (*Vehicle, error) {
	var v *Vehicle
	err := s.db.WithConn(ctx, func(ctx context.Context, q database.Querier) error {
		var err error
		v, err = s.getVehicleBy(ctx, q, col, value)
		return err
	})
	return v, err
}

// ListVehicles returns vehicles matching f, newest first.
func (s *Store) ListVehicles(ctx context.Context, f VehicleFilter) (_ []Vehicle, err error) {
	defer s.metrics.observe(EntityVehicle, "list", time.Now(), &err)

	var w where
	w.eqIf("status", f.Status)
	return s.listVehicles(ctx, &w)
}

// SearchVehicles matches query against make, model, VIN and stock number.
func (s *Store) SearchVehicles(ctx context.Context, query string) (_ []Vehicle, err error) {
	defer s.metrics.observe(EntityVehicle, "search", time.Now(), &err)

	var w where
	w.search(query, vehicleSearchColumns...)
	return s.listVehicles(ctx, &w)
}

func (s *Store) listVehicles(ctx context.Context, w *where) ([]Vehicle, error) {
	query := "SELECT " + s.schema.vehicles.selectList() + " FROM vehicles" + w.String() + " ORDER BY created_at DESC, rowid DESC"

	var out []Vehicle
	err := s.db.WithConn(ctx, func(ctx context.Context, q database.Querier) error {
		var err error
		out, err = queryEntities[Vehicle, vehicleRow](ctx, q, vehicleLayouts.required(), query, w.args...)
		return err
	})
	return out, err
}

// UpdateVehicle applies patch. Changing the VIN to one another vehicle has
// yields ErrDuplicateKey.
func (s *Store) UpdateVehicle(ctx context.Context, id string, patch VehiclePatch) (_ *Vehicle, err error) {
	defer s.metrics.observe(EntityVehicle, OpUpdate, time.Now(), &err)

	l := s.schema.vehicles
	if err := writable(l, vehicleLayouts); err != nil {
		return nil, err
	}

	var updated *Vehicle
	err = s.db.WithTx(ctx, nil, func(ctx context.Context, tx database.Querier) error {
		v, err := s.getVehicleBy(ctx, tx, "id", id)
		if err != nil {
			return err
		}
		if v == nil {
			return ErrNotFoundOrForbidden
		}

		patch.apply(v)
		if err := validateVehicle(v); err != nil {
			return err
		}
		v.UpdatedAt = s.touch(v.UpdatedAt)

		values, err := vehicleValues(v)
		if err != nil {
			return err
		}
		set, cols := l.updateSet("id", "created_at")
		res, err := tx.ExecContext(ctx,
			"UPDATE vehicles SET "+set+" WHERE id = ?",
			append(args(values, cols), id)...,
		)
		if err != nil {
			return fmt.Errorf("updating vehicle: %w", mapWriteError(err, ErrInvalidReference))
		}
		n, _ := res.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
		if n == 0 {
			return ErrNotFoundOrForbidden
		}

		updated = v
		return s.recordChange(ctx, tx, EntityVehicle, id, OpUpdate, "")
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteVehicle removes a vehicle. A vehicle on a deal yields ErrInUse.
func (s *Store) DeleteVehicle(ctx context.Context, id string) (err error) {
	defer s.metrics.observe(EntityVehicle, OpDelete, time.Now(), &err)

	return s.db.WithTx(ctx, nil, func(ctx context.Context, tx database.Querier) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM vehicles WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("deleting vehicle: %w", mapWriteError(err, ErrInUse))
		}
		n, _ := res.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
		if n == 0 {
			return ErrNotFoundOrForbidden
		}
		return s.recordChange(ctx, tx, EntityVehicle, id, OpDelete, "")
	})
}
