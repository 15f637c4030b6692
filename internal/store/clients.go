package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/dealer-core/internal/infrastructure/database"
)

// clientRow holds scanned client columns.
type clientRow struct {
	id, firstName, lastName string
	email, phone, address   sql.NullString
	city, state, zipCode    sql.NullString
	driversLicense          sql.NullString
	createdAt, updatedAt    int64
	syncedAt                sql.NullInt64
	tenantID                sql.NullString
}

func (r *clientRow) targets() map[string]any {
	return map[string]any{
		"id":              &r.id,
		"first_name":      &r.firstName,
		"last_name":       &r.lastName,
		"email":           &r.email,
		"phone":           &r.phone,
		"address":         &r.address,
		"city":            &r.city,
		"state":           &r.state,
		"zip_code":        &r.zipCode,
		"drivers_license": &r.driversLicense,
		"created_at":      &r.createdAt,
		"updated_at":      &r.updatedAt,
		"synced_at":       &r.syncedAt,
		"user_id":         &r.tenantID,
	}
}

func (r *clientRow) decode() (Client, error) {
	return Client{
		ID:             r.id,
		TenantID:       r.tenantID.String,
		FirstName:      r.firstName,
		LastName:       r.lastName,
		Email:          strPtr(r.email),
		Phone:          strPtr(r.phone),
		Address:        strPtr(r.address),
		City:           strPtr(r.city),
		State:          strPtr(r.state),
		ZipCode:        strPtr(r.zipCode),
		DriversLicense: strPtr(r.driversLicense),
		CreatedAt:      fromMillis(r.createdAt),
		UpdatedAt:      fromMillis(r.updatedAt),
		SyncedAt:       timePtr(r.syncedAt),
	}, nil
}

func clientValues(c *Client) map[string]any {
	return map[string]any{
		"id":              c.ID,
		"first_name":      c.FirstName,
		"last_name":       c.LastName,
		"email":           nullStr(c.Email),
		"phone":           nullStr(c.Phone),
		"address":         nullStr(c.Address),
		"city":            nullStr(c.City),
		"state":           nullStr(c.State),
		"zip_code":        nullStr(c.ZipCode),
		"drivers_license": nullStr(c.DriversLicense),
		"created_at":      toMillis(c.CreatedAt),
		"updated_at":      toMillis(c.UpdatedAt),
		"synced_at":       nullMillis(c.SyncedAt),
		"user_id":         c.TenantID,
	}
}

// clientSearchColumns are matched by SearchClients.
var clientSearchColumns = []string{"first_name", "last_name", "email", "phone"}

func (s *Store) clientLayout(tenant string) (layout, error) {
	if err := requireTenant(tenant); err != nil {
		return layout{}, err
	}
	l := s.schema.clients
	return l, scoped(l)
}

// getClient reads one client of tenant inside an open connection.
func (s *Store) getClient(ctx context.Context, q database.Querier, tenant, id string) (*Client, error) {
	query := "SELECT " + s.schema.clients.selectList() + " FROM clients WHERE id = ? AND user_id = ?"
	return queryEntity[Client, clientRow](ctx, q, clientLayouts.required(), query, id, tenant)
}

// CreateClient stores c for tenant and returns it as stored. An empty ID is
// replaced by a new UUID; zero timestamps are set to now.
func (s *Store) CreateClient(ctx context.Context, tenant string, c Client) (_ *Client, err error) {
	defer s.metrics.observe(EntityClient, OpCreate, time.Now(), &err)

	l, err := s.clientLayout(tenant)
	if err != nil {
		return nil, err
	}
	if err := writable(l, clientLayouts); err != nil {
		return nil, err
	}

	c.ID = newID(c.ID)
	c.TenantID = tenant
	s.stamp(&c.CreatedAt, &c.UpdatedAt)
	c.SyncedAt = truncMillisPtr(c.SyncedAt)

	err = s.db.WithTx(ctx, nil, func(ctx context.Context, tx database.Querier) error {
		if _, err := tx.ExecContext(ctx, l.insert(), args(clientValues(&c), l.columns)...); err != nil {
			return fmt.Errorf("inserting client: %w", mapWriteError(err, ErrInvalidReference))
		}
		return s.recordChange(ctx, tx, EntityClient, c.ID, OpCreate, tenant)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetClient returns the client, or nil if it does not exist for tenant.
func (s *Store) GetClient(ctx context.Context, tenant, id string) (_ *Client, err error) {
	defer s.metrics.observe(EntityClient, "get", time.Now(), &err)

	if _, err := s.clientLayout(tenant); err != nil {
		return nil, err
	}

	var c *Client
	err = s.db.WithConn(ctx, func(ctx context.Context, q database.Querier) error {
		var err error
		c, err = s.getClient(ctx, q, tenant, id)
		return err
	})
	return c, err
}

// ListClients returns tenant's clients, newest first.
func (s *Store) ListClients(ctx context.Context, tenant string) (_ []Client, err error) {
	defer s.metrics.observe(EntityClient, "list", time.Now(), &err)

	l, err := s.clientLayout(tenant)
	if err != nil {
		return nil, err
	}

	var w where
	w.eq("user_id", tenant)
	return s.listClients(ctx, l, &w)
}

// SearchClients returns tenant's clients whose first name, last name, email
// or phone contains query, ignoring case.
func (s *Store) SearchClients(ctx context.Context, tenant, query string) (_ []Client, err error) {
	defer s.metrics.observe(EntityClient, "search", time.Now(), &err)

	l, err := s.clientLayout(tenant)
	if err != nil {
		return nil, err
	}

	var w where
	w.eq("user_id", tenant)
	w.search(query, clientSearchColumns...)
	return s.listClients(ctx, l, &w)
}

func (s *Store) listClients(ctx context.Context, l layout, w *where) ([]Client, error) {
	query := "SELECT " + l.selectList() + " FROM clients" + w.String() + " ORDER BY created_at DESC, rowid DESC"

	var out []Client
	err := s.db.WithConn(ctx, func(ctx context.Context, q database.Querier) error {
		var err error
		out, err = queryEntities[Client, clientRow](ctx, q, clientLayouts.required(), query, w.args...)
		return err
	})
	return out, err
}

// UpdateClient applies patch to tenant's client and returns the result.
// A client that does not exist for tenant yields ErrNotFoundOrForbidden.
func (s *Store) UpdateClient(ctx context.Context, tenant, id string, patch ClientPatch) (_ *Client, err error) {
	defer s.metrics.observe(EntityClient, OpUpdate, time.Now(), &err)

	l, err := s.clientLayout(tenant)
	if err != nil {
		return nil, err
	}
	if err := writable(l, clientLayouts); err != nil {
		return nil, err
	}

	var updated *Client
	err = s.db.WithTx(ctx, nil, func(ctx context.Context, tx database.Querier) error {
		c, err := s.getClient(ctx, tx, tenant, id)
		if err != nil {
			return err
		}
		if c == nil {
			return ErrNotFoundOrForbidden
		}

		patch.apply(c)
		c.UpdatedAt = s.touch(c.UpdatedAt)

		set, cols := l.updateSet("id", "user_id", "created_at")
		res, err := tx.ExecContext(ctx,
			"UPDATE clients SET "+set+" WHERE id = ? AND user_id = ?",
			append(args(clientValues(c), cols), id, tenant)...,
		)
		if err != nil {
			return fmt.Errorf("updating client: %w", mapWriteError(err, ErrInvalidReference))
		}
		n, _ := res.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
		if n == 0 {
			return ErrNotFoundOrForbidden
		}

		updated = c
		return s.recordChange(ctx, tx, EntityClient, id, OpUpdate, tenant)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteClient removes tenant's client. A client with deals cannot be
// deleted (ErrInUse); delete the deals first.
func (s *Store) DeleteClient(ctx context.Context, tenant, id string) (err error) {
	defer s.metrics.observe(EntityClient, OpDelete, time.Now(), &err)

	if _, err := s.clientLayout(tenant); err != nil {
		return err
	}

	return s.db.WithTx(ctx, nil, func(ctx context.Context, tx database.Querier) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM clients WHERE id = ? AND user_id = ?", id, tenant)
		if err != nil {
			return fmt.Errorf("deleting client: %w", mapWriteError(err, ErrInUse))
		}
		n, _ := res.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
		if n == 0 {
			return ErrNotFoundOrForbidden
		}
		return s.recordChange(ctx, tx, EntityClient, id, OpDelete, tenant)
	})
}
