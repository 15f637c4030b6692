package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/dealer-core/internal/infrastructure/database"
)

// Deal statuses written by the desktop app.
const (
	DealDraft     = "draft"
	DealPending   = "pending"
	DealCompleted = "completed"
	DealCancelled = "cancelled"
)

type dealRow struct {
	id, dealType         string
	clientID, vehicleID  string
	status               string
	totalAmount          float64
	saleDate             sql.NullInt64
	saleAmount, salesTax sql.NullFloat64
	docFee, tradeIn      sql.NullFloat64
	downPayment          sql.NullFloat64
	financedAmount       sql.NullFloat64
	documentIDs          sql.NullString
	cobuyerData          sql.NullString
	createdAt, updatedAt int64
	syncedAt             sql.NullInt64
	tenantID             sql.NullString
}

func (r *dealRow) targets() map[string]any {
	return map[string]any{
		"id":              &r.id,
		"type":            &r.dealType,
		"client_id":       &r.clientID,
		"vehicle_id":      &r.vehicleID,
		"status":          &r.status,
		"total_amount":    &r.totalAmount,
		"sale_date":       &r.saleDate,
		"sale_amount":     &r.saleAmount,
		"sales_tax":       &r.salesTax,
		"doc_fee":         &r.docFee,
		"trade_in_value":  &r.tradeIn,
		"down_payment":    &r.downPayment,
		"financed_amount": &r.financedAmount,
		"document_ids":    &r.documentIDs,
		"cobuyer_data":    &r.cobuyerData,
		"created_at":      &r.createdAt,
		"updated_at":      &r.updatedAt,
		"synced_at":       &r.syncedAt,
		"user_id":         &r.tenantID,
	}
}

func (r *dealRow) decode() (Deal, error) {
	docs, err := decodeList("document_ids", r.documentIDs)
	if err != nil {
		return Deal{}, err
	}
	if docs == nil {
		docs = []string{}
	}
	cobuyer, err := decodeObject("cobuyer_data", r.cobuyerData)
	if err != nil {
		return Deal{}, err
	}
	return Deal{
		ID:             r.id,
		TenantID:       r.tenantID.String,
		Type:           r.dealType,
		ClientID:       r.clientID,
		VehicleID:      r.vehicleID,
		Status:         r.status,
		TotalAmount:    r.totalAmount,
		SaleDate:       timePtr(r.saleDate),
		SaleAmount:     floatPtr(r.saleAmount),
		SalesTax:       floatPtr(r.salesTax),
		DocFee:         floatPtr(r.docFee),
		TradeInValue:   floatPtr(r.tradeIn),
		DownPayment:    floatPtr(r.downPayment),
		FinancedAmount: floatPtr(r.financedAmount),
		DocumentIDs:    docs,
		CobuyerData:    cobuyer,
		CreatedAt:      fromMillis(r.createdAt),
		UpdatedAt:      fromMillis(r.updatedAt),
		SyncedAt:       timePtr(r.syncedAt),
	}, nil
}

func dealValues(d *Deal) (map[string]any, error) {
	docs, err := encodeList("document_ids", d.DocumentIDs)
	if err != nil {
		return nil, err
	}
	cobuyer, err := encodeObject("cobuyer_data", d.CobuyerData)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":              d.ID,
		"type":            d.Type,
		"client_id":       d.ClientID,
		"vehicle_id":      d.VehicleID,
		"status":          d.Status,
		"total_amount":    d.TotalAmount,
		"sale_date":       nullMillis(d.SaleDate),
		"sale_amount":     nullFloat(d.SaleAmount),
		"sales_tax":       nullFloat(d.SalesTax),
		"doc_fee":         nullFloat(d.DocFee),
		"trade_in_value":  nullFloat(d.TradeInValue),
		"down_payment":    nullFloat(d.DownPayment),
		"financed_amount": nullFloat(d.FinancedAmount),
		"document_ids":    docs,
		"cobuyer_data":    cobuyer,
		"created_at":      toMillis(d.CreatedAt),
		"updated_at":      toMillis(d.UpdatedAt),
		"synced_at":       nullMillis(d.SyncedAt),
		"user_id":         d.TenantID,
	}, nil
}

var dealSearchColumns = []string{"id", "type", "status"}

func validateDeal(d *Deal) error {
	switch {
	case d.Type == "":
		return fmt.Errorf("%w: deal type is required", ErrInvalidInput)
	case d.ClientID == "":
		return fmt.Errorf("%w: deal client is required", ErrInvalidInput)
	case d.VehicleID == "":
		return fmt.Errorf("%w: deal vehicle is required", ErrInvalidInput)
	}
	return nil
}

func (s *Store) dealLayout(tenant string) (layout, error) {
	if err := requireTenant(tenant); err != nil {
		return layout{}, err
	}
	l := s.schema.deals
	return l, scoped(l)
}

func (s *Store) getDeal(ctx context.Context, q database.Querier, tenant, id string) (*Deal, error) {
	query := "SELECT " + s.schema.deals.selectList() + " FROM deals WHERE id = ? AND user_id = ?"
	return queryEntity[Deal, dealRow](ctx, q, dealLayouts.required(), query, id, tenant)
}

// CreateDeal stores d for tenant. The client and vehicle must exist
// (ErrInvalidReference otherwise). Status defaults to "draft" and a nil
// DocumentIDs is stored as an empty list.
func (s *Store) CreateDeal(ctx context.Context, tenant string, d Deal) (_ *Deal, err error) {
	defer s.metrics.observe(EntityDeal, OpCreate, time.Now(), &err)

	l, err := s.dealLayout(tenant)
	if err != nil {
		return nil, err
	}
	if err := writable(l, dealLayouts); err != nil {
		return nil, err
	}
	if err := validateDeal(&d); err != nil {
		return nil, err
	}

	d.ID = newID(d.ID)
	d.TenantID = tenant
	if d.Status == "" {
		d.Status = DealDraft
	}
	if d.DocumentIDs == nil {
		d.DocumentIDs = []string{}
	}
	s.stamp(&d.CreatedAt, &d.UpdatedAt)
	d.SaleDate = truncMillisPtr(d.SaleDate)
	d.SyncedAt = truncMillisPtr(d.SyncedAt)

	values, err := dealValues(&d)
	if err != nil {
		return nil, err
	}

	err = s.db.WithTx(ctx, nil, func(ctx context.Context, tx database.Querier) error {
		if _, err := tx.ExecContext(ctx, l.insert(), args(values, l.columns)...); err != nil {
			return fmt.Errorf("inserting deal: %w", mapWriteError(err, ErrInvalidReference))
		}
		return s.recordChange(ctx, tx, EntityDeal, d.ID, OpCreate, tenant)
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDeal returns tenant's deal, or nil if it does not exist for tenant.
func (s *Store) GetDeal(ctx context.Context, tenant, id string) (_ *Deal, err error) {
	defer s.metrics.observe(EntityDeal, "get", time.Now(), &err)

	if _, err := s.dealLayout(tenant); err != nil {
		return nil, err
	}

	var d *Deal
	err = s.db.WithConn(ctx, func(ctx context.Context, q database.Querier) error {
		var err error
		d, err = s.getDeal(ctx, q, tenant, id)
		return err
	})
	return d, err
}

// ListDeals returns tenant's deals matching f, newest first.
func (s *Store) ListDeals(ctx context.Context, tenant string, f DealFilter) (_ []Deal, err error) {
	defer s.metrics.observe(EntityDeal, "list", time.Now(), &err)

	l, err := s.dealLayout(tenant)
	if err != nil {
		return nil, err
	}

	var w where
	w.eq("user_id", tenant)
	w.eqIf("client_id", f.ClientID)
	w.eqIf("vehicle_id", f.VehicleID)
	w.eqIf("status", f.Status)
	return s.listDeals(ctx, l, &w)
}

// SearchDeals matches query against tenant's deal ids, types and statuses.
func (s *Store) SearchDeals(ctx context.Context, tenant, query string) (_ []Deal, err error) {
	defer s.metrics.observe(EntityDeal, "search", time.Now(), &err)

	l, err := s.dealLayout(tenant)
	if err != nil {
		return nil, err
	}

	var w where
	w.eq("user_id", tenant)
	w.search(query, dealSearchColumns...)
	return s.listDeals(ctx, l, &w)
}

func (s *Store) listDeals(ctx context.Context, l layout, w *where) ([]Deal, error) {
	query := "SELECT " + l.selectList() + " FROM deals" + w.String() + " ORDER BY created_at DESC, rowid DESC"

	var out []Deal
	err := s.db.WithConn(ctx, func(ctx context.Context, q database.Querier) error {
		var err error
		out, err = queryEntities[Deal, dealRow](ctx, q, dealLayouts.required(), query, w.args...)
		return err
	})
	return out, err
}

// UpdateDeal applies patch to tenant's deal.
func (s *Store) UpdateDeal(ctx context.Context, tenant, id string, patch DealPatch) (_ *Deal, err error) {
	defer s.metrics.observe(EntityDeal, OpUpdate, time.Now(), &err)

	l, err := s.dealLayout(tenant)
	if err != nil {
		return nil, err
	}
	if err := writable(l, dealLayouts); err != nil {
		return nil, err
	}

	var updated *Deal
	err = s.db.WithTx(ctx, nil, func(ctx context.Context, tx database.Querier) error {
		d, err := s.getDeal(ctx, tx, tenant, id)
		if err != nil {
			return err
		}
		if d == nil {
			return ErrNotFoundOrForbidden
		}

		patch.apply(d)
		if err := validateDeal(d); err != nil {
			return err
		}
		if d.DocumentIDs == nil {
			d.DocumentIDs = []string{}
		}
		d.SaleDate = truncMillisPtr(d.SaleDate)
		d.UpdatedAt = s.touch(d.UpdatedAt)

		values, err := dealValues(d)
		if err != nil {
			return err
		}
		set, cols := l.updateSet("id", "user_id", "client_id", "vehicle_id", "created_at")
		res, err := tx.ExecContext(ctx,
			"UPDATE deals SET "+set+" WHERE id = ? AND user_id = ?",
			append(args(values, cols), id, tenant)...,
		)
		if err != nil {
			return fmt.Errorf("updating deal: %w", mapWriteError(err, ErrInvalidReference))
		}
		n, _ := res.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
		if n == 0 {
			return ErrNotFoundOrForbidden
		}

		updated = d
		return s.recordChange(ctx, tx, EntityDeal, id, OpUpdate, tenant)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteDeal removes tenant's deal. Its documents are removed with it.
func (s *Store) DeleteDeal(ctx context.Context, tenant, id string) (err error) {
	defer s.metrics.observe(EntityDeal, OpDelete, time.Now(), &err)

	if _, err := s.dealLayout(tenant); err != nil {
		return err
	}

	return s.db.WithTx(ctx, nil, func(ctx context.Context, tx database.Querier) error {
		// The cascade removes these with the deal; the change log has to
		// say so too.
		docIDs, err := dealDocumentIDs(ctx, tx, tenant, id)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM deals WHERE id = ? AND user_id = ?", id, tenant)
		if err != nil {
			return fmt.Errorf("deleting deal: %w", mapWriteError(err, ErrInUse))
		}
		n, _ := res.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
		if n == 0 {
			return ErrNotFoundOrForbidden
		}

		for _, docID := range docIDs {
			if err := s.recordChange(ctx, tx, EntityDocument, docID, OpDelete, ""); err != nil {
				return err
			}
		}
		return s.recordChange(ctx, tx, EntityDeal, id, OpDelete, tenant)
	})
}

// dealDocumentIDs lists the documents attached to tenant's deal id.
func dealDocumentIDs(ctx context.Context, q database.Querier, tenant, id string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT documents.id
		FROM documents
		JOIN deals ON deals.id = documents.deal_id
		WHERE deals.id = ? AND deals.user_id = ?
		ORDER BY documents.rowid`, id, tenant)
	if err != nil {
		return nil, fmt.Errorf("listing deal documents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var docID string
		if err := rows.Scan(&docID); err != nil {
			return nil, fmt.Errorf("%w: deal documents: %w", ErrDecode, err)
		}
		ids = append(ids, docID)
	}
	return ids, rows.Err()
}
