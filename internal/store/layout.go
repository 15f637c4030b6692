package store

import (
	"slices"
	"strings"

	"github.com/nerrad567/dealer-core/migrations"
)

// layout is the column set a table has once a given migration has run.
//
// Reads always name these columns explicitly. Physical column order varies
// between databases (files from the earlier desktop build added user_id
// before images), so nothing here depends on it.
type layout struct {
	table   string
	since   int
	columns []string
}

// tableLayouts is a table's history, oldest first.
type tableLayouts []layout

// in returns the newest layout whose migration, and every earlier one in
// the table's history, has run. Layouts are cumulative, so the walk stops at
// the first migration missing from applied even if a later one is present.
// ok is false when the table's creating migration has not run.
func (ls tableLayouts) in(applied map[int]bool) (layout, bool) {
	var (
		l  layout
		ok bool
	)
	for _, next := range ls {
		if !applied[next.since] {
			break
		}
		l, ok = next, true
	}
	return l, ok
}

// latest is the layout of a fully migrated database.
func (ls tableLayouts) latest() layout {
	return ls[len(ls)-1]
}

// required are the columns every row of the table has had since it was
// created. A row lacking one of these cannot be decoded.
func (ls tableLayouts) required() []string {
	return ls[0].columns
}

func (l layout) has(column string) bool {
	return slices.Contains(l.columns, column)
}

// selectList renders the projection, e.g. "id, first_name, last_name".
func (l layout) selectList() string {
	return strings.Join(l.columns, ", ")
}

// insert renders an INSERT naming every column of the layout.
func (l layout) insert() string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(l.columns)), ", ")
	return "INSERT INTO " + l.table + " (" + l.selectList() + ") VALUES (" + placeholders + ")"
}

// updateSet renders "a = ?, b = ?" for every layout column except the
// ones listed in fixed (id, created_at, owner).
func (l layout) updateSet(fixed ...string) (string, []string) {
	var cols []string
	var parts []string
	for _, c := range l.columns {
		if slices.Contains(fixed, c) {
			continue
		}
		cols = append(cols, c)
		parts = append(parts, c+" = ?")
	}
	return strings.Join(parts, ", "), cols
}

// args returns values for cols in order. Columns with no entry in values
// are bound as NULL.
func args(values map[string]any, cols []string) []any {
	out := make([]any, len(cols))
	for i, c := range cols {
		out[i] = values[c]
	}
	return out
}

func with(base []string, extra ...string) []string {
	return append(slices.Clip(base), extra...)
}

var (
	clientBase = []string{
		"id", "first_name", "last_name", "email", "phone", "address",
		"city", "state", "zip_code", "drivers_license", "created_at", "updated_at",
	}
	vehicleBase = []string{
		"id", "vin", "stock_number", "year", "make", "model", "trim", "body",
		"doors", "transmission", "engine", "cylinders", "title_number", "mileage",
		"color", "price", "cost", "status", "description", "created_at", "updated_at",
	}
	dealBase = []string{
		"id", "type", "client_id", "vehicle_id", "status", "total_amount",
		"sale_date", "sale_amount", "sales_tax", "doc_fee", "trade_in_value",
		"down_payment", "financed_amount", "document_ids", "cobuyer_data",
		"created_at", "updated_at",
	}
	documentBase = []string{
		"id", "deal_id", "type", "filename", "file_path", "created_at", "updated_at",
	}
	settingBase = []string{"key", "value", "updated_at"}
	syncLogBase = []string{"id", "entity_type", "entity_id", "operation", "created_at", "synced_at"}
)

var (
	clientLayouts = tableLayouts{
		{"clients", migrations.VersionInitial, clientBase},
		{"clients", migrations.VersionSyncFields, with(clientBase, "synced_at")},
		{"clients", migrations.VersionTenantIDs, with(clientBase, "synced_at", "user_id")},
	}

	vehicleLayouts = tableLayouts{
		{"vehicles", migrations.VersionInitial, vehicleBase},
		{"vehicles", migrations.VersionSyncFields, with(vehicleBase, "synced_at")},
		{"vehicles", migrations.VersionVehicleImage, with(vehicleBase, "synced_at", "images")},
	}

	dealLayouts = tableLayouts{
		{"deals", migrations.VersionInitial, dealBase},
		{"deals", migrations.VersionSyncFields, with(dealBase, "synced_at")},
		{"deals", migrations.VersionTenantIDs, with(dealBase, "synced_at", "user_id")},
	}

	documentLayouts = tableLayouts{
		{"documents", migrations.VersionInitial, documentBase},
		{"documents", migrations.VersionSyncFields, with(documentBase, "synced_at")},
		{"documents", migrations.VersionDocumentMeta, with(documentBase, "synced_at", "file_size", "file_checksum")},
	}

	settingLayouts = tableLayouts{
		{"settings", migrations.VersionInitial, settingBase},
	}

	syncLogLayouts = tableLayouts{
		{"sync_log", migrations.VersionSyncFields, syncLogBase},
		{"sync_log", migrations.VersionTenantIDs, with(syncLogBase, "user_id")},
	}
)

// schema is the set of layouts in effect for one database.
type schema struct {
	version   int
	clients   layout
	vehicles  layout
	deals     layout
	documents layout
	settings  layout
	syncLog   layout
	hasLog    bool
}

// schemaFor picks each table's layout from the migrations recorded in
// schema_migrations. The highest version alone is not enough: a migration
// written after a higher one shipped is never applied to files already past
// it, so its columns may be missing below the reported version.
func schemaFor(applied []int) (schema, bool) {
	set := make(map[int]bool, len(applied))
	s := schema{}
	for _, v := range applied {
		set[v] = true
		s.version = max(s.version, v)
	}

	var ok bool
	if s.clients, ok = clientLayouts.in(set); !ok {
		return schema{}, false
	}
	s.vehicles, _ = vehicleLayouts.in(set)
	s.deals, _ = dealLayouts.in(set)
	s.documents, _ = documentLayouts.in(set)
	s.settings, _ = settingLayouts.in(set)
	s.syncLog, s.hasLog = syncLogLayouts.in(set)
	return s, true
}
