package migrations

import "github.com/nerrad567/dealer-core/internal/infrastructure/database"

// Schema versions after which a given column set exists. The store uses
// these to pick the column layout it reads and writes.
const (
	VersionInitial      = 1
	VersionSyncFields   = 2
	VersionDocumentMeta = 3
	VersionVehicleImage = 4
	VersionTenantIDs    = 5
)

// All returns every known migration.
//
// Entries are in the order they were written, which is not version order:
// tenant ids (5) shipped before vehicle images (4). database.DB.Migrate
// applies them by version.
func All() []database.Migration {
	return []database.Migration{
		{
			Version: VersionInitial,
			Name:    "initial_schema",
			Script:  script("001_initial_schema.sql"),
		},
		{
			Version: VersionSyncFields,
			Name:    "add_sync_fields",
			Columns: []database.ColumnAddition{
				{Table: "clients", Name: "synced_at", Definition: "INTEGER"},
				{Table: "vehicles", Name: "synced_at", Definition: "INTEGER"},
				{Table: "deals", Name: "synced_at", Definition: "INTEGER"},
				{Table: "documents", Name: "synced_at", Definition: "INTEGER"},
			},
			Script: script("002_add_sync_fields.sql"),
		},
		{
			Version: VersionDocumentMeta,
			Name:    "add_document_file_metadata",
			Columns: []database.ColumnAddition{
				{Table: "documents", Name: "file_size", Definition: "INTEGER"},
				{Table: "documents", Name: "file_checksum", Definition: "TEXT"},
			},
		},
		{
			Version: VersionTenantIDs,
			Name:    "add_tenant_ids",
			Columns: []database.ColumnAddition{
				{Table: "clients", Name: "user_id", Definition: "TEXT"},
				{Table: "deals", Name: "user_id", Definition: "TEXT"},
				{Table: "sync_log", Name: "user_id", Definition: "TEXT"},
			},
			Script: script("005_add_tenant_ids.sql"),
		},
		{
			Version: VersionVehicleImage,
			Name:    "add_vehicle_images",
			Columns: []database.ColumnAddition{
				{Table: "vehicles", Name: "images", Definition: "TEXT"},
			},
		},
	}
}

// Latest is the schema version a fully migrated database reports.
func Latest() int {
	return database.LatestVersion(All())
}
