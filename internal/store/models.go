package store

import (
	"encoding/json"
	"time"
)

// Client is a customer record. Clients are tenant-scoped.
type Client struct {
	ID             string     `json:"id"`
	TenantID       string     `json:"tenant_id"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	Email          *string    `json:"email,omitempty"`
	Phone          *string    `json:"phone,omitempty"`
	Address        *string    `json:"address,omitempty"`
	City           *string    `json:"city,omitempty"`
	State          *string    `json:"state,omitempty"`
	ZipCode        *string    `json:"zip_code,omitempty"`
	DriversLicense *string    `json:"drivers_license,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	SyncedAt       *time.Time `json:"synced_at,omitempty"`
}

// ClientPatch lists the client fields an update may change.
// Nil fields are left as they are.
type ClientPatch struct {
	FirstName      *string `json:"first_name,omitempty"`
	LastName       *string `json:"last_name,omitempty"`
	Email          *string `json:"email,omitempty"`
	Phone          *string `json:"phone,omitempty"`
	Address        *string `json:"address,omitempty"`
	City           *string `json:"city,omitempty"`
	State          *string `json:"state,omitempty"`
	ZipCode        *string `json:"zip_code,omitempty"`
	DriversLicense *string `json:"drivers_license,omitempty"`
}

func (p ClientPatch) apply(c *Client) {
	setIf(&c.FirstName, p.FirstName)
	setIf(&c.LastName, p.LastName)
	setPtrIf(&c.Email, p.Email)
	setPtrIf(&c.Phone, p.Phone)
	setPtrIf(&c.Address, p.Address)
	setPtrIf(&c.City, p.City)
	setPtrIf(&c.State, p.State)
	setPtrIf(&c.ZipCode, p.ZipCode)
	setPtrIf(&c.DriversLicense, p.DriversLicense)
}

// Vehicle is an inventory record. Vehicles are shared by every user of the
// store file; callers filter them by user themselves if they need to.
type Vehicle struct {
	ID           string     `json:"id"`
	VIN          string     `json:"vin"`
	StockNumber  *string    `json:"stock_number,omitempty"`
	Year         int        `json:"year"`
	Make         string     `json:"make"`
	Model        string     `json:"model"`
	Trim         *string    `json:"trim,omitempty"`
	Body         *string    `json:"body,omitempty"`
	Doors        *int       `json:"doors,omitempty"`
	Transmission *string    `json:"transmission,omitempty"`
	Engine       *string    `json:"engine,omitempty"`
	Cylinders    *int       `json:"cylinders,omitempty"`
	TitleNumber  *string    `json:"title_number,omitempty"`
	Mileage      int        `json:"mileage"`
	Color        *string    `json:"color,omitempty"`
	Price        float64    `json:"price"`
	Cost         *float64   `json:"cost,omitempty"`
	Status       string     `json:"status"`
	Description  *string    `json:"description,omitempty"`
	Images       []string   `json:"images,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	SyncedAt     *time.Time `json:"synced_at,omitempty"`
}

// Common vehicle statuses. Status is free-form; these are the values the
// desktop app writes.
const (
	VehicleAvailable = "available"
	VehiclePending   = "pending"
	VehicleSold      = "sold"
)

// VehiclePatch lists the vehicle fields an update may change.
type VehiclePatch struct {
	VIN          *string   `json:"vin,omitempty"`
	StockNumber  *string   `json:"stock_number,omitempty"`
	Year         *int      `json:"year,omitempty"`
	Make         *string   `json:"make,omitempty"`
	Model        *string   `json:"model,omitempty"`
	Trim         *string   `json:"trim,omitempty"`
	Body         *string   `json:"body,omitempty"`
	Doors        *int      `json:"doors,omitempty"`
	Transmission *string   `json:"transmission,omitempty"`
	Engine       *string   `json:"engine,omitempty"`
	Cylinders    *int      `json:"cylinders,omitempty"`
	TitleNumber  *string   `json:"title_number,omitempty"`
	Mileage      *int      `json:"mileage,omitempty"`
	Color        *string   `json:"color,omitempty"`
	Price        *float64  `json:"price,omitempty"`
	Cost         *float64  `json:"cost,omitempty"`
	Status       *string   `json:"status,omitempty"`
	Description  *string   `json:"description,omitempty"`
	Images       *[]string `json:"images,omitempty"`
}

func (p VehiclePatch) apply(v *Vehicle) {
	setIf(&v.VIN, p.VIN)
	setPtrIf(&v.StockNumber, p.StockNumber)
	setIf(&v.Year, p.Year)
	setIf(&v.Make, p.Make)
	setIf(&v.Model, p.Model)
	setPtrIf(&v.Trim, p.Trim)
	setPtrIf(&v.Body, p.Body)
	setPtrIf(&v.Doors, p.Doors)
	setPtrIf(&v.Transmission, p.Transmission)
	setPtrIf(&v.Engine, p.Engine)
	setPtrIf(&v.Cylinders, p.Cylinders)
	setPtrIf(&v.TitleNumber, p.TitleNumber)
	setIf(&v.Mileage, p.Mileage)
	setPtrIf(&v.Color, p.Color)
	setIf(&v.Price, p.Price)
	setPtrIf(&v.Cost, p.Cost)
	setIf(&v.Status, p.Status)
	setPtrIf(&v.Description, p.Description)
	setIf(&v.Images, p.Images)
}

// VehicleFilter narrows ListVehicles. Zero fields match everything.
type VehicleFilter struct {
	Status string
}

// Deal is a sale or lease of a vehicle to a client. Deals are tenant-scoped.
type Deal struct {
	ID             string          `json:"id"`
	TenantID       string          `json:"tenant_id"`
	Type           string          `json:"type"`
	ClientID       string          `json:"client_id"`
	VehicleID      string          `json:"vehicle_id"`
	Status         string          `json:"status"`
	TotalAmount    float64         `json:"total_amount"`
	SaleDate       *time.Time      `json:"sale_date,omitempty"`
	SaleAmount     *float64        `json:"sale_amount,omitempty"`
	SalesTax       *float64        `json:"sales_tax,omitempty"`
	DocFee         *float64        `json:"doc_fee,omitempty"`
	TradeInValue   *float64        `json:"trade_in_value,omitempty"`
	DownPayment    *float64        `json:"down_payment,omitempty"`
	FinancedAmount *float64        `json:"financed_amount,omitempty"`
	DocumentIDs    []string        `json:"document_ids"`
	CobuyerData    json.RawMessage `json:"cobuyer_data,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	SyncedAt       *time.Time      `json:"synced_at,omitempty"`
}

// DealPatch lists the deal fields an update may change. The owning tenant
// and the client and vehicle a deal was written for are fixed.
type DealPatch struct {
	Type           *string          `json:"type,omitempty"`
	Status         *string          `json:"status,omitempty"`
	TotalAmount    *float64         `json:"total_amount,omitempty"`
	SaleDate       *time.Time       `json:"sale_date,omitempty"`
	SaleAmount     *float64         `json:"sale_amount,omitempty"`
	SalesTax       *float64         `json:"sales_tax,omitempty"`
	DocFee         *float64         `json:"doc_fee,omitempty"`
	TradeInValue   *float64         `json:"trade_in_value,omitempty"`
	DownPayment    *float64         `json:"down_payment,omitempty"`
	FinancedAmount *float64         `json:"financed_amount,omitempty"`
	DocumentIDs    *[]string        `json:"document_ids,omitempty"`
	CobuyerData    *json.RawMessage `json:"cobuyer_data,omitempty"`
}

func (p DealPatch) apply(d *Deal) {
	setIf(&d.Type, p.Type)
	setIf(&d.Status, p.Status)
	setIf(&d.TotalAmount, p.TotalAmount)
	setPtrIf(&d.SaleDate, p.SaleDate)
	setPtrIf(&d.SaleAmount, p.SaleAmount)
	setPtrIf(&d.SalesTax, p.SalesTax)
	setPtrIf(&d.DocFee, p.DocFee)
	setPtrIf(&d.TradeInValue, p.TradeInValue)
	setPtrIf(&d.DownPayment, p.DownPayment)
	setPtrIf(&d.FinancedAmount, p.FinancedAmount)
	setIf(&d.DocumentIDs, p.DocumentIDs)
	setIf(&d.CobuyerData, p.CobuyerData)
}

// DealFilter narrows ListDeals. Zero fields match everything.
type DealFilter struct {
	ClientID  string
	VehicleID string
	Status    string
}

// Document is metadata for a file attached to a deal. The bytes live on
// disk or in remote storage at FilePath. Documents are not tenant-scoped.
type Document struct {
	ID           string     `json:"id"`
	DealID       string     `json:"deal_id"`
	Type         string     `json:"type"`
	Filename     string     `json:"filename"`
	FilePath     string     `json:"file_path"`
	FileSize     *int64     `json:"file_size,omitempty"`
	FileChecksum *string    `json:"file_checksum,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	SyncedAt     *time.Time `json:"synced_at,omitempty"`
}

// DocumentPatch lists the document fields an update may change.
type DocumentPatch struct {
	Type         *string `json:"type,omitempty"`
	Filename     *string `json:"filename,omitempty"`
	FilePath     *string `json:"file_path,omitempty"`
	FileSize     *int64  `json:"file_size,omitempty"`
	FileChecksum *string `json:"file_checksum,omitempty"`
}

func (p DocumentPatch) apply(d *Document) {
	setIf(&d.Type, p.Type)
	setIf(&d.Filename, p.Filename)
	setIf(&d.FilePath, p.FilePath)
	setPtrIf(&d.FileSize, p.FileSize)
	setPtrIf(&d.FileChecksum, p.FileChecksum)
}

// DocumentFilter narrows ListDocuments. Zero fields match everything.
type DocumentFilter struct {
	DealID string
}

// Setting is one application key/value pair.
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DealStats summarises a tenant's deals.
type DealStats struct {
	TotalCount    int64            `json:"total_count"`
	CountByStatus map[string]int64 `json:"count_by_status"`
	TotalAmount   float64          `json:"total_amount"`
	AverageAmount float64          `json:"average_amount"`
}

// Change is one entry in the sync outbox.
type Change struct {
	ID         int64      `json:"id"`
	EntityType string     `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	Operation  string     `json:"operation"`
	TenantID   string     `json:"tenant_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	SyncedAt   *time.Time `json:"synced_at,omitempty"`
}

// Entity types and operations recorded in the outbox.
const (
	EntityClient   = "client"
	EntityVehicle  = "vehicle"
	EntityDeal     = "deal"
	EntityDocument = "document"
	EntitySetting  = "setting"

	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setPtrIf[T any](dst **T, v *T) {
	if v != nil {
		c := *v
		*dst = &c
	}
}
