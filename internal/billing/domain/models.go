// Package domain holds the enterprise billing records. One record exists per
// workspace and period; its ID is derived from that pair so reruns of a
// billing sweep collide instead of double-billing.
package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var (
	ErrRecordNotFound = errors.New("billing_record_not_found")
	ErrInvalidPeriod  = errors.New("invalid_billing_period")
)

// RecordStatus tracks collection of a billing record.
type RecordStatus string

const (
	RecordPending RecordStatus = "PENDING"
	RecordCharged RecordStatus = "CHARGED"
	RecordFailed  RecordStatus = "FAILED"
)

// BillingRecord is the invoice line for one enterprise workspace period.
// Amounts are minor units.
type BillingRecord struct {
	ID             string       `gorm:"type:text;primaryKey"`
	WorkspaceID    string       `gorm:"type:text;not null;uniqueIndex:ux_billing_period,priority:1"`
	PeriodStart    time.Time    `gorm:"not null;uniqueIndex:ux_billing_period,priority:2"`
	PeriodEnd      time.Time    `gorm:"not null"`
	RevenueMinor   int64        `gorm:"not null"`
	ShareMinor     int64        `gorm:"not null"`
	AmountMinor    int64        `gorm:"not null"`
	MinimumApplied bool         `gorm:"not null;default:false"`
	Status         RecordStatus `gorm:"type:text;not null"`
	TransactionRef string       `gorm:"type:text"`
	Attempts       int          `gorm:"not null;default:0"`
	CreatedAt      time.Time    `gorm:"not null"`
	UpdatedAt      time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (BillingRecord) TableName() string { return "billing_records" }

// RecordID derives the deterministic record key for a workspace period.
func RecordID(workspaceID string, periodStart, periodEnd time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d",
		workspaceID, periodStart.UTC().Unix(), periodEnd.UTC().Unix())))
	return hex.EncodeToString(sum[:16])
}

// Statement is the computed bill before persistence.
type Statement struct {
	WorkspaceID    string    `json:"workspace_id"`
	PeriodStart    time.Time `json:"period_start"`
	PeriodEnd      time.Time `json:"period_end"`
	RevenueMinor   int64     `json:"revenue_minor"`
	ShareMinor     int64     `json:"share_minor"`
	AmountMinor    int64     `json:"amount_minor"`
	MinimumApplied bool      `json:"minimum_applied"`
}

// RunSummary reports one billing sweep.
type RunSummary struct {
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Workspaces  int       `json:"workspaces"`
	Created     int       `json:"created"`
	Skipped     int       `json:"skipped"`
	Charged     int       `json:"charged"`
	Failed      int       `json:"failed"`
}

type Service interface {
	// Calculate computes max(revenue share, monthly minimum) for one
	// workspace without writing anything.
	Calculate(ctx context.Context, workspaceID string, periodStart, periodEnd time.Time) (Statement, error)
	// RunForPeriod bills every enterprise workspace for the period. Reruns
	// skip workspaces already billed for that period.
	RunForPeriod(ctx context.Context, periodStart, periodEnd time.Time) (RunSummary, error)
	// RetryFailed re-attempts collection for records in the period that
	// never reached CHARGED, whether the charge failed or never ran.
	RetryFailed(ctx context.Context, periodStart time.Time) (RunSummary, error)
	ListRecords(ctx context.Context, workspaceID string) ([]BillingRecord, error)
}

type Repository interface {
	// Insert creates the record unless its deterministic key already
	// exists; created reports whether a row was written.
	Insert(ctx context.Context, tx *gorm.DB, record *BillingRecord) (created bool, err error)
	Update(ctx context.Context, tx *gorm.DB, record *BillingRecord) error
	FindByID(ctx context.Context, tx *gorm.DB, id string) (*BillingRecord, error)
	ListByWorkspace(ctx context.Context, tx *gorm.DB, workspaceID string) ([]BillingRecord, error)
	ListByStatus(ctx context.Context, tx *gorm.DB, statuses []RecordStatus, periodStart time.Time) ([]BillingRecord, error)
}
