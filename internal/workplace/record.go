// Package workplace defines the canonical workplace record and the domain
// rules shared by every layer that handles one.
package workplace

import (
	"strings"
	"time"
)

// Operation identifies one kind of record mutation.
type Operation string

const (
	// OperationInsert records a row that did not exist locally before.
	OperationInsert Operation = "insert"
	// OperationUpdate records a full replacement of an existing row.
	OperationUpdate Operation = "update"
	// OperationDelete records a row removal.
	OperationDelete Operation = "delete"
)

// Valid reports whether the operation is one of the known kinds.
func (o Operation) Valid() bool {
	switch o {
	case OperationInsert, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// SyncStatus identifies one remote propagation state.
type SyncStatus string

const (
	// SyncStatusPending means the local state has not reached the authority yet.
	SyncStatusPending SyncStatus = "pending"
	// SyncStatusSynced means the authority acknowledged the current state.
	SyncStatusSynced SyncStatus = "synced"
	// SyncStatusError means the last propagation attempt failed.
	SyncStatusError SyncStatus = "error"
)

// Valid reports whether the status is one of the known states.
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncStatusPending, SyncStatusSynced, SyncStatusError:
		return true
	}
	return false
}

// Record is one workplace as reported by the national pension data service.
// Seq is the upstream identity; Name repeats across reporting periods, so a
// name lookup may return several records. Numeric fields are pointers because
// the upstream detail and monthly endpoints are optional and zero is a real
// value.
type Record struct {
	Seq                 string     `json:"seq"`
	Name                string     `json:"name"`
	RegistrationNo      string     `json:"registrationNo,omitempty"`
	DataPeriod          string     `json:"dataPeriod,omitempty"`
	Address             string     `json:"address,omitempty"`
	SubscriberCount     *int64     `json:"subscriberCount,omitempty"`
	MonthlyNoticeAmount *int64     `json:"monthlyNoticeAmount,omitempty"`
	AvgMonthlySalary    *float64   `json:"avgMonthlySalary,omitempty"`
	NewHireCount        *int64     `json:"newHireCount,omitempty"`
	LeaverCount         *int64     `json:"leaverCount,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
	LastAccessedAt      time.Time  `json:"lastAccessedAt"`
	AccessCount         int64      `json:"accessCount"`
	SyncStatus          SyncStatus `json:"syncStatus"`
}

// NormalizeSeq canonicalizes an upstream workplace identifier.
func NormalizeSeq(raw string) string {
	return strings.TrimSpace(raw)
}

// Pension premium notices bill 9% of the payroll base, so dividing the notice
// amount by the rate recovers the workplace's total payroll. The flat
// allowance stands in for untaxed meal and transport pay.
const (
	premiumRate   = 0.09
	flatAllowance = 200000
)

// DeriveAvgMonthlySalary estimates one subscriber's monthly salary from the
// workplace premium notice. It returns nil unless the subscriber count is
// positive and a nonzero notice amount is known.
func DeriveAvgMonthlySalary(subscriberCount, monthlyNoticeAmount *int64) *float64 {
	if subscriberCount == nil || monthlyNoticeAmount == nil {
		return nil
	}
	if *subscriberCount <= 0 || *monthlyNoticeAmount == 0 {
		return nil
	}
	value := float64(*monthlyNoticeAmount)/premiumRate/float64(*subscriberCount) + flatAllowance
	return &value
}
