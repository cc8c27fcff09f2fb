package core

import "time"

// Event types group audit actions by the subsystem that produced them.
const (
	EventTypeAuth    = "auth"
	EventTypeData    = "data"
	EventTypeBackup  = "backup"
	EventTypeGDPR    = "gdpr"
	EventTypeSystem  = "system"
	EventTypeConsent = "consent"
)

// Audit actions. Every privileged operation records exactly one terminal
// event per attempt under one of these names.
const (
	ActionCaseCreate   = "case.create"
	ActionCaseRead     = "case.read"
	ActionCaseUpdate   = "case.update"
	ActionCaseDelete   = "case.delete"
	ActionEvidenceAdd  = "evidence.add"
	ActionEvidenceRead = "evidence.read"
	ActionEvidenceTag  = "evidence.tag"

	ActionBackupCreate  = "backup.create"
	ActionBackupRestore = "backup.restore"
	ActionBackupDelete  = "backup.delete"
	ActionBackupPrune   = "backup.prune"
	ActionMigrationsRun = "migrations.run"

	ActionGDPRExport = "gdpr.export"
	ActionGDPRErase  = "gdpr.erase"

	ActionAuthFailure = "auth.failure"
)

// Resource types referenced by audit events and ownership checks.
const (
	ResourceCase     = "case"
	ResourceEvidence = "evidence"
	ResourceBackup   = "backup"
	ResourceDatabase = "database"
	ResourceUser     = "user"
)

// AuditEvent is one immutable row of the audit ledger. A nil UserID denotes
// a system-initiated action. Timestamp is assigned at write time.
type AuditEvent struct {
	ID           string
	EventType    string
	UserID       *int64
	ResourceType string
	ResourceID   string
	Action       string
	Success      bool
	Details      map[string]any
	ErrorMessage string
	Timestamp    time.Time
}

// AuditFilter narrows List results. Zero values mean "no constraint".
type AuditFilter struct {
	UserID       *int64
	ResourceType string
	ResourceID   string
	Action       string
	Since        *time.Time
	Until        *time.Time
	Limit        int
}
