package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AuditAction enumerates the ledger mutations that produce audit entries.
type AuditAction string

const (
	AuditInsert  AuditAction = "insert"
	AuditUpdate  AuditAction = "update"
	AuditDelete  AuditAction = "delete"
	AuditRestore AuditAction = "restore"
)

// AuditEntry records a ledger mutation with its before/after payloads. Entries
// are written to the audit store and may additionally be forwarded to an
// external sink; the sink's persistence format is not the engine's concern.
type AuditEntry struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Action        AuditAction        `bson:"action" json:"action"`
	SubjectID     string             `bson:"subject_id" json:"subject_id"`
	MeasurementID primitive.ObjectID `bson:"measurement_id" json:"measurement_id"`
	Before        *Measurement       `bson:"before,omitempty" json:"before,omitempty"`
	After         *Measurement       `bson:"after,omitempty" json:"after,omitempty"`
	Actor         string             `bson:"actor" json:"actor"`
	Timestamp     time.Time          `bson:"timestamp" json:"timestamp"`
}
