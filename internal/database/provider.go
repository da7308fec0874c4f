package database

import (
	"context"
	"fmt"
)

var (
	postgresSignatureWriter  func() SignatureWriter
	postgresAttendanceWriter func() AttendanceWriter
	postgresOutboxWriter     func() OutboxWriter
	postgresInitialized      bool
)

// RegisterPostgresBackend registers PostgreSQL repository constructors.
// This is called by the postgres package to avoid import cycles.
func RegisterPostgresBackend(
	signatures func() SignatureWriter,
	attendance func() AttendanceWriter,
	outbox func() OutboxWriter,
) {
	postgresSignatureWriter = signatures
	postgresAttendanceWriter = attendance
	postgresOutboxWriter = outbox
	postgresInitialized = true
}

// GetSignatureReader returns the read-only view of the signature store.
func GetSignatureReader(ctx context.Context) (SignatureReader, error) {
	return GetSignatureWriter(ctx)
}

// GetSignatureWriter returns a SignatureWriter from the PostgreSQL backend
func GetSignatureWriter(ctx context.Context) (SignatureWriter, error) {
	if !postgresInitialized {
		return nil, fmt.Errorf("PostgreSQL backend not initialized: DATABASE_URL is required")
	}
	if postgresSignatureWriter == nil {
		return nil, fmt.Errorf("PostgreSQL signature writer not registered")
	}
	return postgresSignatureWriter(), nil
}

// GetAttendanceWriter returns an AttendanceWriter from the PostgreSQL backend
func GetAttendanceWriter(ctx context.Context) (AttendanceWriter, error) {
	if !postgresInitialized {
		return nil, fmt.Errorf("PostgreSQL backend not initialized: DATABASE_URL is required")
	}
	if postgresAttendanceWriter == nil {
		return nil, fmt.Errorf("PostgreSQL attendance writer not registered")
	}
	return postgresAttendanceWriter(), nil
}

// GetOutboxWriter returns an OutboxWriter from the PostgreSQL backend
func GetOutboxWriter(ctx context.Context) (OutboxWriter, error) {
	if !postgresInitialized {
		return nil, fmt.Errorf("PostgreSQL backend not initialized: DATABASE_URL is required")
	}
	if postgresOutboxWriter == nil {
		return nil, fmt.Errorf("PostgreSQL outbox writer not registered")
	}
	return postgresOutboxWriter(), nil
}
