// Package catalog reads product records and projects them into the
// documents that get embedded and indexed.
package catalog

import (
	"context"
	"errors"
)

var (
	// ErrSourceUnavailable is returned when the record source cannot be
	// opened or queried. Ingestion treats it as fatal.
	ErrSourceUnavailable = errors.New("record source unavailable")

	// ErrProjection is returned for a record that cannot be rendered.
	// Ingestion skips the record and continues.
	ErrProjection = errors.New("record projection failed")
)

// ProductRecord is a read-only snapshot of one catalog row. Every attribute
// is kept in its textual form; SQL NULL becomes "".
type ProductRecord struct {
	ProductName       string
	Weight            string
	Manufacturer      string
	ExpirationDate    string
	StorageMethod     string
	DeliveryTime      string
	ReferencePrice    string
	AllergyInfo       string
	InStock           string
	Certifications    string
	HealthDescription string
	ProductDetails    string
}

// Document is the retrievable rendering of a ProductRecord.
type Document struct {
	ID   string
	Text string
}

// Source returns every product record in one bulk read.
type Source interface {
	Records(ctx context.Context) ([]ProductRecord, error)
}

// StaticSource serves a fixed slice of records.
type StaticSource []ProductRecord

// Records implements Source.
func (s StaticSource) Records(ctx context.Context) ([]ProductRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]ProductRecord, len(s))
	copy(out, s)
	return out, nil
}

var _ Source = StaticSource(nil)
