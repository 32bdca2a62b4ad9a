package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"regexp"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	_ "modernc.org/sqlite" // SQLite driver
)

var tracer = otel.Tracer("productqa/catalog")

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

const selectColumns = `product_name, weight, manufacturer, expiration_date, storage_method,
       delivery_time, reference_price, allergy_info, in_stock,
       certifications, health_description, product_details`

// SQLiteSource reads product records from a SQLite catalog file.
type SQLiteSource struct {
	db     *sql.DB
	path   string
	query  string
	logger *zap.Logger
}

// OpenSQLite opens the catalog at path read-only. The file is not touched
// until the first Records call, so a missing file surfaces there as
// ErrSourceUnavailable.
func OpenSQLite(path, table string, logger *zap.Logger) (*SQLiteSource, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: catalog path is required", ErrSourceUnavailable)
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid table name %q", ErrSourceUnavailable, table)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn := "file:" + filepath.ToSlash(path) + "?mode=ro&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrSourceUnavailable, path, err)
	}

	return &SQLiteSource{
		db:     db,
		path:   path,
		query:  "SELECT " + selectColumns + " FROM " + table,
		logger: logger,
	}, nil
}

// Records returns every row of the catalog table in table order.
func (s *SQLiteSource) Records(ctx context.Context) ([]ProductRecord, error) {
	ctx, span := tracer.Start(ctx, "catalog.Records")
	defer span.End()

	records, err := s.readAll(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "catalog read failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("record_count", len(records)))
	s.logger.Debug("catalog records loaded",
		zap.String("path", s.path),
		zap.Int("count", len(records)))
	return records, nil
}

func (s *SQLiteSource) readAll(ctx context.Context) ([]ProductRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.query)
	if err != nil {
		return nil, fmt.Errorf("%w: querying %s: %v", ErrSourceUnavailable, s.path, err)
	}
	defer rows.Close()

	var records []ProductRecord
	for rows.Next() {
		var cols [12]sql.NullString
		dest := make([]any, len(cols))
		for i := range cols {
			dest[i] = &cols[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("%w: scanning row: %v", ErrSourceUnavailable, err)
		}
		records = append(records, ProductRecord{
			ProductName:       cols[0].String,
			Weight:            cols[1].String,
			Manufacturer:      cols[2].String,
			ExpirationDate:    cols[3].String,
			StorageMethod:     cols[4].String,
			DeliveryTime:      cols[5].String,
			ReferencePrice:    cols[6].String,
			AllergyInfo:       cols[7].String,
			InStock:           cols[8].String,
			Certifications:    cols[9].String,
			HealthDescription: cols[10].String,
			ProductDetails:    cols[11].String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating rows: %v", ErrSourceUnavailable, err)
	}
	return records, nil
}

// Ping checks that the catalog file can be opened and queried.
func (s *SQLiteSource) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

var _ Source = (*SQLiteSource)(nil)
