package catalog

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func omegaGel() ProductRecord {
	return ProductRecord{
		ProductName:       "OmegaGel",
		Weight:            "50",
		Manufacturer:      "NutriCo",
		ExpirationDate:    "2026-12-31",
		StorageMethod:     "Store in a cool, dry place",
		DeliveryTime:      "3-5 days",
		ReferencePrice:    "19.99",
		AllergyInfo:       "Contains fish",
		InStock:           "1",
		Certifications:    "GMP",
		HealthDescription: "Supports heart health",
		ProductDetails:    "60 softgels",
	}
}

func TestProject_OmegaGel(t *testing.T) {
	doc, err := Project(omegaGel())
	require.NoError(t, err)

	assert.Equal(t, "OmegaGel", doc.ID)
	for _, want := range []string{"OmegaGel", "NutriCo", "50g", "19.99 USD", "In Stock"} {
		assert.Contains(t, doc.Text, want)
	}
}

func TestProject_FixedTemplate(t *testing.T) {
	doc, err := Project(omegaGel())
	require.NoError(t, err)

	want := "Product Name: OmegaGel is manufactured by NutriCo.\n" +
		"It weighs 50g and is priced at 19.99 USD.\n" +
		"The product is described as: Supports heart health.\n" +
		"Key details: 60 softgels.\n" +
		"Storage Method: Store in a cool, dry place.\n" +
		"Stock Status: In Stock.\n" +
		"Certifications: GMP.\n" +
		"Allergy Information: Contains fish.\n" +
		"Expiration Date: 2026-12-31.\n" +
		"Delivery Time: 3-5 days.\n"
	assert.Equal(t, want, doc.Text)

	again, err := Project(omegaGel())
	require.NoError(t, err)
	assert.Equal(t, doc, again)
}

func TestProject_RendersEveryAttribute(t *testing.T) {
	r := omegaGel()
	doc, err := Project(r)
	require.NoError(t, err)

	for _, v := range []string{
		r.ProductName, r.Weight, r.Manufacturer, r.ExpirationDate, r.StorageMethod,
		r.DeliveryTime, r.ReferencePrice, r.AllergyInfo, r.Certifications,
		r.HealthDescription, r.ProductDetails,
	} {
		assert.Contains(t, doc.Text, v)
	}
}

func TestProject_StockFlag(t *testing.T) {
	tests := []struct {
		flag    string
		want    string
		wantErr bool
	}{
		{"1", "Stock Status: In Stock.", false},
		{"2", "Stock Status: In Stock.", false},
		{" 1 ", "Stock Status: In Stock.", false},
		{"0", "Stock Status: Out of Stock.", false},
		{"true", "Stock Status: In Stock.", false},
		{"false", "Stock Status: Out of Stock.", false},
		{"yes", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			r := omegaGel()
			r.InStock = tt.flag
			doc, err := Project(r)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrProjection))
				return
			}
			require.NoError(t, err)
			assert.Contains(t, doc.Text, tt.want)
		})
	}
}

func TestProject_EmptyName(t *testing.T) {
	r := omegaGel()
	r.ProductName = "  "
	_, err := Project(r)
	assert.ErrorIs(t, err, ErrProjection)
}

func createCatalog(t *testing.T, rows [][]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "functional_products.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE Functional_Products (
		product_name TEXT, weight INTEGER, manufacturer TEXT, expiration_date TEXT,
		storage_method TEXT, delivery_time TEXT, reference_price REAL, allergy_info TEXT,
		in_stock INTEGER, certifications TEXT, health_description TEXT, product_details TEXT)`)
	require.NoError(t, err)

	for _, row := range rows {
		_, err := db.Exec(`INSERT INTO Functional_Products VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`, row...)
		require.NoError(t, err)
	}
	return path
}

func TestSQLiteSource_Records(t *testing.T) {
	path := createCatalog(t, [][]any{
		{"OmegaGel", 50, "NutriCo", "2026-12-31", "Cool and dry", "3 days", 19.99, "Fish", 1, "GMP", "Heart", "60 caps"},
		{"ZincBoost", 30, "MinLabs", nil, "Room temp", "2 days", 9.5, nil, 0, nil, "Immunity", "30 tabs"},
	})

	src, err := OpenSQLite(path, "Functional_Products", nil)
	require.NoError(t, err)
	defer src.Close()

	records, err := src.Records(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "OmegaGel", records[0].ProductName)
	assert.Equal(t, "50", records[0].Weight)
	assert.Equal(t, "19.99", records[0].ReferencePrice)
	assert.Equal(t, "1", records[0].InStock)

	assert.Equal(t, "", records[1].ExpirationDate, "NULL renders as empty")
	assert.Equal(t, "9.5", records[1].ReferencePrice)

	doc, err := Project(records[1])
	require.NoError(t, err)
	assert.True(t, strings.Contains(doc.Text, "Out of Stock"))
	assert.Contains(t, doc.Text, "Certifications: .\n")
}

func TestSQLiteSource_Unavailable(t *testing.T) {
	src, err := OpenSQLite(filepath.Join(t.TempDir(), "missing.db"), "Functional_Products", nil)
	require.NoError(t, err)
	defer src.Close()

	_, err = src.Records(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.ErrorIs(t, src.Ping(context.Background()), ErrSourceUnavailable)
}

func TestSQLiteSource_MissingTable(t *testing.T) {
	path := createCatalog(t, nil)
	src, err := OpenSQLite(path, "Other_Table", nil)
	require.NoError(t, err)
	defer src.Close()

	_, err = src.Records(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestOpenSQLite_RejectsBadTableName(t *testing.T) {
	_, err := OpenSQLite("catalog.db", "products; DROP TABLE x", nil)
	assert.ErrorIs(t, err, ErrSourceUnavailable)

	_, err = OpenSQLite("", "Functional_Products", nil)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestStaticSource(t *testing.T) {
	src := StaticSource{omegaGel()}
	records, err := src.Records(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Records(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
