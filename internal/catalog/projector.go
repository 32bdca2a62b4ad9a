package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	inStock    = "In Stock"
	outOfStock = "Out of Stock"
)

// Project renders r into a Document. The field order is fixed so identical
// records always produce identical text, and therefore identical embeddings.
func Project(r ProductRecord) (Document, error) {
	if strings.TrimSpace(r.ProductName) == "" {
		return Document{}, fmt.Errorf("%w: empty product_name", ErrProjection)
	}

	stocked, err := parseStock(r.InStock)
	if err != nil {
		return Document{}, fmt.Errorf("%w: product %q: %v", ErrProjection, r.ProductName, err)
	}
	status := outOfStock
	if stocked {
		status = inStock
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Product Name: %s is manufactured by %s.\n", r.ProductName, r.Manufacturer)
	fmt.Fprintf(&b, "It weighs %sg and is priced at %s USD.\n", r.Weight, r.ReferencePrice)
	fmt.Fprintf(&b, "The product is described as: %s.\n", r.HealthDescription)
	fmt.Fprintf(&b, "Key details: %s.\n", r.ProductDetails)
	fmt.Fprintf(&b, "Storage Method: %s.\n", r.StorageMethod)
	fmt.Fprintf(&b, "Stock Status: %s.\n", status)
	fmt.Fprintf(&b, "Certifications: %s.\n", r.Certifications)
	fmt.Fprintf(&b, "Allergy Information: %s.\n", r.AllergyInfo)
	fmt.Fprintf(&b, "Expiration Date: %s.\n", r.ExpirationDate)
	fmt.Fprintf(&b, "Delivery Time: %s.\n", r.DeliveryTime)

	return Document{ID: r.ProductName, Text: b.String()}, nil
}

// parseStock accepts an integer flag (nonzero means stocked) or a boolean.
func parseStock(v string) (bool, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil {
		return n != 0, nil
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b, nil
	}
	return false, fmt.Errorf("malformed stock flag %q", v)
}
