package cache

const (
	// PriceListKey holds the resolved price list.
	PriceListKey = "pricing:pricelist:v1"

	// ProductsPrefix namespaces every catalog entry.
	ProductsPrefix = "catalog:products:"
	// ProductListKey holds the public product list.
	ProductListKey = ProductsPrefix + "list"
)

// ProductDetailKey returns the cache key for a product detail payload.
func ProductDetailKey(slug string) string {
	return ProductsPrefix + "detail:" + slug
}
