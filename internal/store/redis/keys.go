package redis

const (
	// KeyLastSweep holds the JSON report of the most recent sweep.
	KeyLastSweep = "pricewatch:sweep:last"
	// KeySweeps is a capped list of recent sweep reports, newest first.
	KeySweeps = "pricewatch:sweeps"
	// KeyPrefixFailure prefixes per-product failure records.
	KeyPrefixFailure = "pricewatch:failure:"
)

// FailureKey returns the key holding the last failure of a product.
func FailureKey(productID string) string {
	return KeyPrefixFailure + productID
}
