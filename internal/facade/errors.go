package facade

import "errors"

var (
	// ErrOutsideProvider is the panic value of facade calls made before
	// Provider.Open or after Provider.Close.
	ErrOutsideProvider = errors.New("facade: used outside of an open provider")
	ErrProviderClosed  = errors.New("facade: provider already closed")
)
