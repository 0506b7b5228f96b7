package storage

import "trendmaker/internal/ports"

// Provider is the archive contract. It is an alias to
// ports.StorageProvider to keep call-sites simple.
type Provider = ports.StorageProvider
