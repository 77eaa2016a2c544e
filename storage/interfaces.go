package storage

import "shopee-research/models"

// ResultWriter is the interface any export sink must satisfy. Each Write
// replaces whatever the previous run exported.
type ResultWriter interface {
	Write(runID string, rs models.ResultSet) error
	Close() error
}
