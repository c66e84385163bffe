package api

import (
	"github.com/multivec-tiles/server/internal/service"
)

// DatasetInfo contains information about a dataset for the API response.
type DatasetInfo struct {
	UUID     string `json:"uuid"`
	Name     string `json:"name"`
	Datatype string `json:"datatype"`
	Filetype string `json:"filetype"`
}

// DatasetRegistry holds tile services for all configured datasets.
type DatasetRegistry struct {
	services       map[string]*service.TileService
	defaultDataset string
	datasetOrder   []string
}

// NewDatasetRegistry creates a new dataset registry.
func NewDatasetRegistry(defaultDataset string, order []string) *DatasetRegistry {
	return &DatasetRegistry{
		services:       make(map[string]*service.TileService),
		defaultDataset: defaultDataset,
		datasetOrder:   order,
	}
}

// Register adds a tile service for a dataset.
func (r *DatasetRegistry) Register(datasetID string, svc *service.TileService) {
	r.services[datasetID] = svc
}

// Get returns the tile service for a dataset, or nil if not found.
func (r *DatasetRegistry) Get(datasetID string) *service.TileService {
	return r.services[datasetID]
}

// DefaultDatasetID returns the default dataset ID.
func (r *DatasetRegistry) DefaultDatasetID() string {
	return r.defaultDataset
}

// DatasetIDs returns all dataset IDs in config order.
func (r *DatasetRegistry) DatasetIDs() []string {
	return r.datasetOrder
}

// Datasets returns dataset info for all registered datasets.
func (r *DatasetRegistry) Datasets() []DatasetInfo {
	infos := make([]DatasetInfo, 0, len(r.datasetOrder))
	for _, id := range r.datasetOrder {
		svc := r.services[id]
		if svc == nil {
			continue
		}
		infos = append(infos, DatasetInfo{
			UUID:     id,
			Name:     svc.Name(),
			Datatype: "multivec",
			Filetype: "zarr-multivec",
		})
	}
	return infos
}
