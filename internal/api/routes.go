// Package api provides HTTP handlers for the multivec tile server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/multivec-tiles/server/internal/cache"
	"github.com/multivec-tiles/server/internal/multivec"
	"github.com/multivec-tiles/server/internal/service"
)

// RouterConfig contains router configuration.
type RouterConfig struct {
	Registry    *DatasetRegistry
	Cache       *cache.Manager
	CORSOrigins []string
	Logger      *slog.Logger
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Link"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/tileset_info/", tilesetInfoHandler(cfg.Registry))
		r.Get("/tiles/", tilesHandler(cfg.Registry, logger))
		r.Get("/tilesets/", tilesetsHandler(cfg.Registry))
		r.Get("/cache_stats", cacheStatsHandler(cfg.Cache))
	})

	// Dataset-scoped routes: /d/{dataset}/...
	r.Route("/d/{dataset}", func(r chi.Router) {
		r.Use(datasetMiddleware(cfg.Registry))

		r.Get("/tiles/{z}/{x}.png", datasetPreviewHandler(logger))
		r.Get("/tileset_info", datasetTilesetInfoHandler)
		r.Post("/reset", datasetResetHandler)
	})

	return r
}

// Context key for dataset service
type ctxKey string

const datasetServiceKey ctxKey = "datasetService"

// datasetMiddleware resolves the dataset from URL and injects the tile service into context.
func datasetMiddleware(registry *DatasetRegistry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			datasetID := chi.URLParam(r, "dataset")
			svc := registry.Get(datasetID)
			if svc == nil {
				http.Error(w, "dataset not found: "+datasetID, http.StatusNotFound)
				return
			}
			ctx := context.WithValue(r.Context(), datasetServiceKey, svc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func getDatasetService(r *http.Request) *service.TileService {
	if svc, ok := r.Context().Value(datasetServiceKey).(*service.TileService); ok {
		return svc
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func unknownDataset(id string) json.RawMessage {
	data, _ := json.Marshal(map[string]string{"error": "No such tileset with uid: " + id})
	return data
}

// tilesetInfoHandler returns tileset info for every ?d= dataset.
func tilesetInfoHandler(registry *DatasetRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids := r.URL.Query()["d"]
		response := make(map[string]json.RawMessage, len(ids))
		for _, id := range ids {
			svc := registry.Get(id)
			if svc == nil {
				response[id] = unknownDataset(id)
				continue
			}
			response[id] = svc.TilesetInfo(r.Context())
		}
		writeJSON(w, http.StatusOK, response)
	}
}

// splitTileID splits "<dataset>.<zoom>.<column>" at the first dot.
func splitTileID(id string) (dataset, tile string, ok bool) {
	dataset, tile, ok = strings.Cut(id, ".")
	if !ok || dataset == "" || tile == "" {
		return "", "", false
	}
	return dataset, tile, true
}

// tilesHandler returns tiles for every ?d= id, grouped per dataset so that
// each dataset's batch is fetched concurrently.
func tilesHandler(registry *DatasetRegistry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		byDataset := make(map[string][]string)
		var order []string
		for _, id := range r.URL.Query()["d"] {
			dataset, tile, ok := splitTileID(id)
			if !ok {
				logger.Warn("invalid tile id", "tile", id)
				continue
			}
			if _, seen := byDataset[dataset]; !seen {
				order = append(order, dataset)
			}
			byDataset[dataset] = append(byDataset[dataset], tile)
		}

		response := make(map[string]json.RawMessage)
		for _, dataset := range order {
			svc := registry.Get(dataset)
			if svc == nil {
				for _, tile := range byDataset[dataset] {
					response[dataset+"."+tile] = unknownDataset(dataset)
				}
				continue
			}
			for tile, data := range svc.Tiles(r.Context(), byDataset[dataset]) {
				response[dataset+"."+tile] = data
			}
		}
		writeJSON(w, http.StatusOK, response)
	}
}

// tilesetsHandler lists the configured datasets.
func tilesetsHandler(registry *DatasetRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		datasets := registry.Datasets()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"count":   len(datasets),
			"default": registry.DefaultDatasetID(),
			"results": datasets,
		})
	}
}

func cacheStatsHandler(m *cache.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			writeJSON(w, http.StatusOK, map[string]interface{}{})
			return
		}
		writeJSON(w, http.StatusOK, m.Stats())
	}
}

// Dataset-scoped handlers (get service from context)

func datasetTilesetInfoHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	w.Header().Set("Content-Type", "application/json")
	w.Write(svc.TilesetInfo(r.Context()))
}

func datasetResetHandler(w http.ResponseWriter, r *http.Request) {
	getDatasetService(r).Reset()
	w.WriteHeader(http.StatusNoContent)
}

// datasetPreviewHandler renders a tile as a PNG heatmap. Tiles outside the
// genome get a transparent placeholder.
func datasetPreviewHandler(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc := getDatasetService(r)

		z, errZ := strconv.Atoi(chi.URLParam(r, "z"))
		x, errX := strconv.Atoi(chi.URLParam(r, "x"))
		if errZ != nil || errX != nil {
			http.Error(w, "invalid tile coordinates", http.StatusBadRequest)
			return
		}

		data, err := svc.Preview(r.Context(), z, x, r.URL.Query().Get("colormap"))
		switch {
		case errors.Is(err, multivec.ErrCoordinateOutOfRange):
			data, err = svc.EmptyPreview()
		case errors.Is(err, multivec.ErrMetadataFetch), errors.Is(err, multivec.ErrMetadataParse):
			logger.Warn("preview metadata unavailable", "dataset", svc.DatasetID(), "err", err)
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		if err != nil {
			logger.Warn("preview failed", "dataset", svc.DatasetID(), "tile", multivec.TileID(z, x), "err", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Write(data)
	}
}
