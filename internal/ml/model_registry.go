package ml

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Model types tracked by the registry.
const (
	ModelTypePredictor    = "predictor"
	ModelTypeContent      = "content"
	ModelTypeSegmentation = "segmentation"
)

// Model load statuses.
const (
	StatusLoaded      = "loaded"
	StatusFallback    = "fallback"
	StatusUnavailable = "unavailable"
)

// ModelInfo contains metadata about a loaded model artifact
type ModelInfo struct {
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	Path      string    `json:"path"`
	ModelType string    `json:"model_type"` // "predictor", "content", "segmentation"
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	LoadedAt  time.Time `json:"loaded_at"`
}

// ModelRegistry records the outcome of the most recent artifact loads
type ModelRegistry struct {
	models map[string]*ModelInfo
	mutex  sync.RWMutex
	logger *logrus.Logger
}

// NewModelRegistry creates a new model registry
func NewModelRegistry(logger *logrus.Logger) *ModelRegistry {
	return &ModelRegistry{
		models: make(map[string]*ModelInfo),
		logger: logger,
	}
}

// RegisterModel records a model, replacing any previous entry with the same name
func (mr *ModelRegistry) RegisterModel(info *ModelInfo) error {
	if info.Name == "" {
		return fmt.Errorf("model name cannot be empty")
	}

	validTypes := map[string]bool{
		ModelTypePredictor:    true,
		ModelTypeContent:      true,
		ModelTypeSegmentation: true,
	}
	if !validTypes[info.ModelType] {
		return fmt.Errorf("invalid model type: %s", info.ModelType)
	}
	if info.LoadedAt.IsZero() {
		info.LoadedAt = time.Now()
	}

	mr.mutex.Lock()
	mr.models[info.Name] = info
	mr.mutex.Unlock()

	entry := mr.logger.WithFields(logrus.Fields{
		"model_name": info.Name,
		"model_type": info.ModelType,
		"version":    info.Version,
		"status":     info.Status,
	})
	if info.Status == StatusLoaded {
		entry.Info("Model registered")
	} else {
		entry.WithField("reason", info.Error).Warn("Model registered in degraded state")
	}

	return nil
}

// GetModelInfo returns information about a registered model
func (mr *ModelRegistry) GetModelInfo(name string) (*ModelInfo, error) {
	mr.mutex.RLock()
	defer mr.mutex.RUnlock()

	info, exists := mr.models[name]
	if !exists {
		return nil, fmt.Errorf("model not found: %s", name)
	}

	copied := *info
	return &copied, nil
}

// ListModels returns all registered models sorted by name
func (mr *ModelRegistry) ListModels() []ModelInfo {
	mr.mutex.RLock()
	defer mr.mutex.RUnlock()

	result := make([]ModelInfo, 0, len(mr.models))
	for _, info := range mr.models {
		result = append(result, *info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	return result
}
