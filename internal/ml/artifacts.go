package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/temcen/tripwise/internal/validation"
	"github.com/temcen/tripwise/pkg/models"
)

// ArtifactPaths locates model artifacts. File names are relative to Dir.
type ArtifactPaths struct {
	Dir          string
	Manifest     string
	Predictor    string
	ContentIndex string
	Segmentation string
}

// Manifest lists the artifacts of one training run.
type Manifest struct {
	Version   string                   `yaml:"version"`
	Artifacts map[string]ManifestEntry `yaml:"artifacts"`
}

type ManifestEntry struct {
	File      string    `yaml:"file"`
	Version   string    `yaml:"version"`
	TrainedAt time.Time `yaml:"trained_at"`
}

// ContentIndexArtifact is the on-disk form of a fitted TF-IDF vectorizer.
type ContentIndexArtifact struct {
	Version    string         `json:"version"`
	Vocabulary map[string]int `json:"vocabulary"`
	IDF        []float64      `json:"idf"`
	StopWords  []string       `json:"stop_words"`
}

// ModelSet is the outcome of loading every artifact for one snapshot.
// A nil model comes with a non-nil error in the matching field.
type ModelSet struct {
	Predictor       RatingPredictor
	PredictorErr    error
	Similarity      SimilarityIndex
	SimilarityErr   error
	Segmenter       Segmenter
	SegmenterErr    error
	ContentFallback bool
}

// ArtifactLoader reads, validates and registers model artifacts.
type ArtifactLoader struct {
	paths     ArtifactPaths
	validator *validation.SchemaValidator
	registry  *ModelRegistry
	logger    *logrus.Logger
}

func NewArtifactLoader(paths ArtifactPaths, validator *validation.SchemaValidator, registry *ModelRegistry, logger *logrus.Logger) *ArtifactLoader {
	return &ArtifactLoader{
		paths:     paths,
		validator: validator,
		registry:  registry,
		logger:    logger,
	}
}

// LoadAll loads every artifact. Failures are recorded on the returned set and
// in the registry; LoadAll itself never fails.
func (l *ArtifactLoader) LoadAll(catalog []models.Item) *ModelSet {
	manifest := l.loadManifest()
	set := &ModelSet{}

	predictorPath := l.resolve(manifest, ModelTypePredictor, l.paths.Predictor)
	predictor, err := l.LoadPredictor(predictorPath)
	if err != nil {
		set.PredictorErr = err
		l.register(ModelTypePredictor, predictorPath, "", StatusUnavailable, err)
	} else {
		set.Predictor = predictor
		l.register(ModelTypePredictor, predictorPath, predictor.Version(), StatusLoaded, nil)
	}

	contentPath := l.resolve(manifest, ModelTypeContent, l.paths.ContentIndex)
	index, version, err := l.LoadContentIndex(contentPath, catalog)
	switch {
	case err == nil:
		set.Similarity = index
		l.register(ModelTypeContent, contentPath, version, StatusLoaded, nil)
	case errors.Is(err, fs.ErrNotExist) && len(catalog) > 0:
		// Fit on the live catalog when no fitted vectorizer was shipped.
		corpus := make([]string, len(catalog))
		for i, item := range catalog {
			corpus[i] = ItemText(item)
		}
		set.Similarity = NewContentIndex(FitTFIDF(corpus, EnglishStopWords), catalog)
		set.ContentFallback = true
		l.register(ModelTypeContent, contentPath, "catalog-fit", StatusFallback, err)
	default:
		set.SimilarityErr = err
		l.register(ModelTypeContent, contentPath, "", StatusUnavailable, err)
	}

	segPath := l.resolve(manifest, ModelTypeSegmentation, l.paths.Segmentation)
	segmenter, err := l.LoadSegmenter(segPath)
	if err != nil {
		set.SegmenterErr = err
		l.register(ModelTypeSegmentation, segPath, "", StatusUnavailable, err)
	} else {
		set.Segmenter = segmenter
		l.register(ModelTypeSegmentation, segPath, segmenter.Version(), StatusLoaded, nil)
	}

	return set
}

func (l *ArtifactLoader) LoadPredictor(path string) (*MatrixFactorization, error) {
	var artifact PredictorArtifact
	if err := l.readArtifact(path, validation.SchemaPredictor, &artifact); err != nil {
		return nil, err
	}
	return NewMatrixFactorization(&artifact)
}

// LoadContentIndex reads a fitted vectorizer and indexes the catalog with it.
func (l *ArtifactLoader) LoadContentIndex(path string, catalog []models.Item) (*ContentIndex, string, error) {
	var artifact ContentIndexArtifact
	if err := l.readArtifact(path, validation.SchemaContentIndex, &artifact); err != nil {
		return nil, "", err
	}
	vectorizer, err := NewTFIDFVectorizer(artifact.Vocabulary, artifact.IDF, artifact.StopWords)
	if err != nil {
		return nil, "", fmt.Errorf("content index %s: %w", path, err)
	}
	return NewContentIndex(vectorizer, catalog), artifact.Version, nil
}

func (l *ArtifactLoader) LoadSegmenter(path string) (*KMeansSegmenter, error) {
	var artifact SegmentationArtifact
	if err := l.readArtifact(path, validation.SchemaSegmentation, &artifact); err != nil {
		return nil, err
	}
	return NewKMeansSegmenter(&artifact)
}

func (l *ArtifactLoader) readArtifact(path, schema string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read artifact: %w", err)
	}

	if l.validator != nil {
		if err := l.validator.Validate(schema, data).Err(); err != nil {
			return fmt.Errorf("artifact %s failed %s schema: %w", filepath.Base(path), schema, err)
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode artifact %s: %w", filepath.Base(path), err)
	}
	return nil
}

// loadManifest reads the optional manifest. A missing or broken manifest
// falls back to the configured file names.
func (l *ArtifactLoader) loadManifest() *Manifest {
	if l.paths.Manifest == "" {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(l.paths.Dir, l.paths.Manifest))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			l.logger.WithError(err).Warn("Failed to read model manifest")
		}
		return nil
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		l.logger.WithError(err).Warn("Failed to parse model manifest")
		return nil
	}
	l.logger.WithFields(logrus.Fields{
		"manifest_version": manifest.Version,
		"artifacts":        len(manifest.Artifacts),
	}).Debug("Model manifest loaded")
	return &manifest
}

func (l *ArtifactLoader) resolve(manifest *Manifest, modelType, fallback string) string {
	file := fallback
	if manifest != nil {
		if entry, ok := manifest.Artifacts[modelType]; ok && entry.File != "" {
			file = entry.File
		}
	}
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(l.paths.Dir, file)
}

func (l *ArtifactLoader) register(modelType, path, version, status string, err error) {
	if l.registry == nil {
		return
	}
	info := &ModelInfo{
		Name:      modelType,
		Version:   version,
		Path:      path,
		ModelType: modelType,
		Status:    status,
	}
	if err != nil {
		info.Error = err.Error()
	}
	if regErr := l.registry.RegisterModel(info); regErr != nil {
		l.logger.WithError(regErr).Error("Failed to register model")
	}
}
