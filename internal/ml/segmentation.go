package ml

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/temcen/tripwise/pkg/models"
)

// Segmenter assigns a demographic cluster label to a user profile.
type Segmenter interface {
	AssignCluster(profile models.UserProfile) (int, error)
}

// SegmentationArtifact is the on-disk form of a fitted k-means segmentation
// over [scaled age, one-hot gender, one-hot nationality].
type SegmentationArtifact struct {
	Version       string      `json:"version"`
	AgeMean       float64     `json:"age_mean"`
	AgeStd        float64     `json:"age_std"`
	Genders       []string    `json:"genders"`
	Nationalities []string    `json:"nationalities"`
	Centroids     [][]float64 `json:"centroids"`
}

// KMeansSegmenter assigns profiles to their nearest centroid.
type KMeansSegmenter struct {
	version       string
	ageMean       float64
	ageStd        float64
	genders       map[string]int
	nationalities map[string]int
	centroids     *mat.Dense
}

func NewKMeansSegmenter(a *SegmentationArtifact) (*KMeansSegmenter, error) {
	if len(a.Centroids) == 0 {
		return nil, fmt.Errorf("segmentation has no centroids")
	}
	dims := 1 + len(a.Genders) + len(a.Nationalities)

	data := make([]float64, 0, len(a.Centroids)*dims)
	for k, c := range a.Centroids {
		if len(c) != dims {
			return nil, fmt.Errorf("centroid %d has %d dimensions, want %d", k, len(c), dims)
		}
		data = append(data, c...)
	}

	return &KMeansSegmenter{
		version:       a.Version,
		ageMean:       a.AgeMean,
		ageStd:        a.AgeStd,
		genders:       indexOf(a.Genders),
		nationalities: indexOf(a.Nationalities),
		centroids:     mat.NewDense(len(a.Centroids), dims, data),
	}, nil
}

// AssignCluster encodes the profile and returns the index of the nearest
// centroid. Unknown categories encode as all zeros and a missing age is
// imputed with the training mean.
func (s *KMeansSegmenter) AssignCluster(profile models.UserProfile) (int, error) {
	features := s.encode(profile)

	rows, _ := s.centroids.Dims()
	best, bestDist := -1, math.Inf(1)
	for k := 0; k < rows; k++ {
		d := floats.Distance(features, s.centroids.RawRowView(k), 2)
		if d < bestDist {
			best, bestDist = k, d
		}
	}
	if best < 0 {
		return 0, fmt.Errorf("no centroid for user %q", profile.UserID)
	}
	return best, nil
}

func (s *KMeansSegmenter) Version() string {
	return s.version
}

func (s *KMeansSegmenter) encode(profile models.UserProfile) []float64 {
	_, dims := s.centroids.Dims()
	features := make([]float64, dims)

	age := s.ageMean
	if profile.Age != nil && !math.IsNaN(*profile.Age) {
		age = *profile.Age
	}
	if s.ageStd > 0 {
		features[0] = (age - s.ageMean) / s.ageStd
	}

	if idx, ok := s.genders[normalizeCategory(profile.Gender)]; ok {
		features[1+idx] = 1
	}
	if idx, ok := s.nationalities[normalizeCategory(profile.Nationality)]; ok {
		features[1+len(s.genders)+idx] = 1
	}
	return features
}

func indexOf(values []string) map[string]int {
	out := make(map[string]int, len(values))
	for i, v := range values {
		out[normalizeCategory(v)] = i
	}
	return out
}

func normalizeCategory(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
