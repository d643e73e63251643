package services

import (
	"strings"

	"github.com/temcen/tripwise/pkg/models"
)

const DegradationMissingColumn = "missing_column"

// FilterStage applies hard constraints to the catalog. It holds no state.
type FilterStage struct{}

func NewFilterStage() *FilterStage {
	return &FilterStage{}
}

type itemPredicate struct {
	column string
	match  func(models.Item) bool
}

// Apply returns the catalog items that satisfy every constraint and are not
// in the user's history or the exclude list, in catalog order. A constraint
// on a column the catalog lacks is skipped and reported as a degradation.
func (f *FilterStage) Apply(catalog *Catalog, history []models.Interaction, c models.Constraints, exclude ...string) (CandidateSet, []models.Degradation) {
	if catalog == nil {
		return CandidateSet{}, nil
	}

	excluded := make(map[string]struct{}, len(history)+len(exclude))
	for _, in := range history {
		excluded[in.ItemID] = struct{}{}
	}
	for _, id := range exclude {
		if id != "" {
			excluded[id] = struct{}{}
		}
	}

	var degraded []models.Degradation
	var predicates []itemPredicate
	add := func(column string, match func(models.Item) bool) {
		if !catalog.HasColumn(column) {
			degraded = append(degraded, models.Degradation{
				Kind:   DegradationMissingColumn,
				Target: column,
				Detail: "constraint skipped",
			})
			return
		}
		predicates = append(predicates, itemPredicate{column: column, match: match})
	}

	if c.Budget != nil {
		budget := *c.Budget
		add(models.ColumnPrice, func(it models.Item) bool {
			return it.Price != nil && *it.Price <= budget
		})
	}
	if want, ok := constraintValue(c.Weather); ok {
		add(models.ColumnWeather, func(it models.Item) bool {
			return strings.EqualFold(strings.TrimSpace(it.Weather), want)
		})
	}
	if terms := ActivityTerms(c.Activities); len(terms) > 0 {
		add(models.ColumnActivities, func(it models.Item) bool {
			text := strings.ToLower(it.Activities)
			for _, term := range terms {
				if strings.Contains(text, term) {
					return true
				}
			}
			return false
		})
	}
	if want, ok := constraintValue(c.AccommodationType); ok {
		add(models.ColumnAccommodationType, func(it models.Item) bool {
			return strings.EqualFold(strings.TrimSpace(it.AccommodationType), want)
		})
	}
	if want, ok := constraintValue(c.Destination); ok {
		add(models.ColumnDestination, func(it models.Item) bool {
			return strings.EqualFold(strings.TrimSpace(it.Destination), want)
		})
	}

	candidates := make(CandidateSet, 0, len(catalog.Items))
	for _, item := range catalog.Items {
		if _, skip := excluded[item.ID]; skip {
			continue
		}
		if matchesAll(item, predicates) {
			candidates = append(candidates, item.ID)
		}
	}

	return candidates, degraded
}

func matchesAll(item models.Item, predicates []itemPredicate) bool {
	for _, p := range predicates {
		if !p.match(item) {
			return false
		}
	}
	return true
}

// ActivityTerms splits a comma separated activity list into lowercase,
// trimmed, non-empty terms.
func ActivityTerms(activities *string) []string {
	if activities == nil {
		return nil
	}
	var terms []string
	for _, part := range strings.Split(*activities, ",") {
		if term := strings.ToLower(strings.TrimSpace(part)); term != "" {
			terms = append(terms, term)
		}
	}
	return terms
}

// BuildQueryText joins the text constraints into a content query.
func BuildQueryText(c models.Constraints) string {
	parts := ActivityTerms(c.Activities)
	if v, ok := constraintValue(c.Weather); ok {
		parts = append(parts, v)
	}
	if v, ok := constraintValue(c.Destination); ok {
		parts = append(parts, v)
	}
	return strings.Join(parts, " ")
}

func constraintValue(v *string) (string, bool) {
	if v == nil {
		return "", false
	}
	trimmed := strings.TrimSpace(*v)
	return trimmed, trimmed != ""
}
