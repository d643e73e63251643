package services

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/sirupsen/logrus"

	"github.com/temcen/tripwise/pkg/models"
)

// Legacy interaction column names mapped to strength.
var interactionStrengthAliases = []string{"strength", "interaction", "rating"}

// PostgresDataSource reads reference tables with SELECT * so older schemas
// using legacy column names still load.
type PostgresDataSource struct {
	db     DatabaseQuerier
	logger *logrus.Logger
}

func NewPostgresDataSource(db DatabaseQuerier, logger *logrus.Logger) *PostgresDataSource {
	return &PostgresDataSource{db: db, logger: logger}
}

// LoadCatalog reads travel_items. Unknown columns land in Item.Attributes.
func (s *PostgresDataSource) LoadCatalog(ctx context.Context) (*Catalog, error) {
	rows, err := s.db.Query(ctx, `SELECT * FROM travel_items`)
	if err != nil {
		return nil, fmt.Errorf("catalog query failed: %w", err)
	}
	defer rows.Close()

	columns := canonicalColumns(rows, models.LegacyColumnAliases)
	catalog := &Catalog{Columns: make(map[string]bool, len(columns))}
	for _, c := range columns {
		catalog.Columns[c] = true
	}
	if !catalog.Columns[models.ColumnItemID] {
		return nil, fmt.Errorf("catalog has no %s column", models.ColumnItemID)
	}

	skipped := 0
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog row: %w", err)
		}

		var item models.Item
		for i, col := range columns {
			v := values[i]
			switch col {
			case models.ColumnItemID:
				item.ID = strings.TrimSpace(toString(v))
			case models.ColumnDestination:
				item.Destination = toString(v)
			case models.ColumnAccommodationType:
				item.AccommodationType = toString(v)
			case models.ColumnPrice:
				item.Price = toFloat(v)
			case models.ColumnWeather:
				item.Weather = toString(v)
			case models.ColumnActivities:
				item.Activities = toString(v)
			case models.ColumnDescription:
				item.Description = toString(v)
			default:
				if v == nil {
					continue
				}
				if item.Attributes == nil {
					item.Attributes = make(map[string]string)
				}
				item.Attributes[col] = toString(v)
			}
		}

		if item.ID == "" {
			skipped++
			continue
		}
		catalog.Items = append(catalog.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog rows: %w", err)
	}

	if skipped > 0 {
		s.logger.WithField("skipped", skipped).Warn("Catalog rows without item id skipped")
	}
	return catalog, nil
}

// LoadInteractions reads interactions. A table without a strength column
// counts every row as strength 1.
func (s *PostgresDataSource) LoadInteractions(ctx context.Context) ([]models.Interaction, error) {
	rows, err := s.db.Query(ctx, `SELECT * FROM interactions`)
	if err != nil {
		return nil, fmt.Errorf("interactions query failed: %w", err)
	}
	defer rows.Close()

	columns := canonicalColumns(rows, nil)
	userIdx, itemIdx, strengthIdx := -1, -1, -1
	for i, c := range columns {
		switch c {
		case "user_id":
			userIdx = i
		case models.ColumnItemID:
			itemIdx = i
		}
	}
	for _, alias := range interactionStrengthAliases {
		if strengthIdx >= 0 {
			break
		}
		for i, c := range columns {
			if c == alias {
				strengthIdx = i
				break
			}
		}
	}
	if userIdx < 0 || itemIdx < 0 {
		return nil, fmt.Errorf("interactions table needs user_id and item_id columns")
	}

	var interactions []models.Interaction
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read interaction row: %w", err)
		}
		in := models.Interaction{
			UserID:   strings.TrimSpace(toString(values[userIdx])),
			ItemID:   strings.TrimSpace(toString(values[itemIdx])),
			Strength: 1,
		}
		if strengthIdx >= 0 {
			if v := toFloat(values[strengthIdx]); v != nil {
				in.Strength = *v
			}
		}
		if in.UserID == "" || in.ItemID == "" {
			continue
		}
		interactions = append(interactions, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("interaction rows: %w", err)
	}
	return interactions, nil
}

// LoadProfiles reads user_profiles. The cluster column is optional.
func (s *PostgresDataSource) LoadProfiles(ctx context.Context) ([]models.UserProfile, error) {
	rows, err := s.db.Query(ctx, `SELECT * FROM user_profiles`)
	if err != nil {
		return nil, fmt.Errorf("profiles query failed: %w", err)
	}
	defer rows.Close()

	columns := canonicalColumns(rows, nil)
	var profiles []models.UserProfile
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read profile row: %w", err)
		}
		var p models.UserProfile
		for i, col := range columns {
			v := values[i]
			switch col {
			case "user_id":
				p.UserID = strings.TrimSpace(toString(v))
			case "age":
				p.Age = toFloat(v)
			case "gender":
				p.Gender = toString(v)
			case "nationality":
				p.Nationality = toString(v)
			case "cluster":
				if f := toFloat(v); f != nil {
					label := int(*f)
					p.Cluster = &label
				}
			}
		}
		if p.UserID == "" {
			continue
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("profile rows: %w", err)
	}
	return profiles, nil
}

// canonicalColumns lowercases result column names and maps legacy names
// through aliases. A legacy name is left alone when the result already has
// the canonical column.
func canonicalColumns(rows pgx.Rows, aliases map[string]string) []string {
	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	present := make(map[string]bool, len(fields))
	for i, f := range fields {
		columns[i] = strings.ToLower(strings.TrimSpace(f.Name))
		present[columns[i]] = true
	}
	for i, name := range columns {
		if canonical, ok := aliases[name]; ok && !present[canonical] {
			columns[i] = canonical
		}
	}
	return columns
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func toFloat(v interface{}) *float64 {
	var f float64
	switch t := v.(type) {
	case nil:
		return nil
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int16:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case pgtype.Numeric:
		fv, err := t.Float64Value()
		if err != nil || !fv.Valid {
			return nil
		}
		f = fv.Float64
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
