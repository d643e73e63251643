package models

// Canonical catalog column names. Legacy names found in older datasets are
// mapped onto these by LegacyColumnAliases when the catalog is loaded.
const (
	ColumnItemID            = "item_id"
	ColumnDestination       = "destination"
	ColumnAccommodationType = "accommodation_type"
	ColumnPrice             = "price"
	ColumnWeather           = "weather"
	ColumnActivities        = "activities"
	ColumnDescription       = "description"
)

// LegacyColumnAliases maps historical column names to the canonical schema.
var LegacyColumnAliases = map[string]string{
	"id":                 ColumnItemID,
	"destination_name":   ColumnDestination,
	"environment":        ColumnWeather,
	"accommodation":      ColumnAccommodationType,
	"accommodation_cost": ColumnPrice,
}

// Item is a single recommendable travel item (a destination/accommodation pair).
type Item struct {
	ID                string            `json:"item_id" db:"item_id"`
	Destination       string            `json:"destination,omitempty" db:"destination"`
	AccommodationType string            `json:"accommodation_type,omitempty" db:"accommodation_type"`
	Price             *float64          `json:"price,omitempty" db:"price"`
	Weather           string            `json:"weather,omitempty" db:"weather"`
	Activities        string            `json:"activities,omitempty" db:"activities"`
	Description       string            `json:"description,omitempty" db:"description"`
	Attributes        map[string]string `json:"attributes,omitempty"`
}

// Interaction is a historical (user, item, strength) signal such as a rating or booking.
type Interaction struct {
	UserID   string  `json:"user_id" db:"user_id"`
	ItemID   string  `json:"item_id" db:"item_id"`
	Strength float64 `json:"strength" db:"strength"`
}

// RatingRequest appends a new explicit rating to the interaction history.
type RatingRequest struct {
	UserID string  `json:"user_id" validate:"required,max=128"`
	ItemID string  `json:"item_id" validate:"required,max=256"`
	Rating float64 `json:"rating" validate:"required,min=1,max=5"`
}
