package models

// UserProfile holds the demographic record used for segmentation.
// Cluster is nil until a segmentation pass assigned a label.
type UserProfile struct {
	UserID      string   `json:"user_id" db:"user_id"`
	Age         *float64 `json:"age,omitempty" db:"age"`
	Gender      string   `json:"gender,omitempty" db:"gender"`
	Nationality string   `json:"nationality,omitempty" db:"nationality"`
	Cluster     *int     `json:"cluster,omitempty" db:"cluster"`
}
