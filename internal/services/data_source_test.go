package services

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/tripwise/pkg/models"
)

func TestPostgresDataSource_LoadCatalog(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	source := NewPostgresDataSource(mockDB, newTestLogger())

	t.Run("canonical columns", func(t *testing.T) {
		rows := pgxmock.NewRows([]string{"item_id", "destination", "accommodation_type", "price", "weather", "activities", "rating_avg"}).
			AddRow("Paris_Hotel", "Paris", "Hotel", 300.0, "Mild", "museums", "4.6").
			AddRow(" Bali_Villa ", "Bali", "Villa", int64(250), "Tropical", "surfing", nil).
			AddRow("", "Nowhere", "Tent", 10.0, "Dry", "none", nil)
		mockDB.ExpectQuery("SELECT \\* FROM travel_items").WillReturnRows(rows)

		catalog, err := source.LoadCatalog(context.Background())
		require.NoError(t, err)
		require.Len(t, catalog.Items, 2)

		paris := catalog.Items[0]
		assert.Equal(t, "Paris_Hotel", paris.ID)
		require.NotNil(t, paris.Price)
		assert.Equal(t, 300.0, *paris.Price)
		assert.Equal(t, "4.6", paris.Attributes["rating_avg"])

		bali := catalog.Items[1]
		assert.Equal(t, "Bali_Villa", bali.ID)
		assert.Equal(t, 250.0, *bali.Price)
		assert.Nil(t, bali.Attributes)

		assert.True(t, catalog.HasColumn(models.ColumnWeather))
		assert.False(t, catalog.HasColumn(models.ColumnDescription))
		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("legacy column names", func(t *testing.T) {
		rows := pgxmock.NewRows([]string{"ID", "Destination_Name", "Accommodation", "Accommodation_Cost", "Environment"}).
			AddRow("Oslo_Cabin", "Oslo", "Cabin", "140", "Cold")
		mockDB.ExpectQuery("SELECT \\* FROM travel_items").WillReturnRows(rows)

		catalog, err := source.LoadCatalog(context.Background())
		require.NoError(t, err)
		require.Len(t, catalog.Items, 1)

		item := catalog.Items[0]
		assert.Equal(t, "Oslo_Cabin", item.ID)
		assert.Equal(t, "Oslo", item.Destination)
		assert.Equal(t, "Cabin", item.AccommodationType)
		assert.Equal(t, 140.0, *item.Price)
		assert.Equal(t, "Cold", item.Weather)
		assert.True(t, catalog.HasColumn(models.ColumnPrice))
		assert.False(t, catalog.HasColumn(models.ColumnActivities))
		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("no id column", func(t *testing.T) {
		rows := pgxmock.NewRows([]string{"destination"}).AddRow("Paris")
		mockDB.ExpectQuery("SELECT \\* FROM travel_items").WillReturnRows(rows)

		_, err := source.LoadCatalog(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "item_id")
	})

	t.Run("query error", func(t *testing.T) {
		mockDB.ExpectQuery("SELECT \\* FROM travel_items").WillReturnError(errors.New("relation does not exist"))

		_, err := source.LoadCatalog(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "relation does not exist")
	})
}

func TestPostgresDataSource_LoadInteractions(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	source := NewPostgresDataSource(mockDB, newTestLogger())

	t.Run("with strength", func(t *testing.T) {
		rows := pgxmock.NewRows([]string{"id", "user_id", "item_id", "rating"}).
			AddRow(int64(1), "u1", "Paris_Hotel", 4.0).
			AddRow(int64(2), "u1", "Bali_Villa", nil).
			AddRow(int64(3), "", "Bali_Villa", 5.0)
		mockDB.ExpectQuery("SELECT \\* FROM interactions").WillReturnRows(rows)

		interactions, err := source.LoadInteractions(context.Background())
		require.NoError(t, err)
		require.Len(t, interactions, 2)
		assert.Equal(t, models.Interaction{UserID: "u1", ItemID: "Paris_Hotel", Strength: 4}, interactions[0])
		assert.Equal(t, 1.0, interactions[1].Strength)
	})

	t.Run("without strength column", func(t *testing.T) {
		rows := pgxmock.NewRows([]string{"user_id", "item_id"}).AddRow("u2", "Oslo_Cabin")
		mockDB.ExpectQuery("SELECT \\* FROM interactions").WillReturnRows(rows)

		interactions, err := source.LoadInteractions(context.Background())
		require.NoError(t, err)
		require.Len(t, interactions, 1)
		assert.Equal(t, 1.0, interactions[0].Strength)
	})

	t.Run("missing user column", func(t *testing.T) {
		rows := pgxmock.NewRows([]string{"item_id"}).AddRow("Oslo_Cabin")
		mockDB.ExpectQuery("SELECT \\* FROM interactions").WillReturnRows(rows)

		_, err := source.LoadInteractions(context.Background())
		assert.Error(t, err)
	})

	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestPostgresDataSource_LoadProfiles(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	rows := pgxmock.NewRows([]string{"user_id", "age", "gender", "nationality", "cluster"}).
		AddRow("u1", int32(34), "female", "French", int64(2)).
		AddRow("u2", nil, "male", "German", nil)
	mockDB.ExpectQuery("SELECT \\* FROM user_profiles").WillReturnRows(rows)

	profiles, err := NewPostgresDataSource(mockDB, newTestLogger()).LoadProfiles(context.Background())
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	assert.Equal(t, 34.0, *profiles[0].Age)
	require.NotNil(t, profiles[0].Cluster)
	assert.Equal(t, 2, *profiles[0].Cluster)
	assert.Nil(t, profiles[1].Age)
	assert.Nil(t, profiles[1].Cluster)
	assert.Equal(t, "German", profiles[1].Nationality)
	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestToFloat(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  *float64
	}{
		{"nil", nil, nil},
		{"float", 2.5, floatPtr(2.5)},
		{"int32", int32(7), floatPtr(7)},
		{"string", " 12.5 ", floatPtr(12.5)},
		{"garbage", "cheap", nil},
		{"bool", true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, toFloat(tt.value))
		})
	}
}
