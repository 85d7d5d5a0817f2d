package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aistore-vn/aistore-api/models"
)

func setupProductDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := db.AutoMigrate(&models.Product{}); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

func TestGetProductsForCheckout(t *testing.T) {
	db := setupProductDB(t)
	SetRedisClient(nil) // cache disabled, straight to the database

	products := []models.Product{
		{
			Name:  "AI Studio Pro",
			Price: 150000,
			RequiredFields: []models.RequiredField{
				{Label: "Gmail Address", Type: "email", Required: true},
			},
		},
		{Name: "Cloud Credits", Price: 50000},
	}
	for i := range products {
		if err := db.Create(&products[i]).Error; err != nil {
			t.Fatalf("Failed to seed product: %v", err)
		}
	}

	t.Run("Loads requested products with required fields", func(t *testing.T) {
		result, err := GetProductsForCheckout(context.Background(), db, []uint{products[0].ID, products[1].ID})
		assert.NoError(t, err)
		assert.Len(t, result, 2)

		loaded := result[products[0].ID]
		assert.Equal(t, "AI Studio Pro", loaded.Name)
		assert.Len(t, loaded.RequiredFields, 1)
		assert.Equal(t, "Gmail Address", loaded.RequiredFields[0].Label)
	})

	t.Run("Unknown ids are absent from the map", func(t *testing.T) {
		result, err := GetProductsForCheckout(context.Background(), db, []uint{products[0].ID, 9999})
		assert.NoError(t, err)
		assert.Len(t, result, 1)
		assert.Nil(t, result[9999])
	})

	t.Run("Empty id list returns empty map", func(t *testing.T) {
		result, err := GetProductsForCheckout(context.Background(), db, nil)
		assert.NoError(t, err)
		assert.Empty(t, result)
	})
}
