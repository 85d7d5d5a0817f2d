package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/aistore-vn/aistore-api/models"
)

// productCacheTTL bounds how stale a cached product definition (price,
// required fields) may be at checkout time
const productCacheTTL = time.Minute

var redisClient *redis.Client

// SetRedisClient sets the Redis client used as a product read-through cache.
// A nil client disables caching; lookups then always hit the database.
func SetRedisClient(client *redis.Client) {
	redisClient = client
}

// GetProductsForCheckout loads the catalog definitions for the given product
// ids, going through Redis when available. Missing products are simply absent
// from the returned map; checkout treats them as carrying no required fields.
func GetProductsForCheckout(ctx context.Context, db *gorm.DB, productIDs []uint) (map[uint]*models.Product, error) {
	result := make(map[uint]*models.Product, len(productIDs))
	var misses []uint

	for _, id := range productIDs {
		if product := cachedProduct(ctx, id); product != nil {
			result[id] = product
			continue
		}
		misses = append(misses, id)
	}

	if len(misses) > 0 {
		var products []models.Product
		if err := db.Where("id IN ?", misses).Find(&products).Error; err != nil {
			return nil, err
		}
		for i := range products {
			result[products[i].ID] = &products[i]
			cacheProduct(ctx, &products[i])
		}
	}

	return result, nil
}

func cachedProduct(ctx context.Context, id uint) *models.Product {
	if redisClient == nil {
		return nil
	}
	cached, err := redisClient.Get(ctx, productCacheKey(id)).Result()
	if err != nil {
		return nil
	}
	var product models.Product
	if err := json.Unmarshal([]byte(cached), &product); err != nil {
		return nil
	}
	return &product
}

func cacheProduct(ctx context.Context, product *models.Product) {
	if redisClient == nil {
		return
	}
	if data, err := json.Marshal(product); err == nil {
		redisClient.Set(ctx, productCacheKey(product.ID), data, productCacheTTL)
	}
}

func productCacheKey(id uint) string {
	return fmt.Sprintf("product:%d", id)
}
