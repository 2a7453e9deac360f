package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/factory_backend/config"
	"github.com/mmdatafocus/factory_backend/utils"
	"gorm.io/gorm"
)

// Product is a catalog entry. Its stage template is the ordered list of sewing
// operations every production order for the product is frozen against.
type Product struct {
	ID         int             `gorm:"primary_key" json:"id"`
	BusinessId string          `gorm:"index;not null" json:"business_id"`
	Name       string          `gorm:"size:100;not null" json:"name" binding:"required"`
	Sku        string          `gorm:"size:100" json:"sku"`
	ImageUrl   string          `json:"image_url"`
	IsActive   *bool           `gorm:"not null;default:true" json:"is_active"`
	Stages     []StageTemplate `gorm:"foreignKey:ProductId" json:"stages"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type ProductVariant struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id"`
	ProductId  int       `gorm:"index;not null" json:"product_id"`
	Label      string    `gorm:"size:100;not null" json:"label"`
	ImageUrl   string    `json:"image_url"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// StageTemplate is one ordered sewing operation of a product.
// StageIndex is zero-based; the highest index feeds finishing.
type StageTemplate struct {
	ID         int    `gorm:"primary_key" json:"id"`
	BusinessId string `gorm:"index;not null" json:"business_id"`
	ProductId  int    `gorm:"index:idx_stage_tpl,priority:1;not null" json:"product_id"`
	StageIndex int    `gorm:"index:idx_stage_tpl,priority:2;not null" json:"stage_index"`
	Name       string `gorm:"size:100;not null" json:"name"`
}

type NewProduct struct {
	Name     string   `json:"name" binding:"required"`
	Sku      string   `json:"sku"`
	ImageUrl string   `json:"image_url"`
	Stages   []string `json:"stages" binding:"required,min=1"`
	Variants []string `json:"variants"`
}

func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, ErrBusinessIdRequired
	}
	if len(input.Stages) == 0 {
		return nil, errors.New("at least one stage is required")
	}
	if err := utils.ValidateUnique[Product](ctx, businessId, "name", input.Name, 0); err != nil {
		return nil, err
	}

	product := Product{
		BusinessId: businessId,
		Name:       input.Name,
		Sku:        input.Sku,
		ImageUrl:   input.ImageUrl,
		IsActive:   utils.NewTrue(),
	}
	for i, stageName := range input.Stages {
		product.Stages = append(product.Stages, StageTemplate{
			BusinessId: businessId,
			StageIndex: i,
			Name:       stageName,
		})
	}

	db := config.GetDB().WithContext(ctx)
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&product).Error; err != nil {
			return err
		}
		labels := make([]string, 0, len(input.Variants))
		for _, label := range input.Variants {
			labels = append(labels, NormalizeVariantLabel(label))
		}
		for _, label := range utils.UniqueSlice(labels) {
			if label == "" {
				continue
			}
			variant := ProductVariant{
				BusinessId: businessId,
				ProductId:  product.ID,
				Label:      label,
				IsActive:   utils.NewTrue(),
			}
			if err := tx.Create(&variant).Error; err != nil {
				return err
			}
		}
		return PublishEvent(ctx, tx, businessId, time.Now().UTC(), product.ID, EventReferenceTypeProduct, EventTypeCatalogChanged, &product)
	})
	if err != nil {
		return nil, err
	}
	InvalidateCatalogCache(businessId, product.ID)

	return &product, nil
}

// GetStageTemplate returns a product's ordered stage names, read-through cached.
// The cache is invalidated by catalog.changed, never refreshed in place.
func GetStageTemplate(ctx context.Context, productId int) ([]StageTemplate, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, ErrBusinessIdRequired
	}

	cacheKey := stageTemplateCacheKey(businessId, productId)
	var cached []StageTemplate
	exists, err := config.GetRedisObject(cacheKey, &cached)
	if err == nil && exists && len(cached) > 0 {
		return cached, nil
	}

	var stages []StageTemplate
	db := config.GetDB()
	if err := db.WithContext(ctx).
		Where("business_id = ? AND product_id = ?", businessId, productId).
		Order("stage_index ASC").
		Find(&stages).Error; err != nil {
		return nil, err
	}
	if len(stages) == 0 {
		return nil, utils.ErrorRecordNotFound
	}

	_ = config.SetRedisObject(cacheKey, &stages, utils.GetCacheLifespan())
	return stages, nil
}

// GetVariantImage resolves the display image for a key, falling back to the
// base product's image when the variant has none.
func GetVariantImage(ctx context.Context, key ProductVariantKey) (string, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return "", ErrBusinessIdRequired
	}
	db := config.GetDB()

	if key.VariantLabel != "" {
		var variant ProductVariant
		err := db.WithContext(ctx).
			Where("business_id = ? AND product_id = ? AND label = ?", businessId, key.ProductId, key.VariantLabel).
			First(&variant).Error
		if err == nil && variant.ImageUrl != "" {
			return variant.ImageUrl, nil
		}
	}

	var product Product
	if err := db.WithContext(ctx).
		Where("business_id = ? AND id = ?", businessId, key.ProductId).
		First(&product).Error; err != nil {
		return "", err
	}
	return product.ImageUrl, nil
}

// GetProduct is read-through cached per id; catalog.changed drops the entry.
func GetProduct(ctx context.Context, id int) (*Product, error) {
	businessId, _ := utils.GetBusinessIdFromContext(ctx)

	if cached, err := utils.RetrieveRedis[Product](id); err == nil && cached != nil && cached.BusinessId == businessId {
		return cached, nil
	}

	var product Product
	db := config.GetDB()
	if err := db.WithContext(ctx).
		Where("business_id = ? AND id = ?", businessId, id).
		Preload("Stages", func(db2 *gorm.DB) *gorm.DB { return db2.Order("stage_index ASC") }).
		First(&product).Error; err != nil {
		return nil, err
	}
	_ = utils.StoreRedis[Product](&product, product.ID)
	return &product, nil
}

// ListProducts lists the business's catalog, read-through cached per business.
func ListProducts(ctx context.Context) ([]*Product, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, ErrBusinessIdRequired
	}

	if cached, err := utils.RetrieveRedisList[Product](businessId); err == nil && cached != nil {
		return cached, nil
	}

	var products []*Product
	if err := config.GetDB().WithContext(ctx).
		Where("business_id = ?", businessId).
		Preload("Stages", func(db2 *gorm.DB) *gorm.DB { return db2.Order("stage_index ASC") }).
		Order("name ASC").
		Find(&products).Error; err != nil {
		return nil, err
	}
	_ = utils.StoreRedisList[Product](&products, businessId)
	return products, nil
}

// ValidateKey checks the product exists and, for non-base labels, the variant exists.
func ValidateKey(ctx context.Context, businessId string, key ProductVariantKey) error {
	if err := utils.ValidateResourceId[Product](ctx, businessId, key.ProductId); err != nil {
		return errors.New("product not found")
	}
	if key.VariantLabel == "" {
		return nil
	}
	count, err := utils.ResourceCountWhere[ProductVariant](ctx, businessId, "product_id = ? AND label = ?", key.ProductId, key.VariantLabel)
	if err != nil {
		return err
	}
	if count <= 0 {
		return errors.New("product variant not found")
	}
	return nil
}

// SetProductActive toggles a product's active flag and records catalog.changed
// in the same transaction.
func SetProductActive(ctx context.Context, id int, active bool) error {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return ErrBusinessIdRequired
	}
	db := config.GetDB().WithContext(ctx)
	err := db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Product{}).
			Where("business_id = ? AND id = ?", businessId, id).
			Update("is_active", active)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return utils.ErrorRecordNotFound
		}
		return PublishEvent(ctx, tx, businessId, time.Now().UTC(), id, EventReferenceTypeProduct, EventTypeCatalogChanged, nil)
	})
	if err != nil {
		return err
	}
	InvalidateCatalogCache(businessId, id)
	return nil
}

// SetProductVariantActive toggles a variant's active flag; the catalog.changed
// event references the owning product.
func SetProductVariantActive(ctx context.Context, id int, active bool) error {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return ErrBusinessIdRequired
	}
	db := config.GetDB().WithContext(ctx)

	var variant ProductVariant
	if err := db.Where("business_id = ? AND id = ?", businessId, id).First(&variant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorRecordNotFound
		}
		return err
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&ProductVariant{}).
			Where("business_id = ? AND id = ?", businessId, id).
			Update("is_active", active).Error; err != nil {
			return err
		}
		return PublishEvent(ctx, tx, businessId, time.Now().UTC(), variant.ProductId, EventReferenceTypeProduct, EventTypeCatalogChanged, nil)
	})
	if err != nil {
		return err
	}
	InvalidateCatalogCache(businessId, variant.ProductId)
	return nil
}

func stageTemplateCacheKey(businessId string, productId int) string {
	return "StageTemplate:" + businessId + ":" + fmt.Sprint(productId)
}

// InvalidateCatalogCache drops cached stage templates and product entries for
// a product. Called on every catalog.changed emission.
func InvalidateCatalogCache(businessId string, productId int) {
	_ = config.RemoveRedisKey(stageTemplateCacheKey(businessId, productId))
	_ = utils.RemoveRedisItem[Product](productId)
	_ = utils.RemoveRedisList[Product](businessId)
}
