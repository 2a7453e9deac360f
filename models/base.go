package models

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/factory_backend/config"
	"github.com/mmdatafocus/factory_backend/utils"
	"gorm.io/gorm"
)

// BaseVariantLabel is what the UI sends for the base (unvaried) product.
// Stored normalized as the empty string.
const BaseVariantLabel = "-"

// ProductVariantKey identifies one ledger line: a (product, variant) pair.
// Embedded in every quantity-carrying entity.
type ProductVariantKey struct {
	ProductId    int    `gorm:"index;not null" json:"product_id"`
	VariantLabel string `gorm:"size:100;not null;default:''" json:"variant_label"`
}

// NormalizeVariantLabel maps the UI's "-" placeholder and whitespace to the
// stored empty-string form.
func NormalizeVariantLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == BaseVariantLabel {
		return ""
	}
	return label
}

func NewProductVariantKey(productId int, variantLabel string) ProductVariantKey {
	return ProductVariantKey{
		ProductId:    productId,
		VariantLabel: NormalizeVariantLabel(variantLabel),
	}
}

// PublishEvent implements the transactional outbox: it writes the event record
// inside the caller's DB transaction but does NOT publish to Pub/Sub.
// Publishing is performed asynchronously by the outbox dispatcher after commit.
func PublishEvent(ctx context.Context, db *gorm.DB, businessId string, transactionDateTime time.Time, refId int, refType EventReferenceType, eventType EventType, obj interface{}) error {

	var payload []byte
	var err error

	if obj != nil {
		payload, err = json.Marshal(obj)
		if err != nil {
			return err
		}
	}

	record := OutboxMessageRecord{
		BusinessId:          businessId,
		TransactionDateTime: transactionDateTime,
		ReferenceId:         refId,
		ReferenceType:       refType,
		EventType:           eventType,
		Payload:             payload,
		IsProcessed:         false,
		PublishStatus:       OutboxPublishStatusPending,
		CorrelationId:       correlationIdFromContextOrNew(ctx),
	}
	if err := db.Create(&record).Error; err != nil {
		return err
	}
	return nil
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

// SetEntityActive is the single activate/deactivate operation shared by catalog
// entities (products, variants, users). Replaces per-entity toggle endpoints.
func SetEntityActive[T any](ctx context.Context, id int, active bool) error {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return ErrBusinessIdRequired
	}
	if err := utils.ValidateResourceId[T](ctx, businessId, id); err != nil {
		return err
	}
	db := config.GetDB()
	var model T
	if err := db.WithContext(ctx).Model(&model).
		Where("business_id = ? AND id = ?", businessId, id).
		Update("is_active", active).Error; err != nil {
		return err
	}
	return nil
}
