package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents an item held in the inventory.
type Product struct {
	ID          string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name        string          `json:"name" gorm:"type:varchar(255);not null"`
	Description string          `json:"description" gorm:"type:text;not null"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(10,2);not null"`
	Stock       int             `json:"stock" gorm:"not null;default:0"`
	ImageURL    string          `json:"imageUrl" gorm:"column:image_url;type:text"` // empty when no image is attached
	CreatedAt   time.Time       `json:"createdAt" gorm:"autoCreateTime;index"`
	UpdatedAt   time.Time       `json:"updatedAt" gorm:"autoUpdateTime"`
}

// TableName pins the table name regardless of naming strategy.
func (Product) TableName() string {
	return "products"
}

// InventoryValue returns the inventory value of the product (price times stock).
func (p Product) InventoryValue() decimal.Decimal {
	return p.Price.Mul(decimal.NewFromInt(int64(p.Stock)))
}
