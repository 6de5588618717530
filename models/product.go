package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sizes a cart line or product bucket may carry.
var Sizes = []string{"XS", "S", "M", "L", "XL", "XXL", "XXXL", "Free Size"}

func IsValidSize(size string) bool {
	for _, s := range Sizes {
		if s == size {
			return true
		}
	}
	return false
}

// Product is the catalog row the checkout flow reads and decrements. Catalog
// management writes it elsewhere.
type Product struct {
	ID                uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name              string        `gorm:"not null" json:"name"`
	Price             int           `gorm:"not null;check:price >= 0" json:"price"`
	ClothingType      string        `gorm:"type:varchar(32)" json:"clothingType"`
	Colors            string        `json:"colors"`
	MainImageURL      string        `json:"mainImageUrl"`
	MainImagePublicID string        `json:"mainImagePublicId"`
	CountInStock      int           `gorm:"not null;default:0;check:count_in_stock >= 0" json:"countInStock"`
	Sizes             []ProductSize `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"sizes"`
	CreatedAt         time.Time     `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time     `gorm:"autoUpdateTime" json:"updatedAt"`
}

// ProductSize is one stock bucket. countInStock on the parent is the sum of these.
type ProductSize struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"-"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_product_size" json:"-"`
	Size      string    `gorm:"type:varchar(16);not null;uniqueIndex:idx_product_size" json:"size"`
	Stock     int       `gorm:"not null;default:0;check:stock >= 0" json:"stock"`
}

// SizeStock returns the stock of the given size bucket and whether it exists.
func (p *Product) SizeStock(size string) (int, bool) {
	for _, s := range p.Sizes {
		if s.Size == size {
			return s.Stock, true
		}
	}
	return 0, false
}

// PrimaryColor is the first listed colour, used in order snapshots.
func (p *Product) PrimaryColor() string {
	if p.Colors == "" {
		return ""
	}
	return strings.TrimSpace(strings.Split(p.Colors, ",")[0])
}
