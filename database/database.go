package database

import (
	"fmt"
	"log/slog"
	"os"

	"storefront-backend/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Connect opens the database selected by DATABASE_DRIVER ("postgres" by
// default, or "sqlite").
func Connect() (*gorm.DB, error) {
	dsn := os.Getenv("DATABASE_URL")

	switch driver := os.Getenv("DATABASE_DRIVER"); driver {
	case "", "postgres":
		if dsn == "" {
			dsn = "host=localhost user=postgres password=postgres dbname=storefront port=5432 sslmode=disable"
		}
		return gorm.Open(postgres.Open(dsn), &gorm.Config{})
	case "sqlite":
		if dsn == "" {
			dsn = "storefront.db"
		}
		return gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q", driver)
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.Cart{},
		&models.CartLineItem{},
		&models.Order{},
		&models.OrderLineItem{},
	)
}

// DefaultProducts is the demo catalog. Prices are in cents.
var DefaultProducts = []models.Product{
	{
		SKU:         "item0001",
		Name:        "Dyson Outsize plus",
		Price:       44999,
		ImageURL:    "https://dyson-h.assetsadobe2.com/is/image/content/dam/dyson/images/products/hero/448114-01.png",
		Description: "Dyson power in a larger format. For large-home deep cleans without the cord",
	},
	{
		SKU:         "item0002",
		Name:        "Bissel CleanView Swivel Pet",
		Price:       11844,
		ImageURL:    "https://m.media-amazon.com/images/I/71pzkmU3PuL._AC_SL1500_.jpg",
		Description: "Clean multiple surfaces throughout your home with this powerful vacuum cleaner.",
	},
	{
		SKU:         "item0003",
		Name:        "Bissel Featherweight Stick",
		Price:       2999,
		ImageURL:    "https://m.media-amazon.com/images/I/71Ajq3rQuOL._AC_SL1500_.jpg",
		Description: "Lightweight stick vacuum that converts to a hand vacuum for carpets, rugs, bare floors, stairs and upholstery.",
	},
	{
		SKU:         "item0004",
		Name:        "Shark Pet Cordless Stick",
		Price:       14999,
		ImageURL:    "https://pisces.bbystatic.com/image2/BestBuy_US/images/products/6359/6359269_sd.jpg",
		Description: "Cordless pet vacuum with anti-allergen complete seal and a removable hand vac.",
	},
	{
		SKU:         "item0005",
		Name:        "LVAC-200 Cordless Vacuum",
		Price:       19999,
		ImageURL:    "https://levoit.com/cdn/shop/files/lvac-200-cordless-vacuum-437899.jpg",
		Description: "Cordless stick vacuum with a tangle-resistant design and 5-stage filtration.",
	},
	{
		SKU:         "item0006",
		Name:        "Black+Decker SUMMITSERIES Select Cordless Stick",
		Price:       29999,
		ImageURL:    "https://cdn.shopify.com/s/files/1/0640/1409/0461/files/4832d80ef30d1304fc97b45d211ccdbd1c92c8b7.jpg",
		Description: "Brushless cordless stick vacuum with a 750ml dustbowl.",
	},
}

// SeedProducts inserts DefaultProducts when the catalog is empty.
func SeedProducts(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Product{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count products: %w", err)
	}
	if count > 0 {
		return nil
	}

	products := make([]models.Product, len(DefaultProducts))
	copy(products, DefaultProducts)
	if err := db.Create(&products).Error; err != nil {
		return fmt.Errorf("failed to seed products: %w", err)
	}

	slog.Info("catalog seeded", "products", len(products))
	return nil
}
