package database

import (
	"os"
	"testing"

	"storefront-backend/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	// Every pooled connection to ":memory:" is a separate database.
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return db
}

func TestMigrateCreatesTables(t *testing.T) {
	db := setupTestDB(t)

	for _, table := range []string{"users", "products", "carts", "cart_line_item", "orders", "order_line_item"} {
		if !db.Migrator().HasTable(table) {
			t.Errorf("expected table %s to exist", table)
		}
	}
}

func TestMigrateIsRepeatable(t *testing.T) {
	db := setupTestDB(t)
	if err := Migrate(db); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
}

func TestSeedProducts(t *testing.T) {
	db := setupTestDB(t)

	if err := SeedProducts(db); err != nil {
		t.Fatal(err)
	}

	var count int64
	db.Model(&models.Product{}).Count(&count)
	if count != int64(len(DefaultProducts)) {
		t.Fatalf("expected %d products, got %d", len(DefaultProducts), count)
	}

	var p models.Product
	if err := db.Where("sku = ?", "item0001").First(&p).Error; err != nil {
		t.Fatal(err)
	}
	if p.Price != 44999 {
		t.Errorf("expected price 44999 cents, got %d", p.Price)
	}
}

func TestSeedProductsSkipsNonEmptyCatalog(t *testing.T) {
	db := setupTestDB(t)
	db.Create(&models.Product{SKU: "custom0001", Name: "Custom", Price: 100})

	if err := SeedProducts(db); err != nil {
		t.Fatal(err)
	}

	var count int64
	db.Model(&models.Product{}).Count(&count)
	if count != 1 {
		t.Errorf("expected seed to be skipped, got %d products", count)
	}
}

func TestSeedProductsDoesNotMutateDefaults(t *testing.T) {
	db := setupTestDB(t)
	if err := SeedProducts(db); err != nil {
		t.Fatal(err)
	}
	for _, p := range DefaultProducts {
		if p.ID.String() != "00000000-0000-0000-0000-000000000000" {
			t.Fatalf("DefaultProducts entry %s was assigned an ID", p.SKU)
		}
	}
}

func TestConnectUnsupportedDriver(t *testing.T) {
	os.Setenv("DATABASE_DRIVER", "oracle")
	defer os.Unsetenv("DATABASE_DRIVER")

	if _, err := Connect(); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestConnectSQLite(t *testing.T) {
	os.Setenv("DATABASE_DRIVER", "sqlite")
	os.Setenv("DATABASE_URL", "file::memory:")
	defer os.Unsetenv("DATABASE_DRIVER")
	defer os.Unsetenv("DATABASE_URL")

	db, err := Connect()
	if err != nil {
		t.Fatalf("expected sqlite connection, got %v", err)
	}
	sqlDB, _ := db.DB()
	defer sqlDB.Close()
}
