// seed-admin bootstraps a tenant and its admin console user.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-admin
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mmdatafocus/factory_backend/config"
	"github.com/mmdatafocus/factory_backend/models"
	"github.com/mmdatafocus/factory_backend/utils"
	"gorm.io/gorm"
)

const (
	adminUsername = "factoryAdmin"
	adminName     = "Factory Admin"
)

func main() {
	businessName := flag.String("business", "Factory", "Business name to create when none exists")
	timezone := flag.String("timezone", "Asia/Yangon", "Business timezone")
	password := flag.String("password", "", "Required: admin password")
	flag.Parse()

	if *password == "" {
		fmt.Fprintln(os.Stderr, "--password is required")
		os.Exit(1)
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Seed")
	ctx = utils.SetUsernameInContext(ctx, adminUsername)
	ctx = utils.SetIsAdminInContext(ctx, true)
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)

	var business models.Business
	err := db.WithContext(ctx).First(&business).Error
	if err == gorm.ErrRecordNotFound {
		created, createErr := models.CreateBusiness(ctx, &models.NewBusiness{
			Name:     *businessName,
			Timezone: *timezone,
		})
		if createErr != nil {
			fmt.Fprintf(os.Stderr, "failed to create business: %v\n", createErr)
			os.Exit(1)
		}
		business = *created
		fmt.Printf("created business %s (%s)\n", business.Name, business.ID)
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "failed to lookup business: %v\n", err)
		os.Exit(1)
	}

	ctx = utils.SetBusinessIdInContext(ctx, business.ID.String())

	hashed, err := utils.HashPassword(*password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}

	var existing models.User
	err = db.WithContext(ctx).Where("username = ?", adminUsername).First(&existing).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		user := models.User{
			BusinessId: business.ID.String(),
			Username:   adminUsername,
			Name:       adminName,
			Password:   string(hashed),
			Role:       models.UserRoleAdmin,
			IsActive:   utils.NewTrue(),
		}
		if err := db.WithContext(ctx).Create(&user).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("created admin user %s (id=%d)\n", adminUsername, user.ID)
	case err != nil:
		fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
		os.Exit(1)
	default:
		if err := db.WithContext(ctx).Model(&models.User{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{
				"password":  string(hashed),
				"role":      models.UserRoleAdmin,
				"is_active": true,
			}).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to update admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("updated admin user %s (id=%d)\n", adminUsername, existing.ID)
	}
}
