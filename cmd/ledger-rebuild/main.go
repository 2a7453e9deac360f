// ledger-rebuild recomputes stock summary projections from the append-only
// ledgers (cut batches, finishing records, stock movements). Safe to run while
// the service is up; each key is rebuilt under its own advisory lock.
//
// Usage:
//
//	go run ./cmd/ledger-rebuild --business-id=<uuid> [--product-id=N --variant=<label>]
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/factory_backend/config"
	"github.com/mmdatafocus/factory_backend/models"
	"github.com/mmdatafocus/factory_backend/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func main() {
	businessID := flag.String("business-id", "", "Required: business id (uuid)")
	productID := flag.Int("product-id", 0, "Optional: rebuild a single product")
	variant := flag.String("variant", "", "Optional: variant label (with --product-id)")
	flag.Parse()

	if strings.TrimSpace(*businessID) == "" {
		fmt.Fprintln(os.Stderr, "--business-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := logrus.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		if *productID > 0 {
			key := models.NewProductVariantKey(*productID, *variant)
			return workflow.RebuildStockSummaryForKey(tx, logger, *businessID, key)
		}
		count, err := workflow.RebuildStockSummariesForBusiness(tx, logger, *businessID)
		if err != nil {
			return err
		}
		fmt.Printf("rebuilt %d keys\n", count)
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "rebuild failed: %v\n", err)
		os.Exit(1)
	}

	// Nudge running instances to drop their queue snapshots. Fire-and-forget:
	// the rebuild itself already committed.
	if os.Getenv("PUBSUB_TOPIC") != "" {
		msg := config.PubSubMessage{
			ID:                  int(time.Now().Unix()),
			BusinessId:          *businessID,
			TransactionDateTime: time.Now().UTC(),
			EventType:           string(models.EventTypeStockMoved),
			CorrelationId:       uuid.NewString(),
		}
		if pubErr := config.PublishProductionEvent(*businessID, msg); pubErr != nil {
			fmt.Fprintf(os.Stderr, "cache refresh notification failed: %v\n", pubErr)
		}
	}
	fmt.Println("done")
}
