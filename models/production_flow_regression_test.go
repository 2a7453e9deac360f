package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/mmdatafocus/factory_backend/config"
	"github.com/mmdatafocus/factory_backend/models"
	"github.com/mmdatafocus/factory_backend/utils"
	"github.com/mmdatafocus/factory_backend/workflow"
)

func TestProductionFlowCutToPackagedStock(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "factory_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetWorkerIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	ctx = utils.SetUsernameInContext(ctx, "test@local")

	biz, err := models.CreateBusiness(ctx, &models.NewBusiness{
		Name:     "Test Factory",
		Timezone: "Asia/Yangon",
	})
	if err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}
	businessID := biz.ID.String()
	ctx = utils.SetBusinessIdInContext(ctx, businessID)

	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}

	polo, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:     "Polo Shirt",
		Sku:      "POLO-001",
		Stages:   []string{"Sewing", "Assembly", "QC"},
		Variants: []string{"M"},
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	key := models.ProductVariantKey{ProductId: polo.ID, VariantLabel: "M"}

	// 1) Record a cut of 100 pieces.
	batch, err := workflow.RecordCut(ctx, &models.NewCutBatch{
		ProductId:    polo.ID,
		VariantLabel: "M",
		Quantity:     100,
		CutDate:      time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC),
		OriginLabel:  "Cut Table 1",
	})
	if err != nil {
		t.Fatalf("RecordCut: %v", err)
	}
	var cutOutbox models.OutboxMessageRecord
	if err := db.WithContext(ctx).
		Where("business_id = ? AND reference_type = ? AND reference_id = ? AND event_type = ?",
			businessID, models.EventReferenceTypeCutBatch, batch.ID, models.EventTypeCutRecorded).
		First(&cutOutbox).Error; err != nil {
		t.Fatalf("expected cut.recorded outbox record: %v", err)
	}

	// 2) Partition the batch into two orders; the batch is fully consumed.
	orders, err := workflow.CreateOrdersFromCutBatch(ctx, batch.ID, []workflow.OrderPartition{
		{TargetQuantity: 60, CutQuantity: 60},
		{TargetQuantity: 40, CutQuantity: 40},
	})
	if err != nil {
		t.Fatalf("CreateOrdersFromCutBatch: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}
	first, second := orders[0], orders[1]

	if _, err := workflow.CreateOrdersFromCutBatch(ctx, batch.ID, []workflow.OrderPartition{
		{TargetQuantity: 10, CutQuantity: 10},
	}); !errors.Is(err, workflow.ErrInsufficientUpstream) {
		t.Fatalf("expected ErrInsufficientUpstream on drained batch, got %v", err)
	}

	// 3) Push the first order through the stages, leaving 10 behind at QC.
	recordEntry := func(orderId, stage, qty int) error {
		_, err := workflow.RecordStageEntry(ctx, &workflow.NewStageEntry{
			OrderId:    orderId,
			StageIndex: stage,
			Quantity:   qty,
		})
		return err
	}
	for _, step := range []struct{ stage, qty int }{{0, 60}, {1, 60}, {2, 50}} {
		if err := recordEntry(first.ID, step.stage, step.qty); err != nil {
			t.Fatalf("RecordStageEntry(first, stage %d): %v", step.stage, err)
		}
	}
	if err := recordEntry(first.ID, 1, 1); !errors.Is(err, workflow.ErrInsufficientUpstream) {
		t.Fatalf("expected ErrInsufficientUpstream on drained stage, got %v", err)
	}

	// 4) Finalize below target: one loss record, divergent flag, terminal.
	finalized, err := workflow.FinalizeProductionOrder(ctx, first.ID, "end of run")
	if err != nil {
		t.Fatalf("FinalizeProductionOrder: %v", err)
	}
	if finalized.Status != models.ProductionOrderStatusFinalized || !finalized.Divergent {
		t.Fatalf("expected finalized divergent order, got status=%s divergent=%v", finalized.Status, finalized.Divergent)
	}
	var loss models.LossRecord
	if err := db.WithContext(ctx).
		Where("business_id = ? AND order_id = ?", businessID, first.ID).
		First(&loss).Error; err != nil {
		t.Fatalf("expected loss record: %v", err)
	}
	if loss.Quantity != 10 {
		t.Fatalf("expected loss quantity 10, got %d", loss.Quantity)
	}
	if _, err := workflow.FinalizeProductionOrder(ctx, first.ID, ""); !errors.Is(err, workflow.ErrAlreadyFinalized) {
		t.Fatalf("expected ErrAlreadyFinalized, got %v", err)
	}
	var finalizedOutbox models.OutboxMessageRecord
	if err := db.WithContext(ctx).
		Where("business_id = ? AND reference_type = ? AND reference_id = ? AND event_type = ?",
			businessID, models.EventReferenceTypeProductionOrder, first.ID, models.EventTypeOrderFinalized).
		First(&finalizedOutbox).Error; err != nil {
		t.Fatalf("expected order.finalized outbox record: %v", err)
	}

	// 5) Complete the second order cleanly.
	for _, step := range []struct{ stage, qty int }{{0, 40}, {1, 40}, {2, 40}} {
		if err := recordEntry(second.ID, step.stage, step.qty); err != nil {
			t.Fatalf("RecordStageEntry(second, stage %d): %v", step.stage, err)
		}
	}
	view, err := workflow.GetProductionOrder(ctx, second.ID)
	if err != nil {
		t.Fatalf("GetProductionOrder: %v", err)
	}
	if !view.ReadyToFinalize {
		t.Fatalf("second order should be ready to finalize: %+v", view.StageTotals)
	}

	// 6) Finishing queue: 50 from the first order + 40 from the second.
	available, err := workflow.AggregateAvailable(db.WithContext(ctx), businessID, key, models.QueueStageFinishing)
	if err != nil {
		t.Fatalf("AggregateAvailable(finishing): %v", err)
	}
	if available != 90 {
		t.Fatalf("expected finishing availability 90, got %d", available)
	}

	session, err := workflow.AssignWorkerSession(ctx, &workflow.AssignSessionInput{
		ProductId:    polo.ID,
		VariantLabel: "M",
		QueueStage:   models.QueueStageFinishing,
		Quantity:     30,
	})
	if err != nil {
		t.Fatalf("AssignWorkerSession: %v", err)
	}

	// Reservation is visible before any ledger write.
	available, err = workflow.AggregateAvailable(db.WithContext(ctx), businessID, key, models.QueueStageFinishing)
	if err != nil {
		t.Fatalf("AggregateAvailable(after assign): %v", err)
	}
	if available != 60 {
		t.Fatalf("expected finishing availability 60 after reservation, got %d", available)
	}
	if _, err := workflow.AssignWorkerSession(ctx, &workflow.AssignSessionInput{
		ProductId:    polo.ID,
		VariantLabel: "M",
		QueueStage:   models.QueueStageFinishing,
		Quantity:     5,
	}); !errors.Is(err, workflow.ErrSessionAlreadyActive) {
		t.Fatalf("expected ErrSessionAlreadyActive, got %v", err)
	}

	// 7) Finalize the session: FIFO drains the oldest order first.
	if _, err := workflow.FinalizeWorkerSession(ctx, session.ID, 30); err != nil {
		t.Fatalf("FinalizeWorkerSession(finishing): %v", err)
	}
	var firstFinishing models.FinishingRecord
	if err := db.WithContext(ctx).
		Where("business_id = ? AND order_id = ?", businessID, first.ID).
		First(&firstFinishing).Error; err != nil {
		t.Fatalf("expected finishing record for oldest order: %v", err)
	}
	if firstFinishing.QuantityFinished != 30 {
		t.Fatalf("expected oldest order to absorb all 30, got %d", firstFinishing.QuantityFinished)
	}

	// 8) Packaging: finished but unpackaged quantity is the backlog.
	available, err = workflow.AggregateAvailable(db.WithContext(ctx), businessID, key, models.QueueStagePackaging)
	if err != nil {
		t.Fatalf("AggregateAvailable(packaging): %v", err)
	}
	if available != 30 {
		t.Fatalf("expected packaging availability 30, got %d", available)
	}
	packSession, err := workflow.AssignWorkerSession(ctx, &workflow.AssignSessionInput{
		ProductId:    polo.ID,
		VariantLabel: "M",
		QueueStage:   models.QueueStagePackaging,
		Quantity:     30,
	})
	if err != nil {
		t.Fatalf("AssignWorkerSession(packaging): %v", err)
	}
	if _, err := workflow.FinalizeWorkerSession(ctx, packSession.ID, 20); err != nil {
		t.Fatalf("FinalizeWorkerSession(packaging): %v", err)
	}

	// 9) Truth source: stock summary and movement ledger agree.
	var summary models.StockSummary
	if err := db.WithContext(ctx).
		Where("business_id = ? AND product_id = ? AND variant_label = ?", businessID, polo.ID, "M").
		First(&summary).Error; err != nil {
		t.Fatalf("fetch stock summary: %v", err)
	}
	if summary.CutQty != 100 || summary.FinishedQty != 30 || summary.PackagedQty != 20 || summary.CurrentQty != 20 {
		t.Fatalf("stock summary mismatch: %+v", summary)
	}
	var movementCount int64
	if err := db.WithContext(ctx).Model(&models.StockMovement{}).
		Where("business_id = ? AND product_id = ? AND variant_label = ? AND movement_type = ?",
			businessID, polo.ID, "M", models.StockMovementTypePackaging).
		Count(&movementCount).Error; err != nil {
		t.Fatalf("count stock movements: %v", err)
	}
	if movementCount != 1 {
		t.Fatalf("expected 1 packaging stock movement, got %d", movementCount)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("factory-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("factory-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=factory_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
