package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/factory_backend/models"
	"github.com/mmdatafocus/factory_backend/models/reports"
	"github.com/mmdatafocus/factory_backend/utils"
	"github.com/mmdatafocus/factory_backend/workflow"
)

// writeWorkflowError maps the ledger error taxonomy onto HTTP statuses with a
// structured reason the UI renders directly.
func writeWorkflowError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, workflow.ErrInsufficientUpstream):
		c.JSON(http.StatusConflict, gin.H{"error": "insufficient_upstream", "message": err.Error()})
	case errors.Is(err, workflow.ErrAlreadyFinalized):
		c.JSON(http.StatusConflict, gin.H{"error": "already_finalized", "message": err.Error()})
	case errors.Is(err, workflow.ErrAlreadyCancelled):
		c.JSON(http.StatusConflict, gin.H{"error": "already_cancelled", "message": err.Error()})
	case errors.Is(err, workflow.ErrSessionNotActive):
		c.JSON(http.StatusConflict, gin.H{"error": "session_not_active", "message": err.Error()})
	case errors.Is(err, workflow.ErrSessionAlreadyActive):
		c.JSON(http.StatusConflict, gin.H{"error": "session_already_active", "message": err.Error()})
	case errors.Is(err, workflow.ErrConcurrentModification):
		c.JSON(http.StatusConflict, gin.H{"error": "concurrent_modification", "message": err.Error(), "retryable": true})
	case errors.Is(err, workflow.ErrNotReadyToFinalize):
		c.JSON(http.StatusConflict, gin.H{"error": "not_ready_to_finalize", "message": err.Error()})
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()})
	}
}

// writeBindError reports request binding failures, with per-field tags when
// the failure came from struct validation.
func writeBindError(c *gin.Context, err error) {
	if fields := utils.ProcessValidationErrors(err); fields != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "fields": fields})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()})
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": "invalid id"})
		return 0, false
	}
	return id, true
}

func loginHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	token, user, err := models.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

func recordCutHandler(c *gin.Context) {
	var input models.NewCutBatch
	if err := c.ShouldBindJSON(&input); err != nil {
		writeBindError(c, err)
		return
	}
	batch, err := workflow.RecordCut(c.Request.Context(), &input)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusCreated, batch)
}

func listCutsHandler(c *gin.Context) {
	var key *models.ProductVariantKey
	if v := c.Query("product_id"); v != "" {
		productId, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": "invalid product_id"})
			return
		}
		k := models.NewProductVariantKey(productId, c.Query("variant_label"))
		key = &k
	}
	batches, err := workflow.ListCutBatches(c.Request.Context(), key)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, batches)
}

func cutRemainderHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	remainder, err := workflow.GetCutBatchRemainder(c.Request.Context(), id)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cut_batch_id": id, "remainder": remainder})
}

func createOrderHandler(c *gin.Context) {
	var input workflow.NewProductionOrder
	if err := c.ShouldBindJSON(&input); err != nil {
		writeBindError(c, err)
		return
	}
	order, err := workflow.CreateProductionOrder(c.Request.Context(), &input)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func splitCutIntoOrdersHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var req struct {
		Partitions []workflow.OrderPartition `json:"partitions" binding:"required,min=1,dive"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	orders, err := workflow.CreateOrdersFromCutBatch(c.Request.Context(), id, req.Partitions)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusCreated, orders)
}

func assignCutHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var req struct {
		CutBatchId int `json:"cut_batch_id" binding:"required"`
		Quantity   int `json:"quantity" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	order, err := workflow.AssignCutToOrder(c.Request.Context(), id, req.CutBatchId, req.Quantity)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func finalizeOrderHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		writeBindError(c, err)
		return
	}
	order, err := workflow.FinalizeProductionOrder(c.Request.Context(), id, req.Reason)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func cancelOrderHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	order, err := workflow.CancelProductionOrder(c.Request.Context(), id)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func getOrderHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	view, err := workflow.GetProductionOrder(c.Request.Context(), id)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func listOrdersHandler(c *gin.Context) {
	status := utils.NilIfEmpty(models.ProductionOrderStatus(c.Query("status")))
	orders, err := workflow.ListProductionOrders(c.Request.Context(), status)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func recordStageEntryHandler(c *gin.Context) {
	var input workflow.NewStageEntry
	if err := c.ShouldBindJSON(&input); err != nil {
		writeBindError(c, err)
		return
	}
	entry, err := workflow.RecordStageEntry(c.Request.Context(), &input)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func stageAvailabilityHandler(c *gin.Context) {
	productId, err := strconv.Atoi(c.Query("product_id"))
	if err != nil || productId <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": "invalid product_id"})
		return
	}
	stageIndex, err := strconv.Atoi(c.DefaultQuery("stage_index", "0"))
	if err != nil || stageIndex < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": "invalid stage_index"})
		return
	}
	key := models.NewProductVariantKey(productId, c.Query("variant_label"))
	available, err := workflow.AvailableAt(c.Request.Context(), key, stageIndex)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "stage_index": stageIndex, "available": available})
}

func finishingBacklogHandler(c *gin.Context) {
	lines, err := workflow.ListFinishingBacklog(c.Request.Context())
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, lines)
}

func packagingBacklogHandler(c *gin.Context) {
	lines, err := workflow.ListPackagingBacklog(c.Request.Context())
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, lines)
}

func assignSessionHandler(c *gin.Context) {
	var input workflow.AssignSessionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		writeBindError(c, err)
		return
	}
	session, err := workflow.AssignWorkerSession(c.Request.Context(), &input)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func assignSessionsBatchHandler(c *gin.Context) {
	var req struct {
		Items []workflow.BatchAssignItem `json:"items" binding:"required,min=1,dive"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	result, err := workflow.AssignWorkerSessionsBatch(c.Request.Context(), req.Items)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func finalizeSessionHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var req struct {
		QuantityCompleted *int `json:"quantity_completed" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	session, err := workflow.FinalizeWorkerSession(c.Request.Context(), id, *req.QuantityCompleted)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func cancelSessionHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	session, err := workflow.CancelWorkerSession(c.Request.Context(), id)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func listSessionsHandler(c *gin.Context) {
	var workerId *int
	if v := c.Query("worker_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": "invalid worker_id"})
			return
		}
		workerId = &id
	}
	status := utils.NilIfEmpty(models.WorkerSessionStatus(c.Query("status")))
	sessions, err := workflow.ListWorkerSessions(c.Request.Context(), workerId, status)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

func createDemandHandler(c *gin.Context) {
	var input models.NewDemand
	if err := c.ShouldBindJSON(&input); err != nil {
		writeBindError(c, err)
		return
	}
	demand, err := models.CreateDemand(c.Request.Context(), &input)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusCreated, demand)
}

func deleteDemandHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	if err := models.DeleteDemand(c.Request.Context(), id); err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func listDemandsHandler(c *gin.Context) {
	demands, err := models.ListOpenDemands(c.Request.Context())
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, demands)
}

func demandDiagnosticsHandler(c *gin.Context) {
	diagnostics, err := workflow.ListDemandDiagnostics(c.Request.Context())
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, diagnostics)
}

func createProductHandler(c *gin.Context) {
	var input models.NewProduct
	if err := c.ShouldBindJSON(&input); err != nil {
		writeBindError(c, err)
		return
	}
	product, err := models.CreateProduct(c.Request.Context(), &input)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func listProductsHandler(c *gin.Context) {
	products, err := models.ListProducts(c.Request.Context())
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func getProductHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	product, err := models.GetProduct(c.Request.Context(), id)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// setEntityActiveHandler is the shared activate/deactivate operation: one
// endpoint with an explicit kind tag instead of per-entity toggles.
func setEntityActiveHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	var err error
	switch c.Param("kind") {
	case "product":
		err = models.SetProductActive(c.Request.Context(), id, *req.Active)
	case "variant":
		err = models.SetProductVariantActive(c.Request.Context(), id, *req.Active)
	case "user":
		err = models.SetEntityActive[models.User](c.Request.Context(), id, *req.Active)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": "unknown entity kind"})
		return
	}
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func backlogExportHandler(c *gin.Context) {
	var queueStage *models.QueueStage
	if v := c.Query("queue_stage"); v != "" {
		s := models.QueueStage(v)
		queueStage = &s
	}
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=backlog.xlsx")
	if err := reports.ExportBacklogExcel(c.Request.Context(), queueStage, c.Writer); err != nil {
		c.Status(http.StatusInternalServerError)
	}
}

func createBusinessHandler(c *gin.Context) {
	var input models.NewBusiness
	if err := c.ShouldBindJSON(&input); err != nil {
		writeBindError(c, err)
		return
	}
	business, err := models.CreateBusiness(c.Request.Context(), &input)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusCreated, business)
}

func createUserHandler(c *gin.Context) {
	var input models.NewUser
	if err := c.ShouldBindJSON(&input); err != nil {
		writeBindError(c, err)
		return
	}
	user, err := models.CreateUser(c.Request.Context(), &input)
	if err != nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}
