package models

type UserRole string

const (
	UserRoleAdmin      UserRole = "A"
	UserRoleSupervisor UserRole = "S"
	UserRoleWorker     UserRole = "W"
)

// ProductionOrderStatus is the OP state machine:
// open --(cut assigned)--> producing --(finalize)--> finalized
// open|producing --(cancel)--> cancelled
// finalized and cancelled are terminal.
type ProductionOrderStatus string

const (
	ProductionOrderStatusOpen      ProductionOrderStatus = "Open"
	ProductionOrderStatusProducing ProductionOrderStatus = "Producing"
	ProductionOrderStatusFinalized ProductionOrderStatus = "Finalized"
	ProductionOrderStatusCancelled ProductionOrderStatus = "Cancelled"
)

func (s ProductionOrderStatus) IsTerminal() bool {
	return s == ProductionOrderStatusFinalized || s == ProductionOrderStatusCancelled
}

type WorkerSessionStatus string

const (
	WorkerSessionStatusActive    WorkerSessionStatus = "Active"
	WorkerSessionStatusCompleted WorkerSessionStatus = "Completed"
	WorkerSessionStatusCancelled WorkerSessionStatus = "Cancelled"
)

// QueueStage names the two assignable backlogs downstream of sewing.
type QueueStage string

const (
	QueueStageFinishing QueueStage = "Finishing"
	QueueStagePackaging QueueStage = "Packaging"
)

// DemandStatus is the reconciliation classification of one demand line.
type DemandStatus string

const (
	DemandStatusPending   DemandStatus = "Pending"
	DemandStatusCompleted DemandStatus = "Completed"
	DemandStatusDivergent DemandStatus = "Divergent"
)

type StockMovementType string

const (
	StockMovementTypePackaging  StockMovementType = "PKG"
	StockMovementTypeAdjustment StockMovementType = "ADJ"
)

// EventReferenceType tags outbox rows with the entity the event refers to.
type EventReferenceType string

const (
	EventReferenceTypeProductionOrder EventReferenceType = "OP"
	EventReferenceTypeCutBatch        EventReferenceType = "CB"
	EventReferenceTypeDemand          EventReferenceType = "DM"
	EventReferenceTypeWorkerSession   EventReferenceType = "WS"
	EventReferenceTypeProduct         EventReferenceType = "PR"
	EventReferenceTypeStockMovement   EventReferenceType = "SM"
)

// EventType is the notification collaborator's vocabulary. Events are written
// to the outbox inside the mutating transaction and published after commit.
type EventType string

const (
	EventTypeOrderFinalized   EventType = "order.finalized"
	EventTypeOrderCancelled   EventType = "order.cancelled"
	EventTypeDemandChanged    EventType = "demand.changed"
	EventTypeCutRecorded      EventType = "cut.recorded"
	EventTypeCatalogChanged   EventType = "catalog.changed"
	EventTypeSessionAssigned  EventType = "session.assigned"
	EventTypeSessionFinalized EventType = "session.finalized"
	EventTypeSessionCancelled EventType = "session.cancelled"
	EventTypeStockMoved       EventType = "stock.moved"
)

type OutboxPublishStatus = string

const (
	OutboxPublishStatusPending    OutboxPublishStatus = "PENDING"
	OutboxPublishStatusProcessing OutboxPublishStatus = "PROCESSING"
	OutboxPublishStatusSent       OutboxPublishStatus = "SENT"
	OutboxPublishStatusFailed     OutboxPublishStatus = "FAILED"
	OutboxPublishStatusDead       OutboxPublishStatus = "DEAD"
)

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
	IdempotencyStatusFailed    IdempotencyStatus = "FAILED"
)
