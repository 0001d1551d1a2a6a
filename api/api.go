package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/router/engine"
	"github.com/xraph/router/job"
	"github.com/xraph/router/policy"
	"github.com/xraph/router/queue"
	"github.com/xraph/router/worker"
)

// API wires all Forge-style HTTP handlers together for the router system.
type API struct {
	eng    *engine.Engine
	router forge.Router
}

// New creates an API from a router Engine.
func New(eng *engine.Engine, router forge.Router) *API {
	return &API{eng: eng, router: router}
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	if a.router == nil {
		a.router = forge.NewRouter()
	}
	a.RegisterRoutes(a.router)
	return a.router.Handler()
}

// RegisterRoutes registers all router API routes into the given Forge
// router with full OpenAPI metadata.
func (a *API) RegisterRoutes(router forge.Router) {
	a.registerWorkerRoutes(router)
	a.registerQueueRoutes(router)
	a.registerJobRoutes(router)
	a.registerOfferRoutes(router)
	a.registerStatsRoutes(router)
}

// registerWorkerRoutes registers worker registry routes.
func (a *API) registerWorkerRoutes(router forge.Router) {
	g := router.Group("/v1", forge.WithGroupTags("workers"))

	_ = g.PUT("/workers", a.upsertWorker,
		forge.WithSummary("Upsert worker"),
		forge.WithDescription("Registers a new worker or replaces the declarative fields of an existing one."),
		forge.WithOperationID("upsertWorker"),
		forge.WithRequestSchema(worker.Worker{}),
		forge.WithResponseSchema(http.StatusOK, "Worker", &worker.Worker{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/workers", a.listWorkers,
		forge.WithSummary("List workers"),
		forge.WithDescription("Returns all registered workers with their offers and assignments."),
		forge.WithOperationID("listWorkers"),
		forge.WithResponseSchema(http.StatusOK, "Worker list", []*worker.Worker{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/workers/:workerId", a.getWorker,
		forge.WithSummary("Get worker"),
		forge.WithDescription("Returns a worker snapshot including outstanding offers and active assignments."),
		forge.WithOperationID("getWorker"),
		forge.WithResponseSchema(http.StatusOK, "Worker details", &worker.Worker{}),
		forge.WithErrorResponses(),
	)

	_ = g.DELETE("/workers/:workerId", a.deregisterWorker,
		forge.WithSummary("Deregister worker"),
		forge.WithDescription("Removes a worker; its outstanding offers are revoked and the jobs requeued."),
		forge.WithOperationID("deregisterWorker"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	)
}

// registerQueueRoutes registers queue and distribution policy routes.
func (a *API) registerQueueRoutes(router forge.Router) {
	g := router.Group("/v1", forge.WithGroupTags("queues"))

	_ = g.PUT("/queues", a.upsertQueue,
		forge.WithSummary("Upsert queue"),
		forge.WithDescription("Creates or updates a job queue."),
		forge.WithOperationID("upsertQueue"),
		forge.WithRequestSchema(queue.Queue{}),
		forge.WithResponseSchema(http.StatusOK, "Queue", &queue.Queue{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/queues/:queueId", a.getQueue,
		forge.WithSummary("Get queue"),
		forge.WithDescription("Returns details of a specific queue."),
		forge.WithOperationID("getQueue"),
		forge.WithResponseSchema(http.StatusOK, "Queue details", &queue.Queue{}),
		forge.WithErrorResponses(),
	)

	_ = g.PUT("/policies", a.upsertPolicy,
		forge.WithSummary("Upsert distribution policy"),
		forge.WithDescription("Creates or updates a distribution policy."),
		forge.WithOperationID("upsertPolicy"),
		forge.WithRequestSchema(policy.DistributionPolicy{}),
		forge.WithResponseSchema(http.StatusOK, "Policy", &policy.DistributionPolicy{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/policies/:policyId", a.getPolicy,
		forge.WithSummary("Get distribution policy"),
		forge.WithDescription("Returns details of a specific distribution policy."),
		forge.WithOperationID("getPolicy"),
		forge.WithResponseSchema(http.StatusOK, "Policy details", &policy.DistributionPolicy{}),
		forge.WithErrorResponses(),
	)
}

// registerJobRoutes registers job lifecycle routes.
func (a *API) registerJobRoutes(router forge.Router) {
	g := router.Group("/v1", forge.WithGroupTags("jobs"))

	_ = g.POST("/jobs", a.submitJob,
		forge.WithSummary("Submit job"),
		forge.WithDescription("Submits a new job to a queue in queued state."),
		forge.WithOperationID("submitJob"),
		forge.WithRequestSchema(SubmitJobRequest{}),
		forge.WithCreatedResponse(&job.Job{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/jobs", a.listJobs,
		forge.WithSummary("List jobs"),
		forge.WithDescription("Returns jobs filtered by state and queue."),
		forge.WithOperationID("listJobs"),
		forge.WithRequestSchema(ListJobsRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Job list", []*job.Job{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/jobs/counts", a.jobCounts,
		forge.WithSummary("Job counts"),
		forge.WithDescription("Returns job counts grouped by state."),
		forge.WithOperationID("jobCounts"),
		forge.WithResponseSchema(http.StatusOK, "Job counts", JobCountsResponse{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/jobs/:jobId", a.getJob,
		forge.WithSummary("Get job"),
		forge.WithDescription("Returns details of a specific job."),
		forge.WithOperationID("getJob"),
		forge.WithResponseSchema(http.StatusOK, "Job details", &job.Job{}),
		forge.WithErrorResponses(),
	)

	_ = g.POST("/jobs/:jobId/cancel", a.cancelJob,
		forge.WithSummary("Cancel job"),
		forge.WithDescription("Cancels a queued or offered job; outstanding offers are revoked."),
		forge.WithOperationID("cancelJob"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	)

	_ = g.POST("/jobs/:jobId/complete", a.completeJob,
		forge.WithSummary("Complete job"),
		forge.WithDescription("Marks an assignment's work as finished; capacity stays reserved until close."),
		forge.WithOperationID("completeJob"),
		forge.WithRequestSchema(SettleJobRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Job details", &job.Job{}),
		forge.WithErrorResponses(),
	)

	_ = g.POST("/jobs/:jobId/close", a.closeJob,
		forge.WithSummary("Close job"),
		forge.WithDescription("Settles a completed assignment and releases the worker's capacity."),
		forge.WithOperationID("closeJob"),
		forge.WithRequestSchema(SettleJobRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Job details", &job.Job{}),
		forge.WithErrorResponses(),
	)
}

// registerOfferRoutes registers offer resolution routes.
func (a *API) registerOfferRoutes(router forge.Router) {
	g := router.Group("/v1", forge.WithGroupTags("offers"))

	_ = g.POST("/workers/:workerId/offers/:offerId/accept", a.acceptOffer,
		forge.WithSummary("Accept offer"),
		forge.WithDescription("Converts an outstanding offer into an assignment."),
		forge.WithOperationID("acceptOffer"),
		forge.WithResponseSchema(http.StatusOK, "Assignment", &engine.AcceptResult{}),
		forge.WithErrorResponses(),
	)

	_ = g.POST("/workers/:workerId/offers/:offerId/decline", a.declineOffer,
		forge.WithSummary("Decline offer"),
		forge.WithDescription("Declines an outstanding offer; the job is requeued."),
		forge.WithOperationID("declineOffer"),
		forge.WithRequestSchema(DeclineOfferRequest{}),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	)
}

// registerStatsRoutes registers aggregate statistics routes.
func (a *API) registerStatsRoutes(router forge.Router) {
	g := router.Group("/v1", forge.WithGroupTags("stats"))

	_ = g.GET("/stats", a.stats,
		forge.WithSummary("Router stats"),
		forge.WithDescription("Returns job counts per state and per-worker load."),
		forge.WithOperationID("routerStats"),
		forge.WithResponseSchema(http.StatusOK, "Router statistics", &engine.Stats{}),
		forge.WithErrorResponses(),
	)
}
