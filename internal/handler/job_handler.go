package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/ayukmesoh/storekeeper/internal/domain"
	"github.com/ayukmesoh/storekeeper/internal/service"
)

// JobHandler lets platform operators trigger the billing batch jobs on
// demand, outside the cron cadence. The jobs are idempotent, so an ad-hoc
// run next to a scheduled one is safe.
type JobHandler struct {
	scheduler *service.LifecycleScheduler
}

// NewJobHandler creates a new job handler
func NewJobHandler(scheduler *service.LifecycleScheduler) *JobHandler {
	return &JobHandler{scheduler: scheduler}
}

// Run executes one batch job, or every job in order for "all".
// POST /api/admin/jobs/:job
func (h *JobHandler) Run(c *fiber.Ctx) error {
	job := c.Params("job")

	if job == service.JobAll {
		summaries, err := h.scheduler.RunAll(c.Context())
		if err != nil {
			return jobError(c, err)
		}
		return c.JSON(fiber.Map{
			"summaries": summaries,
		})
	}

	summary, err := h.scheduler.Run(c.Context(), job)
	if err != nil {
		return jobError(c, err)
	}
	return c.JSON(summary)
}

func jobError(c *fiber.Ctx, err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return writeError(c, err)
}
