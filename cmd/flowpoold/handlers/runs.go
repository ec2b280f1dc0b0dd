package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/flowpool/flowpool/pkg/api/apierr"
	apiruns "github.com/flowpool/flowpool/pkg/api/types/runs"
	"github.com/flowpool/flowpool/pkg/domain"
	"github.com/flowpool/flowpool/pkg/domain/queue"
	"github.com/flowpool/flowpool/pkg/utils/slices"
)

// SubmitRunHandler accepts a run spec for the pool named in the path.
func SubmitRunHandler(dbRun queue.RunInterface, paramPool string) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := apiruns.RunSpec{}
		if err := c.Bind(&req); err != nil {
			return apierr.BadRequest("malformed run spec", err)
		}

		spec, err := req.ToDomain()
		if err != nil {
			return apierr.BadRequest(err.Error(), err)
		}

		ctx := c.Request().Context()
		runID, err := dbRun.Submit(ctx, c.Param(paramPool), spec)
		if err != nil {
			if errors.Is(err, domain.ErrMissing) {
				return apierr.NotFound()
			}
			return apierr.InternalServerError(err)
		}

		return c.JSON(http.StatusCreated, apiruns.Submitted{RunID: runID})
	}
}

func GetRunHandler(dbRun queue.RunInterface, paramRunID string) echo.HandlerFunc {
	return func(c echo.Context) error {
		run, err := dbRun.Get(c.Request().Context(), c.Param(paramRunID))
		if err != nil {
			if errors.Is(err, domain.ErrMissing) {
				return apierr.NotFound()
			}
			return apierr.InternalServerError(err)
		}
		return c.JSON(http.StatusOK, apiruns.FromDomain(run))
	}
}

// FindRunHandler lists runs, filtered by "pool" and comma separated
// "status" query params.
func FindRunHandler(dbRun queue.RunInterface) echo.HandlerFunc {
	return func(c echo.Context) error {
		statuses := []domain.FlowRunStatus{}
		if q := c.QueryParam("status"); q != "" {
			for _, s := range strings.Split(q, ",") {
				status, err := domain.AsFlowRunStatus(s)
				if err != nil {
					return apierr.BadRequest(
						`"status" should be a comma separated list of run statuses`, err,
					)
				}
				statuses = append(statuses, status)
			}
		}

		runs, err := dbRun.Find(c.Request().Context(), c.QueryParam("pool"), statuses)
		if err != nil {
			return apierr.InternalServerError(err)
		}
		return c.JSON(http.StatusOK, slices.Map(runs, apiruns.FromDomain))
	}
}

func GetRunLogHandler(dbRun queue.RunInterface, paramRunID string) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		runID := c.Param(paramRunID)

		if _, err := dbRun.Get(ctx, runID); err != nil {
			if errors.Is(err, domain.ErrMissing) {
				return apierr.NotFound()
			}
			return apierr.InternalServerError(err)
		}

		content, err := dbRun.Log(ctx, runID)
		if err != nil {
			return apierr.InternalServerError(err)
		}
		return c.Blob(http.StatusOK, "text/plain", content)
	}
}

// InvalidateRunHandler discards a run that no worker has claimed yet.
func InvalidateRunHandler(dbRun queue.RunInterface, paramRunID string) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := dbRun.SetStatus(c.Request().Context(), c.Param(paramRunID), domain.Invalidated)
		switch {
		case errors.Is(err, domain.ErrMissing):
			return apierr.NotFound()
		case errors.Is(err, domain.ErrInvalidStatusChange):
			return apierr.Conflict("run is already claimed or finished")
		case err != nil:
			return apierr.InternalServerError(err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}
