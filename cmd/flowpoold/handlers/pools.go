package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/flowpool/flowpool/pkg/api/apierr"
	apipools "github.com/flowpool/flowpool/pkg/api/types/pools"
	"github.com/flowpool/flowpool/pkg/domain"
	"github.com/flowpool/flowpool/pkg/domain/queue"
	"github.com/flowpool/flowpool/pkg/utils/slices"
)

func CreatePoolHandler(dbPool queue.PoolInterface) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := apipools.WorkPool{}
		if err := c.Bind(&req); err != nil {
			return apierr.BadRequest("malformed work pool", err)
		}

		pool, err := req.ToDomain()
		if err != nil {
			return apierr.BadRequest(err.Error(), err)
		}

		ctx := c.Request().Context()
		if err := dbPool.CreatePool(ctx, pool); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return apierr.Conflict("pool name is taken: " + pool.Name)
			}
			return apierr.InternalServerError(err)
		}

		return c.JSON(http.StatusCreated, apipools.FromDomain(pool))
	}
}

func ListPoolsHandler(dbPool queue.PoolInterface) echo.HandlerFunc {
	return func(c echo.Context) error {
		pools, err := dbPool.Pools(c.Request().Context())
		if err != nil {
			return apierr.InternalServerError(err)
		}
		return c.JSON(http.StatusOK, slices.Map(pools, apipools.FromDomain))
	}
}

func GetPoolHandler(dbPool queue.PoolInterface, paramPool string) echo.HandlerFunc {
	return func(c echo.Context) error {
		pool, err := dbPool.GetPool(c.Request().Context(), c.Param(paramPool))
		if err != nil {
			if errors.Is(err, domain.ErrMissing) {
				return apierr.NotFound()
			}
			return apierr.InternalServerError(err)
		}
		return c.JSON(http.StatusOK, apipools.FromDomain(pool))
	}
}

// PutPoolPaused pauses (true) or resumes (false) a pool.
func PutPoolPaused(dbPool queue.PoolInterface, paramPool string, paused bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		name := c.Param(paramPool)

		if err := dbPool.SetPoolPaused(ctx, name, paused); err != nil {
			if errors.Is(err, domain.ErrMissing) {
				return apierr.NotFound()
			}
			return apierr.InternalServerError(err)
		}

		pool, err := dbPool.GetPool(ctx, name)
		if err != nil {
			return apierr.InternalServerError(err)
		}
		return c.JSON(http.StatusOK, apipools.FromDomain(pool))
	}
}
