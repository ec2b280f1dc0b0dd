package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/flowpool/flowpool/pkg/api/apierr"
	"github.com/flowpool/flowpool/pkg/domain"
	"github.com/flowpool/flowpool/pkg/store"
)

// ShapeHeader carries an array shape as "a,b,c" on writes and reads.
const ShapeHeader = "X-Array-Shape"

// Endpoints wires the store into the API surface.
func Endpoints(s *store.Store) []Endpoint {
	return []Endpoint{
		{http.MethodPost, "/api/v1/container/*", EnsureContainer(s)},
		{http.MethodPut, "/api/v1/array/*", CreateArray(s)},
		{http.MethodPatch, "/api/v1/array/*", PatchArray(s)},
		{http.MethodGet, "/api/v1/array/full/*", ReadFull(s)},
		{http.MethodGet, "/api/v1/array/structure/*", ArrayStructure(s)},
		{http.MethodPost, "/api/v1/table/*", CreateTable(s)},
		{http.MethodPatch, "/api/v1/table/*", AppendPartition(s)},
		{http.MethodGet, "/api/v1/table/*", ReadTable(s)},
	}
}

func mapError(err error) error {
	switch {
	case errors.Is(err, domain.ErrMissing):
		return apierr.NotFound()
	case errors.Is(err, domain.ErrConflict):
		return apierr.Conflict(err.Error())
	case errors.Is(err, store.ErrOutOfRange):
		return apierr.BadRequest(err.Error(), err)
	default:
		return apierr.InternalServerError(err)
	}
}

func EnsureContainer(s *store.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := s.EnsureContainer(c.Param("*")); err != nil {
			return mapError(err)
		}
		return c.NoContent(http.StatusCreated)
	}
}

func CreateArray(s *store.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		shape, err := store.ParseShape(c.Request().Header.Get(ShapeHeader))
		if err != nil {
			return apierr.BadRequest(`header "X-Array-Shape" should be like "2,512,512"`, err)
		}

		data, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return apierr.InternalServerError(err)
		}

		if err := s.CreateArray(c.Param("*"), shape, data); err != nil {
			return mapError(err)
		}
		return c.NoContent(http.StatusCreated)
	}
}

func PatchArray(s *store.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		offset, err := strconv.Atoi(c.QueryParam("offset"))
		if err != nil {
			return apierr.BadRequest(`query param "offset" should be an integer`, err)
		}
		extend := c.QueryParam("extend") == "true"

		shape, err := store.ParseShape(c.Request().Header.Get(ShapeHeader))
		if err != nil {
			return apierr.BadRequest(`header "X-Array-Shape" should be like "1,512,512"`, err)
		}

		data, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return apierr.InternalServerError(err)
		}

		newShape, err := s.PatchArray(c.Param("*"), offset, extend, shape, data)
		if err != nil {
			return mapError(err)
		}

		c.Response().Header().Set(ShapeHeader, store.FormatShape(newShape))
		return c.NoContent(http.StatusOK)
	}
}

func ReadFull(s *store.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		slice, err := store.ParseSlice(c.QueryParam("slice"))
		if err != nil {
			return apierr.BadRequest(`query param "slice" should be like "0:1,0:512,0:512"`, err)
		}

		data, shape, err := s.ReadFull(c.Param("*"), slice)
		if err != nil {
			return mapError(err)
		}

		c.Response().Header().Set(ShapeHeader, store.FormatShape(shape))
		return c.Blob(http.StatusOK, "application/octet-stream", data)
	}
}

func ArrayStructure(s *store.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		structure, err := s.ArrayStructure(c.Param("*"))
		if err != nil {
			return mapError(err)
		}
		return c.JSON(http.StatusOK, structure)
	}
}

func CreateTable(s *store.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		csv, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return apierr.InternalServerError(err)
		}
		if err := s.CreateTable(c.Param("*"), csv); err != nil {
			return mapError(err)
		}
		return c.NoContent(http.StatusCreated)
	}
}

func AppendPartition(s *store.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		csv, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return apierr.InternalServerError(err)
		}
		if err := s.AppendPartition(c.Param("*"), csv); err != nil {
			return mapError(err)
		}
		return c.NoContent(http.StatusOK)
	}
}

func ReadTable(s *store.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		csv, err := s.ReadTable(c.Param("*"))
		if err != nil {
			return mapError(err)
		}
		return c.Blob(http.StatusOK, "text/csv", csv)
	}
}
