package handlers

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	fcontext "github.com/Ramsey-B/fern/pkg/context"
)

// RequireActor returns the principal forwarded by the auth layer
func RequireActor(c echo.Context) (string, error) {
	actor := fcontext.GetActor(c.Request().Context())
	if actor == "" {
		return "", httperror.NewHTTPError(http.StatusUnauthorized, "X-User-ID header is required")
	}
	return actor, nil
}

// PathParam returns a required path parameter
func PathParam(c echo.Context, name string) (string, error) {
	value := c.Param(name)
	if value == "" {
		return "", httperror.NewHTTPErrorf(http.StatusBadRequest, "missing %s", name)
	}
	return value, nil
}

func SuccessResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, data)
}

func CreatedResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusCreated, data)
}

func NoContentResponse(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}
