package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bus-ticket-reservation/internal/apperr"
	"github.com/iliyamo/bus-ticket-reservation/internal/logging"
	"github.com/iliyamo/bus-ticket-reservation/internal/middleware"
)

// statusFor maps an error kind to the HTTP status returned to clients.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindConflict, apperr.KindInvalidState:
		return http.StatusConflict
	case apperr.KindExpired:
		return http.StatusGone
	case apperr.KindExternalFailure:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError renders err as {error, code, kind}.  Internal errors are
// logged and their message is not exposed.
func writeError(c echo.Context, err error) error {
	kind := apperr.KindOf(err)
	status := statusFor(kind)

	msg := err.Error()
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Message != "" {
		msg = ae.Message
	}
	if status >= http.StatusInternalServerError {
		logging.FromContext(c.Request().Context()).WithError(err).Error("request failed")
		if kind == apperr.KindInternal {
			msg = "internal error"
		}
	}
	return c.JSON(status, echo.Map{"error": msg, "code": apperr.CodeOf(err), "kind": kind})
}

// writeRejection renders a refused hold, confirm or cancel as 400 with
// the kind and code in the body.  Internal errors still go through
// writeError.
func writeRejection(c echo.Context, err error) error {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		return writeError(c, err)
	}
	msg := err.Error()
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Message != "" {
		msg = ae.Message
	}
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "code": apperr.CodeOf(err), "kind": kind})
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "code": "UNAUTHORIZED", "kind": "UNAUTHORIZED"})
}

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.New(apperr.KindValidation, apperr.CodeInvalidRequest, "invalid %s", name)
	}
	return id, nil
}

// bind decodes the body into req and runs the registered validator.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return apperr.Wrap(err, apperr.KindValidation, apperr.CodeInvalidRequest, "invalid request body")
	}
	return c.Validate(req)
}

// userFrom returns the authenticated user id; ok is false when the JWT
// middleware did not run or the claim is unusable.
func userFrom(c echo.Context) (uint64, bool) {
	id, ok := middleware.UserID(c)
	return id, ok && id != 0
}
