// Package response renders the uniform JSON envelope every endpoint returns:
//
//	{"success": true,  "mensaje": "...", "datos": {...}}
//	{"success": false, "mensaje": "...", "errores": {...}}
package response

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Envelope is the body of every HTTP response.
type Envelope struct {
	Success bool        `json:"success"`
	Mensaje string      `json:"mensaje"`
	Datos   interface{} `json:"datos,omitempty"`
	Errores interface{} `json:"errores,omitempty"`
}

// OK writes a 200 success envelope.
func OK(c echo.Context, mensaje string, datos interface{}) error {
	return c.JSON(http.StatusOK, Envelope{Success: true, Mensaje: mensaje, Datos: datos})
}

// Created writes a 201 success envelope.
func Created(c echo.Context, mensaje string, datos interface{}) error {
	return c.JSON(http.StatusCreated, Envelope{Success: true, Mensaje: mensaje, Datos: datos})
}

// Fail writes a failure envelope with the given status.
func Fail(c echo.Context, status int, mensaje string, errores interface{}) error {
	return c.JSON(status, Envelope{Success: false, Mensaje: mensaje, Errores: errores})
}

// GenericServerError is the only message a 5xx response ever carries.
const GenericServerError = "Error interno del servidor"

// ErrorHandler returns an echo.HTTPErrorHandler that renders errors in the
// failure envelope. 5xx details are logged and replaced by a generic message.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		mensaje := GenericServerError
		var errores interface{}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			switch m := he.Message.(type) {
			case string:
				mensaje = m
			case error:
				mensaje = m.Error()
			default:
				mensaje = fmt.Sprintf("%v", m)
			}
			if he.Internal != nil {
				errores = detailsOf(he.Internal)
			}
		}

		if status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
			mensaje = GenericServerError
			errores = nil
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = Fail(c, status, mensaje, errores)
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("write error response")
		}
	}
}

// Detailed is implemented by errors that carry per-field details for the
// "errores" member of the envelope.
type Detailed interface {
	Details() map[string]string
}

func detailsOf(err error) interface{} {
	var d Detailed
	if errors.As(err, &d) {
		if fields := d.Details(); len(fields) > 0 {
			return fields
		}
	}
	return nil
}
