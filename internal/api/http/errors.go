package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/irrigation-assistant/internal/apperr"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Help     string `json:"help,omitempty"`
}

// ErrorHandler renders every handler error as {"error":{category,message,help}}.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, body := renderError(err)
		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				"method", c.Method(),
				"path", c.Path(),
				"status", status,
				"error", err,
			)
		}
		return c.Status(status).JSON(body)
	}
}

func renderError(err error) (int, errorBody) {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		category := categoryForStatus(fe.Code)
		return fe.Code, errorBody{Error: errorDetail{Category: category, Message: fe.Message}}
	}

	appErr := apperr.As(err)
	return appErr.HTTPStatus(), errorBody{Error: errorDetail{
		Category: string(appErr.Code),
		Message:  appErr.Message,
		Help:     appErr.Help,
	}}
}

func categoryForStatus(code int) string {
	switch {
	case code == http.StatusBadRequest:
		return string(apperr.CodeValidation)
	case code >= http.StatusInternalServerError:
		return string(apperr.CodeInternal)
	default:
		return strings.ReplaceAll(strings.ToLower(http.StatusText(code)), " ", "_")
	}
}

func validationError(message string, err error) error {
	return apperr.New(apperr.CodeValidation, message, "Vérifiez les paramètres de la requête", err)
}
