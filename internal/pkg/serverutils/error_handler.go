package serverutils

import (
	"errors"
	"strings"

	"jobboard-notify-be/internal/feed"
	"jobboard-notify-be/internal/repository"
	"jobboard-notify-be/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// StatusFor maps a domain error to its HTTP status.
func StatusFor(err error) int {
	var fiberErr *fiber.Error
	var validationErrs validator.ValidationErrors
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.As(err, &validationErrs), errors.Is(err, service.ErrInvalidEvent):
		return fiber.StatusBadRequest
	case errors.Is(err, repository.ErrNotificationNotFound),
		errors.Is(err, repository.ErrNotificationTypeNotFound),
		errors.Is(err, feed.ErrUnknownSummary):
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandlerMiddleware renders errors returned by later handlers as a
// BaseResponse.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		code := StatusFor(err)
		message := err.Error()

		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			fields := make([]string, 0, len(validationErrs))
			for _, fe := range validationErrs {
				fields = append(fields, fe.Field()+" failed on "+fe.Tag())
			}
			message = "Validation failed: " + strings.Join(fields, ", ")
		} else if code == fiber.StatusInternalServerError {
			message = "Internal server error"
		}

		return ctx.Status(code).JSON(ErrorResponse(code, message))
	}
}
