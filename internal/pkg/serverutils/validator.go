package serverutils

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateRequest checks the validate tags of a request DTO. The returned
// validator.ValidationErrors is turned into a 400 by ErrorHandlerMiddleware.
func ValidateRequest(req interface{}) error {
	return validate.Struct(req)
}
