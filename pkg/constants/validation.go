package constants

import "github.com/go-playground/validator/v10"

// Validate is the shared struct validator for request DTOs.
var Validate = validator.New(validator.WithRequiredStructEnabled())
