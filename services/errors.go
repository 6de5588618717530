package services

import (
	"errors"
	"net/http"

	apperrors "checkout-service/common/errors"
	"checkout-service/models"

	"github.com/go-playground/validator/v10"
)

// ServiceError carries the HTTP status and code a controller renders.
type ServiceError = apperrors.Error

func newError(status int, code, message string, err error) *ServiceError {
	return apperrors.New(status, code, message, err)
}

func validationError(message string, details interface{}) *ServiceError {
	return apperrors.Validation(message, details)
}

func notFound(message string) *ServiceError {
	return apperrors.NotFound(message)
}

func orderNotFound() *ServiceError {
	return newError(http.StatusNotFound, apperrors.CodeOrderNotFound, "Order not found", nil)
}

func preconditionFailed(message string) *ServiceError {
	return newError(http.StatusBadRequest, apperrors.CodePaymentPrecondition, message, nil)
}

func internalError(message string, err error) *ServiceError {
	return apperrors.Internal(message, err)
}

// fieldErrors turns validator output into one entry per failing field.
func fieldErrors(err error) []models.FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []models.FieldError{{Message: err.Error()}}
	}
	out := make([]models.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, models.FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "indian_state":
		return "Please select a valid state"
	case "pincode":
		return "Please enter a valid 6-digit pincode"
	case "email":
		return "Please enter a valid email address"
	}
	return fe.Field() + " is invalid"
}
