package models

import "github.com/go-playground/validator/v10"

// NewValidator returns a validator with the domain enum tags registered:
// user_role, incident_category, incident_priority and incident_status.
func NewValidator() *validator.Validate {
	v := validator.New()
	RegisterValidators(v)
	return v
}

// RegisterValidators installs the domain enum tags on v.
func RegisterValidators(v *validator.Validate) {
	_ = v.RegisterValidation("user_role", func(fl validator.FieldLevel) bool {
		return UserRole(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("incident_category", func(fl validator.FieldLevel) bool {
		return oneOf(fl.Field().String(), IncidentCategories)
	})
	_ = v.RegisterValidation("incident_priority", func(fl validator.FieldLevel) bool {
		return oneOf(fl.Field().String(), IncidentPriorities)
	})
	_ = v.RegisterValidation("incident_status", func(fl validator.FieldLevel) bool {
		return oneOf(fl.Field().String(), IncidentStatuses)
	})
}

func oneOf[T ~string](value string, allowed []T) bool {
	for _, a := range allowed {
		if string(a) == value {
			return true
		}
	}
	return false
}
