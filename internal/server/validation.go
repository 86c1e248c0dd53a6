package server

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/umbralrisk/umbral/internal/engine"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("activity", validActivity)
	}
}

// validActivity accepts any known activity type, DEFAULT included.
func validActivity(fl validator.FieldLevel) bool {
	value := engine.ActivityType(fl.Field().String())
	for _, activity := range engine.ActivityTypes {
		if value == activity {
			return true
		}
	}
	return false
}
