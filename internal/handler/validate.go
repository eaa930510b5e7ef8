package handler

import (
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"hypercopy/internal/models"
)

// RegisterValidators adds the request tags used by the execution handlers
// to gin's validator.
func RegisterValidators() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	_ = v.RegisterValidation("side", func(fl validator.FieldLevel) bool {
		return models.Side(strings.ToLower(strings.TrimSpace(fl.Field().String()))).Valid()
	})
	_ = v.RegisterValidation("plansource", func(fl validator.FieldLevel) bool {
		return models.Source(strings.TrimSpace(fl.Field().String())).Valid()
	})
}
