package main

import (
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/Sujan-Raj-1701/Gympro-sub001/settlement"
)

// registerValidators adds the calendar_date tag (YYYY-MM-DD) to gin's validator.
func registerValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	return v.RegisterValidation("calendar_date", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(settlement.DateLayout, fl.Field().String())
		return err == nil
	})
}
