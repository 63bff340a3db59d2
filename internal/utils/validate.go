package utils

import (
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// RegisterValidators adds the custom binding tags used by request structs:
//
//	role         admin or Student
//	setting_key  lowercase letters, digits, dash and underscore
//	provider     openai, anthropic, gemini or ollama
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
			r := fl.Field().String()
			return r == "admin" || r == "Student"
		})
		_ = v.RegisterValidation("setting_key", func(fl validator.FieldLevel) bool {
			return IsSettingKey(fl.Field().String())
		})
		_ = v.RegisterValidation("provider", func(fl validator.FieldLevel) bool {
			switch fl.Field().String() {
			case "", "openai", "anthropic", "gemini", "ollama":
				return true
			}
			return false
		})
	})
}

func IsSettingKey(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	return strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_')
	}) == -1
}
