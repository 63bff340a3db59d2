package utils

import (
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

func TestIsSettingKey(t *testing.T) {
	for _, k := range []string{"hero", "contact_info", "footer-links", "stats2"} {
		assert.True(t, IsSettingKey(k), k)
	}
	for _, k := range []string{"", "Hero", "with space", "semi;colon"} {
		assert.False(t, IsSettingKey(k), k)
	}
}

func TestRegisterValidators(t *testing.T) {
	RegisterValidators()
	v := binding.Validator.Engine().(*validator.Validate)

	type req struct {
		Role     string `binding:"required,role"`
		Provider string `binding:"provider"`
	}
	assert.NoError(t, v.Struct(req{Role: "Student", Provider: "anthropic"}))
	assert.Error(t, v.Struct(req{Role: "teacher"}))
	assert.Error(t, v.Struct(req{Role: "admin", Provider: "mistral"}))
}
