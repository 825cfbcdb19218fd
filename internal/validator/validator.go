// Package validator provides custom validation functions for Gin's binding engine.
package validator

import (
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"finlink/internal/models"
	"finlink/internal/uuid"
)

var (
	publicTokenRegex   = regexp.MustCompile(`^public-(sandbox|development|production)-[A-Za-z0-9-]+$`)
	institutionIDRegex = regexp.MustCompile(`^ins_[0-9]+$`)
)

// Register registers all custom validators with the Gin binding engine.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("public_token", validatePublicToken)
		_ = v.RegisterValidation("institution_id", validateInstitutionID)
		_ = v.RegisterValidation("user_role", validateUserRole)
		_ = v.RegisterValidation("uuid_list", validateUUIDList)
	}
}

func validatePublicToken(fl validator.FieldLevel) bool {
	return publicTokenRegex.MatchString(fl.Field().String())
}

func validateInstitutionID(fl validator.FieldLevel) bool {
	return institutionIDRegex.MatchString(fl.Field().String())
}

func validateUserRole(fl validator.FieldLevel) bool {
	switch models.Role(fl.Field().String()) {
	case models.RoleUser, models.RoleAdmin:
		return true
	}
	return false
}

// validateUUIDList accepts a comma-separated list of UUIDs; blank entries are ignored.
func validateUUIDList(fl validator.FieldLevel) bool {
	return lo.EveryBy(SplitList(fl.Field().String()), uuid.IsValid)
}

// SplitList splits a comma-separated query value, dropping blanks.
func SplitList(raw string) []string {
	parts := lo.Map(strings.Split(raw, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	})
	return lo.Compact(parts)
}
