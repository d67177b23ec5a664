// Package validation owns the shared struct validator and filesystem checks
// used by the workflow document and node settings.
package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/alexisbeaulieu97/nodeflow/internal/table"
	nferrors "github.com/alexisbeaulieu97/nodeflow/pkg/errors"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	nodeIDPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)
	semverPattern = regexp.MustCompile(`^\d+\.\d+(?:\.\d+)?(?:-[0-9A-Za-z-.]+)?(?:\+[0-9A-Za-z-.]+)?$`)
)

// Instance returns the shared validator with the custom tags registered:
// semver, node_id, port_ref, memory_policy and column_type.
func Instance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("semver", func(fl validator.FieldLevel) bool {
			return semverPattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("node_id", func(fl validator.FieldLevel) bool {
			return nodeIDPattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("port_ref", func(fl validator.FieldLevel) bool {
			_, _, err := ParsePortRef(fl.Field().String())
			return err == nil
		})

		_ = v.RegisterValidation("memory_policy", func(fl validator.FieldLevel) bool {
			_, err := table.ParseMemoryPolicy(fl.Field().String())
			return err == nil
		})

		_ = v.RegisterValidation("column_type", func(fl validator.FieldLevel) bool {
			_, err := table.ParseColumnType(fl.Field().String())
			return err == nil
		})

		validateInst = v
	})

	return validateInst
}

// ParsePortRef splits "node" or "node:port" into its parts. The port
// defaults to 0.
func ParsePortRef(ref string) (string, int, error) {
	node, portPart, hasPort := strings.Cut(strings.TrimSpace(ref), ":")
	if !nodeIDPattern.MatchString(node) {
		return "", 0, fmt.Errorf("invalid node id in port reference %q", ref)
	}
	if !hasPort {
		return node, 0, nil
	}
	idx, err := strconv.Atoi(portPart)
	if err != nil || idx < 0 {
		return "", 0, fmt.Errorf("invalid port index in port reference %q", ref)
	}
	return node, idx, nil
}

// ToValidationError normalizes validator errors for workflow documents.
func ToValidationError(err error) error {
	if err == nil {
		return nil
	}

	if ves, ok := err.(validator.ValidationErrors); ok {
		ve := ves[0]
		field := fieldName(ve)
		msg := fmt.Sprintf("%s failed validation for tag '%s'", field, ve.Tag())
		return nferrors.NewValidationError(field, msg, err)
	}

	return nferrors.NewValidationError("workflow", err.Error(), err)
}

// ToSettingsError normalizes validator errors for node settings.
func ToSettingsError(err error) error {
	if err == nil {
		return nil
	}

	if ves, ok := err.(validator.ValidationErrors); ok {
		parts := make([]string, 0, len(ves))
		for _, ve := range ves {
			parts = append(parts, fmt.Sprintf("%s failed validation for tag '%s'", fieldName(ve), ve.Tag()))
		}
		return nferrors.NewInvalidSettingsError("", strings.Join(parts, "; "), err)
	}

	return nferrors.NewInvalidSettingsError("", err.Error(), err)
}

func fieldName(fe validator.FieldError) string {
	ns := fe.StructNamespace()
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	lowered := make([]string, 0, len(parts))
	for _, part := range parts {
		lowered = append(lowered, strings.ToLower(part))
	}
	return strings.Join(lowered, ".")
}
