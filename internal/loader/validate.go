package loader

import (
	"reflect"
	"strings"

	"github.com/fadilmartias/pte-practice/internal/util"
	"github.com/go-playground/validator/v10"
)

func newValidator() *validator.Validate {
	v := util.NewValidator()
	_ = v.RegisterValidation("permutation_of", validatePermutationOf)
	_ = v.RegisterValidation("option_index", validateOptionIndex)
	return v
}

func siblingLen(fl validator.FieldLevel) (int, bool) {
	parent := reflect.Indirect(fl.Parent())
	if parent.Kind() != reflect.Struct {
		return 0, false
	}
	other := parent.FieldByName(fl.Param())
	if !other.IsValid() || other.Kind() != reflect.Slice {
		return 0, false
	}
	return other.Len(), true
}

// validatePermutationOf checks that an []int holds every index of the named
// sibling slice exactly once.
func validatePermutationOf(fl validator.FieldLevel) bool {
	n, ok := siblingLen(fl)
	field := fl.Field()
	if !ok || field.Kind() != reflect.Slice || field.Len() != n {
		return false
	}
	seen := make([]bool, n)
	for i := 0; i < n; i++ {
		idx := int(field.Index(i).Int())
		if idx < 0 || idx >= n || seen[idx] {
			return false
		}
		seen[idx] = true
	}
	return true
}

func validateOptionIndex(fl validator.FieldLevel) bool {
	n, ok := siblingLen(fl)
	if !ok {
		return false
	}
	idx := int(fl.Field().Int())
	return idx >= 0 && idx < n
}

func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return "missing or invalid field(s): " + strings.Join(fields, ", ")
}
