package httpserver

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// validationDetails flattens validator errors into a field -> tag map
// suitable for the error envelope details.
func validationDetails(err error) map[string]string {
	verrs := map[string]string{}
	if ve, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range ve {
			verrs[strings.ToLower(fe.Field())] = fe.Tag()
		}
	}
	return verrs
}
