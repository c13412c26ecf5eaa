package validation

import (
	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// a cart may not list the same course twice
	v.RegisterStructValidation(checkoutStructValidation, CheckoutRequest{})

	return v
}

func checkoutStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CheckoutRequest)

	seen := make(map[string]struct{}, len(req.CourseSlugs))
	for _, s := range req.CourseSlugs {
		if _, dup := seen[s]; dup {
			sl.ReportError(req.CourseSlugs, "course_slugs", "CourseSlugs", "unique_slugs", s)
			return
		}
		seen[s] = struct{}{}
	}
}
