package validation

// CheckoutRequest is the payload for POST /checkout, as JSON or a form post.
type CheckoutRequest struct {
	Email         string   `json:"email" form:"email" validate:"required,email,max=254"`
	CourseSlugs   []string `json:"course_slugs" form:"course_slugs" validate:"required,min=1,max=20,dive,required,max=64"`
	PaymentMethod string   `json:"payment_method,omitempty" form:"payment_method" validate:"omitempty,oneof=credit atm cvs"`
}

// PresignRequest is the payload for POST /admin/uploads/presign.
type PresignRequest struct {
	Filename    string `json:"filename" validate:"required,max=255"`
	ContentType string `json:"content_type" validate:"required"`
}
