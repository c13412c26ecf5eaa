package main

// EnrollmentGranted is the payload the worker sends to SQS for each new grant.
type EnrollmentGranted struct {
	Type         string `json:"type"`
	EnrollmentID string `json:"enrollment_id"`
	Email        string `json:"email"`
	CourseSlug   string `json:"course_slug"`
	OrderNo      string `json:"order_no"`
}

const eventEnrollmentGranted = "enrollment.granted"

// paidTransition is what the worker extracts from an orders stream record.
type paidTransition struct {
	OrderNo     string
	Email       string
	CourseSlugs []string
}
