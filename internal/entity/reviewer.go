package entity

// Reviewer is the authenticated caller of the dashboard endpoints.
type Reviewer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}
