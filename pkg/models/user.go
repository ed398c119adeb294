package models

// User identifies the caller a session belongs to. With auth disabled
// every request maps to the local user.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}
