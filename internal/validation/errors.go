package validation

import "strings"

// FieldError is one rejected request field, keyed by its JSON name.
type FieldError struct {
	Field   string `json:"field"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e *FieldError) Error() string {
	return e.Field + " " + e.Message
}

// ValidationErrors lists every rejected field of a request body in
// struct field order.
type ValidationErrors []*FieldError

// Error joins all field messages, e.g. "title is required; content must be
// at least 10 characters".
func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Error()
	}
	return strings.Join(msgs, "; ")
}

// Add records a rejected field.
func (e *ValidationErrors) Add(field, value, message string) {
	*e = append(*e, &FieldError{Field: field, Value: value, Message: message})
}
