package types

// ErrorEnvelope is the failure body shared by every endpoint. Error carries a
// single message, Errors carries per-field validation problems.
type ErrorEnvelope struct {
	Status bool   `json:"Status"`
	Code   string `json:"Code,omitempty"`
	Error  string `json:"Error,omitempty"`
	Errors any    `json:"Errors,omitempty"`
}

// Page is the limit/offset listing body used by public catalog listings.
type Page[T any] struct {
	Count    int64   `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}
