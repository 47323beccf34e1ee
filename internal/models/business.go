package models

// Business is the read-only slice of a business profile the review pipeline needs.
type Business struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	OwnerID    string `json:"owner_id" yaml:"owner_id"`
	OwnerEmail string `json:"owner_email" yaml:"owner_email"`
}
