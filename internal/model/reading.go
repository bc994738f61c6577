package model

// Reading is a single numeric sample parsed from one broker message. It is
// written once and never retained.
type Reading struct {
	Measurement string  `json:"measurement"` // second topic segment, e.g. "main"
	Tag         string  `json:"tag"`         // third topic segment, e.g. "temperature"
	Value       float64 `json:"value"`
}
