package model

// Subject is a tested subject bound to one class.
type Subject struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Code  string `json:"code"`
	Class string `json:"class"`
}
