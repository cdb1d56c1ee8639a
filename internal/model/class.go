package model

// Class is a school class such as "XII MIPA 1".
type Class struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Level string `json:"level"`
}
