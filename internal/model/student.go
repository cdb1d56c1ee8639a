package model

// Student is an examinee. Class holds the class name, which is how
// subjects and questions are matched to students.
type Student struct {
	ID           string `json:"id"`
	NIS          string `json:"nis"`
	Name         string `json:"name"`
	Class        string `json:"class"`
	PasswordHash string `json:"-"`
}

// StudentLoginRequest is the payload for student authentication.
type StudentLoginRequest struct {
	NIS      string `json:"nis" binding:"required,notblank,max=20"`
	Password string `json:"password" binding:"required,max=128"`
}

// StudentLoginResponse is returned after successful student login.
type StudentLoginResponse struct {
	Token   string  `json:"token"`
	Student Student `json:"student"`
}
