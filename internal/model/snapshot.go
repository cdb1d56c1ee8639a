package model

// Snapshot is everything the portal loads at startup in one fetch.
type Snapshot struct {
	SchoolData SchoolData   `json:"schoolData"`
	Classes    []Class      `json:"classes"`
	Students   []Student    `json:"students"`
	Subjects   []Subject    `json:"subjects"`
	Questions  []Question   `json:"questions"`
	Results    []ExamResult `json:"results"`
	ActiveExam *ActiveExam  `json:"activeExam"`
}
