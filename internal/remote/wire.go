package remote

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/stemsi/cbt-backend/internal/model"
)

// The spreadsheet backend flattens values on the way out: ids come back as
// numbers, arrays as comma or JSON strings, times as epoch millis or
// datetime-local strings. The wire types below accept every observed form.

// flexString decodes a string, number or bool into its text form.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*f = flexString(n.String())
		return nil
	}
	*f = flexString(string(b))
	return nil
}

// flexList decodes an array of strings, a JSON-encoded array inside a
// string, or a comma separated string.
type flexList []string

func (f *flexList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = nil
		return nil
	}
	if b[0] == '[' {
		var items []flexString
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		out := make([]string, len(items))
		for i, it := range items {
			out[i] = string(it)
		}
		*f = out
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*f = nil
		return nil
	}
	if strings.HasPrefix(s, "[") {
		return f.UnmarshalJSON([]byte(s))
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*f = out
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// flexTime decodes RFC3339, datetime-local strings or epoch millis.
// Zone-less strings are read in the configured local zone.
type flexTime time.Time

func (f *flexTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) || bytes.Equal(b, []byte(`""`)) {
		*f = flexTime(time.Time{})
		return nil
	}
	if b[0] != '"' {
		ms, err := strconv.ParseInt(string(b), 10, 64)
		if err != nil {
			fl, ferr := strconv.ParseFloat(string(b), 64)
			if ferr != nil {
				return err
			}
			ms = int64(fl)
		}
		*f = flexTime(time.UnixMilli(ms))
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = flexTime(time.UnixMilli(ms))
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			*f = flexTime(t)
			return nil
		}
	}
	*f = flexTime(time.Time{})
	return nil
}

// flexJSON unwraps a JSON value that may have been stored as a string.
type flexJSON json.RawMessage

func (f *flexJSON) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err == nil {
			inner := []byte(strings.TrimSpace(s))
			if json.Valid(inner) {
				*f = flexJSON(inner)
				return nil
			}
		}
	}
	*f = append(flexJSON(nil), b...)
	return nil
}

type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type wireSchool struct {
	Name          string     `json:"name"`
	Address       string     `json:"address"`
	Term          string     `json:"term"`
	AdminName     string     `json:"adminName"`
	AdminUsername flexString `json:"adminUsername"`
	AdminPassword flexString `json:"adminPassword"`
	Logo          string     `json:"logo"`
}

type wireClass struct {
	ID    flexString `json:"id"`
	Name  string     `json:"name"`
	Level flexString `json:"level"`
}

type wireStudent struct {
	ID       flexString `json:"id"`
	NIS      flexString `json:"nis"`
	Name     string     `json:"name"`
	Class    string     `json:"class"`
	Password flexString `json:"password"`
}

type wireSubject struct {
	ID    flexString `json:"id"`
	Name  string     `json:"name"`
	Code  string     `json:"code"`
	Class string     `json:"class"`
}

type wireQuestion struct {
	ID        flexString `json:"id"`
	Type      string     `json:"type"`
	Text      string     `json:"text"`
	Stimulus  flexString `json:"stimulus"`
	Options   flexList   `json:"options"`
	Correct   flexJSON   `json:"correct"`
	SubjectID flexString `json:"subjectId"`
	Class     string     `json:"class"`
	Tags      flexList   `json:"tags"`
}

type wireResult struct {
	ID           flexString `json:"id"`
	StudentID    flexString `json:"studentId"`
	StudentName  string     `json:"studentName"`
	StudentClass string     `json:"studentClass"`
	Class        string     `json:"class"`
	Subject      string     `json:"subject"`
	Score        float64    `json:"score"`
	Date         flexTime   `json:"date"`
	SubmittedAt  flexTime   `json:"submittedAt"`
	Answers      flexJSON   `json:"answers"`
}

type wireExam struct {
	SubjectID        flexString `json:"subjectId"`
	SubjectName      string     `json:"subjectName"`
	SubjectClass     string     `json:"subjectClass"`
	StartTime        flexTime   `json:"startTime"`
	EndTime          flexTime   `json:"endTime"`
	Status           string     `json:"status"`
	Token            flexString `json:"token"`
	TokenGeneratedAt flexTime   `json:"tokenGeneratedAt"`
}

type wireStatus struct {
	Token     flexString `json:"token"`
	NIS       flexString `json:"nis"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	Timestamp flexTime   `json:"timestamp"`
}

type wireSnapshot struct {
	SchoolData *wireSchool     `json:"schoolData"`
	Classes    []wireClass     `json:"classes"`
	Students   []wireStudent   `json:"students"`
	Subjects   []wireSubject   `json:"subjects"`
	Questions  []wireQuestion  `json:"questions"`
	Results    []wireResult    `json:"results"`
	ActiveExam json.RawMessage `json:"activeExam"`
}

func (w wireQuestion) toModel() model.Question {
	q := model.Question{
		ID:        string(w.ID),
		Type:      model.QuestionType(strings.TrimSpace(w.Type)),
		Text:      w.Text,
		Stimulus:  string(w.Stimulus),
		Options:   []string(w.Options),
		Correct:   json.RawMessage(w.Correct),
		SubjectID: string(w.SubjectID),
		Class:     w.Class,
		Tags:      []string(w.Tags),
	}
	if q.Tags == nil {
		q.Tags = []string{}
	}
	return q.Hydrate()
}

func (w wireExam) toModel() *model.ActiveExam {
	status := model.ExamStatus(strings.ToUpper(strings.TrimSpace(w.Status)))
	if status != model.ExamStatusActive {
		status = model.ExamStatusInactive
	}
	return &model.ActiveExam{
		SubjectID:        string(w.SubjectID),
		SubjectName:      w.SubjectName,
		SubjectClass:     w.SubjectClass,
		StartTime:        time.Time(w.StartTime),
		EndTime:          time.Time(w.EndTime),
		Status:           status,
		Token:            string(w.Token),
		TokenGeneratedAt: time.Time(w.TokenGeneratedAt),
	}
}

func (w wireStatus) toModel() model.StudentStatus {
	return model.StudentStatus{
		Token:     string(w.Token),
		NIS:       string(w.NIS),
		Name:      w.Name,
		Status:    model.StudentStatusValue(strings.ToUpper(strings.TrimSpace(w.Status))),
		Timestamp: time.Time(w.Timestamp),
	}
}

func (w wireResult) toModel() model.ExamResult {
	class := w.StudentClass
	if class == "" {
		class = w.Class
	}
	date := time.Time(w.Date)
	if date.IsZero() {
		date = time.Time(w.SubmittedAt)
	}
	r := model.ExamResult{
		ID:           string(w.ID),
		StudentID:    string(w.StudentID),
		StudentName:  w.StudentName,
		StudentClass: class,
		Subject:      w.Subject,
		Score:        w.Score,
		Date:         date,
	}
	if len(w.Answers) > 0 {
		_ = json.Unmarshal(w.Answers, &r.Answers)
	}
	return r
}

// decodeExam reads an exam payload. Empty objects, null and exams without
// a token mean "no active exam".
func decodeExam(raw json.RawMessage) (*model.ActiveExam, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte("{}")) {
		return nil, nil
	}
	var w wireExam
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	if w.Token == "" && w.SubjectID == "" {
		return nil, nil
	}
	return w.toModel(), nil
}
