// Package remote implements the data store against a spreadsheet-backed
// web app that speaks a GET-query / POST-action JSON protocol.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/stemsi/cbt-backend/internal/model"
)

// ErrRemote wraps every failure reported by the remote endpoint itself.
var ErrRemote = errors.New("remote store error")

const maxBodyBytes = 32 << 20

// Client is a DataStore backed by the remote web app.
type Client struct {
	baseURL    string
	http       *http.Client
	bcryptCost int
	log        zerolog.Logger
}

// New creates a client for baseURL. Plaintext passwords in fetched data
// are hashed with bcryptCost so every store hands out bcrypt hashes.
func New(baseURL string, timeout time.Duration, bcryptCost int, log zerolog.Logger) *Client {
	if bcryptCost < bcrypt.MinCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Client{
		baseURL:    strings.TrimSpace(baseURL),
		http:       &http.Client{Timeout: timeout},
		bcryptCost: bcryptCost,
		log:        log.With().Str("component", "remote_store").Logger(),
	}
}

// FetchAllData loads every sheet in a single request.
func (c *Client) FetchAllData(ctx context.Context) (*model.Snapshot, error) {
	var w wireSnapshot
	if err := c.get(ctx, "getAllData", nil, &w); err != nil {
		return nil, err
	}
	return c.snapshot(w)
}

// FetchExamStatus returns the current exam or nil when none is configured.
func (c *Client) FetchExamStatus(ctx context.Context) (*model.ActiveExam, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "getExamStatus", nil, &raw); err != nil {
		return nil, err
	}
	return decodeExam(raw)
}

// FetchSessionStatuses returns the status rows recorded under token.
func (c *Client) FetchSessionStatuses(ctx context.Context, token string) ([]model.StudentStatus, error) {
	var rows []wireStatus
	q := url.Values{"token": {token}}
	if err := c.get(ctx, "getExamSessions", q, &rows); err != nil {
		return nil, err
	}
	out := make([]model.StudentStatus, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// ReportStudentStatus posts a status update.
func (c *Client) ReportStudentStatus(ctx context.Context, st model.StudentStatus) error {
	return c.post(ctx, "updateStudentStatus", map[string]any{
		"token":     st.Token,
		"nis":       st.NIS,
		"name":      st.Name,
		"status":    st.Status,
		"timestamp": st.Timestamp.UTC().Format(time.RFC3339),
	})
}

// ActivateExam replaces the remote exam record.
func (c *Client) ActivateExam(ctx context.Context, exam model.ActiveExam) error {
	return c.post(ctx, "activateExam", exam)
}

// DeactivateExam marks the remote exam inactive.
func (c *Client) DeactivateExam(ctx context.Context) error {
	return c.post(ctx, "deactivateExam", map[string]any{})
}

// SubmitResult appends a result row.
func (c *Client) SubmitResult(ctx context.Context, r model.ExamResult) error {
	return c.post(ctx, "submitExam", r)
}

// SaveQuestion upserts a question. The subject is carried in the tags
// as well, since the sheet has no subject column for old rows.
func (c *Client) SaveQuestion(ctx context.Context, q model.Question) error {
	q.Tags = model.WithSubjectTag(q.Tags, q.SubjectID)
	return c.post(ctx, "saveQuestion", q)
}

// DeleteQuestion removes a question by id.
func (c *Client) DeleteQuestion(ctx context.Context, id string) error {
	return c.post(ctx, "deleteQuestion", map[string]string{"id": id})
}

func (c *Client) get(ctx context.Context, action string, extra url.Values, out any) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("remote url: %w", err)
	}
	q := u.Query()
	q.Set("action", action)
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	return c.do(req, action, out)
}

func (c *Client) post(ctx context.Context, action string, payload any) error {
	body, err := json.Marshal(map[string]any{"action": action, "payload": payload})
	if err != nil {
		return err
	}
	// Apps Script rejects application/json preflights, so the body goes as text/plain.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain;charset=utf-8")
	return c.do(req, action, nil)
}

func (c *Client) do(req *http.Request, action string, out any) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%s: read body: %w", action, err)
	}
	c.log.Debug().
		Str("action", action).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("Remote call")

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s: http %d: %w", action, resp.StatusCode, ErrRemote)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%s: decode envelope: %w", action, err)
	}
	if !strings.EqualFold(env.Status, "success") {
		msg := env.Message
		if msg == "" {
			msg = "unknown error"
		}
		return fmt.Errorf("%s: %s: %w", action, msg, ErrRemote)
	}
	if out == nil {
		return nil
	}
	if len(env.Data) == 0 {
		env.Data = json.RawMessage("null")
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s: decode data: %w", action, err)
	}
	return nil
}

func (c *Client) snapshot(w wireSnapshot) (*model.Snapshot, error) {
	snap := &model.Snapshot{
		Classes:   make([]model.Class, 0, len(w.Classes)),
		Students:  make([]model.Student, 0, len(w.Students)),
		Subjects:  make([]model.Subject, 0, len(w.Subjects)),
		Questions: make([]model.Question, 0, len(w.Questions)),
		Results:   make([]model.ExamResult, 0, len(w.Results)),
	}

	if w.SchoolData != nil {
		sd := w.SchoolData
		snap.SchoolData = model.SchoolData{
			Name:          sd.Name,
			Address:       sd.Address,
			Term:          sd.Term,
			AdminName:     sd.AdminName,
			AdminUsername: string(sd.AdminUsername),
			Logo:          sd.Logo,
		}
		if sd.AdminPassword != "" {
			hash, err := c.hash(string(sd.AdminPassword))
			if err != nil {
				return nil, err
			}
			snap.SchoolData.AdminPasswordHash = hash
		}
	}

	for _, cl := range w.Classes {
		snap.Classes = append(snap.Classes, model.Class{ID: string(cl.ID), Name: cl.Name, Level: string(cl.Level)})
	}

	for _, s := range w.Students {
		st := model.Student{
			ID:    string(s.ID),
			NIS:   string(s.NIS),
			Name:  s.Name,
			Class: s.Class,
		}
		if st.ID == "" {
			st.ID = st.NIS
		}
		if s.Password != "" {
			hash, err := c.hash(string(s.Password))
			if err != nil {
				return nil, err
			}
			st.PasswordHash = hash
		}
		snap.Students = append(snap.Students, st)
	}

	for _, s := range w.Subjects {
		snap.Subjects = append(snap.Subjects, model.Subject{
			ID:    string(s.ID),
			Name:  s.Name,
			Code:  s.Code,
			Class: s.Class,
		})
	}
	for _, q := range w.Questions {
		snap.Questions = append(snap.Questions, q.toModel())
	}
	for _, r := range w.Results {
		snap.Results = append(snap.Results, r.toModel())
	}

	exam, err := decodeExam(w.ActiveExam)
	if err != nil {
		c.log.Warn().Err(err).Msg("Ignoring undecodable active exam in snapshot")
	}
	snap.ActiveExam = exam
	return snap, nil
}

// hash returns pw unchanged when it already is a bcrypt hash.
func (c *Client) hash(pw string) (string, error) {
	if strings.HasPrefix(pw, "$2") {
		if _, err := bcrypt.Cost([]byte(pw)); err == nil {
			return pw, nil
		}
	}
	b, err := bcrypt.GenerateFromPassword([]byte(pw), c.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}
