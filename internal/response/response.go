package response

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Response is the envelope every REST endpoint answers with. A failed
// request carries Error and a null Data.
type Response struct {
	Data       interface{} `json:"data"`
	Error      *ErrorBody  `json:"error,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Metadata   Metadata    `json:"metadata"`
}

// ErrorBody tells the portal what went wrong. Message is the Indonesian
// text shown to students and admins as is.
type ErrorBody struct {
	Code      ErrCode           `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	Retryable bool              `json:"retryable,omitempty"`
}

// Pagination describes one page of the admin student list.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// Metadata ties a response to its access log line.
type Metadata struct {
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// NewPagination builds the page block for a list of total items.
func NewPagination(page, perPage, total int) *Pagination {
	pages := 0
	if perPage > 0 {
		pages = (total + perPage - 1) / perPage
	}
	return &Pagination{Page: page, PerPage: perPage, TotalItems: total, TotalPages: pages}
}

// NewErrorBody builds the error block for code.
func NewErrorBody(code ErrCode, fields map[string]string) *ErrorBody {
	return &ErrorBody{
		Code:      code,
		Message:   GetMessage(code),
		Fields:    fields,
		Retryable: code.Retryable(),
	}
}

// Success sends data with the given status code.
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, envelope(c, data, nil))
}

// SuccessWithPagination sends one page of a list.
func SuccessWithPagination(c *gin.Context, statusCode int, data interface{}, pagination *Pagination) {
	body := envelope(c, data, nil)
	body.Pagination = pagination
	c.JSON(statusCode, body)
}

// Fail sends code with an explicit status.
func Fail(c *gin.Context, statusCode int, code ErrCode) {
	c.JSON(statusCode, envelope(c, nil, NewErrorBody(code, nil)))
}

// FailCode sends code with the status it maps to.
func FailCode(c *gin.Context, code ErrCode) {
	Fail(c, code.Status(), code)
}

// FailWithFields sends a validation failure with per-field messages.
func FailWithFields(c *gin.Context, statusCode int, code ErrCode, fields map[string]string) {
	c.JSON(statusCode, envelope(c, nil, NewErrorBody(code, fields)))
}

// AbortFail stops the middleware chain and sends code.
func AbortFail(c *gin.Context, statusCode int, code ErrCode) {
	c.AbortWithStatusJSON(statusCode, envelope(c, nil, NewErrorBody(code, nil)))
}

func envelope(c *gin.Context, data interface{}, errBody *ErrorBody) Response {
	return Response{
		Data:     data,
		Error:    errBody,
		Metadata: buildMetadata(c),
	}
}

func buildMetadata(c *gin.Context) Metadata {
	id := c.GetString(ContextKeyRequestID)
	if id == "" {
		id = uuid.New().String()
	}
	return Metadata{
		RequestID: id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
