package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/cbt-backend/internal/exam"
	"github.com/stemsi/cbt-backend/internal/remote"
	"github.com/stemsi/cbt-backend/internal/response"
	"github.com/stemsi/cbt-backend/internal/service"
	"github.com/stemsi/cbt-backend/internal/store"
)

// errorStatus maps a domain error to its HTTP status and API code.
func errorStatus(err error) (int, response.ErrCode) {
	code := errorCode(err)
	return code.Status(), code
}

func errorCode(err error) response.ErrCode {
	switch {
	case errors.Is(err, exam.ErrNoActiveExam):
		return response.ErrNoActiveExam
	case errors.Is(err, exam.ErrTokenMismatch):
		return response.ErrInvalidExamToken
	case errors.Is(err, exam.ErrWrongState):
		return response.ErrExamWrongState
	case errors.Is(err, exam.ErrSessionClosed), errors.Is(err, exam.ErrSessionStopped):
		return response.ErrExamClosed
	case errors.Is(err, exam.ErrInvalidPosition):
		return response.ErrInvalidPosition
	case errors.Is(err, exam.ErrNoQuestions):
		return response.ErrNoQuestions
	case errors.Is(err, exam.ErrMalformedQuestion):
		return response.ErrMalformedQuestion
	case errors.Is(err, service.ErrNoSession):
		return response.ErrExamNotStarted
	case errors.Is(err, service.ErrExamAlreadyActive):
		return response.ErrExamAlreadyActive
	case errors.Is(err, service.ErrSubjectNotFound):
		return response.ErrSubjectNotFound
	case errors.Is(err, service.ErrInvalidExamWindow):
		return response.ErrInvalidExamWindow
	case errors.Is(err, store.ErrNotFound):
		return response.ErrNotFound
	case errors.Is(err, store.ErrNotSupported):
		return response.ErrStoreNotSupported
	case errors.Is(err, remote.ErrRemote):
		return response.ErrStoreUnavailable
	default:
		return response.ErrInternal
	}
}

// failWith writes the error response for err.
func failWith(c *gin.Context, err error) {
	response.FailCode(c, errorCode(err))
}
