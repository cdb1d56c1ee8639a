package response

import "net/http"

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionActive      ErrCode = "SESSION_ALREADY_ACTIVE"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrAdminAccessOnly   ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Exam session ──────────────────────────────────────────────────
	ErrNoActiveExam      ErrCode = "NO_ACTIVE_EXAM"
	ErrInvalidExamToken  ErrCode = "INVALID_EXAM_TOKEN"
	ErrExamAlreadyActive ErrCode = "EXAM_ALREADY_ACTIVE"
	ErrInvalidExamWindow ErrCode = "INVALID_EXAM_WINDOW"
	ErrSubjectNotFound   ErrCode = "SUBJECT_NOT_FOUND"
	ErrExamNotStarted    ErrCode = "EXAM_NOT_STARTED"
	ErrExamWrongState    ErrCode = "EXAM_WRONG_STATE"
	ErrExamClosed        ErrCode = "EXAM_CLOSED"
	ErrExamForfeited     ErrCode = "EXAM_FORFEITED"
	ErrInvalidPosition   ErrCode = "INVALID_QUESTION_POSITION"
	ErrNoQuestions       ErrCode = "NO_QUESTIONS"
	ErrMalformedQuestion ErrCode = "MALFORMED_QUESTION"
	ErrStoreNotSupported ErrCode = "STORE_OPERATION_UNSUPPORTED"
	ErrStoreUnavailable  ErrCode = "STORE_UNAVAILABLE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "NIS/username atau kata sandi salah."
	case ErrSessionActive:
		return "Anda sudah login di perangkat lain."
	case ErrSessionInvalidated:
		return "Sesi Anda telah berakhir. Silakan login kembali."
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrStudentAccessOnly:
		return "Sumber daya ini terbatas untuk siswa."
	case ErrAdminAccessOnly:
		return "Sumber daya ini terbatas untuk administrator."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."

	// ─── Exam session ──────────────────────────────────────────────────
	case ErrNoActiveExam:
		return "Tidak ada ujian yang aktif saat ini."
	case ErrInvalidExamToken:
		return "Token ujian salah."
	case ErrExamAlreadyActive:
		return "Masih ada sesi ujian yang aktif. Nonaktifkan terlebih dahulu."
	case ErrInvalidExamWindow:
		return "Waktu selesai harus setelah waktu mulai."
	case ErrSubjectNotFound:
		return "Mata pelajaran tidak ditemukan."
	case ErrExamNotStarted:
		return "Anda belum memulai ujian."
	case ErrExamWrongState:
		return "Langkah ini tidak tersedia pada tahap ujian saat ini."
	case ErrExamClosed:
		return "Ujian sudah selesai."
	case ErrExamForfeited:
		return "PELANGGARAN TERDETEKSI! Anda meninggalkan halaman ujian. Silakan login kembali."
	case ErrInvalidPosition:
		return "Nomor soal tidak valid."
	case ErrNoQuestions:
		return "Belum ada soal untuk mata pelajaran dan kelas ini."
	case ErrMalformedQuestion:
		return "Format soal tidak valid."
	case ErrStoreNotSupported:
		return "Operasi ini tidak didukung oleh penyimpanan data yang dipakai."
	case ErrStoreUnavailable:
		return "Gagal menghubungi penyimpanan data. Silakan coba lagi."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}

// Status returns the HTTP status a code is answered with. Unknown codes
// are internal errors.
func (code ErrCode) Status() int {
	switch code {
	case ErrValidation, ErrInvalidPayload, ErrInvalidExamToken, ErrInvalidExamWindow,
		ErrInvalidPosition, ErrMalformedQuestion:
		return http.StatusBadRequest
	case ErrInvalidCredentials, ErrSessionInvalidated, ErrTokenRequired, ErrTokenInvalid:
		return http.StatusUnauthorized
	case ErrStudentAccessOnly, ErrAdminAccessOnly:
		return http.StatusForbidden
	case ErrNotFound, ErrNoActiveExam, ErrSubjectNotFound, ErrExamNotStarted:
		return http.StatusNotFound
	case ErrSessionActive, ErrExamAlreadyActive, ErrExamWrongState, ErrExamClosed,
		ErrExamForfeited, ErrNoQuestions:
		return http.StatusConflict
	case ErrRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrStoreNotSupported:
		return http.StatusNotImplemented
	case ErrStoreUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the client may repeat the same request later.
func (code ErrCode) Retryable() bool {
	return code == ErrStoreUnavailable || code == ErrRateLimitExceeded
}
