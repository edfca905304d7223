// Package errors renders API failures as RFC 7807 problem documents.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"

	"github.com/strogmv/renodesk/internal/pkg/logger"
)

// AppError is an error with an HTTP status and a problem title.
type AppError struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

func New(status int, title, detail string) *AppError {
	return &AppError{Status: status, Title: title, Detail: detail}
}

func (e *AppError) Error() string {
	if e.Detail == "" {
		return e.Title
	}
	return e.Title + ": " + e.Detail
}

type problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// WriteError writes err as application/problem+json. Errors that are not an AppError
// become a 500 with no detail and are logged.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		logger.From(r.Context()).Error("unhandled request error",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		appErr = New(http.StatusInternalServerError, "Internal Server Error", "")
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(appErr.Status)
	_ = json.NewEncoder(w).Encode(problem{
		Type:     "about:blank",
		Title:    appErr.Title,
		Status:   appErr.Status,
		Detail:   appErr.Detail,
		Instance: r.URL.Path,
	})
}
