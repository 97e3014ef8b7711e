package proctoring

import (
	"ProctorGolang/pkg/response"
	"net/http"
)

var (
	ErrInvalidImage        = response.NewError(http.StatusBadRequest, "invalid image")
	ErrBadRequest          = response.NewError(http.StatusBadRequest, "bad request")
	ErrSessionNotFound     = response.NewError(http.StatusNotFound, "session not found")
	ErrInternalServerError = response.NewError(http.StatusInternalServerError, "internal server error")
)
