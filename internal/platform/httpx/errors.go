package httpx

import (
	"errors"
	"net/http"
)

// ErrBadRequest marks client errors in handlers.
var ErrBadRequest = errors.New("bad request")

// RespondError maps handler errors to JSON message responses.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBadRequest):
		Message(w, http.StatusBadRequest, err.Error())
	default:
		Message(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}
