package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/fulldump/box"
	json2 "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/fulldump/rowmodel/service"
)

type PrettyError struct {
	Message     string `json:"message"`
	Description string `json:"description"`
}

// HttpError carries the status a handler wants for err.
type HttpError struct {
	Status      int
	Err         error
	Description string
}

func (e *HttpError) Error() string {
	return e.Err.Error()
}

func (e *HttpError) Unwrap() error {
	return e.Err
}

func writeError(w http.ResponseWriter, status int, err error, description string) {
	w.WriteHeader(status)
	json2.MarshalWrite(w, map[string]PrettyError{
		"error": {
			Message:     err.Error(),
			Description: description,
		},
	})
}

func PrettyErrorInterceptor(next box.H) box.H {
	return func(ctx context.Context) {

		next(ctx)

		err := box.GetError(ctx)
		if err == nil {
			return
		}
		w := box.GetResponse(ctx)

		httpError := &HttpError{}
		if errors.As(err, &httpError) {
			writeError(w, httpError.Status, err, httpError.Description)
			return
		}

		if errors.Is(err, box.ErrResourceNotFound) {
			writeError(w, http.StatusNotFound, err, fmt.Sprintf("resource '%s' not found", box.GetRequest(ctx).URL.String()))
			return
		}

		if errors.Is(err, box.ErrMethodNotAllowed) {
			writeError(w, http.StatusMethodNotAllowed, err, fmt.Sprintf("method '%s' not allowed", box.GetRequest(ctx).Method))
			return
		}

		if errors.Is(err, service.ErrorDatastoreNotFound) {
			writeError(w, http.StatusNotFound, err, "datastore does not exist")
			return
		}

		if errors.Is(err, ErrUnavailable) {
			writeError(w, http.StatusServiceUnavailable, err, "try again later")
			return
		}

		syntaxError := &json.SyntaxError{}
		syntacticError := &jsontext.SyntacticError{}
		semanticError := &json2.SemanticError{}
		if errors.As(err, &syntaxError) || errors.As(err, &syntacticError) || errors.As(err, &semanticError) {
			writeError(w, http.StatusBadRequest, err, "Malformed JSON")
			return
		}

		writeError(w, http.StatusInternalServerError, err, "Unexpected error")
	}
}

// notFound gives a missing datastore a 404 naming it.
func notFound(name string, err error) error {
	if errors.Is(err, service.ErrorDatastoreNotFound) {
		return &HttpError{
			Status:      http.StatusNotFound,
			Err:         err,
			Description: fmt.Sprintf("datastore '%s' does not exist", name),
		}
	}
	return err
}
