package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/campaign-gateway/repositories"
	"github.com/upb/campaign-gateway/services"
	"github.com/upb/campaign-gateway/utils"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Page is a limit/offset window parsed from the query string
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// parsePage reads ?limit= and ?offset=
func parsePage(r *http.Request) (Page, error) {
	page := Page{Limit: defaultPageSize}
	fields := map[string]string{}

	q := r.URL.Query()
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxPageSize {
			fields["limit"] = "must be between 1 and " + strconv.Itoa(maxPageSize)
		}
		page.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fields["offset"] = "must be a non-negative integer"
		}
		page.Offset = n
	}

	if len(fields) > 0 {
		return Page{}, &utils.ValidationError{Message: "invalid pagination", Fields: fields}
	}
	return page, nil
}

// pathID parses a UUID route parameter. Anything unparsable reads as absent.
func pathID(r *http.Request, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		return uuid.Nil, services.ErrResourceNotFound
	}
	return id, nil
}

// repositoryError converts a repository failure into a domain error
func repositoryError(err error, message string) error {
	var domainErr *services.DomainError
	switch {
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, repositories.ErrNotFound):
		return services.ErrResourceNotFound
	default:
		return services.WrapInternal(message, err)
	}
}
