package handler

import (
	"net/http"
	"strconv"

	apperrors "github.com/mdlh/query-server-go/internal/errors"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200

	DefaultPageSize = 100
	MaxPageSize     = 1000
)

type PaginationParams struct {
	Limit  int
	Offset int
}

func ParsePagination(r *http.Request) PaginationParams {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	if limit <= 0 || limit > MaxLimit {
		limit = DefaultLimit
	}

	if offset < 0 {
		offset = 0
	}

	return PaginationParams{
		Limit:  limit,
		Offset: offset,
	}
}

// ParseResultPage reads the page/pageSize query params for result retrieval.
// Pages are 1-based.
func ParseResultPage(r *http.Request) (page, pageSize int, err error) {
	page = 1
	pageSize = DefaultPageSize
	q := r.URL.Query()

	if raw := q.Get("page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, apperrors.InvalidInput("page", "must be a positive integer")
		}
	}
	if raw := q.Get("pageSize"); raw != "" {
		pageSize, err = strconv.Atoi(raw)
		if err != nil || pageSize < 1 || pageSize > MaxPageSize {
			return 0, 0, apperrors.InvalidInput("pageSize", "must be between 1 and 1000")
		}
	}
	return page, pageSize, nil
}
