package api

import (
	"net/url"
	"strconv"
)

// Page is one page of a paginated list endpoint.
type Page[T any] struct {
	Results  []T     `json:"results"`
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
}

// HasNext reports whether the server advertised a following page.
func (p Page[T]) HasNext() bool {
	return p.Next != nil && *p.Next != ""
}

func pageQuery(page, pageSize int) url.Values {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}
	return q
}

// loginRequest is the body of POST /auth/login/.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// refreshRequest is the body of POST /auth/token/refresh/.
type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// tokenResponse is returned by the login and refresh endpoints.
type tokenResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}
