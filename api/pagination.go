// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// Document listings are pages over the creation order. order=desc lists the
// newest documents first.
const (
	DefaultPaginationCount    = 100
	MaxPaginationCount        = 100
	DefaultPaginationPage     = 1
	DefaultPaginationOrderAsc = "asc"
	PaginationOrderDesc       = "desc"
)

var ErrInvalidPaginationParameters = errors.New(
	"invalid pagination parameters",
)

type PaginationParams struct {
	Order string
	Count int
	Page  int
}

// offset is the index of the first document on the page
func (p PaginationParams) offset() int {
	return (p.Page - 1) * p.Count
}

func queryInt(query url.Values, name string, fallback int) (int, error) {
	raw := query.Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, ErrInvalidPaginationParameters
	}
	return v, nil
}

// ParsePagination reads count, page and order from the query string. Out of
// range counts and pages are clamped rather than refused.
func ParsePagination(r *http.Request) (PaginationParams, error) {
	query := r.URL.Query()
	count, err := queryInt(query, "count", DefaultPaginationCount)
	if err != nil {
		return PaginationParams{}, err
	}
	page, err := queryInt(query, "page", DefaultPaginationPage)
	if err != nil {
		return PaginationParams{}, err
	}
	order := DefaultPaginationOrderAsc
	if raw := query.Get("order"); raw != "" {
		order = strings.ToLower(raw)
		if order != DefaultPaginationOrderAsc && order != PaginationOrderDesc {
			return PaginationParams{}, ErrInvalidPaginationParameters
		}
	}
	return PaginationParams{
		Order: order,
		Count: min(max(count, 1), MaxPaginationCount),
		Page:  max(page, 1),
	}, nil
}

// SetPaginationHeaders reports how many documents match and over how many
// pages they spread
func SetPaginationHeaders(
	w http.ResponseWriter,
	totalItems int,
	params PaginationParams,
) {
	count := params.Count
	if count < 1 {
		count = DefaultPaginationCount
	}
	totalItems = max(totalItems, 0)
	totalPages := (totalItems + count - 1) / count
	w.Header().Set("X-Pagination-Count-Total", strconv.Itoa(totalItems))
	w.Header().Set("X-Pagination-Page-Total", strconv.Itoa(totalPages))
}

func paginate[T any](items []T, params PaginationParams) []T {
	if params.Order == PaginationOrderDesc {
		items = slices.Clone(items)
		slices.Reverse(items)
	}
	start := params.offset()
	if start >= len(items) {
		return []T{}
	}
	return items[start:min(start+params.Count, len(items))]
}
