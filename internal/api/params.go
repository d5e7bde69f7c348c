package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func orgID(r *http.Request) int64 {
	// RequireOrganization already validated the parameter
	id, _ := strconv.ParseInt(chi.URLParam(r, "org"), 10, 64)
	return id
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil
}

// projectIDs parses the repeated project query parameter
func projectIDs(query url.Values) ([]int64, error) {
	values := query["project"]
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("Invalid project parameter. Values must be numbers.")
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func optionalInt(query url.Values, name string) (*int, error) {
	v := query.Get(name)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("Invalid %s parameter: %q", name, v)
	}
	return &n, nil
}
