package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/oj-server/internal/domain"
)

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

// getValidator returns the shared validator. Field names come from json
// tags so failures name the wire field, not the Go one.
func getValidator() *validator.Validate {
	vldOnce.Do(func() {
		vld = validator.New()
		vld.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return vld
}

// Pointer fields distinguish absent from zero: user 0 and contest 0 are
// legitimate submission targets.
type submitRequest struct {
	SourceCode *string `json:"source_code" validate:"required"`
	Language   *string `json:"language" validate:"required"`
	UserID     *int64  `json:"user_id" validate:"required"`
	ContestID  *int64  `json:"contest_id" validate:"required"`
	ProblemID  *int64  `json:"problem_id" validate:"required"`
}

type userRequest struct {
	ID   *int64  `json:"id"`
	Name *string `json:"name" validate:"required"`
}

type contestRequest struct {
	ID              *int64  `json:"id"`
	Name            *string `json:"name" validate:"required"`
	From            *string `json:"from" validate:"required"`
	To              *string `json:"to" validate:"required"`
	ProblemIDs      []int64 `json:"problem_ids"`
	UserIDs         []int64 `json:"user_ids"`
	SubmissionLimit int64   `json:"submission_limit"`
}

// decodeBody decodes and validates a JSON body. Every failure is an
// InvalidArgument naming the first offending field.
func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.Errorf(domain.ErrInvalidArgument, "invalid argument body")
	}
	if err := getValidator().Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return domain.Errorf(domain.ErrInvalidArgument, "invalid argument %s", verrs[0].Field())
		}
		return domain.Errorf(domain.ErrInvalidArgument, "invalid argument body")
	}
	return nil
}

// pathID parses the {id} path segment.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 0 {
		return 0, domain.Errorf(domain.ErrInvalidArgument, "invalid argument id")
	}
	return id, nil
}

// parseJobFilter builds the list predicate from query params, rejecting
// values that do not parse.
func parseJobFilter(r *http.Request) (domain.JobFilter, error) {
	var f domain.JobFilter
	q := r.URL.Query()

	ints := []struct {
		name string
		dst  **int64
	}{
		{"user_id", &f.UserID},
		{"contest_id", &f.ContestID},
		{"problem_id", &f.ProblemID},
	}
	for _, p := range ints {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.JobFilter{}, domain.Errorf(domain.ErrInvalidArgument, "invalid argument %s", p.name)
		}
		*p.dst = &v
	}
	if raw := q.Get("user_name"); raw != "" {
		f.UserName = &raw
	}
	if raw := q.Get("language"); raw != "" {
		f.Language = &raw
	}
	if raw := q.Get("state"); raw != "" {
		st, ok := domain.ParseState(raw)
		if !ok {
			return domain.JobFilter{}, domain.Errorf(domain.ErrInvalidArgument, "invalid argument state")
		}
		f.State = &st
	}
	if raw := q.Get("result"); raw != "" {
		v, ok := domain.ParseVerdict(raw)
		if !ok {
			return domain.JobFilter{}, domain.Errorf(domain.ErrInvalidArgument, "invalid argument result")
		}
		f.Result = &v
	}
	if raw := q.Get("from"); raw != "" {
		ts, err := domain.ParseTimestamp(raw)
		if err != nil {
			return domain.JobFilter{}, domain.Errorf(domain.ErrInvalidArgument, "invalid argument from")
		}
		f.From = &ts
	}
	if raw := q.Get("to"); raw != "" {
		ts, err := domain.ParseTimestamp(raw)
		if err != nil {
			return domain.JobFilter{}, domain.Errorf(domain.ErrInvalidArgument, "invalid argument to")
		}
		f.To = &ts
	}
	return f, nil
}

// parseRankQuery validates the ranklist query params. Both default when
// absent: highest scoring, no tie-break.
func parseRankQuery(r *http.Request) (domain.ScoringRule, domain.TieBreaker, error) {
	q := r.URL.Query()
	rule, ok := domain.ParseScoringRule(q.Get("scoring_rule"))
	if !ok {
		return "", "", domain.Errorf(domain.ErrInvalidArgument, "invalid argument scoring_rule")
	}
	tie, ok := domain.ParseTieBreaker(q.Get("tie_breaker"))
	if !ok {
		return "", "", domain.Errorf(domain.ErrInvalidArgument, "invalid argument tie_breaker")
	}
	return rule, tie, nil
}
