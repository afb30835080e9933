// Package http provides HTTP server and handler implementations.
//
// This file turns query strings into validated report queries.

package http

import (
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"vahan/internal/analytics"
	"vahan/internal/core"
	"vahan/internal/services"
)

// ReportParams mirrors the query string accepted by the report endpoints.
type ReportParams struct {
	Start         string   `query:"start" validate:"omitempty,month"`
	End           string   `query:"end" validate:"omitempty,month"`
	Categories    []string `query:"category" validate:"max=200,dive,max=64"`
	Manufacturers []string `query:"manufacturer" validate:"max=500,dive,max=128"`
	Top           *int     `query:"top" validate:"omitempty,min=1,max=100"`
	Dims          []string `query:"dims" validate:"max=2,dive,dimension"`
}

// ValidationError describes one rejected query parameter.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is returned for any malformed query.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Message
	}
	return "invalid query: " + strings.Join(msgs, "; ")
}

// ReportRequest is a parsed and validated report query.
type ReportRequest struct {
	Query services.Query
	Dims  []core.Dimension
}

// QueryParser validates query strings with struct tags.
type QueryParser struct {
	validate *validator.Validate
}

func NewQueryParser() *QueryParser {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("month", isMonth)
	_ = v.RegisterValidation("dimension", isDimension)

	// Use query parameter names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("query")
	})
	return &QueryParser{validate: v}
}

// Parse reads start, end, category, manufacturer, top and dims from values.
// Dates may be YYYY-MM or YYYY-MM-DD and are truncated to their month.
// Category and manufacturer may repeat or hold comma-separated lists.
func (p *QueryParser) Parse(values url.Values) (ReportRequest, error) {
	params := ReportParams{
		Start:         sanitizeInput(values.Get("start")),
		End:           sanitizeInput(values.Get("end")),
		Categories:    splitLabels(values["category"]),
		Manufacturers: splitLabels(values["manufacturer"]),
		Dims:          splitList(values["dims"]),
	}
	if v := strings.TrimSpace(values.Get("top")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return ReportRequest{}, ValidationErrors{{Field: "top", Message: "top must be an integer"}}
		}
		params.Top = &n
	}

	if err := p.validate.Struct(params); err != nil {
		return ReportRequest{}, p.convert(err)
	}
	return params.request()
}

func (p *QueryParser) convert(err error) error {
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{Field: fe.Field(), Message: formatValidationError(fe)})
	}
	return out
}

func (params ReportParams) request() (ReportRequest, error) {
	req := ReportRequest{
		Query: services.Query{
			Categories:    params.Categories,
			Manufacturers: params.Manufacturers,
		},
	}
	if params.Top != nil {
		req.Query.TopN = *params.Top
	}
	if params.Start != "" || params.End != "" {
		var rng analytics.DateRange
		if params.Start != "" {
			rng.Start, _ = parseMonthParam(params.Start)
		}
		if params.End != "" {
			rng.End, _ = parseMonthParam(params.End)
		}
		req.Query.Range = &rng
	}
	for _, d := range params.Dims {
		dim, err := core.ParseDimension(d)
		if err != nil {
			return ReportRequest{}, ValidationErrors{{Field: "dims", Message: err.Error()}}
		}
		req.Dims = append(req.Dims, dim)
	}
	return req, nil
}

var monthLayouts = []string{"2006-01", time.DateOnly}

func parseMonthParam(s string) (time.Time, error) {
	for _, layout := range monthLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return core.MonthStart(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not YYYY-MM or YYYY-MM-DD", s)
}

func isMonth(fl validator.FieldLevel) bool {
	_, err := parseMonthParam(fl.Field().String())
	return err == nil
}

func isDimension(fl validator.FieldLevel) bool {
	_, err := core.ParseDimension(fl.Field().String())
	return err == nil
}

func formatValidationError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "month":
		return fmt.Sprintf("%s must be YYYY-MM or YYYY-MM-DD", field)
	case "dimension":
		return fmt.Sprintf("%s: unknown dimension %q", field, fe.Value())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s accepts at most %s values", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// splitList flattens repeated and comma-separated values, dropping blanks.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = sanitizeInput(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// splitLabels is splitList for data labels: entries keep their surrounding
// spaces and only all-blank entries are dropped.
func splitLabels(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = stripControl(part); strings.TrimSpace(part) != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
