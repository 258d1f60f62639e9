package echoapi

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/user"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindQuery binds the query string only; handlers with a body still bind it with ctx.Bind.
func bindQuery(ctx echo.Context, dest interface{}) error {
	return errors.Wrap(new(echo.DefaultBinder).BindQueryParams(ctx, dest), "binding query params")
}

func bindPage(ctx echo.Context) (core.Pagination, error) {
	var page core.Pagination
	if err := bindQuery(ctx, &page); err != nil {
		return page, err
	}
	page.Clean()
	return page, nil
}

// Page is the envelope of paginated listings.
type Page[T any] struct {
	Count   int `json:"count"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Results []T `json:"results"`
}

func newPage[T any](results []T, count int, p core.Pagination) Page[T] {
	if results == nil {
		results = []T{}
	}
	return Page[T]{Count: count, Page: p.Page, PerPage: p.PerPage, Results: results}
}

// orEmpty keeps empty listings rendered as `[]`.
func orEmpty[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}

// apiBase holds what every domain API needs.
type apiBase struct {
	auth     *authenticator
	validate *validator.Validate
}

func (b apiBase) actor(ctx echo.Context) (user.User, error) {
	usr, err := b.auth.contextUser(ctx)
	return usr, errors.Wrap(err, "getting context user")
}

type (
	SuccessResponse struct {
		Success string `json:"success"`
	}

	CountResponse struct {
		Count int `json:"count"`
	}
)
