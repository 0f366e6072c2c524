package router

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"reflect"
	"runtime"

	"github.com/go-chi/chi/v5"
)

// Router is a wrapper around chi.Router that provides error handling.
// Handlers can return an error that will then get mapped to an error response.
// Error mappers can be registered for sentinel errors to provide custom error responses.
// Sub routers created with Route, Group and With share the mappers of their parent.
type Router struct {
	chi.Router
	errs   *errorMappers
	logger *slog.Logger
}

type errorMappers struct {
	mappers      []registeredMapper
	defaultError Error
}

type registeredMapper struct {
	target error
	fn     ErrorMapper
}

func New(opts ...RouterOption) *Router {
	router := &Router{
		Router: chi.NewRouter(),
		errs:   &errorMappers{defaultError: DefaultError},
		logger: slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}

	for _, opt := range opts {
		opt(router)
	}
	return router
}

type RouterOption func(*Router)

func WithLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

func WithDefaultError(err Error) RouterOption {
	return func(r *Router) {
		r.errs.defaultError = err
	}
}

func (a *Router) derive(chiRouter chi.Router) *Router {
	return &Router{
		Router: chiRouter,
		errs:   a.errs,
		logger: a.logger,
	}
}

// HandlerFunc is a function that handles an HTTP request and returns an error.
// When the handler fails to handle the request it should not write anything to the response writer,
// instead it should return an error that will be mapped to an error response.
type HandlerFunc func(http.ResponseWriter, *http.Request) error

type Middleware func(http.Handler) HandlerFunc

// ErrorMapper is a function that maps go errors to API errors.
type ErrorMapper func(error) Error

// RegisterErrorMapper maps every error that wraps target using fn.
// Mappers are tried in registration order.
func (a *Router) RegisterErrorMapper(target error, fn ErrorMapper) {
	a.errs.mappers = append(a.errs.mappers, registeredMapper{target: target, fn: fn})
}

// RegisterStatus maps every error that wraps target to code with the target's message.
func (a *Router) RegisterStatus(target error, code int) {
	a.RegisterErrorMapper(target, func(error) Error {
		return NewAPIError(code, target.Error())
	})
}

// mapError maps a go error to an API error.
// The mapping works as following:
//   - if the error is already an API error it will be returned as is.
//   - otherwise the first mapper whose target the error wraps is used.
//   - if no error mapper is found the default error will be returned.
func (a *Router) mapError(err error) Error {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	for _, m := range a.errs.mappers {
		if errors.Is(err, m.target) {
			return m.fn(err)
		}
	}
	return a.errs.defaultError
}

func (a *Router) handleWithErr(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}
		resError := a.mapError(err)
		if resError.StatusCode() >= http.StatusInternalServerError {
			handlerFn := runtime.FuncForPC(reflect.ValueOf(h).Pointer())
			a.logger.Error(err.Error(), slog.String("handler", handlerFn.Name()), slog.String("path", r.URL.Path))
		} else {
			a.logger.Debug(err.Error(), slog.String("path", r.URL.Path))
		}
		if err := resError.Write(w); err != nil {
			a.logger.Error(err.Error())
		}
	}
}

func (a *Router) Get(path string, h HandlerFunc) {
	a.Router.Get(path, a.handleWithErr(h))
}

func (a *Router) Post(path string, h HandlerFunc) {
	a.Router.Post(path, a.handleWithErr(h))
}

func (a *Router) Put(path string, h HandlerFunc) {
	a.Router.Put(path, a.handleWithErr(h))
}

func (a *Router) Delete(path string, h HandlerFunc) {
	a.Router.Delete(path, a.handleWithErr(h))
}

func (a *Router) Route(path string, f func(r *Router)) {
	a.Router.Route(path, func(r chi.Router) {
		f(a.derive(r))
	})
}

func (a *Router) Group(f func(r *Router)) *Router {
	ch := a.Router.Group(func(r chi.Router) {
		f(a.derive(r))
	})
	return a.derive(ch)
}

func (a *Router) Use(middleware Middleware) {
	a.Router.Use(func(h http.Handler) http.Handler {
		return a.handleWithErr(middleware(h))
	})
}

func (a *Router) With(middleware Middleware) *Router {
	ch := a.Router.With(func(h http.Handler) http.Handler {
		return a.handleWithErr(middleware(h))
	})
	return a.derive(ch)
}
