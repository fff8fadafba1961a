package pv

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/pkg/errors"

	"github.com/nasa-jpl/scopesync/oscilloscope"
	"github.com/nasa-jpl/scopesync/param"
	"github.com/nasa-jpl/scopesync/server"
)

// ValueT is the body of a POST to a variable
type ValueT struct {
	Value interface{} `json:"value"`
}

// HTTPWrapper exposes a Store over HTTP
type HTTPWrapper struct {
	*Store

	// RouteTable maps URLs to functions
	RouteTable server.RouteTable
}

// NewHTTPWrapper returns a new HTTP wrapper with the route table pre-configured
func NewHTTPWrapper(s *Store) HTTPWrapper {
	w := HTTPWrapper{Store: s, RouteTable: server.RouteTable{}}
	rt := w.RouteTable
	rt[server.MethodPath{Method: http.MethodGet, Path: "/pv"}] = w.HTTPList
	rt[server.MethodPath{Method: http.MethodGet, Path: "/pv/{name}"}] = w.HTTPGet
	rt[server.MethodPath{Method: http.MethodPost, Path: "/pv/{name}"}] = w.HTTPSet
	rt[server.MethodPath{Method: http.MethodGet, Path: "/pv/{name}/csv"}] = w.HTTPCSV
	return w
}

// RT satisfies server.HTTPer
func (h HTTPWrapper) RT() server.RouteTable {
	return h.RouteTable
}

// HTTPList returns every variable as JSON
func (h HTTPWrapper) HTTPList(w http.ResponseWriter, r *http.Request) {
	server.EncodeAndRespond(w, h.List())
}

// HTTPGet returns one variable as JSON
func (h HTTPWrapper) HTTPGet(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rec, ok := h.Get(name)
	if !ok {
		http.Error(w, fmt.Sprintf("no process variable %q", name), http.StatusNotFound)
		return
	}
	server.EncodeAndRespond(w, rec)
}

// HTTPSet decodes {"value": ...} and invokes the variable's setter.
// Numbers are passed to the setter as json.Number.
func (h HTTPWrapper) HTTPSet(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	v := ValueT{}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	err := dec.Decode(&v)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = h.Set(name, v.Value)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HTTPCSV writes an array variable as CSV, with its time axis if it has one
func (h HTTPWrapper) HTTPCSV(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	v, ok := h.Value(name)
	if !ok {
		http.Error(w, fmt.Sprintf("no process variable %q", name), http.StatusNotFound)
		return
	}
	data, ok := v.([]float64)
	if !ok {
		http.Error(w, fmt.Sprintf("%s is not a numeric array", name), http.StatusBadRequest)
		return
	}
	rec := oscilloscope.Recording{Name: name, Measurement: data}
	if h.AxisFor != nil {
		if axis := h.AxisFor(name); axis != "" {
			if t, ok := h.Value(axis); ok {
				rec.RelTimes, _ = t.([]float64)
			}
		}
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".csv"))
	if err := rec.EncodeCSV(w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func statusFor(err error) int {
	var conv *param.ConversionError
	switch {
	case errors.Is(err, param.ErrUnknown):
		return http.StatusNotFound
	case errors.Is(err, ErrNotWritable), errors.Is(err, param.ErrReadOnly):
		return http.StatusMethodNotAllowed
	case errors.Is(err, param.ErrOutOfRange), errors.Is(err, param.ErrInvalidChoice), errors.As(err, &conv):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
