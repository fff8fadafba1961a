// Package server contains misc server utilities.
package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi"
)

// MethodPath is an HTTP method and the route it is served on
type MethodPath struct {
	Method string
	Path   string
}

// RouteTable maps method/route pairs to handlers
type RouteTable map[MethodPath]http.HandlerFunc

// Endpoints lists the routes in the table, e.g. "GET /pv", sorted by path
func (rt RouteTable) Endpoints() []string {
	routes := make([]string, 0, len(rt))
	for k := range rt {
		routes = append(routes, k.Method+" "+k.Path)
	}
	sort.Slice(routes, func(i, j int) bool {
		pi := routes[i][strings.IndexByte(routes[i], ' ')+1:]
		pj := routes[j][strings.IndexByte(routes[j], ' ')+1:]
		if pi != pj {
			return pi < pj
		}
		return routes[i] < routes[j]
	})
	return routes
}

// Bind binds every route to r, plus GET list-of-routes
func (rt RouteTable) Bind(r chi.Router) {
	for mp, meth := range rt {
		r.MethodFunc(mp.Method, mp.Path, meth)
	}
	r.Get("/list-of-routes", func(w http.ResponseWriter, r *http.Request) {
		EncodeAndRespond(w, rt.Endpoints())
	})
}

// HTTPer is an object which exposes a RouteTable
type HTTPer interface {
	RT() RouteTable
}

// SubMuxSanitize converts a URL stem such as "scope/" or "/scope" to the
// "/scope" form chi expects for Mount
func SubMuxSanitize(str string) string {
	str = strings.Trim(str, "/*")
	if str == "" {
		return "/"
	}
	return "/" + str
}

// EncodeAndRespond writes v as JSON with a 200 status
func EncodeAndRespond(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		fstr := fmt.Sprintf("error encoding data to json %q", err)
		log.Println(fstr)
	}
}

// BoolT is a struct with a single Bool field
type BoolT struct {
	Bool bool `json:"bool"`
}
