// Package profiling serves pprof endpoints. They expose goroutine stacks
// and heap contents, so serve them on an internal address only.
package profiling

import (
	"net/http"
	"net/http/pprof"
	"runtime"

	"github.com/go-chi/chi/v5"
)

// Path is the URL prefix of the profiling endpoints
const Path = "/debug/pprof"

// Config holds profiling settings
type Config struct {
	// BlockRate is passed to runtime.SetBlockProfileRate; zero leaves block
	// profiling off
	BlockRate int
	// MutexFraction is passed to runtime.SetMutexProfileFraction; zero
	// leaves mutex profiling off
	MutexFraction int
}

// Handler returns a router serving the pprof endpoints under Path
func Handler(config Config) http.Handler {
	if config.BlockRate > 0 {
		runtime.SetBlockProfileRate(config.BlockRate)
	}
	if config.MutexFraction > 0 {
		runtime.SetMutexProfileFraction(config.MutexFraction)
	}

	r := chi.NewRouter()
	r.Route(Path, func(r chi.Router) {
		r.HandleFunc("/", pprof.Index)
		r.HandleFunc("/cmdline", pprof.Cmdline)
		r.HandleFunc("/profile", pprof.Profile)
		r.HandleFunc("/symbol", pprof.Symbol)
		r.HandleFunc("/trace", pprof.Trace)

		for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
			r.Handle("/"+name, pprof.Handler(name))
		}
	})
	return r
}
