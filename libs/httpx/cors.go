package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy lists what browsers on the allowed origins may send and read.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// compiled holds the header values of a policy, computed once.
type compiled struct {
	origins     map[string]bool
	anyOrigin   bool
	credentials bool
	fixed       map[string]string
}

func (p CORSPolicy) compile() compiled {
	c := compiled{origins: map[string]bool{}, credentials: p.AllowCredentials, fixed: map[string]string{}}
	for _, o := range p.AllowedOrigins {
		o = strings.ToLower(strings.TrimSpace(o))
		switch o {
		case "":
		case "*":
			c.anyOrigin = true
		default:
			c.origins[o] = true
		}
	}
	setList := func(name string, values []string) {
		var kept []string
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" {
				kept = append(kept, v)
			}
		}
		if len(kept) > 0 {
			c.fixed[name] = strings.Join(kept, ", ")
		}
	}
	setList("Access-Control-Allow-Methods", p.AllowedMethods)
	setList("Access-Control-Allow-Headers", p.AllowedHeaders)
	setList("Access-Control-Expose-Headers", p.ExposedHeaders)
	if secs := int(p.MaxAge.Seconds()); secs > 0 {
		c.fixed["Access-Control-Max-Age"] = strconv.Itoa(secs)
	}
	if p.AllowCredentials {
		c.fixed["Access-Control-Allow-Credentials"] = "true"
	}
	return c
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin. A wildcard echoes the
// origin when credentials are allowed, since browsers reject "*" with credentials.
func (c compiled) allowOrigin(origin string) (string, bool) {
	if c.origins[strings.ToLower(origin)] {
		return origin, true
	}
	if c.anyOrigin {
		if c.credentials {
			return origin, true
		}
		return "*", true
	}
	return "", false
}

// WithCORS answers preflights and decorates responses for allowed origins. Without allowed
// origins it is a no-op.
func WithCORS(policy CORSPolicy) Middleware {
	c := policy.compile()
	if !c.anyOrigin && len(c.origins) == 0 {
		return nil
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")
			origin := r.Header.Get("Origin")
			allowed, ok := c.allowOrigin(origin)
			if origin == "" || !ok {
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Access-Control-Allow-Origin", allowed)
			for name, value := range c.fixed {
				h.Set(name, value)
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
