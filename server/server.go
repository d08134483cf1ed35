// Package server exposes a parsed DataModel over HTTP: the normalized
// semantic model and per-table decoded data, behind bearer-token auth and
// a Redis-backed response cache, in the gorilla/mux + rs/cors shape the
// teacher's own HTTP service uses.
package server

import (
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/pbixdm/pbixdm/pbix"
)

// Config controls auth, CORS, and the Redis table-data cache.
type Config struct {
	Addr           string
	JWTSecret      string
	AllowedOrigins []string
	CacheTTL       time.Duration
}

// Server serves one already-parsed pbix.Result.
type Server struct {
	router *mux.Router
	result *pbix.Result
	log    *zap.Logger
	redis  *redis.Client
	conf   Config
}

// New builds a Server bound to result. redis may be nil, in which case
// table responses are never cached.
func New(result *pbix.Result, log *zap.Logger, redisClient *redis.Client, conf Config) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{result: result, log: log, redis: redisClient, conf: conf}

	r := mux.NewRouter()
	r.Use(requestIDMiddleware())
	r.Use(accessLogMiddleware(log))
	r.Use(panicCatchMiddleware(log))
	if conf.JWTSecret != "" {
		r.Use(authMiddleware(conf.JWTSecret))
	}

	r.HandleFunc("/model", s.handleModel).Methods(http.MethodGet)
	r.HandleFunc("/tables", s.handleTableNames).Methods(http.MethodGet)
	r.HandleFunc("/tables/{name}", s.handleTable).Methods(http.MethodGet)

	s.router = r
	return s
}

// Handler wraps the router with CORS, the way the teacher's own listen
// command composes its HTTP handler chain.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.conf.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	})
	return c.Handler(s.router)
}

// ListenAndServe blocks serving Handler() on conf.Addr.
func (s *Server) ListenAndServe() error {
	return http.ListenAndServe(s.conf.Addr, s.Handler())
}

// requestIDHeader is the header a request's unique id is surfaced under,
// read back by accessLogMiddleware and handlers that want to log it.
const requestIDHeader = "X-Request-Id"

func requestIDFromRequest(r *http.Request) string {
	return r.Header.Get(requestIDHeader)
}

func newRequestID() string {
	return uuid.NewString()
}
