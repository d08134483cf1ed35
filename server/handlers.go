package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.log, s.result.Model)
}

func (s *Server) handleTableNames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.log, s.result.Extractor.TableNames())
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	ctx := r.Context()

	cacheKey := "pbixdm:table:" + name
	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, cacheKey).Bytes(); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "hit")
			w.Write(cached)
			return
		}
	}

	td, err := s.result.Extractor.GetTable(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	body, err := json.Marshal(td)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if s.redis != nil {
		if err := s.redis.Set(ctx, cacheKey, body, s.conf.CacheTTL).Err(); err != nil {
			s.log.Debug("server: redis cache write failed", zap.String("table", name), zap.Error(err))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "miss")
	w.Write(body)
}

func writeJSON(w http.ResponseWriter, log *zap.Logger, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("server: encode response failed", zap.Error(err))
	}
}
