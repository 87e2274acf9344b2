package api

import (
	"encoding/json"
	"github.com/Aero25x/ton-wallet-tracker/business/domain/tracker"
	"github.com/jellydator/ttlcache/v3"
	"log"
	"net/http"
	"sync"
)

const statusKey = "status"

type StatusProvider interface {
	Status() tracker.Status
}

// StatusCache serves the detector status, refreshed at most once per cache ttl.
type StatusCache struct {
	provider StatusProvider
	cache    *ttlcache.Cache[string, tracker.Status]
	lock     sync.Mutex
}

func NewStatusCache(provider StatusProvider, cache *ttlcache.Cache[string, tracker.Status]) *StatusCache {
	return &StatusCache{
		provider: provider,
		cache:    cache,
	}
}

func (s *StatusCache) Status() tracker.Status {
	s.lock.Lock() // lock so that we do not get multiple threads inside the `if`
	defer s.lock.Unlock()

	item := s.cache.Get(statusKey)
	if item != nil {
		return item.Value()
	}
	status := s.provider.Status()
	s.cache.Set(statusKey, status, ttlcache.DefaultTTL)
	return status
}

func (s *StatusCache) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	data, err := json.Marshal(s.Status())
	if err != nil {
		http.Error(w, "marshalling status", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(data)
	if err != nil {
		log.Printf("Error writing status response: %v", err)
	}
}

func Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Add("Content-Type", "application/json")
	_, err := w.Write([]byte("{\"status\":\"UP\"}"))
	if err != nil {
		log.Printf("Error writing health response: %v", err)
	}
}
