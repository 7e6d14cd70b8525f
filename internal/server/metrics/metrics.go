// Package metrics exposes Prometheus counters for authentication outcomes,
// session store traffic and HTTP requests.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/sessions"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sessionkeeper"

type Metrics struct {
	registry     *prometheus.Registry
	authOutcomes *prometheus.CounterVec
	storeOps     *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
}

// New creates the collectors on a private registry along with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		authOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_outcomes_total",
			Help:      "Request authentication results by outcome.",
		}, []string{"outcome"}),
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_store_operations_total",
			Help:      "Session store calls by operation and result.",
		}, []string{"op", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		m.authOutcomes,
		m.storeOps,
		m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObserveAuth(outcome string) {
	m.authOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

func (m *Metrics) observeStore(op string, err error) {
	result := "ok"
	switch {
	case errors.Is(err, common.ErrorNotFound):
		result = "miss"
	case err != nil:
		result = "error"
	}
	m.storeOps.WithLabelValues(op, result).Inc()
}

type instrumentedStore struct {
	next sessions.Store
	m    *Metrics
}

// InstrumentStore counts every call made to next.
func InstrumentStore(next sessions.Store, m *Metrics) sessions.Store {
	return &instrumentedStore{next: next, m: m}
}

func (s *instrumentedStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	err := s.next.Set(ctx, key, value, ttl)
	s.m.observeStore("set", err)
	return err
}

func (s *instrumentedStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.next.Get(ctx, key)
	s.m.observeStore("get", err)
	return v, err
}

func (s *instrumentedStore) Delete(ctx context.Context, keys ...string) error {
	err := s.next.Delete(ctx, keys...)
	s.m.observeStore("delete", err)
	return err
}

func (s *instrumentedStore) SetMany(ctx context.Context, entries ...sessions.Entry) error {
	err := s.next.SetMany(ctx, entries...)
	s.m.observeStore("set_many", err)
	return err
}
