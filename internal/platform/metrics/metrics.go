// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

/*
Package metrics exposes Prometheus instrumentation for the identity pipeline.

Collectors are created once by [Register]. Every Record helper is a no-op until
then, so packages may call them unconditionally (including from tests).
*/
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// # Stages & Outcomes

const (
	StageTenant       = "tenant"
	StageAuthenticate = "authenticate"
	StagePermission   = "permission"
	StageBinder       = "binder"

	OutcomeAllowed   = "allowed"
	OutcomeAnonymous = "anonymous"
	OutcomeExempt    = "exempt"
	OutcomeDefaulted = "defaulted"
	OutcomeRejected  = "rejected"
)

var (
	registerOnce sync.Once
	registerErr  error

	stageDecisionsTotal   *prometheus.CounterVec
	tokenValidationsTotal *prometheus.CounterVec
	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
)

// Register creates the collectors and registers them on reg (the default
// registerer when nil). It returns the /metrics handler for the same registry.
func Register(reg prometheus.Registerer) (http.Handler, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	registerOnce.Do(func() {
		stageDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_stage_decisions_total",
			Help: "Decisions taken by the identity pipeline stages",
		}, []string{"stage", "outcome"})

		tokenValidationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_token_validations_total",
			Help: "Token validations by result code",
		}, []string{"result"})

		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of processed HTTP requests",
		}, []string{"method", "route", "status"})

		httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latency of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"})

		for _, collector := range []prometheus.Collector{
			stageDecisionsTotal, tokenValidationsTotal, httpRequestsTotal, httpRequestDuration,
		} {
			if err := registerCollector(reg, collector); err != nil {
				registerErr = err
				return
			}
		}
	})
	if registerErr != nil {
		return nil, registerErr
	}

	if gatherer, ok := reg.(prometheus.Gatherer); ok {
		return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}), nil
	}
	return promhttp.Handler(), nil
}

// registerCollector registers collector on reg, ignoring duplicates.
func registerCollector(reg prometheus.Registerer, collector prometheus.Collector) error {
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return nil
		}
		return err
	}
	return nil
}

// # Recorders

// RecordStage counts one decision of a pipeline stage.
func RecordStage(stage, outcome string) {
	if stageDecisionsTotal != nil {
		stageDecisionsTotal.WithLabelValues(stage, outcome).Inc()
	}
}

// RecordTokenValidation counts one token validation by result ("ok" or an error code).
func RecordTokenValidation(result string) {
	if tokenValidationsTotal != nil {
		tokenValidationsTotal.WithLabelValues(strings.ToLower(result)).Inc()
	}
}

// Middleware instruments HTTP requests with a counter and a latency histogram.
//
// Routes are labelled with the chi route pattern so path parameters do not
// explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if httpRequestsTotal == nil {
			next.ServeHTTP(writer, request)
			return
		}

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: writer}

		defer func() {
			route := routeLabel(request)
			method := strings.ToUpper(request.Method)
			status := recorder.status
			if status == 0 {
				status = http.StatusOK
			}
			httpRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		}()

		next.ServeHTTP(recorder, request)
	})
}

func routeLabel(request *http.Request) string {
	if routeContext := chi.RouteContext(request.Context()); routeContext != nil {
		if pattern := routeContext.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}
