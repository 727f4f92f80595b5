// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	stdlog "log"
	"net/http"
	"runtime"
	"time"

	mp "github.com/nbrownus/go-metrics-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/platinasystems/rtk5/vnet/devices/ethernet/rtk5"
	"github.com/platinasystems/rtk5/vnet/unix"
)

type stats struct {
	l      *logrus.Logger
	listen string
	path   string
	pr     *prometheus.Registry
	tap    *mp.PrometheusConfig
}

func new_stats(l *logrus.Logger, o options, d *rtk5.Dev, t *unix.Tap) *stats {
	s := &stats{l: l, listen: o.stats_listen, path: o.stats_path, pr: prometheus.NewRegistry()}
	s.pr.MustRegister(rtk5.NewCollector(d))
	s.tap = mp.NewPrometheusProvider(t.Registry(), "rtk5", "", s.pr, o.stats_interval)

	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rtk5",
		Name:      "info",
		Help:      "Device and daemon information",
		ConstLabels: prometheus.Labels{
			"dev":       d.Name(),
			"chip":      d.Profile().Name,
			"tap":       t.Name(),
			"goversion": runtime.Version(),
		},
	})
	s.pr.MustRegister(g)
	g.Set(1)
	return s
}

// update copies the tap's counters into the prometheus registry.
func (s *stats) update() {
	if err := s.tap.UpdatePrometheusMetricsOnce(); err != nil {
		s.l.WithError(err).Debug("stats update")
	}
}

func (s *stats) serve(ctx context.Context) error {
	mux := http.NewServeMux()
	w := s.l.WriterLevel(logrus.ErrorLevel)
	defer w.Close()
	errs := stdlog.New(w, "", 0)
	mux.Handle(s.path, promhttp.HandlerFor(s.pr, promhttp.HandlerOpts{ErrorLog: errs}))
	srv := &http.Server{Addr: s.listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	stop := context.AfterFunc(ctx, func() {
		sctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	})
	defer stop()

	s.l.WithFields(logrus.Fields{"listen": s.listen, "path": s.path}).Info("prometheus stats")
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return ctx.Err()
	}
	return err
}
