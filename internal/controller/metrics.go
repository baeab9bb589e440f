// SPDX-License-Identifier: MIT

package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	topologyDumps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netlabd_topology_dumps_total",
		Help: "Number of topology documents written to disk",
	})

	snapshotsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netlabd_snapshots_created_total",
		Help: "Number of project snapshots created",
	})

	projectsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "netlabd_projects_open",
		Help: "Current number of opened projects",
	})

	projectsKnown = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "netlabd_projects",
		Help: "Current number of projects known to the controller",
	})
)
