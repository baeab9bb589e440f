// SPDX-License-Identifier: MIT

package appliance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	appliancesLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "netlabd_appliances",
		Help: "Number of appliance descriptors currently loaded.",
	})

	checksumCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netlabd_image_checksum_cache_hits_total",
		Help: "Image digest lookups served from the checksum cache.",
	})

	checksumCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netlabd_image_checksum_cache_misses_total",
		Help: "Image digest lookups that required hashing the file.",
	})
)
