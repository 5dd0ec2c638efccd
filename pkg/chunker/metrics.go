// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package chunker

import (
	"github.com/LeeDigitalWorks/stackfs/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	chunksWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stackfs",
		Subsystem: "chunker",
		Name:      "chunks_written_total",
		Help:      "Chunks uploaded to the wrapped remote",
	})

	chunksSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stackfs",
		Subsystem: "chunker",
		Name:      "chunks_skipped_total",
		Help:      "Chunk uploads skipped because the chunk already existed",
	})

	compositesAssembled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stackfs",
		Subsystem: "chunker",
		Name:      "composites_assembled_total",
		Help:      "Composite files streamed back from their chunks",
	})

	incompleteComposites = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stackfs",
		Subsystem: "chunker",
		Name:      "incomplete_composites_total",
		Help:      "Composite files found with missing chunks",
	})
)

func init() {
	debug.Registry().MustRegister(chunksWritten, chunksSkipped, compositesAssembled, incompleteComposites)
}
