// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package crypt

import (
	"github.com/LeeDigitalWorks/stackfs/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	blocksSealed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stackfs",
		Subsystem: "crypt",
		Name:      "blocks_sealed_total",
		Help:      "Content blocks encrypted",
	})

	blocksOpened = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stackfs",
		Subsystem: "crypt",
		Name:      "blocks_opened_total",
		Help:      "Content blocks decrypted and authenticated",
	})

	authFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stackfs",
		Subsystem: "crypt",
		Name:      "auth_failures_total",
		Help:      "Content blocks that failed authentication",
	})

	namesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stackfs",
		Subsystem: "crypt",
		Name:      "names_dropped_total",
		Help:      "Listing entries dropped because their names did not decrypt",
	})
)

func init() {
	debug.Registry().MustRegister(blocksSealed, blocksOpened, authFailures, namesDropped)
}
