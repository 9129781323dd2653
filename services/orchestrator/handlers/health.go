// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/MetaDAG/services/orchestrator/datatypes"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	// storePingTimeout bounds the store check in /health.
	storePingTimeout = 2 * time.Second

	// storeWarnInterval spaces out store-down warnings; orchestrators
	// poll /health every few seconds.
	storeWarnInterval = time.Minute
)

// HealthProbes reports dependency status for /health. Nil probes report
// unavailable.
type HealthProbes struct {
	LintAvailable      func() bool
	ToolchainAvailable func() bool
	StorePing          func(ctx context.Context) error
}

// HandleRoot serves GET /.
func HandleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, datatypes.StatusResponse{
		Status:  "ok",
		Message: "MetaDAG backend is running!",
	})
}

// HandleHealth serves GET /health.
//
// The service is "ok" when the history store answers and "degraded"
// otherwise. Missing lint or toolchain binaries do not degrade status:
// lint then reports clean and deploys fail with a toolchain error.
func HandleHealth(probes HealthProbes) gin.HandlerFunc {
	warn := &rate.Sometimes{First: 1, Interval: storeWarnInterval}

	return func(c *gin.Context) {
		resp := datatypes.HealthResponse{Status: "ok"}

		if probes.LintAvailable != nil {
			resp.LintAvailable = probes.LintAvailable()
		}
		if probes.ToolchainAvailable != nil {
			resp.ToolchainAvailable = probes.ToolchainAvailable()
		}
		if probes.StorePing != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), storePingTimeout)
			err := probes.StorePing(ctx)
			cancel()
			resp.StoreAvailable = err == nil
			if err != nil {
				warn.Do(func() {
					slog.Warn("History store unreachable", "error", err)
				})
			}
		}
		if !resp.StoreAvailable {
			resp.Status = "degraded"
		}

		c.JSON(http.StatusOK, resp)
	}
}
