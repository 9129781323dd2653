// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/AleutianAI/MetaDAG/services/history"
	"github.com/AleutianAI/MetaDAG/services/orchestrator/handlers"
	"github.com/AleutianAI/MetaDAG/services/orchestrator/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies are the collaborators the routes are wired to.
type Dependencies struct {
	Auditor   handlers.Auditor
	Linter    handlers.Linter
	Generator handlers.Generator
	Deployer  handlers.Deployer
	Store     history.Store
	Health    handlers.HealthProbes
	Metrics   *observability.Metrics

	// Gatherer backs /metrics. Nil means the default Prometheus registry.
	Gatherer prometheus.Gatherer
}

// SetupRoutes registers every endpoint on router.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router.GET("/", handlers.HandleRoot)
	router.GET("/health", handlers.HandleHealth(deps.Health))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// Contract pipeline
	router.POST("/audit", handlers.HandleAudit(deps.Auditor, deps.Metrics))
	router.POST("/validate", handlers.HandleValidate(deps.Metrics))
	router.POST("/solhint-only", handlers.HandleLintOnly(deps.Linter, deps.Metrics))
	router.POST("/generate", handlers.HandleGenerate(deps.Generator, deps.Metrics))
	router.POST("/deploy", handlers.HandleDeploy(deps.Deployer, deps.Store, deps.Metrics))

	// History
	router.POST("/save_chat_history", handlers.HandleSaveChatHistory(deps.Store, deps.Metrics))
	router.GET("/get_chat_history/:user_id", handlers.HandleGetChatHistory(deps.Store, deps.Metrics))
	router.DELETE("/chat_history/:user_id", handlers.HandleDeleteChatHistory(deps.Store, deps.Metrics))
	router.POST("/save_deployment", handlers.HandleSaveDeployment(deps.Store, deps.Metrics))
	router.GET("/get_deployments/:user_id", handlers.HandleGetDeployments(deps.Store, deps.Metrics))
}
