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
	"net/http"

	"github.com/AleutianAI/MetaDAG/pkg/logging"
	"github.com/AleutianAI/MetaDAG/services/deploy"
	"github.com/AleutianAI/MetaDAG/services/history"
	"github.com/AleutianAI/MetaDAG/services/orchestrator/datatypes"
	"github.com/AleutianAI/MetaDAG/services/orchestrator/observability"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// Deployer compiles and deploys a contract.
type Deployer interface {
	DeployTo(ctx context.Context, source, contractName, network string) *deploy.Result
}

// HandleDeploy serves POST /deploy.
//
// # Description
//
// Runs the deploy pipeline and returns its Result. Pipeline failures are
// reported with 200 and success=false so the client can show errorKind
// and message; only malformed requests get a 4xx.
//
// When the request carries user_id and the deployment succeeded, a record
// is appended to the user's deployment history. A history write failure
// is logged and does not change the response.
//
// # Inputs
//
//   - deployer: The pipeline.
//   - store: History store. May be nil, in which case nothing is recorded.
//   - m: Metrics. May be nil.
func HandleDeploy(deployer Deployer, store history.Store, m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleDeploy")
		defer span.End()

		var req datatypes.DeployRequest
		if !bindRequest(c, span, m, observability.EndpointDeploy, &req) {
			return
		}

		result := deployer.DeployTo(ctx, req.Code, req.ContractName, req.Network)
		span.SetAttributes(
			attribute.Bool("deploy.success", result.Success),
			attribute.String("deploy.network", result.Network),
			attribute.String("deploy.contract", result.ContractName),
		)

		status := observability.StatusSuccess
		if !result.Success {
			status = observability.StatusError
			span.SetAttributes(attribute.String("deploy.error_kind", string(result.ErrorKind)))
		}
		m.RecordRequest(observability.EndpointDeploy, status)

		if result.Success && req.UserID != "" && store != nil {
			if err := store.AppendDeployment(ctx, req.UserID, deploymentEntry(result)); err != nil {
				logging.FromContext(ctx).Warn("Failed to record deployment in history",
					"user_id", req.UserID,
					"contract", result.ContractName,
					"error", err,
				)
			}
		}

		c.JSON(http.StatusOK, result)
	}
}

// deploymentEntry is the history record for a successful deployment.
func deploymentEntry(r *deploy.Result) history.Entry {
	e := history.Entry{
		"contractAddress": r.ContractAddress,
		"contractName":    r.ContractName,
		"network":         r.Network,
		"explorerUrl":     r.ExplorerURL,
		"repaired":        r.Repaired,
	}
	if r.TransactionHash != "" {
		e["transactionHash"] = r.TransactionHash
	}
	if r.Verified != nil {
		e["verified"] = *r.Verified
	}
	return e
}
