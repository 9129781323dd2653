// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package deploy compiles contracts with Hardhat and deploys them to a
// test network, repairing a rejected compile once with the model.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/MetaDAG/pkg/solidity"
	"github.com/AleutianAI/MetaDAG/services/autofix"
	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultNetwork is the Hardhat network deployed to when none is given.
const DefaultNetwork = "primordial"

var tracer = otel.Tracer("metadag.deploy")

// Repairer fixes source the compiler rejected. It returns the input
// unchanged when it cannot do better.
type Repairer interface {
	Repair(ctx context.Context, source, compilerOutput string) string
}

// Result describes one deployment attempt.
type Result struct {
	Success         bool             `json:"success"`
	ContractAddress string           `json:"contractAddress,omitempty"`
	Network         string           `json:"network,omitempty"`
	ContractName    string           `json:"contractName,omitempty"`
	ExplorerURL     string           `json:"explorerUrl,omitempty"`
	TransactionHash string           `json:"transactionHash,omitempty"`
	ConstructorArgs []ConstructorArg `json:"constructorArgs,omitempty"`

	// Repaired is true when the first compile failed and the model's
	// repair was compiled instead. RepairedCode then holds that source.
	Repaired     bool   `json:"repaired"`
	RepairedCode string `json:"repairedCode,omitempty"`

	// Verified is nil when no chain verifier is configured or the check
	// itself failed.
	Verified *bool `json:"verified,omitempty"`

	Error     string    `json:"error,omitempty"`
	ErrorKind ErrorKind `json:"errorKind,omitempty"`
	Message   string    `json:"message,omitempty"`

	Duration time.Duration `json:"-"`
}

// =============================================================================
// Pipeline
// =============================================================================

// Pipeline runs compile, repair, deploy and verification for one contract.
//
// Thread Safety: Safe for concurrent use. Deployments that share a
// contract name are serialized because they share a workspace slot.
type Pipeline struct {
	toolchain        Toolchain
	repairer         Repairer
	verifier         Verifier
	network          string
	explorerTemplate string
	observer         func(*Result)
	locks            *keyedMutex
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithNetwork sets the default network.
func WithNetwork(network string) PipelineOption {
	return func(p *Pipeline) {
		p.network = network
	}
}

// WithExplorerTemplate sets the explorer URL template. See ExplorerURL.
func WithExplorerTemplate(tmpl string) PipelineOption {
	return func(p *Pipeline) {
		p.explorerTemplate = tmpl
	}
}

// WithVerifier enables on-chain confirmation of deployed code.
func WithVerifier(v Verifier) PipelineOption {
	return func(p *Pipeline) {
		p.verifier = v
	}
}

// WithObserver installs a callback invoked with every finished Result.
func WithObserver(fn func(*Result)) PipelineOption {
	return func(p *Pipeline) {
		p.observer = fn
	}
}

// NewPipeline creates a Pipeline. repairer may be nil, in which case a
// rejected compile is reported without a repair attempt.
func NewPipeline(toolchain Toolchain, repairer Repairer, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		toolchain:        toolchain,
		repairer:         repairer,
		network:          DefaultNetwork,
		explorerTemplate: DefaultExplorerTemplate,
		locks:            newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Network returns the default network.
func (p *Pipeline) Network() string {
	return p.network
}

// Deploy deploys source to the default network. See DeployTo.
func (p *Pipeline) Deploy(ctx context.Context, source, contractName string) *Result {
	return p.DeployTo(ctx, source, contractName, "")
}

// DeployTo compiles source and deploys it to network.
//
// # Description
//
//  1. Resolve the name: contractName if given, else the first contract
//     declared in source, else GeneratedContract.
//  2. Compile. If the compiler rejects the source, run the idiom rewriter
//     and the model repair once, then compile again. A second rejection
//     ends the attempt; no deploy script runs.
//  3. Infer placeholder constructor arguments from the compiled source.
//  4. Render and run the deploy script, then parse its JSON result line.
//  5. Validate the returned address and, if a verifier is configured,
//     confirm code exists there.
//
// The workspace files for the name are removed on every exit path.
//
// # Inputs
//
//   - ctx: Parent context. Each external step adds its own timeout.
//   - source: Contract source.
//   - contractName: Optional. Must be a Solidity identifier when set.
//   - network: Optional. Empty means the pipeline's default network.
//
// # Outputs
//
//   - *Result: Never nil. Failures set Success=false, Error and ErrorKind.
func (p *Pipeline) DeployTo(ctx context.Context, source, contractName, network string) (result *Result) {
	ctx, span := tracer.Start(ctx, "Pipeline.Deploy")
	defer span.End()
	start := time.Now()

	if network == "" {
		network = p.network
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Deploy panicked", slog.Any("panic", r))
			result = p.fail(span, contractName, network, fmt.Errorf("deploy panicked: %v", r))
		}
		result.Duration = time.Since(start)
		span.SetAttributes(
			attribute.Bool("deploy.success", result.Success),
			attribute.Bool("deploy.repaired", result.Repaired),
			attribute.String("deploy.error_kind", string(result.ErrorKind)),
		)
		if p.observer != nil {
			p.observer(result)
		}
	}()

	name, err := resolveName(source, contractName)
	if err != nil {
		return p.fail(span, contractName, network, err)
	}
	if !ValidNetwork(network) {
		return p.fail(span, name, network, fmt.Errorf("%w: %q", ErrInvalidNetwork, network))
	}
	span.SetAttributes(
		attribute.String("deploy.contract", name),
		attribute.String("deploy.network", network),
	)

	unlock := p.locks.Lock(name)
	defer unlock()
	defer p.cleanup(name)

	compiled, repaired, err := p.compile(ctx, span, name, source)
	if err != nil {
		res := p.fail(span, name, network, err)
		res.Repaired = repaired
		return res
	}

	args := InferConstructorArgs(compiled)
	script, err := RenderDeployScript(name, network, args)
	if err != nil {
		return p.fail(span, name, network, err)
	}

	span.AddEvent("run_script", trace.WithAttributes(attribute.Int("deploy.constructor_args", len(args))))
	run, err := p.toolchain.RunScript(ctx, name, script, network)
	if err != nil {
		return p.fail(span, name, network, err)
	}

	out, err := ParseScriptOutput(run.Stdout)
	if err != nil {
		slog.Warn("Deploy script printed no result",
			slog.String("contract", name),
			slog.Int("exit_code", run.ExitCode),
			slog.String("stderr", run.Stderr),
		)
		return p.fail(span, name, network, err)
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = run.Stderr
		}
		res := p.fail(span, name, network, fmt.Errorf("%w: %s", ErrDeployFailed, msg))
		res.Repaired = repaired
		return res
	}
	if !common.IsHexAddress(out.ContractAddress) {
		return p.fail(span, name, network, fmt.Errorf("%w: invalid contract address %q", ErrParseResult, out.ContractAddress))
	}

	address := common.HexToAddress(out.ContractAddress)
	result = &Result{
		Success:         true,
		ContractAddress: address.Hex(),
		Network:         network,
		ContractName:    name,
		ExplorerURL:     ExplorerURL(p.explorerTemplate, address.Hex()),
		TransactionHash: out.TransactionHash,
		ConstructorArgs: args,
		Repaired:        repaired,
		Message:         fmt.Sprintf("%s deployed to %s", name, network),
	}
	if repaired {
		result.RepairedCode = compiled
	}
	if out.Network != "" && out.Network != network {
		slog.Warn("Deploy script reported a different network",
			slog.String("requested", network),
			slog.String("reported", out.Network),
		)
	}

	p.verify(ctx, span, address, result)

	slog.Info("Contract deployed",
		slog.String("contract", name),
		slog.String("network", network),
		slog.String("address", result.ContractAddress),
		slog.Bool("repaired", repaired),
		slog.Duration("duration", time.Since(start)),
	)
	return result
}

// compile runs the compile step with at most one repair. It returns the
// source that compiled and whether it came from a repair.
func (p *Pipeline) compile(ctx context.Context, span trace.Span, name, source string) (string, bool, error) {
	_, err := p.toolchain.Compile(ctx, name, source)
	if err == nil {
		return source, false, nil
	}

	var compileErr *CompileError
	if !errors.As(err, &compileErr) || p.repairer == nil {
		return source, false, err
	}

	slog.Info("Compile failed, attempting repair", slog.String("contract", name))
	span.AddEvent("repair")
	repaired := p.repairer.Repair(ctx, autofix.RewriteKnownIdioms(source), compileErr.Output)

	if _, err := p.toolchain.Compile(ctx, name, repaired); err != nil {
		return repaired, true, err
	}
	return repaired, true, nil
}

func (p *Pipeline) verify(ctx context.Context, span trace.Span, address common.Address, result *Result) {
	if p.verifier == nil {
		return
	}
	ok, err := p.verifier.HasCode(ctx, address)
	if err != nil {
		slog.Warn("On-chain verification failed",
			slog.String("address", address.Hex()),
			slog.String("error", err.Error()),
		)
		span.AddEvent("verify_failed")
		return
	}
	result.Verified = &ok
	if !ok {
		slog.Warn("No code found at deployed address", slog.String("address", address.Hex()))
	}
}

func (p *Pipeline) cleanup(name string) {
	if err := p.toolchain.Cleanup(name); err != nil {
		slog.Warn("Workspace cleanup failed",
			slog.String("contract", name),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Pipeline) fail(span trace.Span, name, network string, err error) *Result {
	kind := KindOf(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, string(kind))
	slog.Warn("Deployment failed",
		slog.String("contract", name),
		slog.String("kind", string(kind)),
		slog.String("error", err.Error()),
	)
	return &Result{
		Success:      false,
		Network:      network,
		ContractName: name,
		Error:        err.Error(),
		ErrorKind:    kind,
	}
}

// resolveName picks the contract name used for the workspace slot.
func resolveName(source, supplied string) (string, error) {
	if supplied != "" {
		if !solidity.IsIdentifier(supplied) {
			return "", fmt.Errorf("%w: %q", ErrInvalidContractName, supplied)
		}
		return supplied, nil
	}
	return solidity.ContractName(source), nil
}
