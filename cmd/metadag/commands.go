// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/MetaDAG/pkg/logging"
	"github.com/AleutianAI/MetaDAG/pkg/solidity"
	"github.com/AleutianAI/MetaDAG/pkg/ux"
	"github.com/AleutianAI/MetaDAG/services/audit"
	"github.com/AleutianAI/MetaDAG/services/autofix"
	"github.com/AleutianAI/MetaDAG/services/deploy"
	"github.com/AleutianAI/MetaDAG/services/generate"
	"github.com/AleutianAI/MetaDAG/services/lint"
	"github.com/AleutianAI/MetaDAG/services/llm"
	"github.com/AleutianAI/MetaDAG/services/orchestrator"
	"github.com/spf13/cobra"
)

// errEmptySource is returned when the input file or stdin is empty.
var errEmptySource = errors.New("contract source is empty")

// cli holds the flags shared by every subcommand.
type cli struct {
	configPath string
	logLevel   string
	outputPath string
	out        OutputConfig
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "metadag",
		Short: "Generate, audit and deploy Solidity contracts",
		Long: `metadag drives the MetaDAG contract pipeline: solhint audits,
model-assisted repair, Hardhat deployment and the HTTP service.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setupLogging,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", os.Getenv("METADAG_CONFIG"), "YAML config file")
	flags.StringVar(&c.logLevel, "log-level", "warn", "debug, info, warn or error")
	flags.BoolVar(&c.out.JSON, "json", false, "Output as JSON")
	flags.BoolVar(&c.out.Compact, "compact", false, "Compact JSON output")

	root.AddCommand(
		c.newServeCmd(),
		c.newValidateCmd(),
		c.newLintCmd(),
		c.newRewriteCmd(),
		c.newAuditCmd(),
		c.newGenerateCmd(),
		c.newDeployCmd(),
	)
	return root
}

// setupLogging installs the process logger. Terminals get text, pipes get
// JSON.
func (c *cli) setupLogging(cmd *cobra.Command, _ []string) error {
	level, err := logging.ParseLevel(c.logLevel)
	if err != nil {
		return err
	}
	logging.New(logging.Config{
		Level:   level,
		Service: "metadag",
		JSON:    !stderrIsTerminal(),
		Output:  cmd.ErrOrStderr(),
	}).SetDefault()
	return nil
}

// =============================================================================
// serve
// =============================================================================

func (c *cli) newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := orchestrator.ReadConfig(c.configPath)
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Port = port
			}
			svc, err := orchestrator.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return svc.Run(cmd.Context())
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Override the listen port")
	return cmd
}

// =============================================================================
// validate
// =============================================================================

func (c *cli) newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file|->",
		Short: "Report the structural elements of a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			src, err := readSource(cmd, args[0])
			if err != nil {
				return err
			}

			s := solidity.Validate(src)
			w := cmd.OutOrStdout()
			if c.out.JSON {
				if err := writeResult(w, c.out, "validate", start, true, s, ""); err != nil {
					return err
				}
			} else {
				printStructure(w, s)
			}

			if !s.HasPragma || !s.HasContract || !s.MeetsMinimumVersion {
				return findings
			}
			return nil
		},
	}
}

func printStructure(w io.Writer, s solidity.Structure) {
	p := ux.NewPrinter(w)
	name := "(none)"
	if s.ContractName != nil {
		name = *s.ContractName
	}
	version := "(none)"
	if s.SolidityVersion != nil {
		version = *s.SolidityVersion
	}
	p.Field("contract", name)
	p.Field("pragma", version)
	p.Field("min version", p.Check(s.MeetsMinimumVersion))
	p.Field("constructor", p.Check(s.HasConstructor))
	p.Field("imports", p.Check(s.HasImports))
}

// =============================================================================
// lint
// =============================================================================

func (c *cli) newLintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint <file|->",
		Short: "Run solhint over a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			src, err := readSource(cmd, args[0])
			if err != nil {
				return err
			}
			cfg, err := orchestrator.ReadConfig(c.configPath)
			if err != nil {
				return err
			}

			result := newLintRunner(cfg).Lint(cmd.Context(), src)
			w := cmd.OutOrStdout()
			if c.out.JSON {
				if err := writeResult(w, c.out, "lint", start, result.Success, result, result.Error); err != nil {
					return err
				}
			} else {
				printLint(w, cmd.ErrOrStderr(), result)
			}

			switch {
			case !result.Success:
				return failed
			case result.HasFindings():
				return findings
			}
			return nil
		},
	}
}

func newLintRunner(cfg orchestrator.Config) *lint.Runner {
	return lint.NewRunner(
		lint.WithCommand(cfg.Lint.Command),
		lint.WithConfigPath(cfg.Lint.ConfigPath),
		lint.WithTimeout(cfg.Lint.Timeout),
	)
}

func printLint(w, errW io.Writer, r *lint.Result) {
	if !r.Available {
		ux.NewPrinter(errW).Warning("solhint is not installed; no findings reported")
		return
	}
	if r.Error != "" {
		ux.NewPrinter(errW).Error(r.Error)
		return
	}
	p := ux.NewPrinter(w)
	if !r.HasFindings() {
		p.Success(lint.NoFindingsSummary)
		return
	}
	for _, e := range r.Errors {
		p.Error(e)
	}
	for _, warning := range r.Warnings {
		p.Warning(warning)
	}
}

// =============================================================================
// rewrite
// =============================================================================

func (c *cli) newRewriteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rewrite <file|->",
		Short: "Apply the deterministic idiom rewrites",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			src, err := readSource(cmd, args[0])
			if err != nil {
				return err
			}

			out := autofix.RewriteKnownIdioms(src)
			if c.out.JSON {
				data := map[string]any{"changed": out != src, "code": out}
				if err := writeResult(cmd.OutOrStdout(), c.out, "rewrite", start, true, data, ""); err != nil {
					return err
				}
				return c.writeCode(cmd, out, false)
			}
			return c.writeCode(cmd, out, true)
		},
	}
	c.addOutputFlag(cmd)
	return cmd
}

// =============================================================================
// audit
// =============================================================================

func (c *cli) newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit <file|->",
		Short: "Lint a contract and repair its findings with the model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			src, err := readSource(cmd, args[0])
			if err != nil {
				return err
			}
			cfg, err := orchestrator.ReadConfig(c.configPath)
			if err != nil {
				return err
			}
			client, err := newModelClient(cfg)
			if err != nil {
				return err
			}

			auditor := audit.NewAuditor(newLintRunner(cfg), autofix.NewRepairer(client))
			report := auditor.AuditAndFix(cmd.Context(), src)

			w := cmd.OutOrStdout()
			if c.out.JSON {
				if err := writeResult(w, c.out, "audit", start, report.Success, report, report.Error); err != nil {
					return err
				}
			} else {
				printReport(cmd.ErrOrStderr(), report)
			}
			if err := c.writeCode(cmd, report.CorrectedCode, !c.out.JSON); err != nil {
				return err
			}

			switch {
			case !report.Success:
				return failed
			case report.RemainingIssues > 0:
				return findings
			}
			return nil
		},
	}
	c.addOutputFlag(cmd)
	return cmd
}

func printReport(w io.Writer, r *audit.Report) {
	p := ux.NewPrinter(w)
	if r.Error != "" {
		p.Error("audit failed: " + r.Error)
		return
	}
	msg := fmt.Sprintf("issues fixed: %d, remaining: %d", r.IssuesFixed, r.RemainingIssues)
	if r.RemainingIssues > 0 {
		p.Warning(msg)
		return
	}
	p.Success(msg)
}

// =============================================================================
// generate
// =============================================================================

func (c *cli) newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <prompt...>",
		Short: "Generate a contract from a description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			cfg, err := orchestrator.ReadConfig(c.configPath)
			if err != nil {
				return err
			}
			client, err := newModelClient(cfg)
			if err != nil {
				return err
			}

			draft, err := generate.NewGenerator(client).Generate(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return c.fail(cmd, "generate", start, err)
			}
			if c.out.JSON {
				if err := writeResult(cmd.OutOrStdout(), c.out, "generate", start, true, draft, ""); err != nil {
					return err
				}
				return c.writeCode(cmd, draft.Code, false)
			}
			slog.Info("Generated contract", "contract", draft.Contract)
			return c.writeCode(cmd, draft.Code, true)
		},
	}
	c.addOutputFlag(cmd)
	return cmd
}

// =============================================================================
// deploy
// =============================================================================

func (c *cli) newDeployCmd() *cobra.Command {
	var network, name string
	cmd := &cobra.Command{
		Use:   "deploy <file|->",
		Short: "Compile and deploy a contract with Hardhat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			src, err := readSource(cmd, args[0])
			if err != nil {
				return err
			}
			cfg, err := orchestrator.LoadConfig(c.configPath)
			if err != nil {
				return err
			}
			client, err := newModelClient(cfg)
			if err != nil {
				return err
			}

			opts := []deploy.PipelineOption{
				deploy.WithNetwork(cfg.Deploy.Network),
				deploy.WithExplorerTemplate(cfg.Deploy.ExplorerURLTemplate),
			}
			if cfg.Deploy.RPCURL != "" {
				verifier, err := deploy.DialVerifier(cmd.Context(), cfg.Deploy.RPCURL, 10*time.Second)
				if err != nil {
					slog.Warn("Chain verifier unavailable", "error", err)
				} else {
					defer verifier.Close()
					opts = append(opts, deploy.WithVerifier(verifier))
				}
			}

			hardhat := deploy.NewHardhat(cfg.Deploy.HardhatDir,
				deploy.WithNPX(cfg.Deploy.NPX),
				deploy.WithCompileTimeout(cfg.Deploy.CompileTimeout),
				deploy.WithDeployTimeout(cfg.Deploy.DeployTimeout),
				deploy.WithPrivateKey(cfg.Deploy.PrivateKey),
			)
			pipeline := deploy.NewPipeline(hardhat, autofix.NewRepairer(client), opts...)
			result := pipeline.DeployTo(cmd.Context(), src, name, network)

			w := cmd.OutOrStdout()
			if c.out.JSON {
				if err := writeResult(w, c.out, "deploy", start, result.Success, result, result.Error); err != nil {
					return err
				}
			} else {
				printDeployment(w, cmd.ErrOrStderr(), result)
			}
			if !result.Success {
				return failed
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&network, "network", "n", "", "Hardhat network (default from config)")
	cmd.Flags().StringVar(&name, "name", "", "Contract name (default from source)")
	return cmd
}

func printDeployment(w, errW io.Writer, r *deploy.Result) {
	if !r.Success {
		ux.NewPrinter(errW).Error(fmt.Sprintf("deployment failed (%s): %s", r.ErrorKind, r.Error))
		return
	}
	p := ux.NewPrinter(w)
	p.Success(fmt.Sprintf("%s deployed to %s on %s", r.ContractName, p.Highlight(r.ContractAddress), r.Network))
	if r.ExplorerURL != "" {
		p.Field("explorer", r.ExplorerURL)
	}
	if r.TransactionHash != "" {
		p.Field("transaction", r.TransactionHash)
	}
	if r.Verified != nil {
		p.Field("verified", p.Check(*r.Verified))
	}
	if r.Repaired {
		p.Warning("the contract was repaired before it compiled")
	}
}

// =============================================================================
// Helpers
// =============================================================================

func (c *cli) addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&c.outputPath, "output", "o", "", "Write the resulting contract to this file")
}

// writeCode writes code to the --output file, or to stdout when toStdout
// is set and no file was given.
func (c *cli) writeCode(cmd *cobra.Command, code string, toStdout bool) error {
	if c.outputPath != "" {
		if err := os.WriteFile(c.outputPath, []byte(code), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", c.outputPath, err)
		}
		return nil
	}
	if toStdout {
		_, err := io.WriteString(cmd.OutOrStdout(), strings.TrimRight(code, "\n")+"\n")
		return err
	}
	return nil
}

// fail reports err in the JSON envelope when --json is set.
func (c *cli) fail(cmd *cobra.Command, name string, start time.Time, err error) error {
	if !c.out.JSON {
		return err
	}
	if encErr := writeResult(cmd.OutOrStdout(), c.out, name, start, false, nil, err.Error()); encErr != nil {
		return encErr
	}
	return failed
}

// readSource reads a contract from path, or from stdin when path is "-".
func readSource(cmd *cobra.Command, path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("reading contract: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errEmptySource
	}
	return string(data), nil
}

func newModelClient(cfg orchestrator.Config) (llm.LLMClient, error) {
	client, err := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:  cfg.Model.APIKey,
		Model:   cfg.Model.Name,
		BaseURL: cfg.Model.BaseURL,
		Timeout: cfg.Model.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}
