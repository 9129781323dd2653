// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package deploy

import (
	"bufio"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/AleutianAI/MetaDAG/pkg/solidity"
)

var networkPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidNetwork reports whether name is safe to pass to hardhat --network
// and to embed in a script.
func ValidNetwork(name string) bool {
	return networkPattern.MatchString(name)
}

const deployScriptSource = `const hre = require("hardhat");

async function main() {
    const factory = await hre.ethers.getContractFactory({{ jsstr .Name }});
    const contract = await factory.deploy({{ .Args }});
    await contract.waitForDeployment();

    const address = await contract.getAddress();
    const tx = contract.deploymentTransaction();
    console.log({{ jsstr .Name }} + " deployed to:", address);

    console.log(JSON.stringify({
        success: true,
        contractAddress: address,
        network: {{ jsstr .Network }},
        contractName: {{ jsstr .Name }},
        transactionHash: tx ? tx.hash : null
    }));
}

main()
    .then(() => process.exit(0))
    .catch((error) => {
        console.error(error);
        console.log(JSON.stringify({
            success: false,
            error: error.message
        }));
        process.exit(1);
    });
`

var deployScript = template.Must(template.New("deploy").Funcs(template.FuncMap{
	"jsstr": jsString,
}).Parse(deployScriptSource))

// jsString renders s as a double-quoted JavaScript string literal.
func jsString(s string) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// RenderDeployScript produces the Hardhat script that deploys name to
// network with args. The script prints exactly one JSON object line as its
// result.
func RenderDeployScript(name, network string, args []ConstructorArg) (string, error) {
	if !solidity.IsIdentifier(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidContractName, name)
	}
	if !ValidNetwork(network) {
		return "", fmt.Errorf("%w: %q", ErrInvalidNetwork, network)
	}

	var sb strings.Builder
	err := deployScript.Execute(&sb, struct {
		Name    string
		Network string
		Args    string
	}{name, network, joinLiterals(args)})
	if err != nil {
		return "", fmt.Errorf("rendering deploy script: %w", err)
	}
	return sb.String(), nil
}

// ScriptOutput is the JSON line printed by the deploy script.
type ScriptOutput struct {
	Success         bool   `json:"success"`
	ContractAddress string `json:"contractAddress"`
	Network         string `json:"network"`
	ContractName    string `json:"contractName"`
	TransactionHash string `json:"transactionHash"`
	Error           string `json:"error"`
}

// ParseScriptOutput finds the first line of stdout that is a JSON object
// and decodes it.
//
// Other lines, such as Hardhat's compile banner and the human-readable
// "deployed to" line, are skipped. No object line, or one that does not
// decode, returns ErrParseResult.
func ParseScriptOutput(stdout string) (*ScriptOutput, error) {
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}") {
			continue
		}
		var out ScriptOutput
		if err := json.Unmarshal([]byte(line), &out); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParseResult, err)
		}
		return &out, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseResult, err)
	}
	return nil, fmt.Errorf("%w: no JSON result line in output", ErrParseResult)
}
