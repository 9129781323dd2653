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
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AleutianAI/MetaDAG/pkg/secrets"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// DefaultExplorerTemplate links a deployed address on the BlockDAG
// Primordial explorer.
const DefaultExplorerTemplate = "https://primordial.bdagscan.com/address/{address}"

const addressPlaceholder = "{address}"

// ExplorerURL fills the {address} placeholder of tmpl. An empty template
// yields "".
func ExplorerURL(tmpl, address string) string {
	if tmpl == "" {
		return ""
	}
	return strings.ReplaceAll(tmpl, addressPlaceholder, address)
}

// ErrInvalidPrivateKey indicates the deployer key is not a secp256k1 key.
var ErrInvalidPrivateKey = errors.New("invalid deployer private key")

// DeployerAddress derives the account address from a hex private key, with
// or without a 0x prefix. It lets startup reject a malformed key before the
// first deploy.
func DeployerAddress(key *secrets.Secret) (common.Address, error) {
	raw, err := key.Reveal()
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	pk, err := crypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	return crypto.PubkeyToAddress(pk.PublicKey), nil
}

// Verifier confirms a deployment on chain.
type Verifier interface {
	HasCode(ctx context.Context, address common.Address) (bool, error)
}

// ChainVerifier checks for contract code through a JSON-RPC endpoint.
type ChainVerifier struct {
	client *ethclient.Client
}

// DialVerifier connects to rawURL. HTTP endpoints use a client bounded by
// timeout; other schemes use the go-ethereum default dialer.
func DialVerifier(ctx context.Context, rawURL string, timeout time.Duration) (*ChainVerifier, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, errors.New("empty rpc url")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing rpc url: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		rpcClient, err := rpc.DialOptions(ctx, rawURL, rpc.WithHTTPClient(&http.Client{Timeout: timeout}))
		if err != nil {
			return nil, fmt.Errorf("dialing %s: %w", u.Host, err)
		}
		return &ChainVerifier{client: ethclient.NewClient(rpcClient)}, nil
	default:
		client, err := ethclient.DialContext(ctx, rawURL)
		if err != nil {
			return nil, fmt.Errorf("dialing %s: %w", u.Host, err)
		}
		return &ChainVerifier{client: client}, nil
	}
}

// HasCode reports whether address holds contract code at the latest block.
func (v *ChainVerifier) HasCode(ctx context.Context, address common.Address) (bool, error) {
	code, err := v.client.CodeAt(ctx, address, nil)
	if err != nil {
		return false, fmt.Errorf("eth_getCode %s: %w", address.Hex(), err)
	}
	return len(code) > 0, nil
}

// Close releases the RPC connection.
func (v *ChainVerifier) Close() {
	v.client.Close()
}

var _ Verifier = (*ChainVerifier)(nil)
