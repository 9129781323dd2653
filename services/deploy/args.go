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
	"regexp"
	"strconv"
	"strings"

	"github.com/AleutianAI/MetaDAG/pkg/solidity"
	"github.com/ethereum/go-ethereum/common"
)

var integerType = regexp.MustCompile(`^u?int\d*$`)

// zeroAddressLiteral is the quoted zero address passed to ethers.
var zeroAddressLiteral = strconv.Quote(common.Address{}.Hex())

// ConstructorArg is one positional argument for the contract factory.
type ConstructorArg struct {
	// Type is the declared Solidity type.
	Type string `json:"type"`

	// Literal is the JavaScript expression passed to deploy().
	Literal string `json:"literal"`
}

// InferConstructorArgs derives placeholder arguments for every declared
// constructor parameter in source.
//
// Array types map to [], integers to 0, string to "default", bool to
// false, and address, interface-like (IERC20) and every other type to the
// zero address. Returns an empty slice when there is no constructor or it
// takes no parameters.
func InferConstructorArgs(source string) []ConstructorArg {
	params := solidity.ConstructorParams(source)
	args := make([]ConstructorArg, 0, len(params))
	for _, p := range params {
		args = append(args, ConstructorArg{Type: p.Type, Literal: defaultLiteral(p.Type)})
	}
	return args
}

func defaultLiteral(typ string) string {
	switch {
	case strings.HasSuffix(typ, "]"):
		return "[]"
	case integerType.MatchString(typ):
		return "0"
	case typ == "string":
		return strconv.Quote("default")
	case typ == "bool":
		return "false"
	default:
		// address, interface types such as IERC20, structs and bytesN.
		return zeroAddressLiteral
	}
}

// joinLiterals renders args as a deploy() argument list.
func joinLiterals(args []ConstructorArg) string {
	lits := make([]string, len(args))
	for i, a := range args {
		lits[i] = a.Literal
	}
	return strings.Join(lits, ", ")
}
