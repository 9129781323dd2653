// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package solidity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tokenSource = `// SPDX-License-Identifier: MIT
pragma solidity ^0.8.20;

import "@openzeppelin/contracts/token/ERC20/ERC20.sol";
import "@openzeppelin/contracts/access/Ownable.sol";

// This contract is a simple token.
contract MyToken is ERC20, Ownable {
    constructor(string memory name_, uint256 supply, address payable treasury) ERC20(name_, "MTK") Ownable(msg.sender) {
        _mint(treasury, supply);
    }
}
`

func TestContractName(t *testing.T) {
	assert.Equal(t, "MyToken", ContractName(tokenSource))
	assert.Equal(t, DefaultContractName, ContractName("pragma solidity ^0.8.0;"))
	assert.Equal(t, "Child", ContractName("abstract contract Base {}\ncontract Child is Base {}"))
	assert.Equal(t, DefaultContractName, ContractName("abstract contract Base {}"))
}

func TestContractName_IgnoresComments(t *testing.T) {
	src := "// this contract does things\ncontract Vault {}"
	assert.Equal(t, "Vault", ContractName(src))
}

func TestContractName_IgnoresBlockComments(t *testing.T) {
	src := "/*\ncontract Old {}\n*/\ncontract Vault {}"
	assert.Equal(t, "Vault", ContractName(src))
}

func TestStripComments(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"line comment", "uint a; // note\nuint b;", "uint a; \nuint b;"},
		{"block comment keeps lines", "a /* x\ny */ b", "a  \n b"},
		{"unterminated block", "a /* never closed", "a  "},
		{"url in string", `string u = "https://x.io"; // c`, `string u = "https://x.io"; `},
		{"escaped quote", `string s = "a\"//b"; c`, `string s = "a\"//b"; c`},
		{"no comments", "contract A {}", "contract A {}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripComments(tt.src))
		})
	}
}

func TestPragmaVersion(t *testing.T) {
	v, ok := PragmaVersion(tokenSource)
	require.True(t, ok)
	assert.Equal(t, "^0.8.20", v)

	_, ok = PragmaVersion("contract A {}")
	assert.False(t, ok)
}

func TestMeetsMinimumVersion(t *testing.T) {
	tests := []struct {
		constraint string
		want       bool
	}{
		{"^0.8.0", true},
		{"^0.8.20", true},
		{">=0.8.4 <0.9.0", true},
		{"^0.7.6", false},
		{"0.6.12", false},
		{"0.8", true},
		{"latest", false},
	}
	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			assert.Equal(t, tt.want, MeetsMinimumVersion(tt.constraint))
		})
	}
}

func TestConstructorParams(t *testing.T) {
	params := ConstructorParams(tokenSource)
	require.Len(t, params, 3)
	assert.Equal(t, Param{Type: "string", Name: "name_"}, params[0])
	assert.Equal(t, Param{Type: "uint256", Name: "supply"}, params[1])
	assert.Equal(t, Param{Type: "address", Name: "treasury"}, params[2])

	assert.Nil(t, ConstructorParams("contract A { constructor() {} }"))
	assert.Nil(t, ConstructorParams("contract A {}"))
}

func TestConstructorParams_IgnoresCommentedSignatures(t *testing.T) {
	src := `contract Token {
    // constructor(string memory n) was removed
    /* constructor(bool legacy) */
    constructor(uint256 supply, address owner) {}
}`
	assert.Equal(t, []Param{
		{Type: "uint256", Name: "supply"},
		{Type: "address", Name: "owner"},
	}, ConstructorParams(src))
	assert.False(t, HasConstructor("contract A {\n// constructor(uint x) {}\n}"))
}

func TestConstructorParams_UsesDeployableContract(t *testing.T) {
	src := `abstract contract Base {
    constructor(string memory label) {}
}

contract Token is Base {
    constructor(uint256 supply) Base("t") {}
}

contract Helper {
    constructor(bool flag) {}
}`
	assert.Equal(t, []Param{{Type: "uint256", Name: "supply"}}, ConstructorParams(src))

	// The deployable contract has no constructor of its own; later
	// contracts must not lend it theirs.
	noCtor := "abstract contract Base { constructor(uint a) {} }\ncontract Token is Base {}\ncontract Other { constructor(bool b) {} }"
	assert.Nil(t, ConstructorParams(noCtor))
}

func TestImports(t *testing.T) {
	assert.True(t, HasImports(tokenSource))
	assert.Equal(t, 2, ImportCount(tokenSource))
	assert.False(t, HasImports("contract A { string s = \"import\"; }"))
}

func TestIsIdentifier(t *testing.T) {
	assert.True(t, IsIdentifier("MyToken"))
	assert.True(t, IsIdentifier("_Vault2"))
	assert.False(t, IsIdentifier("2Fast"))
	assert.False(t, IsIdentifier("../../etc/passwd"))
	assert.False(t, IsIdentifier(""))
}

func TestValidate(t *testing.T) {
	s := Validate(tokenSource)
	assert.True(t, s.HasPragma)
	assert.True(t, s.HasContract)
	assert.True(t, s.HasConstructor)
	assert.True(t, s.HasImports)
	require.NotNil(t, s.SolidityVersion)
	assert.Equal(t, "^0.8.20", *s.SolidityVersion)
	require.NotNil(t, s.ContractName)
	assert.Equal(t, "MyToken", *s.ContractName)
	assert.True(t, s.MeetsMinimumVersion)
}

func TestValidate_AbstractOnly(t *testing.T) {
	s := Validate("pragma solidity ^0.8.0;\nabstract contract Base {}")
	assert.True(t, s.HasContract)
	require.NotNil(t, s.ContractName)
	assert.Equal(t, "Base", *s.ContractName)
}

func TestValidate_Empty(t *testing.T) {
	s := Validate("")
	assert.False(t, s.HasPragma)
	assert.False(t, s.HasContract)
	assert.Nil(t, s.SolidityVersion)
	assert.Nil(t, s.ContractName)
	assert.False(t, s.MeetsMinimumVersion)
}
