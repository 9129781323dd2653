// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package solidity provides lightweight, regex-based inspection of Solidity
// source text.
//
// Nothing in this package parses Solidity. Every helper is a textual scan
// that tolerates malformed input, because the sources it sees are usually
// model output that has not been compiled yet.
package solidity

import (
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

// DefaultContractName is used when no contract declaration can be found.
const DefaultContractName = "GeneratedContract"

// MinimumVersion is the lowest compiler version the pipeline targets.
const MinimumVersion = "0.8.0"

var (
	contractNamePattern = regexp.MustCompile(`(?m)^\s*(abstract\s+)?contract\s+([A-Za-z_$][A-Za-z0-9_$]*)`)
	pragmaPattern       = regexp.MustCompile(`pragma\s+solidity\s+([^;]+);`)
	versionPattern      = regexp.MustCompile(`\d+\.\d+(?:\.\d+)?`)
	constructorPattern  = regexp.MustCompile(`constructor\s*\(([^)]*)\)`)
	identifierPattern   = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)
	importPattern       = regexp.MustCompile(`(?m)^\s*import\b`)
)

// contractDecl is one `contract` declaration found in comment-free source.
type contractDecl struct {
	name     string
	abstract bool
	start    int
}

// contractDecls returns the contract declarations of code in source order.
// code must already have its comments removed.
func contractDecls(code string) []contractDecl {
	var decls []contractDecl
	for _, m := range contractNamePattern.FindAllStringSubmatchIndex(code, -1) {
		decls = append(decls, contractDecl{
			name:     code[m[4]:m[5]],
			abstract: m[2] >= 0,
			start:    m[0],
		})
	}
	return decls
}

// deployable returns the index of the first concrete declaration, or -1.
func deployable(decls []contractDecl) int {
	for i, d := range decls {
		if !d.abstract {
			return i
		}
	}
	return -1
}

// ContractName returns the name of the first concrete contract declared in
// src. Abstract contracts cannot be deployed and are skipped. Returns
// DefaultContractName when src declares no concrete contract.
func ContractName(src string) string {
	decls := contractDecls(StripComments(src))
	if i := deployable(decls); i >= 0 {
		return decls[i].name
	}
	return DefaultContractName
}

// StripComments blanks out `//` and `/* */` comments in src. Newlines are
// kept so line-anchored scans still see the same lines, and comment
// markers inside string literals are left alone.
func StripComments(src string) string {
	var b strings.Builder
	b.Grow(len(src))

	var quote byte
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case quote != 0:
			b.WriteByte(c)
			if c == '\\' && i+1 < len(src) {
				i++
				b.WriteByte(src[i])
			} else if c == quote || c == '\n' {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
			b.WriteByte(c)
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
			if i < len(src) {
				b.WriteByte('\n')
			}
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			b.WriteByte(' ')
			i += 2
			for i < len(src) && !(src[i] == '*' && i+1 < len(src) && src[i+1] == '/') {
				if src[i] == '\n' {
					b.WriteByte('\n')
				}
				i++
			}
			i++ // skip the closing slash
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// IsIdentifier reports whether name is a valid Solidity identifier.
func IsIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// PragmaVersion returns the version constraint of the first
// `pragma solidity ...;` directive, e.g. "^0.8.20".
func PragmaVersion(src string) (string, bool) {
	m := pragmaPattern.FindStringSubmatch(src)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// MeetsMinimumVersion reports whether the first version mentioned in the
// constraint is at least MinimumVersion.
func MeetsMinimumVersion(constraint string) bool {
	v := versionPattern.FindString(constraint)
	if v == "" {
		return false
	}
	return semver.Compare("v"+v, "v"+MinimumVersion) >= 0
}

// HasConstructor reports whether src declares a constructor outside of
// comments.
func HasConstructor(src string) bool {
	return constructorPattern.MatchString(StripComments(src))
}

// HasImports reports whether src contains at least one import statement.
func HasImports(src string) bool {
	return importPattern.MatchString(src)
}

// ImportCount returns the number of import statements in src.
func ImportCount(src string) int {
	return len(importPattern.FindAllStringIndex(src, -1))
}

// Param is one declared constructor parameter.
type Param struct {
	// Type is the declared type with data-location keywords removed,
	// e.g. "string" or "uint256[]".
	Type string

	// Name is the parameter name, empty when unnamed.
	Name string
}

// ConstructorParams returns the constructor parameters of the contract
// ContractName picks, ignoring comments. When src declares no concrete
// contract the first constructor anywhere is used. A contract without a
// constructor, or one with an empty parameter list, yields nil.
func ConstructorParams(src string) []Param {
	code := StripComments(src)
	if decls := contractDecls(code); len(decls) > 0 {
		if i := deployable(decls); i >= 0 {
			end := len(code)
			if i+1 < len(decls) {
				end = decls[i+1].start
			}
			code = code[decls[i].start:end]
		}
	}

	m := constructorPattern.FindStringSubmatch(code)
	if m == nil {
		return nil
	}
	raw := strings.TrimSpace(m[1])
	if raw == "" {
		return nil
	}

	var params []Param
	for _, part := range strings.Split(raw, ",") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		p := Param{Type: fields[0]}
		for _, f := range fields[1:] {
			switch f {
			case "memory", "calldata", "storage", "payable":
				continue
			}
			p.Name = f
		}
		params = append(params, p)
	}
	return params
}
