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

import "strings"

// Structure is a structural summary of a source unit.
//
// SolidityVersion and ContractName are nil when the corresponding
// declaration is missing, so they serialize as JSON null.
type Structure struct {
	HasPragma           bool    `json:"has_pragma"`
	HasContract         bool    `json:"has_contract"`
	HasConstructor      bool    `json:"has_constructor"`
	HasImports          bool    `json:"has_imports"`
	SolidityVersion     *string `json:"solidity_version"`
	ContractName        *string `json:"contract_name"`
	MeetsMinimumVersion bool    `json:"meets_minimum_version"`
}

// Validate inspects src and reports which top-level elements are present.
//
// ContractName is the deployable contract when there is one, otherwise the
// first abstract contract.
func Validate(src string) Structure {
	code := StripComments(src)
	decls := contractDecls(code)
	s := Structure{
		HasPragma:      strings.Contains(code, "pragma solidity"),
		HasContract:    len(decls) > 0,
		HasConstructor: constructorPattern.MatchString(code),
		HasImports:     HasImports(code),
	}

	if v, ok := PragmaVersion(src); ok {
		s.SolidityVersion = &v
		s.MeetsMinimumVersion = MeetsMinimumVersion(v)
	}
	if s.HasContract {
		name := decls[0].name
		if i := deployable(decls); i >= 0 {
			name = decls[i].name
		}
		s.ContractName = &name
	}
	return s
}
