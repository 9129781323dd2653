// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package autofix

import (
	"regexp"
	"strings"
)

// safeMathCall finds the method part of x.add( / x.sub( / x.mul( / x.div(.
var safeMathCall = regexp.MustCompile(`\.(add|sub|mul|div)\(`)

// safeMathOps maps each SafeMath method to its operator and precedence.
var safeMathOps = map[string]struct {
	symbol string
	prec   int
}{
	"add": {"+", precAdditive},
	"sub": {"-", precAdditive},
	"mul": {"*", precMultiplicative},
	"div": {"/", precMultiplicative},
}

// Operator precedence, loosest first. precAtomic marks an operand with no
// top-level operator.
const (
	precOther = iota
	precAdditive
	precMultiplicative
	precExponent
	precAtomic
)

const (
	// leftSafe are characters after which a + b needs no parentheses.
	leftSafe = "=(,;{[<>&|^?:"

	// rightSafe are characters before which a + b needs no parentheses.
	rightSafe = ";),]}<>=!&|^?:"
)

// maxSafeMathRewrites bounds rewriteSafeMath on pathological input.
const maxSafeMathRewrites = 4096

// rewriteSafeMath replaces SafeMath calls with native operators.
//
// The rightmost call is rewritten first. Its argument cannot contain another
// call, so nested expressions resolve from the inside out. Operands are
// parenthesized when their own top-level operator binds no tighter than the
// replacement operator, and the whole expression is parenthesized when a
// neighbouring operator would otherwise capture one of its operands.
// Calls whose receiver or argument cannot be delimited are left alone.
func rewriteSafeMath(src string) string {
	for n := 0; n < maxSafeMathRewrites; n++ {
		locs := safeMathCall.FindAllStringSubmatchIndex(src, -1)
		rewritten := false
		for k := len(locs) - 1; k >= 0; k-- {
			if next, ok := rewriteSafeMathCall(src, locs[k]); ok {
				src = next
				rewritten = true
				break
			}
		}
		if !rewritten {
			break
		}
	}
	return src
}

func rewriteSafeMathCall(src string, loc []int) (string, bool) {
	dot, open := loc[0], loc[1]-1
	op := safeMathOps[src[loc[2]:loc[3]]]

	start := receiverStart(src, dot)
	if start == dot || src[start] == '.' {
		return src, false
	}
	end := closingParen(src, open)
	if end < 0 {
		return src, false
	}
	arg := strings.TrimSpace(src[open+1 : end])
	if arg == "" {
		return src, false
	}

	if topLevelPrec(arg) <= op.prec {
		arg = "(" + arg + ")"
	}
	expr := src[start:dot] + " " + op.symbol + " " + arg
	if !safeContext(src, start, end+1) {
		expr = "(" + expr + ")"
	}
	return src[:start] + expr + src[end+1:], true
}

// receiverStart scans back from the dot over identifiers, member access
// and balanced () or [] groups, e.g. balances[msg.sender] or f(x).
func receiverStart(src string, dot int) int {
	j := dot
	for j > 0 {
		c := src[j-1]
		switch {
		case isWordByte(c) || c == '.':
			j--
		case c == ')' || c == ']':
			k := openingBracket(src, j-1)
			if k < 0 {
				return j
			}
			j = k
		default:
			return j
		}
	}
	return j
}

// closingParen returns the index of the ')' matching the '(' at open, or -1.
func closingParen(src string, open int) int {
	depth := 0
	for i := open; i < len(src); i++ {
		switch src[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		case ';', '{', '}':
			return -1
		}
	}
	return -1
}

// openingBracket returns the index of the opener matching the closer at
// close, or -1.
func openingBracket(src string, close int) int {
	depth := 0
	for i := close; i >= 0; i-- {
		switch src[i] {
		case ')', ']':
			depth++
		case '(', '[':
			depth--
			if depth == 0 {
				return i
			}
		case ';', '{', '}':
			return -1
		}
	}
	return -1
}

// topLevelPrec returns the loosest operator precedence found outside
// brackets in expr. A leading or repeated '-' is unary and ignored.
func topLevelPrec(expr string) int {
	prec := precAtomic
	depth := 0
	prevOperand := false
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		p := precAtomic
		switch {
		case c == '(' || c == '[':
			depth++
			prevOperand = true
			continue
		case c == ')' || c == ']':
			depth--
			continue
		case depth > 0:
			continue
		case c == ' ' || c == '\t' || c == '\n':
			continue
		case c == '*' && i+1 < len(expr) && expr[i+1] == '*':
			p = precExponent
			i++
		case c == '*' || c == '/' || c == '%':
			p = precMultiplicative
		case c == '+' || c == '-':
			if !prevOperand {
				continue
			}
			p = precAdditive
		case strings.IndexByte("<>=!&|^?:", c) >= 0:
			p = precOther
		default:
			prevOperand = true
			continue
		}
		prevOperand = false
		prec = min(prec, p)
	}
	return prec
}

// safeContext reports whether src[start:end] can be replaced by a binary
// expression without parentheses.
func safeContext(src string, start, end int) bool {
	left := strings.TrimRight(src[:start], " \t\r\n")
	if left != "" {
		c := left[len(left)-1]
		if strings.IndexByte(leftSafe, c) < 0 && !strings.HasSuffix(left, "return") {
			return false
		}
	}
	right := strings.TrimLeft(src[end:], " \t\r\n")
	return right == "" || strings.IndexByte(rightSafe, right[0]) >= 0
}

func isWordByte(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
