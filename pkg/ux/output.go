// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal output styling for the metadag CLI.
//
// Each Printer owns a lipgloss renderer bound to its writer, so color is
// emitted only when that writer is a terminal. Pipes, files and test
// buffers receive plain text.
package ux

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette
var (
	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorMuted   = lipgloss.Color("#2C4A54")
	ColorAccent  = lipgloss.Color("#20B9B4")
)

// Icon is a status marker printed before a message.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconBullet  Icon = "•"
)

// labelWidth aligns Field values.
const labelWidth = 14

// styles is the set of styles bound to one renderer.
type styles struct {
	title   lipgloss.Style
	label   lipgloss.Style
	muted   lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	err     lipgloss.Style
	accent  lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title:   r.NewStyle().Bold(true).Foreground(ColorAccent),
		label:   r.NewStyle().Foreground(ColorMuted),
		muted:   r.NewStyle().Foreground(ColorMuted),
		success: r.NewStyle().Foreground(ColorSuccess),
		warning: r.NewStyle().Foreground(ColorWarning),
		err:     r.NewStyle().Foreground(ColorError),
		accent:  r.NewStyle().Foreground(ColorAccent).Bold(true),
	}
}

// Printer writes styled lines to one writer.
type Printer struct {
	w      io.Writer
	styles styles
}

// NewPrinter returns a Printer for w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, styles: newStyles(lipgloss.NewRenderer(w))}
}

// Title prints a heading.
func (p *Printer) Title(text string) {
	fmt.Fprintln(p.w, p.styles.title.Render(text))
}

// Success prints text with a check mark.
func (p *Printer) Success(text string) {
	fmt.Fprintf(p.w, "%s %s\n", p.styles.success.Render(string(IconSuccess)), text)
}

// Warning prints text with a warning marker.
func (p *Printer) Warning(text string) {
	fmt.Fprintf(p.w, "%s %s\n", p.styles.warning.Render(string(IconWarning)), text)
}

// Error prints text with a cross.
func (p *Printer) Error(text string) {
	fmt.Fprintf(p.w, "%s %s\n", p.styles.err.Render(string(IconError)), text)
}

// Bullet prints one list item.
func (p *Printer) Bullet(text string) {
	fmt.Fprintf(p.w, "  %s %s\n", p.styles.muted.Render(string(IconBullet)), text)
}

// Field prints an aligned "label: value" line.
func (p *Printer) Field(label, value string) {
	padded := label + ":" + strings.Repeat(" ", max(1, labelWidth-len(label)-1))
	fmt.Fprintf(p.w, "%s%s\n", p.styles.label.Render(padded), value)
}

// Highlight renders text in the accent style without printing it.
func (p *Printer) Highlight(text string) string {
	return p.styles.accent.Render(text)
}

// Check returns a yes/no marker for b.
func (p *Printer) Check(b bool) string {
	if b {
		return p.styles.success.Render("yes")
	}
	return p.styles.err.Render("no")
}
