package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// UnitID is a logical unit identifier. Segmentation emits numeric ids; we keep them as strings.
type UnitID string

func (id *UnitID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = UnitID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("logical unit id: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*id = UnitID(strconv.FormatInt(i, 10))
		return nil
	}
	*id = UnitID(n.String())
	return nil
}

// LogicalUnit represents one section-level chunk of a source document.
type LogicalUnit struct {
	ID      UnitID   `json:"logical_unit_id"`
	Heading string   `json:"logical_unit_heading"`
	Content []string `json:"logical_unit_content"`
	Summary string   `json:"logical_unit_summary"`
}

// Overview is the regulation metadata produced by the segmentation step.
type Overview struct {
	Country   string `json:"country,omitempty"`
	Authority string `json:"authority,omitempty"`
	Title     string `json:"title,omitempty"`
	Purpose   string `json:"purpose,omitempty"`
	Scope     string `json:"scope,omitempty"`
	// Text holds free-form overview text when no structure was recognized.
	Text string `json:"text,omitempty"`
}

// UnmarshalJSON accepts an object, a plain string, or a string holding JSON
// (optionally wrapped as {"regulation_overview": [ {...} ]}).
func (o *Overview) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*o = Overview{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if strings.HasPrefix(s, "{") {
			var nested Overview
			if err := nested.decodeObject([]byte(s)); err == nil {
				*o = nested
				return nil
			}
		}
		*o = Overview{Text: s}
		return nil
	}
	return o.decodeObject(b)
}

type overviewFields Overview

func (o *Overview) decodeObject(b []byte) error {
	var wrapped struct {
		Items []overviewFields `json:"regulation_overview"`
	}
	if err := json.Unmarshal(b, &wrapped); err == nil && len(wrapped.Items) > 0 {
		*o = Overview(wrapped.Items[0])
		return nil
	}
	var flat overviewFields
	if err := json.Unmarshal(b, &flat); err != nil {
		return fmt.Errorf("regulation overview: %w", err)
	}
	*o = Overview(flat)
	return nil
}

// String renders the overview for prompts.
func (o Overview) String() string {
	var parts []string
	add := func(label, v string) {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, label+": "+v)
		}
	}
	add("Country", o.Country)
	add("Authority", o.Authority)
	add("Title", o.Title)
	add("Purpose", o.Purpose)
	add("Scope", o.Scope)
	add("Overview", o.Text)
	return strings.Join(parts, "\n")
}

// SourceDocument represents one regulation or consultation text under analysis.
type SourceDocument struct {
	Tag      string        `json:"tag"`
	Overview Overview      `json:"regulation_overview"`
	Units    []LogicalUnit `json:"response"`
}

// UnitIDs returns the set of unit ids currently in the document.
func (d *SourceDocument) UnitIDs() map[UnitID]struct{} {
	out := make(map[UnitID]struct{}, len(d.Units))
	for _, u := range d.Units {
		out[u.ID] = struct{}{}
	}
	return out
}

// Unit looks up a unit by id.
func (d *SourceDocument) Unit(id UnitID) (LogicalUnit, bool) {
	for _, u := range d.Units {
		if u.ID == id {
			return u, true
		}
	}
	return LogicalUnit{}, false
}

// DisplayName prefers the issuing authority, then the title, then the tag.
func (d *SourceDocument) DisplayName() string {
	switch {
	case strings.TrimSpace(d.Overview.Authority) != "":
		return strings.TrimSpace(d.Overview.Authority)
	case strings.TrimSpace(d.Overview.Title) != "":
		return strings.TrimSpace(d.Overview.Title)
	default:
		return d.Tag
	}
}

// UnitRef identifies a unit across documents.
type UnitRef struct {
	Tag string `json:"tag"`
	ID  UnitID `json:"logical_unit_id"`
}

func (r UnitRef) String() string {
	return r.Tag + "#" + string(r.ID)
}
