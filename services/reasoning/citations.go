// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reasoning

import (
	"fmt"
	"math"
	"sort"

	"github.com/AleutianAI/AcademicAgent/services/evidence"
)

// Citation anchors a claim in a source. Video citations carry a timestamp
// and its mm:ss label; pdf citations carry a page and an optional box.
type Citation struct {
	Modality evidence.Modality `json:"modality"`
	AssetID  string            `json:"asset_id"`

	TimestampSeconds *float64 `json:"timestamp_seconds,omitempty"`
	Label            string   `json:"label,omitempty"`

	PageNumber *int      `json:"page_number,omitempty"`
	BBox       []float64 `json:"bbox,omitempty"`
}

// FormatTimestamp renders seconds as zero-padded mm:ss. Minutes are not
// wrapped into hours, so 3725s is "62:05".
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// String renders the citation the way answers reference it.
func (c Citation) String() string {
	switch {
	case c.TimestampSeconds != nil:
		return fmt.Sprintf("%s@%s", c.AssetID, c.Label)
	case c.PageNumber != nil:
		return fmt.Sprintf("%s p.%d", c.AssetID, *c.PageNumber)
	default:
		return c.AssetID
	}
}

// anchor is the numeric position used for ordering and dedup.
func (c Citation) anchor() float64 {
	switch {
	case c.TimestampSeconds != nil:
		return *c.TimestampSeconds
	case c.PageNumber != nil:
		return float64(*c.PageNumber)
	default:
		return -1
	}
}

// key is the uniqueness tuple: modality, asset, anchor. Timestamps are
// compared at centisecond precision, the precision of frame names.
func (c Citation) key() string {
	box := ""
	if c.BBox != nil {
		box = fmt.Sprint(c.BBox)
	}
	return fmt.Sprintf("%s|%s|%.2f|%s", c.Modality, c.AssetID, c.anchor(), box)
}

// BuildCitations turns retrieval metadata into normalized citations.
// Evidence without a usable anchor is skipped.
func BuildCitations(docs []evidence.Evidence) []Citation {
	var out []Citation
	for _, d := range docs {
		m := d.Metadata
		switch m.Modality {
		case evidence.ModalityVideo:
			if m.Timestamp == nil {
				continue
			}
			ts := *m.Timestamp
			out = append(out, Citation{
				Modality:         m.Modality,
				AssetID:          m.AssetID,
				TimestampSeconds: &ts,
				Label:            FormatTimestamp(ts),
			})
		case evidence.ModalityPDF:
			if m.PageLabel == nil {
				continue
			}
			page := *m.PageLabel
			out = append(out, Citation{
				Modality:   m.Modality,
				AssetID:    m.AssetID,
				PageNumber: &page,
				BBox:       append([]float64(nil), m.BBox...),
			})
		}
	}
	return NormalizeCitations(out)
}

// NormalizeCitations removes duplicates and sorts by asset, modality, then
// numeric anchor, so 09:59 sorts before 10:00 and page 2 before page 10.
func NormalizeCitations(in []Citation) []Citation {
	seen := make(map[string]struct{}, len(in))
	out := make([]Citation, 0, len(in))
	for _, c := range in {
		k := c.key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.AssetID != b.AssetID {
			return a.AssetID < b.AssetID
		}
		if a.Modality != b.Modality {
			return a.Modality < b.Modality
		}
		return a.anchor() < b.anchor()
	})
	return out
}
