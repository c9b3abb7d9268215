// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package vast parses the subset of VAST used by audio ad networks:
// inline linear creatives with audio media files.
package vast

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// VAST is the document root.
type VAST struct {
	XMLName xml.Name `xml:"VAST"`
	Version string   `xml:"version,attr"`
	Ads     []Ad     `xml:"Ad"`
}

// Ad is one ad in the document.
type Ad struct {
	ID       string  `xml:"id,attr"`
	Sequence int     `xml:"sequence,attr,omitempty"`
	InLine   *InLine `xml:"InLine,omitempty"`
}

// InLine carries the creative payload.
type InLine struct {
	AdSystem    AdSystem     `xml:"AdSystem"`
	AdTitle     string       `xml:"AdTitle"`
	Advertiser  string       `xml:"Advertiser,omitempty"`
	Description string       `xml:"Description,omitempty"`
	Impression  []Impression `xml:"Impression"`
	Creatives   Creatives    `xml:"Creatives"`
}

// AdSystem identifies the serving system.
type AdSystem struct {
	Name    string `xml:",chardata"`
	Version string `xml:"version,attr,omitempty"`
}

// Impression is a tracking pixel URL.
type Impression struct {
	ID  string `xml:"id,attr,omitempty"`
	URL string `xml:",chardata"`
}

// Creatives wraps the creative list.
type Creatives struct {
	Creative []Creative `xml:"Creative"`
}

// Creative is one creative; only Linear matters for audio.
type Creative struct {
	ID       string  `xml:"id,attr,omitempty"`
	Sequence int     `xml:"sequence,attr,omitempty"`
	Linear   *Linear `xml:"Linear,omitempty"`
}

// Linear is a time-based creative.
type Linear struct {
	Duration   string     `xml:"Duration"` // HH:MM:SS
	MediaFiles MediaFiles `xml:"MediaFiles"`
}

// MediaFiles wraps the media file list.
type MediaFiles struct {
	MediaFile []MediaFile `xml:"MediaFile"`
}

// MediaFile is one renderable asset.
type MediaFile struct {
	Delivery string `xml:"delivery,attr,omitempty"`
	Type     string `xml:"type,attr"`
	Bitrate  int    `xml:"bitrate,attr,omitempty"`
	URL      string `xml:",chardata"`
}

// Parse decodes a VAST document.
func Parse(data []byte) (*VAST, error) {
	var doc VAST
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse vast: %w", err)
	}
	return &doc, nil
}

// AudioCreative is the flattened result of picking the first playable
// audio creative from a document.
type AudioCreative struct {
	AdID            string
	Title           string
	Advertiser      string
	AudioURL        string
	DurationSeconds int
}

// FirstAudioCreative returns the first inline linear creative with an
// audio media file, or false when the document has none.
func (v *VAST) FirstAudioCreative() (AudioCreative, bool) {
	for _, ad := range v.Ads {
		if ad.InLine == nil {
			continue
		}
		for _, creative := range ad.InLine.Creatives.Creative {
			if creative.Linear == nil {
				continue
			}
			for _, mf := range creative.Linear.MediaFiles.MediaFile {
				url := strings.TrimSpace(mf.URL)
				if url == "" || !strings.HasPrefix(mf.Type, "audio/") {
					continue
				}
				return AudioCreative{
					AdID:            ad.ID,
					Title:           strings.TrimSpace(ad.InLine.AdTitle),
					Advertiser:      strings.TrimSpace(ad.InLine.Advertiser),
					AudioURL:        url,
					DurationSeconds: parseDuration(creative.Linear.Duration),
				}, true
			}
		}
	}
	return AudioCreative{}, false
}

// parseDuration converts HH:MM:SS to seconds; malformed input yields 0.
func parseDuration(s string) int {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return total
}
