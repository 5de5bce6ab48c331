package frequencies

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ErrUnknownAirport is returned for codes outside the configured set
var ErrUnknownAirport = errors.New("unknown airport")

// Frequency represents the ATIS broadcast of one airport
type Frequency struct {
	Airport   string `json:"code"`
	Name      string `json:"name"`
	StreamURL string `json:"-"`
}

// Directory maps airport codes to their ATIS broadcast. It is immutable
// once built and performs no I/O.
type Directory struct {
	byCode map[string]Frequency
	order  []string
}

// NewDirectory builds a directory from the given frequencies, rejecting
// duplicates and unusable stream URLs
func NewDirectory(freqs []Frequency) (*Directory, error) {
	if len(freqs) == 0 {
		return nil, errors.New("frequency directory requires at least one airport")
	}

	d := &Directory{byCode: make(map[string]Frequency, len(freqs))}
	for _, f := range freqs {
		code := normalizeCode(f.Airport)
		if code == "" {
			return nil, errors.New("frequency with empty airport code")
		}
		if _, exists := d.byCode[code]; exists {
			return nil, fmt.Errorf("duplicate airport code %s", code)
		}

		u, err := url.Parse(f.StreamURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("invalid stream url for %s: %q", code, f.StreamURL)
		}

		f.Airport = code
		d.byCode[code] = f
		d.order = append(d.order, code)
	}

	return d, nil
}

// Resolve returns the broadcast for an airport code (case-insensitive)
func (d *Directory) Resolve(code string) (Frequency, error) {
	f, ok := d.byCode[normalizeCode(code)]
	if !ok {
		return Frequency{}, fmt.Errorf("%w: %q", ErrUnknownAirport, code)
	}
	return f, nil
}

// All returns the configured broadcasts in configuration order
func (d *Directory) All() []Frequency {
	out := make([]Frequency, 0, len(d.order))
	for _, code := range d.order {
		out = append(out, d.byCode[code])
	}
	return out
}

// Codes returns the configured airport codes sorted alphabetically
func (d *Directory) Codes() []string {
	codes := append([]string(nil), d.order...)
	sort.Strings(codes)
	return codes
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// StreamOptions contains options for opening a stream
type StreamOptions struct {
	URL string
}

// StreamMetadata contains metadata about an audio stream
type StreamMetadata struct {
	ContentType string
	Bitrate     int
	Format      string
	Name        string
}
