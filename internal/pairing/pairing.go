// Package pairing groups a server-ordered post stream into display and
// generation units. A follow-up post (one whose text starts with the marker
// glyph) annotates the post listed directly before it; each main post carries
// at most one follow-up.
package pairing

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"curator/internal/feed"
)

// DefaultMarker is the glyph that marks a follow-up post.
const DefaultMarker = "👆"

const variationSelector = '\uFE0F'

// Unit is one top-level item: a main post plus an optional follow-up child.
// An unpaired follow-up is emitted as a Unit with itself as Main.
type Unit struct {
	Main  feed.Post
	Child *feed.Post
}

// Paired reports whether the unit carries a follow-up child.
func (u Unit) Paired() bool {
	return u.Child != nil
}

// Resolver detects follow-ups by marker and pairs them.
type Resolver struct {
	marker string
}

// NewResolver returns a resolver for marker, falling back to DefaultMarker.
func NewResolver(marker string) *Resolver {
	marker = norm.NFC.String(strings.TrimSpace(marker))
	if marker == "" {
		marker = DefaultMarker
	}
	return &Resolver{marker: marker}
}

// IsFollowUp reports whether text starts with the marker once trimmed.
func (r *Resolver) IsFollowUp(text string) bool {
	return strings.HasPrefix(normalize(text), r.marker)
}

// Resolve pairs posts left to right. A follow-up attaches to the item
// immediately before it only when that item is a main post without a child;
// otherwise it is emitted unpaired at its own position.
func (r *Resolver) Resolve(posts []feed.Post) []Unit {
	units := make([]Unit, 0, len(posts))
	prevMain := false
	for i := range posts {
		post := posts[i]
		if !r.IsFollowUp(post.Text) {
			units = append(units, Unit{Main: post})
			prevMain = true
			continue
		}
		if prevMain {
			child := post
			units[len(units)-1].Child = &child
			prevMain = false
			continue
		}
		units = append(units, Unit{Main: post})
		prevMain = false
	}
	return units
}

// EffectiveText returns the text submitted for generation: the main text,
// followed by the follow-up text without its marker.
func (r *Resolver) EffectiveText(u Unit) string {
	main := strings.TrimSpace(u.Main.Text)
	if u.Child == nil {
		return main
	}
	follow := r.StripMarker(u.Child.Text)
	if follow == "" {
		return main
	}
	if main == "" {
		return follow
	}
	return main + "\n\n" + follow
}

// StripMarker removes a leading marker (and an emoji variation selector) from
// text and trims the remainder.
func (r *Resolver) StripMarker(text string) string {
	s := normalize(text)
	if !strings.HasPrefix(s, r.marker) {
		return s
	}
	s = strings.TrimPrefix(s, r.marker)
	if ch, size := utf8.DecodeRuneInString(s); ch == variationSelector {
		s = s[size:]
	}
	return strings.TrimSpace(s)
}

// Resolve pairs posts using DefaultMarker.
func Resolve(posts []feed.Post) []Unit {
	return NewResolver(DefaultMarker).Resolve(posts)
}

// Posts flattens units back into posts, mains before their child.
func Posts(units []Unit) []feed.Post {
	out := make([]feed.Post, 0, len(units))
	for _, u := range units {
		out = append(out, u.Main)
		if u.Child != nil {
			out = append(out, *u.Child)
		}
	}
	return out
}

func normalize(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}
