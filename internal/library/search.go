package library

import (
	"math"
	"sort"
	"strings"
)

// EntityKind distinguishes what a search hit refers to.
type EntityKind uint8

const (
	KindArtist EntityKind = iota
	KindAlbum
	KindTrack
)

// wordEntry is one searchable token of an entity name. The array of entries
// is sorted by (word, kind, id), so all entries sharing a query token as
// prefix form one contiguous range found by binary search.
type wordEntry struct {
	word string
	kind EntityKind
	id   uint64
	// pos is the token's position in the name, for ranking earlier matches
	// above later ones.
	pos uint8
}

// maxSearchResults caps each result list of a single search.
const maxSearchResults = 25

// SearchResults holds ranked ids per entity kind, at most 25 each.
type SearchResults struct {
	Artists []ArtistId
	Albums  []AlbumId
	Tracks  []TrackId
}

// buildWords emits one entry per token of every artist name, album title,
// and track title, normalized the same way queries are.
func buildWords(ix *Index) []wordEntry {
	var words []wordEntry
	emit := func(name string, kind EntityKind, id uint64) {
		for i, tok := range Tokenize(name) {
			pos := uint8(min(i, math.MaxUint8))
			words = append(words, wordEntry{word: tok, kind: kind, id: id, pos: pos})
		}
	}
	for _, a := range ix.artists {
		emit(ix.strings.get(a.Name), KindArtist, uint64(a.ID))
	}
	for _, a := range ix.albums {
		emit(ix.strings.get(a.Title), KindAlbum, uint64(a.ID))
	}
	for _, t := range ix.tracks {
		emit(ix.strings.get(t.Title), KindTrack, uint64(t.ID))
	}
	sort.Slice(words, func(i, j int) bool {
		a, b := words[i], words[j]
		if a.word != b.word {
			return a.word < b.word
		}
		if a.kind != b.kind {
			return a.kind < b.kind
		}
		return a.id < b.id
	})
	return words
}

type entityKey struct {
	kind EntityKind
	id   uint64
}

type tokenMatch struct {
	// exact is true while every query token so far matched a whole stored
	// token rather than a proper prefix.
	exact bool
	// pos is the earliest matched token position across the query tokens.
	pos uint8
}

// Search normalizes the query, splits it into tokens, finds each token's
// prefix range in the word array, and intersects the entity sets across
// tokens. Results are ranked: whole-token matches before prefix matches,
// then earlier positions in the name, then canonical order.
func (ix *Index) Search(query string) SearchResults {
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return SearchResults{}
	}

	var acc map[entityKey]tokenMatch
	for i, tok := range tokens {
		found := make(map[entityKey]tokenMatch)
		lo := sort.Search(len(ix.words), func(i int) bool { return ix.words[i].word >= tok })
		for j := lo; j < len(ix.words) && strings.HasPrefix(ix.words[j].word, tok); j++ {
			e := ix.words[j]
			m := tokenMatch{exact: e.word == tok, pos: e.pos}
			if prev, ok := found[entityKey{e.kind, e.id}]; ok {
				m = bestMatch(m, prev)
			}
			found[entityKey{e.kind, e.id}] = m
		}

		if i == 0 {
			acc = found
			continue
		}
		// AND semantics: drop entities this token did not match.
		for k, prev := range acc {
			m, ok := found[k]
			if !ok {
				delete(acc, k)
				continue
			}
			acc[k] = tokenMatch{exact: prev.exact && m.exact, pos: min(prev.pos, m.pos)}
		}
		if len(acc) == 0 {
			return SearchResults{}
		}
	}

	return ix.rankMatches(acc)
}

// bestMatch merges two matches of the same token against one entity, e.g. a
// title containing the word twice.
func bestMatch(a, b tokenMatch) tokenMatch {
	return tokenMatch{exact: a.exact || b.exact, pos: min(a.pos, b.pos)}
}

type rankedMatch struct {
	key  entityKey
	m    tokenMatch
	rank int
}

func (ix *Index) rankMatches(acc map[entityKey]tokenMatch) SearchResults {
	byKind := [3][]rankedMatch{}
	for k, m := range acc {
		var rank int
		switch k.kind {
		case KindArtist:
			rank = ix.canonicalArtistRank(ArtistId(k.id))
		case KindAlbum:
			rank = ix.canonicalAlbumRank(AlbumId(k.id))
		case KindTrack:
			rank = ix.canonicalTrackRank(TrackId(k.id))
		}
		byKind[k.kind] = append(byKind[k.kind], rankedMatch{key: k, m: m, rank: rank})
	}
	for kind := range byKind {
		sort.Slice(byKind[kind], func(i, j int) bool {
			a, b := byKind[kind][i], byKind[kind][j]
			if a.m.exact != b.m.exact {
				return a.m.exact
			}
			if a.m.pos != b.m.pos {
				return a.m.pos < b.m.pos
			}
			return a.rank < b.rank
		})
		if len(byKind[kind]) > maxSearchResults {
			byKind[kind] = byKind[kind][:maxSearchResults]
		}
	}

	var res SearchResults
	for _, r := range byKind[KindArtist] {
		res.Artists = append(res.Artists, ArtistId(r.key.id))
	}
	for _, r := range byKind[KindAlbum] {
		res.Albums = append(res.Albums, AlbumId(r.key.id))
	}
	for _, r := range byKind[KindTrack] {
		res.Tracks = append(res.Tracks, TrackId(r.key.id))
	}
	return res
}
