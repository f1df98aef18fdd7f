package torrentinfo

import (
	"strings"
	"time"

	"github.com/anacrolix/torrent/metainfo"
)

// parseOptional reads the fields whose absence or corruption never fails a
// parse. Bad entries are skipped and noted as warnings.
func (p *parser) parseOptional() {
	p.parseTrackers()
	p.parseWebSeeds()

	if date, ok := p.root.dictInt("creation date"); ok && date > 0 {
		p.m.creationDate = time.Unix(date, 0).UTC()
	}
	p.m.comment, _ = p.root.preferredString("comment.utf-8", "comment")
	p.m.createdBy, _ = p.root.dictString("created by")
	if private, ok := p.info.dictInt("private"); ok && private == 1 {
		p.m.private = true
	}

	p.parseCollections()
	p.parseSimilar()
}

func (p *parser) parseTrackers() {
	seen := make(map[string]bool)
	add := func(url string, tier int) bool {
		url = strings.TrimSpace(url)
		if url == "" || seen[url] {
			return false
		}
		seen[url] = true
		p.m.trackers = append(p.m.trackers, AnnounceEntry{URL: url, Tier: tier})
		return true
	}

	if tiers, ok := p.root.dictList("announce-list"); ok {
		tier := 0
		for i, t := range tiers {
			urls, ok := t.List()
			if !ok {
				p.warn("skipping announce-list tier %d: not a list", i)
				continue
			}
			added := false
			for _, u := range urls {
				s, ok := u.Str()
				if !ok {
					p.warn("skipping non-string tracker in tier %d", i)
					continue
				}
				if add(s, tier) {
					added = true
				}
			}
			if added {
				tier++
			}
		}
	}
	if len(p.m.trackers) == 0 {
		if s, ok := p.root.dictString("announce"); ok {
			add(s, 0)
		}
	}
}

func (p *parser) parseWebSeeds() {
	type key struct{ url, kind string }
	seen := make(map[key]bool)
	collect := func(field, kind string) {
		v, ok := p.root.Get(field)
		if !ok {
			return
		}
		var raw []Node
		switch v.Kind() {
		case KindString:
			raw = []Node{v}
		case KindList:
			raw, _ = v.List()
		default:
			p.warn("ignoring %q: %s", field, v.Kind())
			return
		}
		for _, n := range raw {
			s, ok := n.Str()
			if !ok {
				p.warn("skipping non-string entry in %q", field)
				continue
			}
			url := normalizeSeedURL(s, kind == URLSeed && p.m.multiFile)
			if url == "" || seen[key{url, kind}] {
				continue
			}
			seen[key{url, kind}] = true
			p.m.webSeeds = append(p.m.webSeeds, WebSeed{URL: url, Kind: kind})
		}
	}
	collect("url-list", URLSeed)
	collect("httpseeds", HTTPSeed)
}

// normalizeSeedURL trims and escapes a web seed URL. Multi-file url-seeds
// address a directory and always end in '/'.
func normalizeSeedURL(s string, directory bool) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, " ", "%20")
	if directory && !strings.HasSuffix(s, "/") {
		s += "/"
	}
	return s
}

func (p *parser) parseCollections() {
	seen := make(map[string]bool)
	for _, d := range []Node{p.info, p.root} {
		list, ok := d.dictList("collections")
		if !ok {
			continue
		}
		for _, n := range list {
			s, ok := n.Str()
			if !ok || s == "" || seen[s] {
				continue
			}
			seen[s] = true
			p.m.collections = append(p.m.collections, s)
		}
	}
}

func (p *parser) parseSimilar() {
	seen := make(map[metainfo.Hash]bool)
	for _, d := range []Node{p.info, p.root} {
		list, ok := d.dictList("similar")
		if !ok {
			continue
		}
		for _, n := range list {
			s, ok := n.Str()
			if !ok || len(s) != HashSize {
				p.warn("skipping malformed similar torrent entry")
				continue
			}
			var h metainfo.Hash
			copy(h[:], s)
			if seen[h] {
				continue
			}
			seen[h] = true
			p.m.similar = append(p.m.similar, h)
		}
	}
}
