// Package params parses reference strings and resolves node input
// parameters against the state of a running execution.
package params

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/errs"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
)

// Kind names the source a reference points at.
type Kind string

const (
	KindStatic     Kind = "static"
	KindTrigger    Kind = "trigger"
	KindNode       Kind = "node"
	KindValue      Kind = "value"
	KindCredential Kind = "credential"
	KindDatabase   Kind = "database"
	KindFile       Kind = "file"
)

func (k Kind) Valid() bool {
	switch k {
	case KindStatic, KindTrigger, KindNode, KindValue, KindCredential, KindDatabase, KindFile:
		return true
	}
	return false
}

// External reports whether references of this kind are served by a Store.
func (k Kind) External() bool {
	switch k {
	case KindValue, KindCredential, KindDatabase, KindFile:
		return true
	}
	return false
}

const (
	refOpen  = "${"
	refClose = "}"
)

// Reference is a parsed ${kind:locator} string.
type Reference struct {
	Raw     string
	Kind    Kind
	Locator string

	// NodeID is set for node references, ID for credential and database ones.
	NodeID uuid.UUID
	ID     uuid.UUID
	// Field selects one field of a credential.
	Field string
	// Path addresses into node output or trigger data.
	Path Path
}

func (r Reference) String() string {
	return r.Raw
}

// IsReference reports whether s uses reference syntax. It does not validate it.
func IsReference(s string) bool {
	return strings.HasPrefix(s, refOpen)
}

// Parse parses a complete reference string.
func Parse(s string) (Reference, error) {
	p := &parser{src: s}
	ref, err := p.reference()
	if err != nil {
		return Reference{}, errs.New("params.Parse", errs.ErrInvalidReference, "%q: %s", s, err.Error())
	}
	return ref, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) eof() bool {
	return p.pos >= len(p.src)
}

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) expect(lit string) error {
	if !strings.HasPrefix(p.src[p.pos:], lit) {
		return fmt.Errorf("expected %q at offset %d", lit, p.pos)
	}
	p.pos += len(lit)
	return nil
}

// reference := "${" kind ":" locator "}"
func (p *parser) reference() (Reference, error) {
	if err := p.expect(refOpen); err != nil {
		return Reference{}, err
	}
	if !strings.HasSuffix(p.src, refClose) || len(p.src) < len(refOpen)+len(refClose) {
		return Reference{}, fmt.Errorf("missing closing %q", refClose)
	}

	kind := Kind(p.word())
	if !kind.Valid() {
		return Reference{}, fmt.Errorf("unknown kind %q", kind)
	}
	if err := p.expect(":"); err != nil {
		return Reference{}, err
	}

	body := p.src[p.pos : len(p.src)-len(refClose)]
	if body == "" {
		return Reference{}, fmt.Errorf("empty locator")
	}
	if strings.ContainsAny(body, "${}") && kind != KindStatic {
		return Reference{}, fmt.Errorf("nested reference in locator")
	}

	ref := Reference{Raw: p.src, Kind: kind, Locator: body}
	loc := &parser{src: body}

	var err error
	switch kind {
	case KindStatic:
		if strings.Contains(body, refClose) {
			err = fmt.Errorf("unbalanced %q in static locator", refClose)
		}
	case KindTrigger:
		ref.Path, err = loc.path()
	case KindNode:
		ref.NodeID, err = loc.uuid()
		if err == nil {
			if err = loc.expect("."); err == nil {
				ref.Path, err = loc.path()
			}
		}
	case KindValue:
		if loc.word() == "" {
			err = fmt.Errorf("invalid variable name")
		}
	case KindCredential:
		ref.ID, err = loc.uuid()
		if err == nil && !loc.eof() {
			if err = loc.expect("."); err == nil {
				if ref.Field = loc.word(); ref.Field == "" {
					err = fmt.Errorf("empty credential field")
				}
			}
		}
	case KindDatabase:
		ref.ID, err = loc.uuid()
	case KindFile:
		if strings.ContainsAny(body, " \t\n") || strings.HasPrefix(body, "/") {
			err = fmt.Errorf("invalid file key")
		}
		loc.pos = len(body)
	}
	if err != nil {
		return Reference{}, err
	}
	if kind != KindStatic && kind != KindFile && !loc.eof() {
		return Reference{}, fmt.Errorf("unexpected %q in locator", loc.src[loc.pos:])
	}
	return ref, nil
}

func isWordByte(c byte) bool {
	return c == '_' || c == '-' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func (p *parser) word() string {
	start := p.pos
	for !p.eof() && isWordByte(p.peek()) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *parser) uuid() (uuid.UUID, error) {
	const n = 36
	if len(p.src)-p.pos < n {
		return uuid.Nil, fmt.Errorf("expected id at offset %d", p.pos)
	}
	id, err := uuid.Parse(p.src[p.pos : p.pos+n])
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id: %w", err)
	}
	p.pos += n
	return id, nil
}

// path := word ( "." word | "[" int "]" )*
func (p *parser) path() (Path, error) {
	first := p.word()
	if first == "" {
		return nil, fmt.Errorf("expected field name at offset %d", p.pos)
	}
	path := Path{{Key: first}}
	for !p.eof() {
		switch p.peek() {
		case '.':
			p.pos++
			w := p.word()
			if w == "" {
				return nil, fmt.Errorf("expected field name at offset %d", p.pos)
			}
			path = append(path, Segment{Key: w})
		case '[':
			p.pos++
			start := p.pos
			for !p.eof() && p.peek() >= '0' && p.peek() <= '9' {
				p.pos++
			}
			idx, err := strconv.Atoi(p.src[start:p.pos])
			if err != nil {
				return nil, fmt.Errorf("expected index at offset %d", start)
			}
			if err := p.expect("]"); err != nil {
				return nil, err
			}
			path = append(path, Segment{Index: idx, IsIndex: true})
		default:
			return path, nil
		}
	}
	return path, nil
}

// Segment is one step of a Path: a map key or a list index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

type Path []Segment

func (p Path) String() string {
	var b strings.Builder
	for i, s := range p {
		if s.IsIndex {
			fmt.Fprintf(&b, "[%d]", s.Index)
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s.Key)
	}
	return b.String()
}

// Lookup walks v along the path.
func (p Path) Lookup(v interface{}) (interface{}, bool) {
	cur := v
	for _, s := range p {
		if s.IsIndex {
			list, ok := asList(cur)
			if !ok || s.Index < 0 || s.Index >= len(list) {
				return nil, false
			}
			cur = list[s.Index]
			continue
		}
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		next, exists := m[s.Key]
		if !exists {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case models.JSON:
		return m, true
	}
	return nil, false
}

func asList(v interface{}) ([]interface{}, bool) {
	switch l := v.(type) {
	case []interface{}:
		return l, true
	case models.JSONArray:
		return l, true
	}
	return nil, false
}
