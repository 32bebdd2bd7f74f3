package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"

	domerrors "github.com/garyellow/menubot-go/internal/errors"
)

// Catalog is a validated, read-only response catalog plus trigger table.
// It is safe for concurrent use.
type Catalog struct {
	responses map[ResponseID]*Response
	// exact holds keys and aliases as authored, for postback payloads.
	exact map[TriggerKey]*Trigger
	// folded holds NormalizeKey of keys and aliases, for free text.
	folded   map[string]*Trigger
	triggers []*Trigger
	order    []ResponseID
	profile  Profile
	version  string
}

// New validates doc and builds a Catalog. Every integrity defect is
// reported, joined into one error; each is an *errors.IntegrityError.
func New(doc *Document) (*Catalog, error) {
	if doc == nil {
		return nil, domerrors.NewIntegrityError(domerrors.KindInvalidShape, "catalog", "", "document is nil")
	}

	c := &Catalog{
		responses: make(map[ResponseID]*Response, len(doc.Responses)),
		exact:     make(map[TriggerKey]*Trigger, len(doc.Triggers)),
		folded:    make(map[string]*Trigger, len(doc.Triggers)),
		profile:   doc.Profile,
	}

	v := &validator{}
	c.indexResponses(doc.Responses, v)
	c.indexTriggers(doc.Triggers, v)
	v.checkReferences(c)

	if err := v.err(); err != nil {
		return nil, err
	}

	sum, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("hash catalog: %w", err)
	}
	h := sha256.Sum256(sum)
	c.version = hex.EncodeToString(h[:6])

	return c, nil
}

func (c *Catalog) indexResponses(responses []Response, v *validator) {
	for i := range responses {
		r := responses[i].Clone()
		subject := fmt.Sprintf("response[%d]", i)
		if r.ID == "" {
			v.add(domerrors.KindInvalidShape, subject, "", "id is required")
			continue
		}
		subject = fmt.Sprintf("response %q", r.ID)
		if _, dup := c.responses[r.ID]; dup {
			v.add(domerrors.KindDuplicateKey, subject, "", "response id defined more than once")
			continue
		}
		v.checkResponse(subject, r)
		c.responses[r.ID] = r
		c.order = append(c.order, r.ID)
	}
}

func (c *Catalog) indexTriggers(triggers []Trigger, v *validator) {
	for i := range triggers {
		t := triggers[i]
		t.Aliases = slices.Clone(t.Aliases)
		t.Responses = slices.Clone(t.Responses)
		if t.Capture != nil {
			cp := *t.Capture
			t.Capture = &cp
		}

		if t.Key == "" {
			v.add(domerrors.KindInvalidShape, fmt.Sprintf("trigger[%d]", i), "", "key is required")
			continue
		}
		subject := fmt.Sprintf("trigger %q", t.Key)
		if len(t.Responses) == 0 {
			v.add(domerrors.KindInvalidShape, subject, "", "responses must not be empty")
		}
		if t.Capture != nil {
			v.checkCapture(subject, t.Capture)
		}

		tp := &t
		for _, name := range append([]string{string(t.Key)}, t.Aliases...) {
			c.register(name, tp, subject, v)
		}
		c.triggers = append(c.triggers, tp)
	}
}

func (c *Catalog) register(name string, t *Trigger, subject string, v *validator) {
	folded := NormalizeKey(name)
	if folded == "" {
		v.add(domerrors.KindInvalidShape, subject, name, "key or alias is blank")
		return
	}
	if prev, dup := c.exact[TriggerKey(name)]; dup {
		v.add(domerrors.KindDuplicateKey, subject, name, fmt.Sprintf("already used by trigger %q", prev.Key))
		return
	}
	if prev, dup := c.folded[folded]; dup && prev != t {
		v.add(domerrors.KindDuplicateKey, subject, name, fmt.Sprintf("folds to %q, already used by trigger %q", folded, prev.Key))
		return
	}
	c.exact[TriggerKey(name)] = t
	c.folded[folded] = t
}

// Resolve returns the response for id.
func (c *Catalog) Resolve(id ResponseID) (*Response, error) {
	r, ok := c.responses[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domerrors.ErrUnknownResponse, id)
	}
	return r, nil
}

// Lookup finds a trigger by exact key or alias, as postback payloads do.
func (c *Catalog) Lookup(key TriggerKey) (*Trigger, bool) {
	t, ok := c.exact[key]
	return t, ok
}

// LookupText finds a trigger for free text using folded comparison.
func (c *Catalog) LookupText(text string) (*Trigger, bool) {
	t, ok := c.folded[NormalizeKey(text)]
	return t, ok
}

// Default returns the fallback trigger.
func (c *Catalog) Default() *Trigger {
	return c.exact[DefaultTrigger]
}

// Triggers returns triggers in authored order.
func (c *Catalog) Triggers() []*Trigger {
	return slices.Clone(c.triggers)
}

// Responses returns response ids in authored order.
func (c *Catalog) Responses() []ResponseID {
	return slices.Clone(c.order)
}

// Profile returns the Messenger profile section.
func (c *Catalog) Profile() Profile {
	p := c.profile
	p.PersistentMenu = slices.Clone(p.PersistentMenu)
	p.WhitelistedDomains = slices.Clone(p.WhitelistedDomains)
	return p
}

// Version is a short content hash, stable for identical documents.
func (c *Catalog) Version() string {
	return c.version
}
