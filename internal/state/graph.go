// Package state defines the immutable scenario state graph: typed entities,
// their properties, and weighted relationships between them. A Graph is one
// snapshot of a simulated world. Graphs are never mutated after construction;
// successor states are derived through a Draft, which shares unchanged
// entities and relationships with the parent so that branching only allocates
// the delta.
package state

import (
	"fmt"
	"sort"
)

// PropertyKind classifies a property value into one of eight semantic kinds.
// The set is closed: values outside it fail validation.
type PropertyKind string

const (
	KindPhysical   PropertyKind = "physical"
	KindLocation   PropertyKind = "location"
	KindTemporal   PropertyKind = "temporal"
	KindEmotional  PropertyKind = "emotional"
	KindSocial     PropertyKind = "social"
	KindPossessive PropertyKind = "possessive"
	KindCapability PropertyKind = "capability"
	KindStatus     PropertyKind = "status"
)

// propertyKinds is the closed vocabulary of valid kinds.
var propertyKinds = map[PropertyKind]bool{
	KindPhysical:   true,
	KindLocation:   true,
	KindTemporal:   true,
	KindEmotional:  true,
	KindSocial:     true,
	KindPossessive: true,
	KindCapability: true,
	KindStatus:     true,
}

// Valid reports whether k is one of the eight known kinds.
func (k PropertyKind) Valid() bool {
	return propertyKinds[k]
}

// Property is a single typed attribute of an entity.
type Property struct {
	Name  string       `json:"name" yaml:"name"`
	Value string       `json:"value" yaml:"value"`
	Kind  PropertyKind `json:"kind" yaml:"kind"`
}

// Entity is a typed world object with a property map. Entities are immutable
// once inserted into a Graph: a "changed" entity in a successor state is a
// fresh Entity value carrying the same ID.
type Entity struct {
	ID    string
	Type  string
	Props map[string]Property
}

// NewEntity constructs an entity from its properties.
func NewEntity(id, typ string, props ...Property) *Entity {
	e := &Entity{ID: id, Type: typ, Props: make(map[string]Property, len(props))}
	for _, p := range props {
		e.Props[p.Name] = p
	}
	return e
}

// Property returns the named property, if present.
func (e *Entity) Property(name string) (Property, bool) {
	p, ok := e.Props[name]
	return p, ok
}

// WithProperty returns a copy of the entity with the property set or
// replaced. The receiver is not modified.
func (e *Entity) WithProperty(p Property) *Entity {
	next := &Entity{ID: e.ID, Type: e.Type, Props: make(map[string]Property, len(e.Props)+1)}
	for name, existing := range e.Props {
		next.Props[name] = existing
	}
	next.Props[p.Name] = p
	return next
}

// PropertyNames returns the entity's property names in sorted order.
func (e *Entity) PropertyNames() []string {
	names := make([]string, 0, len(e.Props))
	for name := range e.Props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Relationship is an immutable weighted link between two entities.
type Relationship struct {
	Source string  `json:"source" yaml:"source"`
	Target string  `json:"target" yaml:"target"`
	Kind   string  `json:"kind" yaml:"kind"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// Key builds the canonical identity key for a relationship.
func (r Relationship) Key() string {
	return RelationshipKey(r.Source, r.Target, r.Kind)
}

// RelationshipKey builds the canonical map key for a relationship triple.
func RelationshipKey(source, target, kind string) string {
	return source + "->" + target + ":" + kind
}

// Graph is one immutable snapshot of the simulated world, plus the lineage
// metadata the simulation tree needs: depth from the root, cumulative
// confidence, the ordered rule-id path applied from the root, and audit
// annotations recorded by recoverable conditions.
type Graph struct {
	entities  map[string]*Entity
	relations map[string]Relationship

	depth       int
	confidence  float64
	actions     []string
	annotations []string
}

// Entity returns the entity with the given ID, if present.
func (g *Graph) Entity(id string) (*Entity, bool) {
	e, ok := g.entities[id]
	return e, ok
}

// Entities returns all entities sorted by ID.
func (g *Graph) Entities() []*Entity {
	out := make([]*Entity, 0, len(g.entities))
	for _, e := range g.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// EntitiesOfType returns entities with the given type tag, sorted by ID.
func (g *Graph) EntitiesOfType(typ string) []*Entity {
	out := make([]*Entity, 0)
	for _, e := range g.entities {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Relationship returns the relationship for the exact (source, target, kind)
// triple, if present.
func (g *Graph) Relationship(source, target, kind string) (Relationship, bool) {
	r, ok := g.relations[RelationshipKey(source, target, kind)]
	return r, ok
}

// Relationships returns all relationships sorted by canonical key.
func (g *Graph) Relationships() []Relationship {
	out := make([]Relationship, 0, len(g.relations))
	for _, r := range g.relations {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Depth is the distance from the root state.
func (g *Graph) Depth() int { return g.depth }

// Confidence is the cumulative confidence assigned to this state.
func (g *Graph) Confidence() float64 { return g.confidence }

// Actions is the ordered list of rule IDs applied from the root to here.
func (g *Graph) Actions() []string { return g.actions }

// Annotations holds audit notes recorded by recoverable conditions (skipped
// effects, numeric clamping, degraded temporal ordering).
func (g *Graph) Annotations() []string { return g.annotations }

// Complexity is a coarse size measure: entity count plus relationship count.
func (g *Graph) Complexity() int {
	return len(g.entities) + len(g.relations)
}

// WithConfidence returns a copy of the graph carrying the given cumulative
// confidence. The entity and relationship containers are shared, not copied.
func (g *Graph) WithConfidence(confidence float64) *Graph {
	next := *g
	next.confidence = confidence
	return &next
}

// Validate re-checks graph invariants: every relationship endpoint must
// reference an entity present in this graph, weights must stay in [0, 1],
// and property kinds must come from the closed vocabulary. A freshly Built
// graph always passes; Validate exists so callers receiving a graph from
// elsewhere can refuse malformed input before simulation starts.
func (g *Graph) Validate() error {
	var issues []Issue
	for _, e := range g.Entities() {
		for _, name := range e.PropertyNames() {
			if p := e.Props[name]; !p.Kind.Valid() {
				issues = append(issues, Issue{
					EntityID: e.ID,
					Field:    "property:" + name,
					Ref:      string(p.Kind),
					Problem:  ProblemUnknownKind,
				})
			}
		}
	}
	for _, r := range g.Relationships() {
		issues = append(issues, checkRelationship(r, g.entities)...)
	}
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// clone makes a shallow working copy: the index maps are duplicated but the
// *Entity values and Relationship records are shared with the receiver.
func (g *Graph) clone() *Graph {
	next := &Graph{
		entities:    make(map[string]*Entity, len(g.entities)),
		relations:   make(map[string]Relationship, len(g.relations)),
		depth:       g.depth,
		confidence:  g.confidence,
		actions:     g.actions,
		annotations: nil,
	}
	for id, e := range g.entities {
		next.entities[id] = e
	}
	for key, r := range g.relations {
		next.relations[key] = r
	}
	return next
}

// Draft is a mutable working copy of a graph used while applying an
// action-set. Mutations copy-on-write at the entity level; untouched
// entities keep pointing at the parent's values. Seal freezes the draft
// into the successor Graph.
type Draft struct {
	g *Graph
}

// Derive starts a draft for the successor of g.
func (g *Graph) Derive() *Draft {
	return &Draft{g: g.clone()}
}

// SetProperty sets a property on an entity, replacing the entity value with
// a fresh copy. Returns an error if the entity does not exist.
func (d *Draft) SetProperty(entityID string, p Property) error {
	e, ok := d.g.entities[entityID]
	if !ok {
		return fmt.Errorf("entity not found: %s", entityID)
	}
	if !p.Kind.Valid() {
		return fmt.Errorf("unknown property kind %q on %s.%s", p.Kind, entityID, p.Name)
	}
	d.g.entities[entityID] = e.WithProperty(p)
	return nil
}

// AddEntity inserts a new entity. Returns an error if the ID is taken.
func (d *Draft) AddEntity(e *Entity) error {
	if e.ID == "" {
		return fmt.Errorf("entity ID is required")
	}
	if _, exists := d.g.entities[e.ID]; exists {
		return fmt.Errorf("entity already exists: %s", e.ID)
	}
	for _, p := range e.Props {
		if !p.Kind.Valid() {
			return fmt.Errorf("unknown property kind %q on %s.%s", p.Kind, e.ID, p.Name)
		}
	}
	d.g.entities[e.ID] = e
	return nil
}

// RemoveEntity deletes an entity and every relationship incident to it,
// preserving referential integrity. Returns an error if the entity does
// not exist.
func (d *Draft) RemoveEntity(id string) error {
	if _, ok := d.g.entities[id]; !ok {
		return fmt.Errorf("entity not found: %s", id)
	}
	delete(d.g.entities, id)
	for key, r := range d.g.relations {
		if r.Source == id || r.Target == id {
			delete(d.g.relations, key)
		}
	}
	return nil
}

// AddRelationship inserts a relationship. Both endpoints must exist and the
// weight must be in [0, 1].
func (d *Draft) AddRelationship(r Relationship) error {
	if _, ok := d.g.entities[r.Source]; !ok {
		return fmt.Errorf("relationship source not found: %s", r.Source)
	}
	if _, ok := d.g.entities[r.Target]; !ok {
		return fmt.Errorf("relationship target not found: %s", r.Target)
	}
	if r.Weight < 0 || r.Weight > 1 {
		return fmt.Errorf("relationship weight must be in [0, 1], got %f", r.Weight)
	}
	d.g.relations[r.Key()] = r
	return nil
}

// RemoveRelationship deletes the relationship for the exact triple. Returns
// an error if no such relationship exists.
func (d *Draft) RemoveRelationship(source, target, kind string) error {
	key := RelationshipKey(source, target, kind)
	if _, ok := d.g.relations[key]; !ok {
		return fmt.Errorf("relationship not found: %s", key)
	}
	delete(d.g.relations, key)
	return nil
}

// Annotate records an audit note that will be carried by the sealed graph.
func (d *Draft) Annotate(note string) {
	d.g.annotations = append(d.g.annotations, note)
}

// Entity reports the current draft view of an entity.
func (d *Draft) Entity(id string) (*Entity, bool) {
	e, ok := d.g.entities[id]
	return e, ok
}

// Seal freezes the draft into the successor graph: depth advances by one and
// the applied rule IDs are appended to the action path. The draft must not
// be used afterwards.
func (d *Draft) Seal(applied []string) *Graph {
	g := d.g
	d.g = nil
	g.depth++
	actions := make([]string, 0, len(g.actions)+len(applied))
	actions = append(actions, g.actions...)
	actions = append(actions, applied...)
	g.actions = actions
	return g
}
