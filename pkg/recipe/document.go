package recipe

// Document is a plain-data snapshot of a recipe for policy and script
// evaluators. It marshals to JSON with the field names below.
type Document struct {
	Name        string             `json:"name"`
	Hash        string             `json:"hash"`
	Valid       bool               `json:"valid"`
	Resolved    bool               `json:"resolved"`
	Views       []ViewDocument     `json:"views"`
	Particles   []ParticleDocument `json:"particles"`
	Slots       []SlotDocument     `json:"slots"`
	Constraints []string           `json:"constraints"`
}

// ViewDocument describes one view.
type ViewDocument struct {
	Index    int      `json:"index"`
	ID       string   `json:"id,omitempty"`
	Fate     string   `json:"fate"`
	Type     string   `json:"type,omitempty"`
	Tags     []string `json:"tags"`
	Resolved bool     `json:"resolved"`
	Readers  int      `json:"readers"`
	Writers  int      `json:"writers"`
}

// ParticleDocument describes one particle and its connections.
type ParticleDocument struct {
	Name        string               `json:"name"`
	Resolved    bool                 `json:"resolved"`
	Connections []ConnectionDocument `json:"connections"`
	Consumes    []ConsumeDocument    `json:"consumes"`
}

// ConnectionDocument describes one connection. View is -1 when unbound.
type ConnectionDocument struct {
	Name      string `json:"name"`
	Direction string `json:"direction"`
	Type      string `json:"type,omitempty"`
	View      int    `json:"view"`
	Optional  bool   `json:"optional"`
	Resolved  bool   `json:"resolved"`
}

// ConsumeDocument describes one slot connection. Slot is -1 when untargeted.
type ConsumeDocument struct {
	Name     string `json:"name"`
	Slot     int    `json:"slot"`
	Resolved bool   `json:"resolved"`
}

// SlotDocument describes one slot.
type SlotDocument struct {
	Index      int    `json:"index"`
	ID         string `json:"id,omitempty"`
	Name       string `json:"name"`
	FormFactor string `json:"form_factor,omitempty"`
	Remote     bool   `json:"remote"`
	Consumers  int    `json:"consumers"`
}

// Document returns the recipe as plain data.
func (r *Recipe) Document() Document {
	d := Document{
		Name:        r.Name(),
		Hash:        r.Hash(),
		Valid:       r.Valid(),
		Resolved:    r.IsResolved(),
		Views:       make([]ViewDocument, 0, len(r.g.views)),
		Particles:   make([]ParticleDocument, 0, len(r.g.particles)),
		Slots:       make([]SlotDocument, 0, len(r.g.slots)),
		Constraints: make([]string, 0, len(r.g.constraints)),
	}

	for _, v := range r.Views() {
		counts := v.DirectionCounts()
		vd := ViewDocument{
			Index:    v.Index(),
			ID:       v.ID(),
			Fate:     string(v.Fate()),
			Tags:     v.Tags(),
			Resolved: v.IsResolved(),
			Readers:  counts.In,
			Writers:  counts.Out,
		}
		if vd.Tags == nil {
			vd.Tags = []string{}
		}
		if t := v.Type(); t != nil {
			vd.Type = t.String()
		}
		d.Views = append(d.Views, vd)
	}

	for _, p := range r.Particles() {
		pd := ParticleDocument{
			Name:        p.Name(),
			Resolved:    p.IsResolved(),
			Connections: []ConnectionDocument{},
			Consumes:    []ConsumeDocument{},
		}
		for _, c := range p.Connections() {
			cd := ConnectionDocument{
				Name:      c.Name(),
				Direction: string(c.Direction()),
				View:      -1,
				Optional:  c.Optional(),
				Resolved:  c.IsResolved(),
			}
			if t := c.Type(); t != nil {
				cd.Type = t.String()
			}
			if v, ok := c.View(); ok {
				cd.View = v.Index()
			}
			pd.Connections = append(pd.Connections, cd)
		}
		for _, sc := range p.SlotConnections() {
			cd := ConsumeDocument{Name: sc.Name(), Slot: -1, Resolved: sc.IsResolved()}
			if s, ok := sc.TargetSlot(); ok {
				cd.Slot = s.Index()
			}
			pd.Consumes = append(pd.Consumes, cd)
		}
		d.Particles = append(d.Particles, pd)
	}

	for _, s := range r.Slots() {
		_, hasSource := s.Source()
		d.Slots = append(d.Slots, SlotDocument{
			Index:      s.Index(),
			ID:         s.ID(),
			Name:       s.Name(),
			FormFactor: s.FormFactor(),
			Remote:     s.ID() != "" && !hasSource,
			Consumers:  len(s.ConsumeConnections()),
		})
	}

	for _, c := range r.Constraints() {
		d.Constraints = append(d.Constraints, c.String())
	}

	return d
}
