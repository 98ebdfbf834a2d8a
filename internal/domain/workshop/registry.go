package workshop

import "golang.org/x/crypto/bcrypt"

// unknownName is shown wherever a code no longer resolves.
const unknownName = "Unknown Workshop"

// dummyHash keeps Verify's timing uniform when the code is unknown.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-workshop-password"), bcrypt.MinCost)

// Registry is the immutable set of workshops a deployment serves.
type Registry struct {
	order  []string
	byCode map[string]Workshop
}

// NewRegistry validates the workshops and indexes them by code.
// PRE: workshops come from deploy-time configuration
// POST: Returns a registry preserving the configured order
// INVARIANT: Codes are unique; every entry carries a bcrypt hash
func NewRegistry(workshops []Workshop) (*Registry, error) {
	if len(workshops) < MinWorkshops {
		return nil, ErrTooFewWorkshops
	}
	r := &Registry{
		order:  make([]string, 0, len(workshops)),
		byCode: make(map[string]Workshop, len(workshops)),
	}
	for _, w := range workshops {
		if err := w.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byCode[w.Code]; dup {
			return nil, ErrDuplicateCode
		}
		r.order = append(r.order, w.Code)
		r.byCode[w.Code] = w
	}
	return r, nil
}

// Get returns the workshop for a code.
func (r *Registry) Get(code string) (Workshop, bool) {
	w, ok := r.byCode[code]
	return w, ok
}

// Has reports whether code is a registered workshop.
func (r *Registry) Has(code string) bool {
	_, ok := r.byCode[code]
	return ok
}

// Name returns the display name for code.
func (r *Registry) Name(code string) string {
	if w, ok := r.byCode[code]; ok {
		return w.Name
	}
	return unknownName
}

// Codes returns all workshop codes in configured order.
func (r *Registry) Codes() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns all workshops in configured order.
func (r *Registry) All() []Workshop {
	out := make([]Workshop, 0, len(r.order))
	for _, code := range r.order {
		out = append(out, r.byCode[code])
	}
	return out
}

// Verify checks an operator's credentials for a workshop.
// PRE: none
// POST: Returns the workshop on success; ErrUnknownWorkshop or ErrWrongPassword otherwise
// INVARIANT: An unknown code still costs one bcrypt comparison
func (r *Registry) Verify(code, password string) (Workshop, error) {
	w, ok := r.byCode[code]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return Workshop{}, ErrUnknownWorkshop
	}
	if err := w.CheckPassword(password); err != nil {
		return Workshop{}, err
	}
	return w, nil
}
