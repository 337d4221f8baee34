package api

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Comparador/internal/store"
)

// memStore is an in-memory store.Store that follows the Postgres store's
// locking and ownership rules closely enough for handler tests.
type memStore struct {
	mu sync.Mutex

	versions        map[uuid.UUID]*store.TemplateVersion
	classifications map[uuid.UUID]*store.Classification
	criteria        map[uuid.UUID]*store.Criterion
	factors         map[uuid.UUID]*store.Factor
	projects        map[uuid.UUID]*store.Project
	lots            map[uuid.UUID]*store.Lot
	evaluations     map[[2]uuid.UUID]*store.Evaluation
}

func newMemStore() *memStore {
	return &memStore{
		versions:        make(map[uuid.UUID]*store.TemplateVersion),
		classifications: make(map[uuid.UUID]*store.Classification),
		criteria:        make(map[uuid.UUID]*store.Criterion),
		factors:         make(map[uuid.UUID]*store.Factor),
		projects:        make(map[uuid.UUID]*store.Project),
		lots:            make(map[uuid.UUID]*store.Lot),
		evaluations:     make(map[[2]uuid.UUID]*store.Evaluation),
	}
}

func byOrder[T any](items []T, order func(T) int) {
	slices.SortStableFunc(items, func(a, b T) int { return cmp.Compare(order(a), order(b)) })
}

// --- Template versions ---

func (m *memStore) ListVersions(_ context.Context) ([]*store.TemplateVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.TemplateVersion
	for _, v := range m.versions {
		cp := *v
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *store.TemplateVersion) int { return cmp.Compare(b.Version, a.Version) })
	return out, nil
}

func (m *memStore) GetVersion(_ context.Context, id uuid.UUID) (*store.TemplateVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[id]
	if !ok {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

func (m *memStore) GetActiveVersion(_ context.Context) (*store.TemplateVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.versions {
		if v.Active {
			cp := *v
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) CreateVersion(_ context.Context, v *store.TemplateVersion, fromVersionID *uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fromVersionID != nil {
		if _, ok := m.versions[*fromVersionID]; !ok {
			return store.ErrNotFound
		}
	}
	v.ID = uuid.New()
	v.Version = len(m.versions) + 1
	v.Active = len(m.versions) == 0
	v.CreatedAt = time.Now()
	cp := *v
	m.versions[v.ID] = &cp

	if fromVersionID == nil {
		return nil
	}
	for _, c := range m.classifications {
		if c.TemplateVersionID != *fromVersionID {
			continue
		}
		nc := *c
		nc.ID, nc.TemplateVersionID, nc.Criteria = uuid.New(), v.ID, nil
		m.classifications[nc.ID] = &nc
		for _, cr := range m.criteria {
			if cr.ClassificationID != c.ID {
				continue
			}
			ncr := *cr
			ncr.ID, ncr.ClassificationID, ncr.Factors = uuid.New(), nc.ID, nil
			m.criteria[ncr.ID] = &ncr
			for _, f := range m.factors {
				if f.CriterionID != cr.ID {
					continue
				}
				nf := *f
				nf.ID, nf.CriterionID = uuid.New(), ncr.ID
				m.factors[nf.ID] = &nf
			}
		}
	}
	return nil
}

func (m *memStore) ActivateVersion(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.versions[id]; !ok {
		return store.ErrNotFound
	}
	for vid, v := range m.versions {
		v.Active = vid == id
	}
	return nil
}

func (m *memStore) DeleteVersion(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.versions[id]; !ok {
		return store.ErrNotFound
	}
	if m.inUse(id) {
		return store.ErrVersionInUse
	}
	delete(m.versions, id)
	return nil
}

func (m *memStore) inUse(versionID uuid.UUID) bool {
	for _, p := range m.projects {
		if p.TemplateVersionID == versionID {
			return true
		}
	}
	return false
}

func (m *memStore) GetTemplateTree(_ context.Context, versionID uuid.UUID) (*store.TemplateTree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tree(versionID), nil
}

func (m *memStore) tree(versionID uuid.UUID) *store.TemplateTree {
	v, ok := m.versions[versionID]
	if !ok {
		return nil
	}
	t := &store.TemplateTree{Version: *v, Classifications: []store.Classification{}}
	for _, c := range m.classifications {
		if c.TemplateVersionID != versionID {
			continue
		}
		nc := *c
		nc.Criteria = []store.Criterion{}
		for _, cr := range m.criteria {
			if cr.ClassificationID != c.ID {
				continue
			}
			ncr := *cr
			ncr.Factors = []store.Factor{}
			for _, f := range m.factors {
				if f.CriterionID == cr.ID {
					ncr.Factors = append(ncr.Factors, *f)
				}
			}
			byOrder(ncr.Factors, func(f store.Factor) int { return f.Order })
			nc.Criteria = append(nc.Criteria, ncr)
		}
		byOrder(nc.Criteria, func(c store.Criterion) int { return c.Order })
		t.Classifications = append(t.Classifications, nc)
	}
	byOrder(t.Classifications, func(c store.Classification) int { return c.Order })
	return t
}

// --- Rubric nodes ---

func (m *memStore) versionOfClassification(id uuid.UUID) (uuid.UUID, bool) {
	c, ok := m.classifications[id]
	if !ok {
		return uuid.Nil, false
	}
	return c.TemplateVersionID, true
}

func (m *memStore) versionOfCriterion(id uuid.UUID) (uuid.UUID, bool) {
	c, ok := m.criteria[id]
	if !ok {
		return uuid.Nil, false
	}
	return m.versionOfClassification(c.ClassificationID)
}

func (m *memStore) versionOfFactor(id uuid.UUID) (uuid.UUID, bool) {
	f, ok := m.factors[id]
	if !ok {
		return uuid.Nil, false
	}
	return m.versionOfCriterion(f.CriterionID)
}

// editable resolves a node's version and rejects edits to versions in use.
func (m *memStore) editable(versionID uuid.UUID, found bool) error {
	if !found {
		return store.ErrNotFound
	}
	if _, ok := m.versions[versionID]; !ok {
		return store.ErrNotFound
	}
	if m.inUse(versionID) {
		return store.ErrVersionLocked
	}
	return nil
}

func (m *memStore) CreateClassification(_ context.Context, c *store.Classification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.versions[c.TemplateVersionID]
	if err := m.editable(c.TemplateVersionID, ok); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}
	n := 0
	for _, x := range m.classifications {
		if x.TemplateVersionID == c.TemplateVersionID {
			n = max(n, x.Order)
		}
	}
	c.ID, c.Order, c.CreatedAt = uuid.New(), n+1, time.Now()
	cp := *c
	m.classifications[c.ID] = &cp
	return nil
}

func (m *memStore) UpdateClassification(_ context.Context, c *store.Classification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.editable(m.versionOfClassification(c.ID)); err != nil {
		return err
	}
	cur := m.classifications[c.ID]
	cur.Name, cur.Description = c.Name, c.Description
	*c = *cur
	return nil
}

func (m *memStore) DeleteClassification(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.editable(m.versionOfClassification(id)); err != nil {
		return err
	}
	for cid, cr := range m.criteria {
		if cr.ClassificationID == id {
			m.deleteCriterion(cid)
		}
	}
	delete(m.classifications, id)
	return nil
}

func (m *memStore) CreateCriterion(_ context.Context, c *store.Criterion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.editable(m.versionOfClassification(c.ClassificationID)); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}
	n := 0
	for _, x := range m.criteria {
		if x.ClassificationID == c.ClassificationID {
			n = max(n, x.Order)
		}
	}
	c.ID, c.Order, c.CreatedAt = uuid.New(), n+1, time.Now()
	cp := *c
	m.criteria[c.ID] = &cp
	return nil
}

func (m *memStore) UpdateCriterion(_ context.Context, c *store.Criterion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.editable(m.versionOfCriterion(c.ID)); err != nil {
		return err
	}
	cur := m.criteria[c.ID]
	cur.Name, cur.Description, cur.MaxScore = c.Name, c.Description, c.MaxScore
	*c = *cur
	return nil
}

func (m *memStore) DeleteCriterion(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.editable(m.versionOfCriterion(id)); err != nil {
		return err
	}
	m.deleteCriterion(id)
	return nil
}

func (m *memStore) deleteCriterion(id uuid.UUID) {
	for fid, f := range m.factors {
		if f.CriterionID == id {
			delete(m.factors, fid)
		}
	}
	delete(m.criteria, id)
}

func (m *memStore) CreateFactor(_ context.Context, f *store.Factor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.editable(m.versionOfCriterion(f.CriterionID)); err != nil {
		return err
	}
	if err := f.Validate(); err != nil {
		return err
	}
	n := 0
	for _, x := range m.factors {
		if x.CriterionID == f.CriterionID {
			n = max(n, x.Order)
		}
	}
	f.ID, f.Order, f.CreatedAt = uuid.New(), n+1, time.Now()
	cp := *f
	m.factors[f.ID] = &cp
	return nil
}

func (m *memStore) UpdateFactor(_ context.Context, f *store.Factor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.editable(m.versionOfFactor(f.ID)); err != nil {
		return err
	}
	cur := m.factors[f.ID]
	cur.Name, cur.Description, cur.Value = f.Name, f.Description, f.Value
	*f = *cur
	return nil
}

func (m *memStore) DeleteFactor(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.editable(m.versionOfFactor(id)); err != nil {
		return err
	}
	delete(m.factors, id)
	return nil
}

func (m *memStore) ApplyReorder(_ context.Context, versionID uuid.UUID, cmd store.ReorderCommand) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.versions[versionID]
	if err := m.editable(versionID, ok); err != nil {
		return err
	}
	next, err := cmd.Apply(m.tree(versionID))
	if err != nil {
		return err
	}
	for _, c := range next.Classifications {
		m.classifications[c.ID].Order = c.Order
		for _, cr := range c.Criteria {
			m.criteria[cr.ID].Order = cr.Order
			for _, f := range cr.Factors {
				m.factors[f.ID].Order = f.Order
			}
		}
	}
	return nil
}

// --- Projects ---

func (m *memStore) CreateProject(_ context.Context, p *store.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.TemplateVersionID == uuid.Nil {
		for _, v := range m.versions {
			if v.Active {
				p.TemplateVersionID = v.ID
			}
		}
	}
	if _, ok := m.versions[p.TemplateVersionID]; !ok {
		return store.ErrNotFound
	}
	if p.Status == "" {
		p.Status = store.ProjectActive
	}
	if err := p.Validate(); err != nil {
		return err
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.projects[p.ID] = &cp
	return nil
}

func (m *memStore) GetProject(_ context.Context, id uuid.UUID) (*store.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) ListProjects(_ context.Context, filter store.ProjectFilter) ([]*store.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Project
	for _, p := range m.projects {
		if filter.ClientID != nil && p.ClientID != *filter.ClientID {
			continue
		}
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) UpdateProject(_ context.Context, p *store.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.projects[p.ID]
	if !ok {
		return store.ErrNotFound
	}
	cur.Name, cur.Description, cur.Status = p.Name, p.Description, p.Status
	cur.UpdatedAt = time.Now()
	p.UpdatedAt = cur.UpdatedAt
	return nil
}

func (m *memStore) DeleteProject(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[id]; !ok {
		return store.ErrNotFound
	}
	for lid, l := range m.lots {
		if l.ProjectID == id {
			m.deleteLot(lid)
		}
	}
	delete(m.projects, id)
	return nil
}

func (m *memStore) open(projectID uuid.UUID) error {
	p, ok := m.projects[projectID]
	if !ok {
		return store.ErrNotFound
	}
	if p.Status == store.ProjectFinalized {
		return store.ErrProjectFinalized
	}
	return nil
}

// --- Lots ---

func (m *memStore) CreateLot(_ context.Context, l *store.Lot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.open(l.ProjectID); err != nil {
		return err
	}
	if err := l.Validate(); err != nil {
		return err
	}
	n := 0
	for _, x := range m.lots {
		if x.ProjectID == l.ProjectID {
			n = max(n, x.Order)
		}
	}
	l.ID, l.Order, l.CreatedAt = uuid.New(), n+1, time.Now()
	cp := *l
	m.lots[l.ID] = &cp
	return nil
}

func (m *memStore) GetLot(_ context.Context, id uuid.UUID) (*store.Lot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lots[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (m *memStore) ListLots(_ context.Context, projectID uuid.UUID) ([]store.Lot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLots(projectID), nil
}

func (m *memStore) listLots(projectID uuid.UUID) []store.Lot {
	var out []store.Lot
	for _, l := range m.lots {
		if l.ProjectID == projectID {
			out = append(out, *l)
		}
	}
	byOrder(out, func(l store.Lot) int { return l.Order })
	return out
}

func (m *memStore) UpdateLot(_ context.Context, l *store.Lot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.open(l.ProjectID); err != nil {
		return err
	}
	cur, ok := m.lots[l.ID]
	if !ok || cur.ProjectID != l.ProjectID {
		return store.ErrNotFound
	}
	cur.Name, cur.Location, cur.Description = l.Name, l.Location, l.Description
	return nil
}

func (m *memStore) DeleteLot(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lots[id]
	if !ok {
		return store.ErrNotFound
	}
	if err := m.open(l.ProjectID); err != nil {
		return err
	}
	m.deleteLot(id)
	return nil
}

func (m *memStore) deleteLot(id uuid.UUID) {
	for k := range m.evaluations {
		if k[0] == id {
			delete(m.evaluations, k)
		}
	}
	delete(m.lots, id)
}

func (m *memStore) ReorderLots(_ context.Context, projectID uuid.UUID, orderedIDs []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.open(projectID); err != nil {
		return err
	}
	lots := m.listLots(projectID)
	if len(lots) != len(orderedIDs) {
		return store.ErrInvalidReorder
	}
	seen := make(map[uuid.UUID]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		l, ok := m.lots[id]
		if !ok || l.ProjectID != projectID || seen[id] {
			return store.ErrInvalidReorder
		}
		seen[id] = true
	}
	for i, id := range orderedIDs {
		m.lots[id].Order = i + 1
	}
	return nil
}

// --- Evaluations ---

func (m *memStore) UpsertEvaluation(_ context.Context, lotID, factorID uuid.UUID) (*store.Evaluation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lots[lotID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if err := m.open(l.ProjectID); err != nil {
		return nil, err
	}
	f, ok := m.factors[factorID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if v, _ := m.versionOfFactor(factorID); v != m.projects[l.ProjectID].TemplateVersionID {
		return nil, store.ErrFactorNotInTemplate
	}

	key := [2]uuid.UUID{lotID, f.CriterionID}
	ev, ok := m.evaluations[key]
	if !ok {
		ev = &store.Evaluation{ID: uuid.New(), LotID: lotID, CriterionID: f.CriterionID}
		m.evaluations[key] = ev
	}
	ev.FactorID = factorID
	ev.UpdatedAt = time.Now()
	cp := *ev
	return &cp, nil
}

func (m *memStore) ListEvaluations(_ context.Context, projectID uuid.UUID) ([]store.Evaluation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Evaluation
	for _, ev := range m.evaluations {
		if l, ok := m.lots[ev.LotID]; ok && l.ProjectID == projectID {
			out = append(out, *ev)
		}
	}
	return out, nil
}

func (m *memStore) Close() error { return nil }
