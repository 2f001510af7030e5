// Package memstore is an in-memory vendor master store with transactional
// staging and failure injection, used to exercise services without Postgres.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

type txKey struct{}

type state struct {
	vendors    map[string]models.VendorRecord
	offerings  map[string]models.Offering
	dependents map[string]models.Dependent
	keys       map[[2]string]models.SourceKey
	executions []models.MergeExecutionRecord
}

func (s state) clone() state {
	out := state{
		vendors:    make(map[string]models.VendorRecord, len(s.vendors)),
		offerings:  make(map[string]models.Offering, len(s.offerings)),
		dependents: make(map[string]models.Dependent, len(s.dependents)),
		keys:       make(map[[2]string]models.SourceKey, len(s.keys)),
		executions: append([]models.MergeExecutionRecord(nil), s.executions...),
	}
	for k, v := range s.vendors {
		out.vendors[k] = v.Clone()
	}
	for k, v := range s.offerings {
		out.offerings[k] = v
	}
	for k, v := range s.dependents {
		out.dependents[k] = v
	}
	for k, v := range s.keys {
		out.keys[k] = v
	}
	return out
}

type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex

	data     state
	failures map[string]error
	locked   map[string]bool
	calls    []string
}

func New() *Store {
	return &Store{
		data: state{
			vendors:    map[string]models.VendorRecord{},
			offerings:  map[string]models.Offering{},
			dependents: map[string]models.Dependent{},
			keys:       map[[2]string]models.SourceKey{},
		},
		failures: map[string]error{},
		locked:   map[string]bool{},
	}
}

// FailOn makes the named method return err until cleared with a nil err
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

// HoldRowLock simulates another transaction holding the vendor row lock
func (s *Store) HoldRowLock(vendorID string, held bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locked[vendorID] = held
}

// Calls lists the mutating and locking calls made so far, in order
func (s *Store) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *Store) enter(ctx context.Context, method string) (func(), error) {
	if ctx.Value(txKey{}) == nil {
		s.txMu.Lock()
		s.mu.Lock()
		unlock := func() { s.mu.Unlock(); s.txMu.Unlock() }
		if err := s.failures[method]; err != nil {
			unlock()
			return nil, err
		}
		s.calls = append(s.calls, method)
		return unlock, nil
	}
	s.mu.Lock()
	if err := s.failures[method]; err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.calls = append(s.calls, method)
	return s.mu.Unlock, nil
}

// InTransaction stages every write made through ctx and discards them all if fn fails
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	if err := s.failures["InTransaction"]; err != nil {
		s.mu.Unlock()
		return err
	}
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["Commit"]; err != nil {
		s.data = snapshot
		return ferrors.Wrap(ferrors.KindStoreFailure, err, "transaction failed")
	}
	return nil
}

// Seed helpers

func (s *Store) PutVendor(v models.VendorRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.Version == 0 {
		v.Version = 1
	}
	if v.Status == "" {
		v.Status = models.VendorStatusActive
	}
	s.data.vendors[v.VendorID] = v.Clone()
}

func (s *Store) PutOffering(o models.Offering) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.Status == "" {
		o.Status = models.OfferingStatusActive
	}
	s.data.offerings[o.ID] = o
}

func (s *Store) PutDependent(d models.Dependent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.dependents[string(d.Kind)+"/"+d.ID] = d
}

func (s *Store) PutSourceKey(k models.SourceKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.keys[[2]string{k.SourceSystem, k.SourceRecordID}] = k
}

// Executions returns every audit row written
func (s *Store) Executions() []models.MergeExecutionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.MergeExecutionRecord(nil), s.data.executions...)
}

// Snapshot returns a deep copy of the whole store for before/after comparisons
func (s *Store) Snapshot() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.data.clone()
	return struct {
		Vendors    map[string]models.VendorRecord
		Offerings  map[string]models.Offering
		Dependents map[string]models.Dependent
		Keys       map[[2]string]models.SourceKey
		Executions []models.MergeExecutionRecord
	}{c.vendors, c.offerings, c.dependents, c.keys, c.executions}
}

// Vendor reads

func (s *Store) GetVendor(ctx context.Context, vendorID string) (models.VendorRecord, error) {
	unlock, err := s.enter(ctx, "GetVendor")
	if err != nil {
		return models.VendorRecord{}, err
	}
	defer unlock()
	return s.getVendor(vendorID)
}

func (s *Store) getVendor(vendorID string) (models.VendorRecord, error) {
	v, ok := s.data.vendors[vendorID]
	if !ok {
		return models.VendorRecord{}, ferrors.Newf(ferrors.KindVendorNotFound, "vendor %s not found", vendorID)
	}
	return v.Clone(), nil
}

func (s *Store) FindBySourceKey(ctx context.Context, sourceSystem, sourceRecordID string) (models.VendorRecord, error) {
	unlock, err := s.enter(ctx, "FindBySourceKey")
	if err != nil {
		return models.VendorRecord{}, err
	}
	defer unlock()
	k, ok := s.data.keys[[2]string{sourceSystem, sourceRecordID}]
	if !ok {
		return models.VendorRecord{}, ferrors.Newf(ferrors.KindVendorNotFound, "no vendor for %s/%s", sourceSystem, sourceRecordID)
	}
	return s.getVendor(k.VendorID)
}

func (s *Store) ListSourceKeys(ctx context.Context, vendorID string) ([]models.SourceKey, error) {
	unlock, err := s.enter(ctx, "ListSourceKeys")
	if err != nil {
		return nil, err
	}
	defer unlock()
	keys := []models.SourceKey{}
	for _, k := range s.data.keys {
		if k.VendorID == vendorID {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].SourceSystem != keys[j].SourceSystem {
			return keys[i].SourceSystem < keys[j].SourceSystem
		}
		return keys[i].SourceRecordID < keys[j].SourceRecordID
	})
	return keys, nil
}

func (s *Store) GetEntityGraph(ctx context.Context, vendorID string) (models.EntityGraph, error) {
	unlock, err := s.enter(ctx, "GetEntityGraph")
	if err != nil {
		return models.EntityGraph{}, err
	}
	defer unlock()

	v, err := s.getVendor(vendorID)
	if err != nil {
		return models.EntityGraph{}, err
	}
	graph := models.EntityGraph{Vendor: v, Offerings: []models.Offering{}, Dependents: []models.Dependent{}}
	for _, o := range s.data.offerings {
		if o.VendorID == vendorID {
			graph.Offerings = append(graph.Offerings, o)
		}
	}
	for _, d := range s.data.dependents {
		if d.VendorID == vendorID {
			graph.Dependents = append(graph.Dependents, d)
		}
	}
	sort.Slice(graph.Offerings, func(i, j int) bool { return graph.Offerings[i].ID < graph.Offerings[j].ID })
	sort.Slice(graph.Dependents, func(i, j int) bool {
		if graph.Dependents[i].Kind != graph.Dependents[j].Kind {
			return graph.Dependents[i].Kind < graph.Dependents[j].Kind
		}
		return graph.Dependents[i].ID < graph.Dependents[j].ID
	})
	return graph, nil
}

// Vendor writes

func (s *Store) InsertVendor(ctx context.Context, record models.VendorRecord) (models.VendorRecord, error) {
	unlock, err := s.enter(ctx, "InsertVendor")
	if err != nil {
		return models.VendorRecord{}, err
	}
	defer unlock()
	if _, ok := s.data.vendors[record.VendorID]; ok {
		return models.VendorRecord{}, ferrors.New(ferrors.KindOptimisticConflict, "vendor already exists")
	}
	record = record.Clone()
	record.Version = 1
	record.CreatedAt = time.Now().UTC()
	record.UpdatedAt = record.CreatedAt
	if record.Status == "" {
		record.Status = models.VendorStatusActive
	}
	s.data.vendors[record.VendorID] = record
	return record.Clone(), nil
}

func (s *Store) UpdateVendor(ctx context.Context, record models.VendorRecord) (models.VendorRecord, error) {
	unlock, err := s.enter(ctx, "UpdateVendor")
	if err != nil {
		return models.VendorRecord{}, err
	}
	defer unlock()
	current, err := s.getVendor(record.VendorID)
	if err != nil {
		return models.VendorRecord{}, err
	}
	if current.Version != record.Version {
		return models.VendorRecord{}, ferrors.Newf(ferrors.KindOptimisticConflict, "vendor %s changed since version %d", record.VendorID, record.Version)
	}
	record = record.Clone()
	record.Version++
	record.CreatedAt = current.CreatedAt
	record.UpdatedAt = time.Now().UTC()
	s.data.vendors[record.VendorID] = record
	return record.Clone(), nil
}

func (s *Store) ArchiveVendor(ctx context.Context, vendorID, mergedInto string, expectedVersion int) error {
	unlock, err := s.enter(ctx, "ArchiveVendor")
	if err != nil {
		return err
	}
	defer unlock()
	v, err := s.getVendor(vendorID)
	if err != nil {
		return err
	}
	if v.Version != expectedVersion || v.IsArchived() {
		return ferrors.Newf(ferrors.KindOptimisticConflict, "vendor %s changed since version %d", vendorID, expectedVersion)
	}
	v.Status = models.VendorStatusArchived
	v.MergedInto = &mergedInto
	v.Version++
	v.UpdatedAt = time.Now().UTC()
	s.data.vendors[vendorID] = v
	return nil
}

func (s *Store) LockVendors(ctx context.Context, vendorIDs []string) error {
	unlock, err := s.enter(ctx, "LockVendors")
	if err != nil {
		return err
	}
	defer unlock()
	ordered := append([]string(nil), vendorIDs...)
	sort.Strings(ordered)
	for _, id := range ordered {
		if _, ok := s.data.vendors[id]; !ok {
			return ferrors.Newf(ferrors.KindVendorNotFound, "vendor %s not found", id)
		}
		if s.locked[id] {
			return ferrors.Newf(ferrors.KindMergeInProgress, "vendor %s is locked by another merge", id)
		}
		s.calls = append(s.calls, "lock:"+id)
	}
	return nil
}

func (s *Store) LinkSourceKey(ctx context.Context, key models.SourceKey) error {
	unlock, err := s.enter(ctx, "LinkSourceKey")
	if err != nil {
		return err
	}
	defer unlock()
	id := [2]string{key.SourceSystem, key.SourceRecordID}
	if _, ok := s.data.keys[id]; ok {
		return ferrors.New(ferrors.KindOptimisticConflict, "source key already linked")
	}
	key.CreatedAt = time.Now().UTC()
	key.UpdatedAt = key.CreatedAt
	s.data.keys[id] = key
	return nil
}

func (s *Store) MoveSourceKeys(ctx context.Context, fromVendorID, toVendorID string) (int, error) {
	unlock, err := s.enter(ctx, "MoveSourceKeys")
	if err != nil {
		return 0, err
	}
	defer unlock()
	moved := 0
	for id, k := range s.data.keys {
		if k.VendorID == fromVendorID {
			k.VendorID = toVendorID
			s.data.keys[id] = k
			moved++
		}
	}
	return moved, nil
}

// Entity graph writes

func (s *Store) MoveOffering(ctx context.Context, offeringID, vendorID, name string) error {
	unlock, err := s.enter(ctx, "MoveOffering")
	if err != nil {
		return err
	}
	defer unlock()
	o, ok := s.data.offerings[offeringID]
	if !ok {
		return ferrors.Newf(ferrors.KindStoreFailure, "failed to move offering %s: no rows updated", offeringID)
	}
	o.VendorID = vendorID
	if name != "" {
		o.Name = name
	}
	s.data.offerings[offeringID] = o
	return nil
}

func (s *Store) ArchiveOffering(ctx context.Context, offeringID, mergedIntoOfferingID, vendorID string) error {
	unlock, err := s.enter(ctx, "ArchiveOffering")
	if err != nil {
		return err
	}
	defer unlock()
	o, ok := s.data.offerings[offeringID]
	if !ok {
		return ferrors.Newf(ferrors.KindStoreFailure, "failed to archive offering %s: no rows updated", offeringID)
	}
	o.VendorID = vendorID
	o.Status = models.OfferingStatusArchived
	o.MergedIntoOfferingID = &mergedIntoOfferingID
	s.data.offerings[offeringID] = o
	return nil
}

func (s *Store) MoveOfferingDependents(ctx context.Context, fromOfferingID, toOfferingID, vendorID string) (map[models.EntityKind]int, error) {
	unlock, err := s.enter(ctx, "MoveOfferingDependents")
	if err != nil {
		return nil, err
	}
	defer unlock()
	moved := map[models.EntityKind]int{}
	for id, d := range s.data.dependents {
		if d.OfferingID != nil && *d.OfferingID == fromOfferingID {
			target := toOfferingID
			d.OfferingID = &target
			d.VendorID = vendorID
			s.data.dependents[id] = d
			moved[d.Kind]++
		}
	}
	return moved, nil
}

func (s *Store) MoveVendorDependents(ctx context.Context, fromVendorID, toVendorID string) (map[models.EntityKind]int, error) {
	unlock, err := s.enter(ctx, "MoveVendorDependents")
	if err != nil {
		return nil, err
	}
	defer unlock()
	moved := map[models.EntityKind]int{}
	for id, o := range s.data.offerings {
		if o.VendorID == fromVendorID {
			o.VendorID = toVendorID
			s.data.offerings[id] = o
			moved[models.EntityKindOffering]++
		}
	}
	for id, d := range s.data.dependents {
		if d.VendorID == fromVendorID {
			d.VendorID = toVendorID
			s.data.dependents[id] = d
			moved[d.Kind]++
		}
	}
	return moved, nil
}

// Audit

func (s *Store) InsertExecution(ctx context.Context, record models.MergeExecutionRecord) error {
	unlock, err := s.enter(ctx, "InsertExecution")
	if err != nil {
		return err
	}
	defer unlock()
	s.data.executions = append(s.data.executions, record)
	return nil
}

func (s *Store) GetExecution(ctx context.Context, id string) (models.MergeExecutionRecord, error) {
	unlock, err := s.enter(ctx, "GetExecution")
	if err != nil {
		return models.MergeExecutionRecord{}, err
	}
	defer unlock()
	for _, e := range s.data.executions {
		if e.ID == id {
			return e, nil
		}
	}
	return models.MergeExecutionRecord{}, ferrors.Newf(ferrors.KindExecutionNotFound, "merge execution %s not found", id)
}

func (s *Store) ListExecutions(ctx context.Context, vendorID string) ([]models.MergeExecutionRecord, error) {
	unlock, err := s.enter(ctx, "ListExecutions")
	if err != nil {
		return nil, err
	}
	defer unlock()
	out := []models.MergeExecutionRecord{}
	for i := len(s.data.executions) - 1; i >= 0; i-- {
		e := s.data.executions[i]
		if e.SurvivorVendorID == vendorID || e.SourceVendorID == vendorID {
			out = append(out, e)
		}
	}
	return out, nil
}
