package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/storesync/backend/internal/domain/catalog"
	"github.com/storesync/backend/internal/domain/integration"
	"github.com/storesync/backend/internal/domain/shared"
)

// ---------------------------------------------------------------------------
// Source catalog
// ---------------------------------------------------------------------------

type memSource struct {
	items map[int64]*catalog.CatalogItem
	order []int64
}

func newMemSource(items ...catalog.CatalogItem) *memSource {
	s := &memSource{items: make(map[int64]*catalog.CatalogItem)}
	for i := range items {
		item := items[i]
		s.items[item.ID] = &item
		s.order = append(s.order, item.ID)
	}
	return s
}

func (s *memSource) ListSyncableItems(ctx context.Context) ([]catalog.CatalogItem, error) {
	out := make([]catalog.CatalogItem, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.items[id])
	}
	return catalog.FilterSyncable(out), nil
}

func (s *memSource) ResolveItemBySku(ctx context.Context, sku string) (*catalog.CatalogItem, bool, error) {
	sku = catalog.NormalizeSKU(sku)
	for _, id := range s.order {
		item := s.items[id]
		if catalog.NormalizeSKU(item.SKU) == sku {
			return item, true, nil
		}
		for _, v := range item.Variations {
			if catalog.NormalizeSKU(v.SKU) == sku {
				return item, true, nil
			}
		}
	}
	return nil, false, nil
}

func (s *memSource) GetItem(ctx context.Context, id int64) (*catalog.CatalogItem, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, catalog.ErrItemNotFound
	}
	cp := *item
	return &cp, nil
}

func simpleItem(id int64, sku, price string) catalog.CatalogItem {
	return catalog.CatalogItem{
		ID:           id,
		SKU:          sku,
		Name:         fmt.Sprintf("Item %d", id),
		Type:         catalog.ItemTypeSimple,
		RegularPrice: price,
		StockStatus:  catalog.StockStatusInStock,
	}
}

func simpleItems(n int) []catalog.CatalogItem {
	items := make([]catalog.CatalogItem, 0, n)
	for i := 1; i <= n; i++ {
		items = append(items, simpleItem(int64(i), fmt.Sprintf("SKU-%03d", i), "10.00"))
	}
	return items
}

func itemIDs(items []catalog.CatalogItem) []int64 {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}

// ---------------------------------------------------------------------------
// Stores
// ---------------------------------------------------------------------------

type memStores struct {
	mu     sync.Mutex
	stores map[uuid.UUID]*integration.StoreProfile
}

func newMemStores(stores ...*integration.StoreProfile) *memStores {
	m := &memStores{stores: make(map[uuid.UUID]*integration.StoreProfile)}
	for _, s := range stores {
		m.stores[s.ID] = s
	}
	return m
}

func newTestStore(name string) *integration.StoreProfile {
	store, err := integration.NewStoreProfile(name, "https://"+name+".example.com", "ck_test", "cs_test")
	if err != nil {
		panic(err)
	}
	return store
}

func (m *memStores) FindByID(ctx context.Context, id uuid.UUID) (*integration.StoreProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stores[id]
	if !ok {
		return nil, integration.ErrStoreNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStores) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]integration.StoreProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]integration.StoreProfile, 0, len(ids))
	for _, id := range ids {
		if s, ok := m.stores[id]; ok {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memStores) FindActive(ctx context.Context) ([]integration.StoreProfile, error) {
	all, _, err := m.FindAll(ctx, shared.DefaultFilter())
	if err != nil {
		return nil, err
	}
	out := make([]integration.StoreProfile, 0, len(all))
	for _, s := range all {
		if s.IsActive() {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStores) FindAll(ctx context.Context, filter shared.Filter) ([]integration.StoreProfile, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]integration.StoreProfile, 0, len(m.stores))
	for _, s := range m.stores {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, int64(len(out)), nil
}

func (m *memStores) Save(ctx context.Context, store *integration.StoreProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *store
	m.stores[store.ID] = &cp
	return nil
}

func (m *memStores) UpdateLastSyncAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stores[id]
	if !ok {
		return integration.ErrStoreNotFound
	}
	s.MarkSynced(at)
	return nil
}

func (m *memStores) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stores, id)
	return nil
}

// ---------------------------------------------------------------------------
// Jobs
// ---------------------------------------------------------------------------

type memJobs struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*integration.BatchJob
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: make(map[uuid.UUID]*integration.BatchJob)}
}

func copyJob(j *integration.BatchJob) *integration.BatchJob {
	cp := *j
	cp.WorkItemIDs = append([]int64(nil), j.WorkItemIDs...)
	cp.DestinationStoreIDs = append([]uuid.UUID(nil), j.DestinationStoreIDs...)
	cp.RecentErrors = append([]integration.JobError{}, j.RecentErrors...)
	return &cp
}

func (m *memJobs) Create(ctx context.Context, job *integration.BatchJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = copyJob(job)
	return nil
}

func (m *memJobs) FindByID(ctx context.Context, id uuid.UUID) (*integration.BatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, integration.ErrJobNotFound
	}
	return copyJob(j), nil
}

func (m *memJobs) FindByStatus(ctx context.Context, status integration.JobStatus) ([]integration.BatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []integration.BatchJob
	for _, j := range m.jobs {
		if j.Status == status {
			out = append(out, *copyJob(j))
		}
	}
	return out, nil
}

func (m *memJobs) SaveProgress(ctx context.Context, job *integration.BatchJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.jobs[job.ID]
	if !ok {
		return integration.ErrJobNotFound
	}
	if stored.FencingToken > job.FencingToken {
		return integration.ErrStaleFencingToken
	}
	if stored.Status != integration.JobStatusProcessing {
		job.Status = stored.Status
		job.StatusReason = stored.StatusReason
		job.CompletedAt = stored.CompletedAt
	}
	m.jobs[job.ID] = copyJob(job)
	return nil
}

func (m *memJobs) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to integration.JobStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.jobs[id]
	if !ok {
		return integration.ErrJobNotFound
	}
	if stored.Status != from {
		return integration.ErrInvalidTransition
	}
	stored.Status = to
	stored.StatusReason = reason
	if to.IsTerminal() && stored.CompletedAt == nil {
		now := time.Now()
		stored.CompletedAt = &now
	}
	return nil
}

func (m *memJobs) FindTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]integration.BatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []integration.BatchJob
	for _, j := range m.jobs {
		if j.IsTerminal() && j.UpdatedAt.Before(cutoff) && len(out) < limit {
			out = append(out, *copyJob(j))
		}
	}
	return out, nil
}

func (m *memJobs) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	return nil
}

func (m *memJobs) set(job *integration.BatchJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = copyJob(job)
}

// ---------------------------------------------------------------------------
// Ledger
// ---------------------------------------------------------------------------

type ledgerKey struct {
	store uuid.UUID
	sku   string
}

type memLedger struct {
	mu      sync.Mutex
	records map[ledgerKey]*integration.SyncRecord
	writes  int
}

func newMemLedger() *memLedger {
	return &memLedger{records: make(map[ledgerKey]*integration.SyncRecord)}
}

func (l *memLedger) Get(ctx context.Context, storeID uuid.UUID, sku string) (*integration.SyncRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.records[ledgerKey{storeID, sku}]
	if !ok {
		return nil, integration.ErrSyncRecordNotFound
	}
	cp := *r
	return &cp, nil
}

func (l *memLedger) ListByStore(ctx context.Context, storeID uuid.UUID, filter integration.LedgerFilter) ([]integration.SyncRecord, int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []integration.SyncRecord
	for k, r := range l.records {
		if k.store != storeID {
			continue
		}
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, int64(len(out)), nil
}

func (l *memLedger) CountByStatus(ctx context.Context, storeID *uuid.UUID) (integration.StatusCounts, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var c integration.StatusCounts
	for k, r := range l.records {
		if storeID != nil && k.store != *storeID {
			continue
		}
		switch r.Status {
		case integration.SyncRecordStatusPending:
			c.Pending++
		case integration.SyncRecordStatusSynced:
			c.Synced++
		case integration.SyncRecordStatusError:
			c.Error++
		}
	}
	return c, nil
}

func (l *memLedger) FailedSourceItems(ctx context.Context, storeIDs []uuid.UUID, itemIDs []int64) ([]int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stores := make(map[uuid.UUID]bool, len(storeIDs))
	for _, id := range storeIDs {
		stores[id] = true
	}
	wanted := make(map[int64]bool, len(itemIDs))
	for _, id := range itemIDs {
		wanted[id] = true
	}
	seen := make(map[int64]bool)
	var out []int64
	for k, r := range l.records {
		if stores[k.store] && wanted[r.SourceItemID] && r.Status == integration.SyncRecordStatusError && !seen[r.SourceItemID] {
			seen[r.SourceItemID] = true
			out = append(out, r.SourceItemID)
		}
	}
	return out, nil
}

func (l *memLedger) Upsert(ctx context.Context, storeID uuid.UUID, sku string, in integration.UpsertInput) (*integration.SyncRecord, error) {
	if err := in.Validate(sku); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writes++
	now := time.Now()
	key := ledgerKey{storeID, sku}
	r, ok := l.records[key]
	if !ok {
		r = &integration.SyncRecord{ID: uuid.New(), StoreID: storeID, SKU: sku, CreatedAt: now}
		l.records[key] = r
	}
	r.SourceItemID = in.SourceItemID
	if in.DestinationID != nil {
		id := *in.DestinationID
		r.DestinationItemID = &id
	}
	r.Status = in.Status
	r.ErrorMessage = in.Error
	r.UpdatedAt = now
	if in.Status == integration.SyncRecordStatusSynced {
		r.LastSyncedAt = &now
	}
	cp := *r
	return &cp, nil
}

// ---------------------------------------------------------------------------
// Storefront
// ---------------------------------------------------------------------------

type fakeStorefront struct {
	mu       sync.Mutex
	nextID   int
	remote   map[string]string
	creates  []string
	updates  []string
	lookups  int
	failSKU  map[string]error
	probeErr error
	// onUpdate runs before every update, e.g. to pause a job mid-slice
	onUpdate func(sku string)
	onCreate func(sku string)

	orders     []integration.RemoteOrder
	ordersErr  error
	ordersFrom time.Time
}

func newFakeStorefront() *fakeStorefront {
	return &fakeStorefront{remote: make(map[string]string), failSKU: make(map[string]error), nextID: 100}
}

func (f *fakeStorefront) FindByNaturalKey(ctx context.Context, sku string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	id, ok := f.remote[sku]
	return id, ok, nil
}

func (f *fakeStorefront) Create(ctx context.Context, item integration.TransferItem) (string, integration.VariationReport, error) {
	if f.onCreate != nil {
		f.onCreate(item.SKU)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failSKU[item.SKU]; ok {
		return "", integration.VariationReport{}, err
	}
	f.nextID++
	id := fmt.Sprintf("%d", f.nextID)
	f.remote[item.SKU] = id
	f.creates = append(f.creates, item.SKU)
	return id, integration.VariationReport{}, nil
}

func (f *fakeStorefront) Update(ctx context.Context, id string, item integration.TransferItem, opts integration.UpdateOptions) error {
	if f.onUpdate != nil {
		f.onUpdate(item.SKU)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failSKU[item.SKU]; ok {
		return err
	}
	if f.remote[item.SKU] != id {
		return &integration.TransportError{Op: "update product", StatusCode: 404, Err: integration.ErrInvalidResponse}
	}
	f.updates = append(f.updates, item.SKU)
	return nil
}

func (f *fakeStorefront) CreateVariation(ctx context.Context, parentID string, v integration.TransferVariation) error {
	return nil
}

func (f *fakeStorefront) Probe(ctx context.Context) error {
	return f.probeErr
}

func (f *fakeStorefront) ListOrdersAfter(ctx context.Context, after time.Time) ([]integration.RemoteOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ordersFrom = after
	if f.ordersErr != nil {
		return nil, f.ordersErr
	}
	var out []integration.RemoteOrder
	for _, o := range f.orders {
		if o.CreatedAt.After(after) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeStorefront) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.creates)
}

func (f *fakeStorefront) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

type fakeFactory struct {
	clients map[uuid.UUID]integration.StorefrontClient
}

func (f *fakeFactory) ClientFor(store *integration.StoreProfile) (integration.StorefrontClient, error) {
	c, ok := f.clients[store.ID]
	if !ok {
		return nil, integration.ErrMissingCredentials
	}
	return c, nil
}

func (f *fakeFactory) Forget(uuid.UUID) {}

// ---------------------------------------------------------------------------
// Lease, scheduler and events
// ---------------------------------------------------------------------------

type memLease struct {
	mu    sync.Mutex
	held  map[uuid.UUID]bool
	token int64
}

func newMemLease() *memLease {
	return &memLease{held: make(map[uuid.UUID]bool)}
}

type memLeaseHandle struct {
	owner *memLease
	jobID uuid.UUID
	token int64
}

func (h *memLeaseHandle) Token() int64 { return h.token }

func (h *memLeaseHandle) Release(ctx context.Context) error {
	h.owner.mu.Lock()
	defer h.owner.mu.Unlock()
	delete(h.owner.held, h.jobID)
	return nil
}

func (l *memLease) Acquire(ctx context.Context, jobID uuid.UUID, ttl time.Duration, after int64) (integration.Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[jobID] {
		return nil, integration.ErrJobLeased
	}
	l.held[jobID] = true
	l.token = max(l.token, after) + 1
	return &memLeaseHandle{owner: l, jobID: jobID, token: l.token}, nil
}

// fixedTokenLease always grants a lease with the same token
type fixedTokenLease int64

func (l fixedTokenLease) Acquire(ctx context.Context, jobID uuid.UUID, ttl time.Duration, after int64) (integration.Lease, error) {
	return l, nil
}

func (l fixedTokenLease) Token() int64 { return int64(l) }

func (l fixedTokenLease) Release(ctx context.Context) error { return nil }

type enqueued struct {
	JobID     uuid.UUID
	NotBefore time.Time
	Priority  int
}

type manualScheduler struct {
	mu    sync.Mutex
	queue []enqueued
}

func (s *manualScheduler) Enqueue(ctx context.Context, jobID uuid.UUID, notBefore time.Time, priority int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, enqueued{JobID: jobID, NotBefore: notBefore, Priority: priority})
	return nil
}

func (s *manualScheduler) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

func (p *recordingPublisher) ofType(eventType string) []shared.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.DomainEvent
	for _, e := range p.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (p *recordingPublisher) count(eventType string) int {
	n := 0
	for _, t := range p.types() {
		if t == eventType {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Sales
// ---------------------------------------------------------------------------

type salesKey struct {
	store  uuid.UUID
	sku    string
	period string
}

type memSales struct {
	mu       sync.Mutex
	records  map[salesKey]*integration.SalesRecord
	receipts map[uuid.UUID]map[string]bool
	applyErr error
}

func newMemSales() *memSales {
	return &memSales{
		records:  make(map[salesKey]*integration.SalesRecord),
		receipts: make(map[uuid.UUID]map[string]bool),
	}
}

func (s *memSales) upsertLocked(record integration.SalesRecord) {
	key := salesKey{record.StoreID, record.SKU, record.PeriodKey}
	existing, ok := s.records[key]
	if !ok {
		cp := record
		s.records[key] = &cp
		return
	}
	existing.Merge(record.Quantity, record.TotalValue, record.SaleDate)
}

func (s *memSales) UpsertAggregate(ctx context.Context, record integration.SalesRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertLocked(record)
	return nil
}

func (s *memSales) UnseenLines(ctx context.Context, storeID uuid.UUID, lineKeys []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []string{}
	listed := make(map[string]bool, len(lineKeys))
	for _, key := range lineKeys {
		if !s.receipts[storeID][key] && !listed[key] {
			listed[key] = true
			out = append(out, key)
		}
	}
	return out, nil
}

// ApplyPull fails on a repeated receipt like the (store_id, line_key)
// primary key does, and then writes nothing.
func (s *memSales) ApplyPull(ctx context.Context, storeID uuid.UUID, lineKeys []string, records []integration.SalesRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applyErr != nil {
		return s.applyErr
	}
	batch := make(map[string]bool, len(lineKeys))
	for _, key := range lineKeys {
		if s.receipts[storeID][key] || batch[key] {
			return fmt.Errorf("duplicate receipt %s", key)
		}
		batch[key] = true
	}
	if s.receipts[storeID] == nil {
		s.receipts[storeID] = make(map[string]bool)
	}
	for key := range batch {
		s.receipts[storeID][key] = true
	}
	for _, r := range records {
		s.upsertLocked(r)
	}
	return nil
}

func (s *memSales) Totals(ctx context.Context, storeID *uuid.UUID) (integration.SalesTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := integration.SalesTotals{TotalValue: decimal.Zero}
	for k, r := range s.records {
		if storeID != nil && k.store != *storeID {
			continue
		}
		t.Quantity += r.Quantity
		t.TotalValue = t.TotalValue.Add(r.TotalValue)
	}
	return t, nil
}

func (s *memSales) TopProducts(ctx context.Context, storeID uuid.UUID, limit int) ([]integration.TopProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bySKU := make(map[string]*integration.TopProduct)
	for k, r := range s.records {
		if k.store != storeID {
			continue
		}
		p, ok := bySKU[r.SKU]
		if !ok {
			p = &integration.TopProduct{SKU: r.SKU, SourceItemID: r.SourceItemID, TotalValue: decimal.Zero}
			bySKU[r.SKU] = p
		}
		p.Quantity += r.Quantity
		p.TotalValue = p.TotalValue.Add(r.TotalValue)
	}
	out := make([]integration.TopProduct, 0, len(bySKU))
	for _, p := range bySKU {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		return out[i].SKU < out[j].SKU
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memSales) FindByStore(ctx context.Context, storeID uuid.UUID, periodKey string) ([]integration.SalesRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []integration.SalesRecord
	for k, r := range s.records {
		if k.store == storeID && (periodKey == "" || k.period == periodKey) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (s *memSales) record(storeID uuid.UUID, sku, period string) *integration.SalesRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[salesKey{storeID, sku, period}]
	if !ok {
		return nil
	}
	cp := *r
	return &cp
}
