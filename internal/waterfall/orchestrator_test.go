package waterfall

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adrata/intel-engine/internal/credit"
	"github.com/adrata/intel-engine/internal/dedup"
	"github.com/adrata/intel-engine/internal/model"
	"github.com/adrata/intel-engine/internal/provider"
)

// memStore is an in-memory credit.Store for tests.
type memStore struct {
	mu       sync.Mutex
	balances map[string]int
}

func newMemStore() *memStore {
	return &memStore{balances: make(map[string]int)}
}

func (m *memStore) key(provider string, kind credit.Kind) string {
	return provider + "/" + string(kind)
}

func (m *memStore) GetBalance(_ context.Context, provider string, kind credit.Kind) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[m.key(provider, kind)], nil
}

func (m *memStore) SetBalance(_ context.Context, provider string, kind credit.Kind, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[m.key(provider, kind)] = n
	return nil
}

func (m *memStore) DecrementBalance(_ context.Context, provider string, kind credit.Kind, n int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(provider, kind)
	if m.balances[k] < n {
		return false, nil
	}
	m.balances[k] -= n
	return true, nil
}

// stubAdapter is a scripted provider for waterfall tests.
type stubAdapter struct {
	name        string
	refs        []model.CandidateRef
	rec         *model.CandidateRecord
	searchErr   error
	collectErr  error
	searchCalls atomic.Int32

	searchEntered chan struct{}
	searchRelease chan struct{}
	enterOnce     sync.Once
}

func (s *stubAdapter) Name() string     { return s.name }
func (s *stubAdapter) SearchCost() int  { return 1 }
func (s *stubAdapter) CollectCost() int { return 2 }

func (s *stubAdapter) Search(ctx context.Context, _ model.IdentityQuery) ([]model.CandidateRef, error) {
	s.searchCalls.Add(1)
	if s.searchEntered != nil {
		s.enterOnce.Do(func() { close(s.searchEntered) })
	}
	if s.searchRelease != nil {
		select {
		case <-s.searchRelease:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.refs, nil
}

func (s *stubAdapter) Collect(_ context.Context, _ model.CandidateRef) (*model.CandidateRecord, error) {
	if s.collectErr != nil {
		return nil, s.collectErr
	}
	return s.rec, nil
}

func testQuery() model.IdentityQuery {
	return model.IdentityQuery{
		Name:          "Jane Doe",
		CompanyName:   "Acme",
		CompanyDomain: "acme.com",
		Email:         "jane.doe@acme.com",
		ProfileURL:    "https://linkedin.com/in/janedoe",
	}
}

func testRef(providerName string) model.CandidateRef {
	return model.CandidateRef{
		Provider:      providerName,
		RefID:         "ref-1",
		Name:          "Jane Doe",
		Title:         "VP Sales",
		CompanyName:   "Acme",
		CompanyDomain: "acme.com",
		ProfileURL:    "https://linkedin.com/in/janedoe",
	}
}

// strongRecord matches the query on profile URL and verified email, scoring
// well above the acceptance threshold.
func strongRecord(providerName string) *model.CandidateRecord {
	return &model.CandidateRecord{
		Provider:      providerName,
		RefID:         "ref-1",
		FullName:      "Jane Doe",
		Title:         "VP Sales",
		CompanyName:   "Acme",
		CompanyDomain: "acme.com",
		ProfileURL:    "https://linkedin.com/in/janedoe",
		Emails: []model.Email{
			{Address: "jane.doe@acme.com", Kind: model.EmailProfessional, Verified: true},
		},
		CollectedAt: time.Now().UTC(),
	}
}

// weakRecord matches on name and company only, scoring below the threshold.
func weakRecord(providerName string) *model.CandidateRecord {
	return &model.CandidateRecord{
		Provider:      providerName,
		RefID:         "ref-1",
		FullName:      "Jane Doe",
		CompanyName:   "Acme",
		CompanyDomain: "acme.com",
		CollectedAt:   time.Now().UTC(),
	}
}

func testOrchestrator(t *testing.T, store credit.Store, names ...string) (*Orchestrator, *provider.Registry) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Providers = nil
	for _, n := range names {
		cfg.Providers = append(cfg.Providers, ProviderConfig{Name: n, SearchCost: 1, CollectCost: 2})
	}
	registry := provider.NewRegistry()
	ledger := credit.NewLedger(store, nil)
	return NewOrchestrator(cfg, registry, ledger, dedup.NewScorer(dedup.DefaultWeights())), registry
}

func TestResolveStopsAtFirstAcceptedProvider(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	require.NoError(t, store.SetBalance(ctx, "alpha", credit.KindSearch, 10))
	require.NoError(t, store.SetBalance(ctx, "alpha", credit.KindCollect, 10))

	alpha := &stubAdapter{name: "alpha", refs: []model.CandidateRef{testRef("alpha")}, rec: strongRecord("alpha")}
	beta := &stubAdapter{name: "beta"}

	o, registry := testOrchestrator(t, store, "alpha", "beta")
	registry.Register(alpha)
	registry.Register(beta)

	contact, err := o.Resolve(ctx, testQuery())
	require.NoError(t, err)

	assert.False(t, contact.LowConfidence)
	assert.GreaterOrEqual(t, contact.Confidence, 0.7)
	assert.Equal(t, []string{"alpha"}, contact.ProvidersTried)
	assert.Equal(t, int32(0), beta.searchCalls.Load(), "later tiers must not run after acceptance")
	assert.Equal(t, 1, contact.SearchCreditsUsed)
	assert.Equal(t, 2, contact.CollectCreditsUsed)
	assert.Equal(t, "Jane Doe", contact.FullName)
	assert.Equal(t, "VP Sales", contact.Title)

	balance, err := store.GetBalance(ctx, "alpha", credit.KindSearch)
	require.NoError(t, err)
	assert.Equal(t, 9, balance)
	balance, err = store.GetBalance(ctx, "alpha", credit.KindCollect)
	require.NoError(t, err)
	assert.Equal(t, 8, balance)
}

func TestResolveFallsThroughToLowConfidence(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	for _, name := range []string{"alpha", "beta"} {
		require.NoError(t, store.SetBalance(ctx, name, credit.KindSearch, 10))
		require.NoError(t, store.SetBalance(ctx, name, credit.KindCollect, 10))
	}

	// alpha finds nothing; beta finds a weak match.
	alpha := &stubAdapter{name: "alpha"}
	beta := &stubAdapter{name: "beta", refs: []model.CandidateRef{testRef("beta")}, rec: weakRecord("beta")}

	o, registry := testOrchestrator(t, store, "alpha", "beta")
	registry.Register(alpha)
	registry.Register(beta)

	contact, err := o.Resolve(ctx, testQuery())
	require.NoError(t, err)

	assert.True(t, contact.LowConfidence)
	assert.Less(t, contact.Confidence, 0.7)
	assert.Greater(t, contact.Confidence, 0.0)
	assert.Equal(t, []string{"alpha", "beta"}, contact.ProvidersTried)
}

func TestResolveExhaustedOnlyWhenEveryProviderFails(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	for _, name := range []string{"alpha", "beta"} {
		require.NoError(t, store.SetBalance(ctx, name, credit.KindSearch, 10))
		require.NoError(t, store.SetBalance(ctx, name, credit.KindCollect, 10))
	}

	boom := eris.New("upstream down")
	alpha := &stubAdapter{name: "alpha", searchErr: boom}
	beta := &stubAdapter{name: "beta", searchErr: boom}

	o, registry := testOrchestrator(t, store, "alpha", "beta")
	registry.Register(alpha)
	registry.Register(beta)

	_, err := o.Resolve(ctx, testQuery())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEnrichmentExhausted)

	// Failed searches must release their holds, not spend them.
	balance, err := store.GetBalance(ctx, "alpha", credit.KindSearch)
	require.NoError(t, err)
	assert.Equal(t, 10, balance)
}

func TestResolveEmptyResultsAreNotExhaustion(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	for _, name := range []string{"alpha", "beta"} {
		require.NoError(t, store.SetBalance(ctx, name, credit.KindSearch, 10))
	}

	alpha := &stubAdapter{name: "alpha"}
	beta := &stubAdapter{name: "beta"}

	o, registry := testOrchestrator(t, store, "alpha", "beta")
	registry.Register(alpha)
	registry.Register(beta)

	contact, err := o.Resolve(ctx, testQuery())
	require.NoError(t, err)

	assert.True(t, contact.LowConfidence)
	assert.Zero(t, contact.Confidence)
	assert.Equal(t, "Jane Doe", contact.FullName, "query fields carry through an empty result")
	assert.Equal(t, []string{"alpha", "beta"}, contact.ProvidersTried)
}

func TestResolveSkipsProviderWithoutCredits(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	// alpha has no search credits at all; beta is funded.
	require.NoError(t, store.SetBalance(ctx, "beta", credit.KindSearch, 10))
	require.NoError(t, store.SetBalance(ctx, "beta", credit.KindCollect, 10))

	alpha := &stubAdapter{name: "alpha", refs: []model.CandidateRef{testRef("alpha")}, rec: strongRecord("alpha")}
	beta := &stubAdapter{name: "beta", refs: []model.CandidateRef{testRef("beta")}, rec: strongRecord("beta")}

	o, registry := testOrchestrator(t, store, "alpha", "beta")
	registry.Register(alpha)
	registry.Register(beta)

	contact, err := o.Resolve(ctx, testQuery())
	require.NoError(t, err)

	assert.Equal(t, int32(0), alpha.searchCalls.Load(), "unfunded provider must not be called")
	assert.False(t, contact.LowConfidence)
	assert.Equal(t, []string{"alpha", "beta"}, contact.ProvidersTried)
}

func TestResolveDeduplicatesInflightQueries(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	require.NoError(t, store.SetBalance(ctx, "alpha", credit.KindSearch, 10))
	require.NoError(t, store.SetBalance(ctx, "alpha", credit.KindCollect, 10))

	alpha := &stubAdapter{
		name:          "alpha",
		refs:          []model.CandidateRef{testRef("alpha")},
		rec:           strongRecord("alpha"),
		searchEntered: make(chan struct{}),
		searchRelease: make(chan struct{}),
	}

	o, registry := testOrchestrator(t, store, "alpha")
	registry.Register(alpha)

	var wg sync.WaitGroup
	results := make([]*model.CanonicalContact, 2)
	errs := make([]error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = o.Resolve(ctx, testQuery())
	}()

	<-alpha.searchEntered
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = o.Resolve(ctx, testQuery())
	}()

	// Let the second call reach the singleflight group before releasing.
	time.Sleep(50 * time.Millisecond)
	close(alpha.searchRelease)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int32(1), alpha.searchCalls.Load(), "concurrent identical queries share one run")
	assert.Equal(t, results[0].ID, results[1].ID)

	balance, err := store.GetBalance(ctx, "alpha", credit.KindSearch)
	require.NoError(t, err)
	assert.Equal(t, 9, balance, "credits spent once for the shared run")
}

func TestResolveRejectsEmptyQuery(t *testing.T) {
	o, _ := testOrchestrator(t, newMemStore(), "alpha")
	_, err := o.Resolve(context.Background(), model.IdentityQuery{})
	require.Error(t, err)
}

func TestResolveCancelledReturnsPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := newMemStore()
	for _, name := range []string{"alpha", "beta"} {
		require.NoError(t, store.SetBalance(ctx, name, credit.KindSearch, 10))
		require.NoError(t, store.SetBalance(ctx, name, credit.KindCollect, 10))
	}

	// alpha yields a weak candidate, then the caller cancels before beta runs.
	alpha := &stubAdapter{name: "alpha", refs: []model.CandidateRef{testRef("alpha")}, rec: weakRecord("alpha")}
	beta := &stubAdapter{
		name:          "beta",
		refs:          []model.CandidateRef{testRef("beta")},
		rec:           strongRecord("beta"),
		searchRelease: make(chan struct{}), // blocks until cancellation
	}

	o, registry := testOrchestrator(t, store, "alpha", "beta")
	registry.Register(alpha)
	registry.Register(beta)

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	contact, err := o.Resolve(ctx, testQuery())
	require.NoError(t, err)
	assert.True(t, contact.LowConfidence)
	assert.Equal(t, "Jane Doe", contact.FullName)
}
