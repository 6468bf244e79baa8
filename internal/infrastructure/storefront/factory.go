package storefront

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/storesync/backend/internal/domain/integration"
	"go.uber.org/zap"
)

// profileFingerprint identifies the profile fields a client is built from
type profileFingerprint struct {
	baseURL string
	key     string
	secret  string
}

type cachedClient struct {
	fingerprint profileFingerprint
	client      *Client
}

// ClientFactory builds and caches one Client per store. A cached client is
// rebuilt when the store's URL or credentials change.
type ClientFactory struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger

	mu      sync.Mutex
	clients map[uuid.UUID]cachedClient
}

// NewClientFactory creates a new ClientFactory
func NewClientFactory(config Config, httpClient *http.Client, logger *zap.Logger) (*ClientFactory, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClientFactory{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
		clients:    make(map[uuid.UUID]cachedClient),
	}, nil
}

// ClientFor returns the client of the store
func (f *ClientFactory) ClientFor(store *integration.StoreProfile) (integration.StorefrontClient, error) {
	fp := profileFingerprint{baseURL: store.BaseURL, key: store.ConsumerKey, secret: store.ConsumerSecret}

	f.mu.Lock()
	defer f.mu.Unlock()

	if cached, ok := f.clients[store.ID]; ok && cached.fingerprint == fp {
		return cached.client, nil
	}

	client, err := NewClient(store, f.config, f.httpClient, f.logger)
	if err != nil {
		return nil, err
	}
	f.clients[store.ID] = cachedClient{fingerprint: fp, client: client}
	return client, nil
}

// Forget drops the cached client of the store
func (f *ClientFactory) Forget(storeID uuid.UUID) {
	f.mu.Lock()
	delete(f.clients, storeID)
	f.mu.Unlock()
}

var _ integration.StorefrontClientFactory = (*ClientFactory)(nil)
