// Package app holds the process-wide clients shared by request handlers.
//
// Every client is built on first use. The database chain and the blob chain
// are cached independently; a failed build is not cached, so the next
// request retries it.
package app

import (
	"context"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/systmms/userprofile/internal/blobstore"
	"github.com/systmms/userprofile/internal/config"
	"github.com/systmms/userprofile/internal/database"
	"github.com/systmms/userprofile/internal/health"
	"github.com/systmms/userprofile/internal/identity"
	"github.com/systmms/userprofile/internal/logging"
	"github.com/systmms/userprofile/internal/metrics"
	"github.com/systmms/userprofile/internal/profiles"
	"github.com/systmms/userprofile/internal/secrets"
)

// ProfileStore is the profile persistence used by handlers.
type ProfileStore interface {
	FetchUserProfile(ctx context.Context, userID string) (*profiles.UserProfile, error)
	UserExists(ctx context.Context, userID string) (bool, error)
	InsertUserProfile(ctx context.Context, p *profiles.UserProfile) error
}

// PhotoStore is the blob access used by handlers.
type PhotoStore interface {
	Upload(ctx context.Context, name string, data []byte, contentType string) error
	Download(ctx context.Context, name string) (*blobstore.Download, error)
	Delete(ctx context.Context, name string) error
	ListBlobNames(ctx context.Context, prefix string) ([]string, error)
	GenerateTemporaryReadURL(ctx context.Context, containerName, name string, expiryMinutes int) (*blobstore.ReadURL, error)
	EnsureContainer(ctx context.Context) error
	Container() string
}

// Services is the explicit process context passed to the server and commands.
type Services struct {
	settings *config.Settings
	logger   *logging.Logger
	secrets  *secrets.Resolver

	dbMu       sync.Mutex
	engine     *database.Engine
	profiles   ProfileStore
	openEngine func(ctx context.Context) (*database.Engine, error)

	blobMu     sync.Mutex
	photos     PhotoStore
	openPhotos func(ctx context.Context) (PhotoStore, error)
}

type options struct {
	logger      *logging.Logger
	credential  azcore.TokenCredential
	vaultClient secrets.KeyVaultClientAPI
	engine      *database.Engine
	profiles    ProfileStore
	photos      PhotoStore
	engineOpts  []database.Option
	blobOpts    []blobstore.Option
}

// Option configures Services.
type Option func(*options)

// WithLogger sets the logger handed to every client.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithCredential replaces the ambient Azure credential.
func WithCredential(cred azcore.TokenCredential) Option {
	return func(o *options) { o.credential = cred }
}

// WithKeyVaultClient replaces the Key Vault client.
func WithKeyVaultClient(client secrets.KeyVaultClientAPI) Option {
	return func(o *options) { o.vaultClient = client }
}

// WithEngine supplies a ready database engine.
func WithEngine(engine *database.Engine) Option {
	return func(o *options) { o.engine = engine }
}

// WithProfileStore supplies the profile store directly.
func WithProfileStore(store ProfileStore) Option {
	return func(o *options) { o.profiles = store }
}

// WithPhotoStore supplies the photo store directly.
func WithPhotoStore(store PhotoStore) Option {
	return func(o *options) { o.photos = store }
}

// WithEngineOptions passes options through to database.InitEngine.
func WithEngineOptions(opts ...database.Option) Option {
	return func(o *options) { o.engineOpts = append(o.engineOpts, opts...) }
}

// WithBlobOptions passes options through to blobstore.Open.
func WithBlobOptions(opts ...blobstore.Option) Option {
	return func(o *options) { o.blobOpts = append(o.blobOpts, opts...) }
}

// New wires the credential provider and secret resolver. No network call is
// made until a client is first requested.
func New(settings *config.Settings, opts ...Option) *Services {
	o := options{logger: logging.New(false)}
	for _, opt := range opts {
		opt(&o)
	}

	metrics.InitMetrics()

	idOpts := []identity.Option{
		identity.WithLogger(o.logger),
		identity.WithManagedIdentityClientID(settings.ManagedIdentityClientID),
	}
	if o.credential != nil {
		idOpts = append(idOpts, identity.WithCredential(o.credential))
	}
	provider := identity.NewProvider(idOpts...)

	secretOpts := []secrets.Option{secrets.WithLogger(o.logger)}
	if o.vaultClient != nil {
		secretOpts = append(secretOpts, secrets.WithClient(o.vaultClient))
	}
	resolver := secrets.NewResolver(settings.KeyVaultURL, provider, secretOpts...)

	s := &Services{
		settings: settings,
		logger:   o.logger,
		secrets:  resolver,
		engine:   o.engine,
		profiles: o.profiles,
		photos:   o.photos,
	}

	engineOpts := append([]database.Option{database.WithLogger(o.logger)}, o.engineOpts...)
	s.openEngine = func(ctx context.Context) (*database.Engine, error) {
		return database.InitEngine(ctx, settings.Database, resolver, provider, engineOpts...)
	}

	blobOpts := append([]blobstore.Option{blobstore.WithLogger(o.logger)}, o.blobOpts...)
	s.openPhotos = func(ctx context.Context) (PhotoStore, error) {
		return blobstore.Open(ctx, settings, resolver, provider, blobOpts...)
	}

	return s
}

// Settings returns the settings the services were built from.
func (s *Services) Settings() *config.Settings {
	return s.settings
}

// Logger returns the shared logger.
func (s *Services) Logger() *logging.Logger {
	return s.logger
}

// Secrets returns the secret resolver.
func (s *Services) Secrets() *secrets.Resolver {
	return s.secrets
}

// Engine returns the pooled database engine, building it on first use.
func (s *Services) Engine(ctx context.Context) (*database.Engine, error) {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()
	return s.engineLocked(ctx)
}

func (s *Services) engineLocked(ctx context.Context) (*database.Engine, error) {
	if s.engine != nil {
		return s.engine, nil
	}
	engine, err := s.openEngine(ctx)
	if err != nil {
		s.logger.Warn("Database initialisation failed: %v", err)
		return nil, err
	}
	s.engine = engine
	return engine, nil
}

// Profiles returns the profile store, building the engine on first use.
func (s *Services) Profiles(ctx context.Context) (ProfileStore, error) {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()

	if s.profiles != nil {
		return s.profiles, nil
	}
	engine, err := s.engineLocked(ctx)
	if err != nil {
		return nil, err
	}
	s.profiles = profiles.NewRepository(engine)
	return s.profiles, nil
}

// Photos returns the photo store, building the blob client on first use.
func (s *Services) Photos(ctx context.Context) (PhotoStore, error) {
	s.blobMu.Lock()
	defer s.blobMu.Unlock()

	if s.photos != nil {
		return s.photos, nil
	}
	store, err := s.openPhotos(ctx)
	if err != nil {
		s.logger.Warn("Blob storage initialisation failed: %v", err)
		return nil, err
	}
	s.photos = store
	return store, nil
}

// CheckDatabase reports database readiness.
func (s *Services) CheckDatabase(ctx context.Context) (health.Result, error) {
	engine, err := s.Engine(ctx)
	if err != nil {
		metrics.RecordReadiness("database", false)
		return health.Result{Healthy: false, Message: err.Error()}, err
	}

	result, err := health.NewSQLChecker("database", health.DefaultSQLConfig(), engine.DB()).Check(ctx)
	metrics.RecordReadiness("database", err == nil && result.Healthy)
	return result, err
}

// Close releases the database pool if one was built.
func (s *Services) Close() error {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()

	if s.engine == nil {
		return nil
	}
	err := s.engine.Close()
	s.engine = nil
	s.profiles = nil
	return err
}
