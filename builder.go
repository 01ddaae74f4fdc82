package authcore

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/stratushr/authcore/admission"
	"github.com/stratushr/authcore/internal/stores"
	"github.com/stratushr/authcore/jwt"
	"github.com/stratushr/authcore/password"
	"github.com/stratushr/authcore/rbac"
	"github.com/stratushr/authcore/session"
)

// Builder assembles an [Engine]. A builder is single use; Build returns an
// error on reuse.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	identities IdentityStore
	notifier   Notifier
	auditSink  AuditSink

	built bool
}

// New returns a builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the builder's configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing the registry, the reset store,
// and admission.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithIdentityStore sets the caller's principal backend. Required.
func (b *Builder) WithIdentityStore(store IdentityStore) *Builder {
	b.identities = store
	return b
}

// WithNotifier sets the notification transport. Defaults to [NoOpNotifier].
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink sets the audit destination. Only consulted when audit is
// enabled in the config.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counter set.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles authenticate latency sampling.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, constructs every component, and
// returns a ready engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.identities == nil {
		return nil, errors.New("identity store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// -------- CREDENTIAL CODEC --------
	codec, err := jwt.NewCodec(jwt.Config{
		Issuer:          cfg.JWT.Issuer,
		AccessSecret:    cloneBytes(cfg.JWT.AccessSecret),
		RefreshSecret:   cloneBytes(cfg.JWT.RefreshSecret),
		ResetSecret:     cloneBytes(cfg.JWT.ResetSecret),
		AccessAudience:  cfg.JWT.AccessAudience,
		RefreshAudience: cfg.JWT.RefreshAudience,
		ResetAudience:   cfg.JWT.ResetAudience,
		AccessTTL:       cfg.JWT.AccessTTL,
		RefreshTTL:      cfg.JWT.RefreshTTL,
		ResetTTL:        cfg.JWT.ResetTTL,
		Leeway:          cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	// -------- ROLE HIERARCHY --------
	var hierarchy *rbac.Hierarchy
	if len(cfg.RBAC.Roles) > 0 {
		hierarchy, err = rbac.NewHierarchy(cfg.RBAC.Roles, cfg.RBAC.OrgWideRole, cfg.RBAC.ManagementRole)
		if err != nil {
			return nil, err
		}
	} else {
		hierarchy = rbac.DefaultHierarchy()
	}

	if cfg.Account.Enabled && !hierarchy.Contains(cfg.Account.DefaultRole) {
		return nil, errors.New("Account DefaultRole does not exist in role hierarchy")
	}

	// -------- PASSWORD --------
	hasher, err := password.NewHasher(password.HashConfig{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	policy := password.Policy{
		MinLength:     cfg.Password.MinLength,
		MaxLength:     cfg.Password.MaxLength,
		RequireLetter: cfg.Password.RequireLetter,
		RequireDigit:  cfg.Password.RequireDigit,
		Denylist:      cloneStrings(cfg.Password.Denylist),
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	// -------- ADMISSION --------
	var controller *admission.Controller
	if cfg.Admission.Enabled {
		controller, err = admission.NewController(b.redis, cfg.Session.RedisPrefix, admission.Config{
			General:       cfg.Admission.General,
			Auth:          cfg.Admission.Auth,
			Create:        cfg.Admission.Create,
			Reset:         cfg.Admission.Reset,
			MaxConcurrent: cfg.Admission.MaxConcurrent,
			SlotTTL:       cfg.Admission.SlotTTL,
		})
		if err != nil {
			return nil, err
		}
	}

	notifier := b.notifier
	if notifier == nil {
		notifier = NoOpNotifier{}
	}

	departments := make(map[string]struct{}, len(cfg.RBAC.Departments))
	for _, dept := range cfg.RBAC.Departments {
		departments[dept] = struct{}{}
	}

	engine := &Engine{
		config:      cfg,
		codec:       codec,
		registry:    session.NewStore(b.redis, cfg.Session.RedisPrefix),
		resetStore:  stores.NewResetStore(b.redis, cfg.Session.RedisPrefix),
		admission:   controller,
		hierarchy:   hierarchy,
		hasher:      hasher,
		policy:      policy,
		identities:  b.identities,
		notifier:    notifier,
		audit:       newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:     NewMetrics(cfg.Metrics),
		departments: departments,
	}

	b.built = true

	return engine, nil
}
