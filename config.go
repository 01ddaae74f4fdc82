package authcore

import (
	"errors"
	"time"

	"github.com/stratushr/authcore/admission"
	"github.com/stratushr/authcore/rbac"
)

// Config is the engine's full configuration. Build it from [DefaultConfig],
// override what the deployment needs, and hand it to the [Builder]; it is
// treated as immutable afterwards.
type Config struct {
	JWT       JWTConfig
	Password  PasswordConfig
	Session   SessionConfig
	Admission AdmissionConfig
	RBAC      RBACConfig
	Account   AccountConfig
	Security  SecurityConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds per-class signing secrets, audiences, and lifetimes. The
// three secrets must be distinct; a shared secret would let one credential
// class verify as another.
type JWTConfig struct {
	Issuer string

	AccessSecret  []byte
	RefreshSecret []byte
	ResetSecret   []byte

	// Audiences default to "authcore:access", "authcore:refresh", and
	// "authcore:reset" when empty.
	AccessAudience  string
	RefreshAudience string
	ResetAudience   string

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration
	Leeway     time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id parameters and the strength policy.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// UpgradeOnLogin rehashes a stored password transparently on the next
	// successful login when current parameters are stronger.
	UpgradeOnLogin bool

	MinLength     int
	MaxLength     int
	RequireLetter bool
	RequireDigit  bool
	Denylist      []string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig tunes the revocation registry.
type SessionConfig struct {
	// RedisPrefix namespaces every registry and admission key.
	RedisPrefix string
}

/*
====================================
ADMISSION CONFIG
====================================
*/

// AdmissionConfig tunes the request admission gate. When disabled, every
// admission check admits without touching Redis.
type AdmissionConfig struct {
	Enabled bool

	General admission.Budget
	Auth    admission.Budget
	Create  admission.Budget
	Reset   admission.Budget

	MaxConcurrent int
	SlotTTL       time.Duration
}

/*
====================================
RBAC CONFIG
====================================
*/

// RBACConfig defines the role hierarchy and the department universe. An
// empty Departments slice disables department validation at registration;
// department-scoped policies still apply.
type RBACConfig struct {
	// Roles in ascending privilege order. Empty means [rbac.DefaultHierarchy].
	Roles []rbac.Role
	// OrgWideRole is the threshold at or above which department scoping is
	// bypassed.
	OrgWideRole rbac.Role
	// ManagementRole is the threshold for reaching other principals'
	// records.
	ManagementRole rbac.Role

	Departments []string
}

/*
====================================
ACCOUNT CONFIG
====================================
*/

// AccountConfig tunes registration.
type AccountConfig struct {
	Enabled bool
	// AutoLogin issues a credential pair with the registration result.
	AutoLogin bool
	// DefaultRole is assigned when RegisterInput.Role is empty.
	DefaultRole rbac.Role
	// DefaultDepartment is assigned when RegisterInput.Department is empty.
	DefaultDepartment string
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds cross-cutting hardening knobs.
type SecurityConfig struct {
	// EnumerationDelay pads account-probing paths (failed login, reset
	// request for an unknown email) so their timing matches the real work.
	// Zero disables the padding.
	EnumerationDelay time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig tunes the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull sheds events instead of blocking hot paths on a slow
	// sink. Drops are counted.
	DropIfFull bool
}

// MetricsConfig tunes the in-process counter set.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults. Signing secrets are empty and
// must be supplied; Validate rejects the zero value.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			Issuer:     "authcore",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			ResetTTL:   time.Hour,
			Leeway:     30 * time.Second,
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
			MinLength:      10,
			MaxLength:      512,
			RequireLetter:  true,
			RequireDigit:   true,
		},
		Session: SessionConfig{
			RedisPrefix: "authcore",
		},
		Admission: AdmissionConfig{
			Enabled:       true,
			General:       admission.Budget{Max: 100, Window: time.Minute},
			Auth:          admission.Budget{Max: 10, Window: time.Minute},
			Create:        admission.Budget{Max: 5, Window: time.Hour},
			Reset:         admission.Budget{Max: 3, Window: time.Hour},
			MaxConcurrent: 10,
			SlotTTL:       time.Minute,
		},
		RBAC: RBACConfig{
			OrgWideRole:    rbac.RoleOrgAdmin,
			ManagementRole: rbac.RoleHR,
		},
		Account: AccountConfig{
			Enabled:     true,
			AutoLogin:   false,
			DefaultRole: rbac.RoleEmployee,
		},
		Security: SecurityConfig{
			EnumerationDelay: 100 * time.Millisecond,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	out.JWT.ResetSecret = cloneBytes(cfg.JWT.ResetSecret)
	out.Password.Denylist = cloneStrings(cfg.Password.Denylist)
	out.RBAC.Roles = append([]rbac.Role(nil), cfg.RBAC.Roles...)
	out.RBAC.Departments = cloneStrings(cfg.RBAC.Departments)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func cloneStrings(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return append([]string(nil), s...)
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the whole configuration. The builder calls it before any
// component is constructed; a config that passes here cannot fail component
// constructors.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.Issuer == "" {
		return errors.New("JWT Issuer is required")
	}
	if len(c.JWT.AccessSecret) < 32 || len(c.JWT.RefreshSecret) < 32 || len(c.JWT.ResetSecret) < 32 {
		return errors.New("JWT secrets must each be >= 32 bytes")
	}
	if string(c.JWT.AccessSecret) == string(c.JWT.RefreshSecret) ||
		string(c.JWT.AccessSecret) == string(c.JWT.ResetSecret) ||
		string(c.JWT.RefreshSecret) == string(c.JWT.ResetSecret) {
		return errors.New("JWT secrets must be distinct per credential class")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 || c.JWT.ResetTTL <= 0 {
		return errors.New("JWT TTLs must be > 0")
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return errors.New("JWT AccessTTL must be shorter than RefreshTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be in [0, 2m]")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 8 {
		return errors.New("Password MinLength must be >= 8")
	}
	if c.Password.MaxLength != 0 && c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}

	// Session
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix is required")
	}

	// Admission
	if c.Admission.Enabled {
		for _, b := range []admission.Budget{c.Admission.General, c.Admission.Auth, c.Admission.Create, c.Admission.Reset} {
			if b.Max <= 0 || b.Window <= 0 {
				return errors.New("Admission budgets must have positive max and window")
			}
		}
		if c.Admission.MaxConcurrent < 0 {
			return errors.New("Admission MaxConcurrent must be >= 0")
		}
		if c.Admission.MaxConcurrent > 0 && c.Admission.SlotTTL <= 0 {
			return errors.New("Admission SlotTTL must be > 0 when MaxConcurrent is set")
		}
	}

	// RBAC
	if len(c.RBAC.Roles) > 0 {
		if c.RBAC.OrgWideRole == "" || c.RBAC.ManagementRole == "" {
			return errors.New("RBAC threshold roles are required with a custom hierarchy")
		}
	}
	seen := make(map[string]struct{}, len(c.RBAC.Departments))
	for _, dept := range c.RBAC.Departments {
		if dept == "" {
			return errors.New("RBAC Departments must not contain empty names")
		}
		if _, dup := seen[dept]; dup {
			return errors.New("RBAC Departments must be unique")
		}
		seen[dept] = struct{}{}
	}

	// Account
	if c.Account.Enabled {
		if c.Account.DefaultRole == "" {
			return errors.New("Account DefaultRole is required when registration is enabled")
		}
		if len(c.RBAC.Departments) > 0 && c.Account.DefaultDepartment != "" {
			if _, ok := seen[c.Account.DefaultDepartment]; !ok {
				return errors.New("Account DefaultDepartment must be a configured department")
			}
		}
	}

	// Security
	if c.Security.EnumerationDelay < 0 || c.Security.EnumerationDelay > 2*time.Second {
		return errors.New("Security EnumerationDelay must be in [0, 2s]")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
