package authcore

import (
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/stratushr/authcore/rbac"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = []byte(strings.Repeat("a", 32))
	cfg.JWT.RefreshSecret = []byte(strings.Repeat("r", 32))
	cfg.JWT.ResetSecret = []byte(strings.Repeat("s", 32))
	return cfg
}

func TestConfigValidateAcceptsDefaults(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestConfigValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing issuer", func(c *Config) { c.JWT.Issuer = "" }},
		{"short secret", func(c *Config) { c.JWT.AccessSecret = []byte("short") }},
		{"shared secrets", func(c *Config) { c.JWT.RefreshSecret = append([]byte(nil), c.JWT.AccessSecret...) }},
		{"zero access ttl", func(c *Config) { c.JWT.AccessTTL = 0 }},
		{"access outlives refresh", func(c *Config) { c.JWT.AccessTTL = c.JWT.RefreshTTL }},
		{"excessive leeway", func(c *Config) { c.JWT.Leeway = 5 * time.Minute }},
		{"weak argon memory", func(c *Config) { c.Password.Memory = 1024 }},
		{"zero parallelism", func(c *Config) { c.Password.Parallelism = 0 }},
		{"short salt", func(c *Config) { c.Password.SaltLength = 8 }},
		{"min length below floor", func(c *Config) { c.Password.MinLength = 4 }},
		{"max below min", func(c *Config) { c.Password.MaxLength = 9 }},
		{"empty redis prefix", func(c *Config) { c.Session.RedisPrefix = "" }},
		{"zero admission budget", func(c *Config) { c.Admission.Auth.Max = 0 }},
		{"cap without slot ttl", func(c *Config) { c.Admission.SlotTTL = 0 }},
		{"custom roles without thresholds", func(c *Config) {
			c.RBAC.Roles = []rbac.Role{"junior", "senior"}
			c.RBAC.OrgWideRole = ""
		}},
		{"empty department name", func(c *Config) { c.RBAC.Departments = []string{"engineering", ""} }},
		{"duplicate department", func(c *Config) { c.RBAC.Departments = []string{"engineering", "engineering"} }},
		{"registration without default role", func(c *Config) { c.Account.DefaultRole = "" }},
		{"unknown default department", func(c *Config) {
			c.RBAC.Departments = []string{"engineering"}
			c.Account.DefaultDepartment = "alchemy"
		}},
		{"negative enumeration delay", func(c *Config) { c.Security.EnumerationDelay = -time.Second }},
		{"audit without buffer", func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.BufferSize = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}

func TestCloneConfigIsolatesSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Password.Denylist = []string{"password123"}

	clone := cloneConfig(cfg)
	clone.JWT.AccessSecret[0] = 'z'
	clone.Password.Denylist[0] = "changed"

	if cfg.JWT.AccessSecret[0] == 'z' {
		t.Fatal("clone shares the access secret")
	}
	if cfg.Password.Denylist[0] == "changed" {
		t.Fatal("clone shares the denylist")
	}
}

func TestBuilderRequiresDependencies(t *testing.T) {
	if _, err := New().WithConfig(validConfig()).Build(); err == nil {
		t.Fatal("expected an error without redis and identity store")
	}
}

func TestBuilderRejectsReuse(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	b := New().
		WithConfig(validConfig()).
		WithRedis(client).
		WithIdentityStore(newMemIdentityStore())

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := b.Build(); err == nil {
		t.Fatal("expected an error on builder reuse")
	}
}
