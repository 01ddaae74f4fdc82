package authcore

import "context"

// Principal is one workforce account as stored by the caller's identity
// backend. PasswordHash is an argon2id PHC string; the engine never sees or
// stores plaintext.
type Principal struct {
	ID           string
	Email        string
	PasswordHash string
	Role         string
	Department   string
	Active       bool
}

// CreatePrincipalInput is the input for [IdentityStore.Create]. The engine
// hashes the password and validates role and department before calling.
type CreatePrincipalInput struct {
	Email        string
	PasswordHash string
	Role         string
	Department   string
}

// IdentityStore is the interface callers implement to integrate authcore
// with their principal database.
//
// Lookup methods return [ErrPrincipalNotFound] (or an error wrapping it)
// for unknown principals. Create returns [ErrDuplicateEmail] when the email
// is taken; the store owns the uniqueness decision, including its
// case-sensitivity.
type IdentityStore interface {
	GetByEmail(ctx context.Context, email string) (Principal, error)
	GetByID(ctx context.Context, principalID string) (Principal, error)
	Create(ctx context.Context, input CreatePrincipalInput) (Principal, error)
	UpdatePasswordHash(ctx context.Context, principalID, newHash string) error
}

// Notifier delivers account notifications. Delivery failures are audited
// and swallowed; no engine operation fails because an email did not send.
type Notifier interface {
	SendPasswordResetNotification(ctx context.Context, email, resetToken string) error
	SendPasswordChangedNotification(ctx context.Context, email string) error
	SendWelcomeNotification(ctx context.Context, email string) error
}

// NoOpNotifier discards every notification.
type NoOpNotifier struct{}

func (NoOpNotifier) SendPasswordResetNotification(context.Context, string, string) error {
	return nil
}
func (NoOpNotifier) SendPasswordChangedNotification(context.Context, string) error { return nil }
func (NoOpNotifier) SendWelcomeNotification(context.Context, string) error         { return nil }

// TokenPair is an access credential and its companion refresh credential.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Identity is the authenticated projection of a principal, decoded from a
// verified access credential. It reflects the principal at issuance time;
// role changes take effect when the credential is next refreshed.
type Identity struct {
	PrincipalID string
	Email       string
	Role        string
}

// RegisterInput is the input for [Engine.Register]. Role and Department
// default per [AccountConfig] when empty.
type RegisterInput struct {
	Email      string
	Password   string
	Role       string
	Department string
}

// RegisterResult is returned by [Engine.Register].
type RegisterResult struct {
	Principal Principal
	Tokens    TokenPair
}
