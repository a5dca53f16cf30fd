package templates

import (
	"time"
)

// Option pattern
type Option func(*EmailData)

func WithTime(t time.Time) Option {
	return func(d *EmailData) {
		utc := t.UTC()
		d.TimeAt = utc
		d.Time = utc.Format("02 January 2006, 15:04")
	}
}

func WithVerifyURL(url string) Option { return func(d *EmailData) { d.VerifyURL = url } }

func WithExpiresAt(t time.Time) Option {
	return func(d *EmailData) {
		utc := t.UTC()
		d.ExpiresAt = utc
		d.ExpiresAtText = utc.Format("02 January 2006, 15:04")
	}
}

// NewBaseEmailData fills the common fields, then applies opts.
func NewBaseEmailData(appName, typ, name, email string, opts ...Option) EmailData {
	d := EmailData{
		Name:           name,
		Email:          email,
		RecipientEmail: email,
		Type:           typ,
		AppName:        appName,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

func NewWelcomeData(appName, name, email string, opts ...Option) map[string]any {
	return ToMap(NewBaseEmailData(appName, Welcome, name, email, opts...))
}

func NewVerifyEmailData(appName, name, email, verifyURL string, expiresAt time.Time) map[string]any {
	d := NewBaseEmailData(appName, VerifyEmail, name, email, WithVerifyURL(verifyURL), WithExpiresAt(expiresAt))
	return ToMap(d)
}

func NewPasswordChangedData(appName, name, email string, at time.Time) map[string]any {
	return ToMap(NewBaseEmailData(appName, PasswordChanged, name, email, WithTime(at)))
}
