// Package ratelimit implements the named sliding-window limiters that guard
// authentication and general API traffic.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Outcome is the typed result of one consumption attempt. Callers switch on it
// instead of inspecting errors: StoreUnavailable means the backing store could
// not answer and the caller decides whether to fail open.
type Outcome int

const (
	Admitted Outcome = iota
	Throttled
	StoreUnavailable
)

func (o Outcome) String() string {
	switch o {
	case Admitted:
		return "admitted"
	case Throttled:
		return "throttled"
	case StoreUnavailable:
		return "store_unavailable"
	default:
		return "unknown"
	}
}

// Policy allows Points consumptions per identity within a rolling Window.
type Policy struct {
	Name   string
	Points int
	Window time.Duration
}

type Result struct {
	Outcome    Outcome
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	Err        error
}

type Limiter interface {
	Consume(ctx context.Context, identity string) Result
	Policy() Policy
}

const (
	NameAuthenticate   = "authenticate"
	NameForgotPassword = "forgotPassword"
	NameResetPassword  = "resetPassword"
	NamePlatform       = "platform"
	NameOpenPlatform   = "openPlatform"
)

var (
	AuthenticatePolicy   = Policy{Name: NameAuthenticate, Points: 8, Window: time.Hour}
	ForgotPasswordPolicy = Policy{Name: NameForgotPassword, Points: 2, Window: time.Hour}
	ResetPasswordPolicy  = Policy{Name: NameResetPassword, Points: 2, Window: time.Hour}
	PlatformPolicy       = Policy{Name: NamePlatform, Points: 16, Window: time.Second}
	OpenPlatformPolicy   = Policy{Name: NameOpenPlatform, Points: 8, Window: time.Second}
)

// RetryMessage renders the client-facing throttle message, rounding the wait
// up to whole minutes.
func RetryMessage(retryAfter time.Duration) string {
	minutes := int(math.Ceil(float64(retryAfter.Milliseconds()) / 60000))
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("Too many requests. Please try again in %d minutes.", minutes)
}

func normalizePolicy(p Policy) Policy {
	if p.Points <= 0 {
		p.Points = 1
	}
	if p.Window <= 0 {
		p.Window = time.Second
	}
	return p
}
