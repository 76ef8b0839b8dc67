package service

import (
	"time"

	"github.com/aussiebroadwan/gatekeep/pkg/ratelimit"
)

// LoginBackoff is the wait imposed after each consecutive failed password.
var LoginBackoff = []time.Duration{
	0,
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
	30 * time.Second,
	60 * time.Second,
	180 * time.Second,
	300 * time.Second,
}

// Limits groups the process-wide limiters shared by the services. They are
// keyed by user id unless noted.
type Limits struct {
	Login            *ratelimit.Throttler[string]
	Signup           *ratelimit.ConstantRefillBucket[string] // client IP
	TOTP             *ratelimit.FixedRefillBucket[string]
	Recovery         *ratelimit.FixedRefillBucket[string]
	EmailVerify      *ratelimit.FixedRefillBucket[string]
	SendVerification *ratelimit.FixedRefillBucket[string]
	ResetCreate      *ratelimit.ConstantRefillBucket[string] // normalized email
	ResetVerifyEmail *ratelimit.FixedRefillBucket[string]
}

func NewLimits(opts ...ratelimit.Option) *Limits {
	return &Limits{
		Login:            ratelimit.NewThrottler[string](LoginBackoff, opts...),
		Signup:           ratelimit.NewConstantRefillBucket[string](10, 5*time.Second, opts...),
		TOTP:             ratelimit.NewFixedRefillBucket[string](5, 30*time.Minute, opts...),
		Recovery:         ratelimit.NewFixedRefillBucket[string](5, 60*time.Minute, opts...),
		EmailVerify:      ratelimit.NewFixedRefillBucket[string](5, 30*time.Minute, opts...),
		SendVerification: ratelimit.NewFixedRefillBucket[string](3, 10*time.Minute, opts...),
		ResetCreate:      ratelimit.NewConstantRefillBucket[string](3, 30*time.Second, opts...),
		ResetVerifyEmail: ratelimit.NewFixedRefillBucket[string](5, 30*time.Minute, opts...),
	}
}

// Prune drops entries untouched for maxIdle across every limiter and returns
// how many were removed.
func (l *Limits) Prune(maxIdle time.Duration) int {
	return l.Login.Prune(maxIdle) +
		l.Signup.Prune(maxIdle) +
		l.TOTP.Prune(maxIdle) +
		l.Recovery.Prune(maxIdle) +
		l.EmailVerify.Prune(maxIdle) +
		l.SendVerification.Prune(maxIdle) +
		l.ResetCreate.Prune(maxIdle) +
		l.ResetVerifyEmail.Prune(maxIdle)
}
