package authinfra

import (
	"context"

	"github.com/meridianid/authd/pkg/iam/auth"
	"github.com/meridianid/authd/pkg/kernel"
	"github.com/meridianid/authd/pkg/logx"
)

// LogxAuditService implements auth.AuditService using structured logx
// logging. It never returns an error: emission is fire-and-forget, matching
// the contract that audit logging must not affect the outcome of the
// operation it describes.
type LogxAuditService struct{}

func NewLogxAuditService() *LogxAuditService {
	return &LogxAuditService{}
}

// warnEvents are emitted at Warn rather than Info: they represent attack
// signals or failures an operator should notice in a log scrape.
var warnEvents = map[auth.AuditEvent]bool{
	auth.EventLoginFailed:        true,
	auth.EventAccountLocked:      true,
	auth.EventTokenRefreshFailed: true,
	auth.EventTokenReuseDetected: true,
	auth.EventOAuthLoginFailed:   true,
}

func (s *LogxAuditService) Emit(_ context.Context, event auth.AuditEvent, userID kernel.UserID, details map[string]any) {
	fields := logx.Fields{
		"audit_event": string(event),
		"user_id":     userID.String(),
	}
	for k, v := range details {
		fields[k] = v
	}

	entry := logx.WithFields(fields)
	if warnEvents[event] {
		entry.Warn("audit: " + string(event))
		return
	}
	entry.Info("audit: " + string(event))
}
