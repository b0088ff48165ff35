package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/modkit/pkg/cmd"
	"github.com/keshon/modkit/pkg/registrar"
)

// Platform pushes command sets through Discord's bulk overwrite endpoint.
// One call replaces everything registered for a scope.
type Platform struct {
	session *discordgo.Session
	appID   string
}

// NewPlatform returns a registrar.Platform for the application appID. When
// appID is empty the bot user id from the session state is used.
func NewPlatform(s *discordgo.Session, appID string) *Platform {
	return &Platform{session: s, appID: appID}
}

var _ registrar.Platform = (*Platform)(nil)

func (p *Platform) ReplaceCommands(ctx context.Context, scope registrar.Scope, ds []*cmd.Descriptor) error {
	appID := p.appID
	if appID == "" && p.session.State != nil && p.session.State.User != nil {
		appID = p.session.State.User.ID
	}
	if appID == "" {
		return fmt.Errorf("replace commands: application id unknown, session not ready")
	}

	_, err := p.session.ApplicationCommandBulkOverwrite(appID, scope.GuildID, ApplicationCommands(ds), discordgo.WithContext(ctx))
	if err != nil {
		return classify(err)
	}
	return nil
}

// statusError exposes the HTTP status of a failed REST call to the retry loop.
type statusError struct {
	err  error
	code int
}

func (e *statusError) Error() string   { return e.err.Error() }
func (e *statusError) Unwrap() error   { return e.err }
func (e *statusError) StatusCode() int { return e.code }

// rateLimitError carries the back-off Discord asked for.
type rateLimitError struct {
	err   error
	after time.Duration
}

func (e *rateLimitError) Error() string             { return e.err.Error() }
func (e *rateLimitError) Unwrap() error             { return e.err }
func (e *rateLimitError) RetryAfter() time.Duration { return e.after }

// classify wraps discordgo errors so retrylimit can tell rate limits and
// client errors from transient failures.
func classify(err error) error {
	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) && rl.RateLimit != nil && rl.TooManyRequests != nil {
		return &rateLimitError{err: err, after: rl.RetryAfter}
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		return &statusError{err: err, code: rest.Response.StatusCode}
	}
	return err
}
