// Package adapter drives one bot turn end to end: it authenticates the
// inbound request, binds the outbound connector, builds the turn context,
// invokes the bot callback, and reconciles the turn's side effects into a
// protocol-correct response.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"botframe/pkg/activity"
	"botframe/pkg/auth"
	"botframe/pkg/logger"
	"botframe/pkg/telemetry"
	"botframe/pkg/turn"
)

const defaultDelay = 1000 * time.Millisecond

// CloudAdapter processes reactive and proactive turns against the Bot
// Framework protocol.
type CloudAdapter struct {
	auth       *auth.BotFrameworkAuthentication
	log        *slog.Logger
	transcript telemetry.TranscriptLogger
}

// Option configures a CloudAdapter.
type Option func(*CloudAdapter)

// WithLogger sets the adapter's logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *CloudAdapter) {
		if log != nil {
			a.log = log
		}
	}
}

// WithTranscript attaches a transcript sink that receives a copy of every
// inbound and sent activity.
func WithTranscript(transcript telemetry.TranscriptLogger) Option {
	return func(a *CloudAdapter) {
		a.transcript = transcript
	}
}

// NewCloudAdapter builds a turn driver on top of an authentication
// orchestrator.
func NewCloudAdapter(bfAuth *auth.BotFrameworkAuthentication, opts ...Option) (*CloudAdapter, error) {
	if bfAuth == nil {
		return nil, errors.New("authentication orchestrator is required")
	}

	a := &CloudAdapter{auth: bfAuth, log: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With("component", "adapter")

	return a, nil
}

// ProcessActivity runs one reactive turn: authenticate, bind the connector
// and user-token client, invoke the bot, and reconcile the result. The
// returned invoke response is nil for plain activity turns.
func (a *CloudAdapter) ProcessActivity(ctx context.Context, authHeader string, act *activity.Activity, handler turn.Handler) (*activity.InvokeResponse, error) {
	if act == nil {
		return nil, errors.New("activity is required")
	}
	if handler == nil {
		return nil, errors.New("turn handler is required")
	}

	result, err := a.auth.AuthenticateRequest(ctx, act, authHeader)
	if err != nil {
		return nil, err
	}

	connectorClient, err := result.ConnectorFactory.Create(ctx, act.ServiceURL, result.Audience)
	if err != nil {
		return nil, fmt.Errorf("create connector: %w", err)
	}

	userTokens, err := a.auth.CreateUserTokenClient(ctx, result.Identity)
	if err != nil {
		return nil, fmt.Errorf("create user token client: %w", err)
	}

	act.CallerID = result.CallerID

	tctx, err := turn.New(a, act)
	if err != nil {
		return nil, err
	}
	tctx.Identity = result.Identity
	tctx.Connector = connectorClient
	tctx.UserTokens = userTokens
	tctx.ConnectorFactory = result.ConnectorFactory
	tctx.OAuthScope = result.Audience

	a.attachTranscript(ctx, tctx)

	log := logger.Turn(a.log, act)
	log.Debug("Turn started")
	if err := handler(ctx, tctx); err != nil {
		log.Warn("Turn handler failed", "error", err)
		return nil, err
	}
	log.Debug("Turn completed", "responded", tctx.Responded())

	return a.processTurnResults(tctx)
}

// ContinueConversation starts a proactive turn from a stored conversation
// reference, with claims synthesized from a bare application id.
func (a *CloudAdapter) ContinueConversation(ctx context.Context, appID string, ref *activity.ConversationReference, handler turn.Handler) error {
	if ref == nil {
		return errors.New("conversation reference is required")
	}

	identity := auth.NewClaimsIdentity(auth.AuthTypeAnonymous, []auth.Claim{
		{Name: auth.ClaimAudience, Value: appID},
		{Name: auth.ClaimAppID, Value: appID},
	})

	return a.ContinueConversationWithIdentity(ctx, identity, activity.GetContinuationActivity(ref), "", handler)
}

// ContinueConversationWithIdentity starts a proactive turn for an already
// established identity. The continuation activity must carry a conversation
// and a service URL; anything else fails before any network work begins.
func (a *CloudAdapter) ContinueConversationWithIdentity(ctx context.Context, identity *auth.ClaimsIdentity, continuation *activity.Activity, audience string, handler turn.Handler) error {
	if identity == nil {
		return errors.New("claims identity is required")
	}
	if handler == nil {
		return errors.New("turn handler is required")
	}
	if continuation == nil {
		return errors.New("continuation activity is required")
	}
	if continuation.Conversation == nil {
		return errors.New("continuation activity has no conversation")
	}
	if strings.TrimSpace(continuation.ServiceURL) == "" {
		return errors.New("continuation activity has no service URL")
	}

	if audience == "" {
		audience = a.auth.Audience(identity)
	}

	factory := a.auth.ConnectorFactoryForIdentity(identity)
	connectorClient, err := factory.Create(ctx, continuation.ServiceURL, audience)
	if err != nil {
		return fmt.Errorf("create connector: %w", err)
	}

	userTokens, err := a.auth.CreateUserTokenClient(ctx, identity)
	if err != nil {
		return fmt.Errorf("create user token client: %w", err)
	}

	tctx, err := turn.New(a, continuation)
	if err != nil {
		return err
	}
	tctx.Identity = identity
	tctx.Connector = connectorClient
	tctx.UserTokens = userTokens
	tctx.ConnectorFactory = factory
	tctx.OAuthScope = audience

	a.attachTranscript(ctx, tctx)

	return handler(ctx, tctx)
}

// SendActivities delivers a batch of activities in input order, applying the
// per-type send semantics: delays pause the turn, invoke responses are
// captured into the turn, traces are dropped off the emulator channel, and
// expect-replies turns buffer instead of transmitting. Exactly one response
// is produced per input activity.
func (a *CloudAdapter) SendActivities(ctx context.Context, tctx *turn.Context, activities []*activity.Activity) ([]activity.ResourceResponse, error) {
	responses := make([]activity.ResourceResponse, len(activities))

	for i, act := range activities {
		act.ID = ""

		switch {
		case act.Type == activity.TypeDelay:
			if err := sleep(ctx, delayDuration(act.Value)); err != nil {
				return nil, err
			}

		case act.Type == activity.TypeInvokeResponse:
			tctx.SetInvokeResponse(act)

		case act.Type == activity.TypeTrace && tctx.Activity().ChannelID != activity.ChannelEmulator:
			// Traces are turn-local diagnostics; only emulator turns see them.

		case tctx.Activity().DeliveryMode == activity.DeliveryModeExpectReplies:
			tctx.BufferReply(act)
			responses[i] = activity.ResourceResponse{ID: act.ID}

		default:
			resp, err := a.sendOverWire(ctx, tctx, act)
			if err != nil {
				return nil, err
			}
			if resp.ID == "" {
				resp = activity.ResourceResponse{ID: act.ID}
			}
			responses[i] = resp
		}
	}

	return responses, nil
}

// UpdateActivity replaces a previously sent activity through the bound
// connector.
func (a *CloudAdapter) UpdateActivity(ctx context.Context, tctx *turn.Context, act *activity.Activity) (activity.ResourceResponse, error) {
	if tctx.Connector == nil {
		return activity.ResourceResponse{}, errors.New("turn has no connector")
	}

	return tctx.Connector.UpdateActivity(ctx, act)
}

// DeleteActivity deletes a previously sent activity through the bound
// connector.
func (a *CloudAdapter) DeleteActivity(ctx context.Context, tctx *turn.Context, ref *activity.ConversationReference) error {
	if tctx.Connector == nil {
		return errors.New("turn has no connector")
	}
	if ref == nil || ref.Conversation == nil {
		return errors.New("conversation reference with conversation is required")
	}

	return tctx.Connector.DeleteActivity(ctx, ref.Conversation.ID, ref.ActivityID)
}

// processTurnResults reconciles a finished turn into the wire response:
// expect-replies turns return the buffer, invoke turns return the captured
// invoke response or 501, and plain activity turns have no payload.
func (a *CloudAdapter) processTurnResults(tctx *turn.Context) (*activity.InvokeResponse, error) {
	inbound := tctx.Activity()

	if inbound.DeliveryMode == activity.DeliveryModeExpectReplies {
		buffered := tctx.BufferedReplies()
		if buffered == nil {
			buffered = []*activity.Activity{}
		}
		return &activity.InvokeResponse{
			Status: 200,
			Body:   &activity.ExpectedReplies{Activities: buffered},
		}, nil
	}

	if inbound.Type == activity.TypeInvoke {
		captured := tctx.InvokeResponse()
		if captured == nil {
			// An invoke the bot declined to answer is "not implemented",
			// not an error.
			return &activity.InvokeResponse{Status: 501}, nil
		}

		switch value := captured.Value.(type) {
		case *activity.InvokeResponse:
			return value, nil
		case activity.InvokeResponse:
			return &value, nil
		default:
			return &activity.InvokeResponse{Status: 200, Body: value}, nil
		}
	}

	return nil, nil
}

func (a *CloudAdapter) sendOverWire(ctx context.Context, tctx *turn.Context, act *activity.Activity) (activity.ResourceResponse, error) {
	if tctx.Connector == nil {
		return activity.ResourceResponse{}, errors.New("turn has no connector")
	}

	if act.ReplyToID != "" {
		resp, err := tctx.Connector.ReplyToActivity(ctx, act)
		if err != nil {
			return activity.ResourceResponse{}, fmt.Errorf("reply to activity: %w", err)
		}
		return resp, nil
	}

	resp, err := tctx.Connector.SendToConversation(ctx, act)
	if err != nil {
		return activity.ResourceResponse{}, fmt.Errorf("send to conversation: %w", err)
	}
	return resp, nil
}

func (a *CloudAdapter) attachTranscript(ctx context.Context, tctx *turn.Context) {
	if a.transcript == nil {
		return
	}

	if err := a.transcript.LogActivity(ctx, tctx.Activity()); err != nil {
		a.log.Warn("Transcript logging failed", "error", err)
	}

	tctx.OnSendActivities(func(ctx context.Context, tctx *turn.Context, activities []*activity.Activity, next func() ([]activity.ResourceResponse, error)) ([]activity.ResourceResponse, error) {
		responses, err := next()
		if err != nil {
			return nil, err
		}
		for _, act := range activities {
			if logErr := a.transcript.LogActivity(ctx, act); logErr != nil {
				a.log.Warn("Transcript logging failed", "error", logErr)
			}
		}
		return responses, nil
	})
}

// delayDuration interprets a delay activity's value in milliseconds,
// defaulting to one second.
func delayDuration(value any) time.Duration {
	switch v := value.(type) {
	case time.Duration:
		return v
	case int:
		return time.Duration(v) * time.Millisecond
	case int64:
		return time.Duration(v) * time.Millisecond
	case float64:
		return time.Duration(v) * time.Millisecond
	default:
		return defaultDelay
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
