package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/supervision"
	"github.com/nexscholar/nexscholar/core/user"
)

var (
	// errors
	ErrNotConnected = core.NewNotFoundError("calendar connection")
	ErrInvalidState = errors.New("invalid or expired authorization state")
)

const (
	stateAudience   = "calendar:google"
	stateTTL        = 15 * time.Minute
	meetingDuration = time.Hour
)

type (
	Repository interface {
		// SaveToken creates or replaces the token of (UserID, Provider).
		SaveToken(ctx context.Context, tok Token, exec ...core.DBExecutor) (Token, error)
		GetToken(ctx context.Context, userID, provider string, exec ...core.DBExecutor) (Token, error)
		DeleteToken(ctx context.Context, userID, provider string, exec ...core.DBExecutor) error
	}

	// Provider talks to the external calendar. Calls taking a token return it refreshed
	// when the provider had to renew it.
	Provider interface {
		AuthCodeURL(state string) string
		Exchange(ctx context.Context, code string) (Token, error)
		CreateEvent(ctx context.Context, tok Token, ev Event) (string, Token, error)
		DeleteEvent(ctx context.Context, tok Token, eventID string) (Token, error)
	}

	Service struct {
		repo      Repository
		provider  Provider
		secretKey string
		logger    core.Logger
		now       func() time.Time
	}
)

var _ supervision.CalendarPusher = (*Service)(nil)

func NewService(repo Repository, provider Provider, conf *core.Config, logger core.Logger) *Service {
	return &Service{
		repo:      repo,
		provider:  provider,
		secretKey: conf.SecretKey,
		logger:    logger,
		now:       time.Now,
	}
}

func (svc *Service) WithClock(now func() time.Time) *Service {
	svc.now = now
	return svc
}

// ConnectURL returns the consent page URL; the state it carries identifies `actor` on callback.
func (svc *Service) ConnectURL(actor user.User) (string, error) {
	now := svc.now()
	state, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   actor.ID,
		Audience:  jwt.ClaimStrings{stateAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
	}).SignedString([]byte(svc.secretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing state")
	}
	return svc.provider.AuthCodeURL(state), nil
}

func (svc *Service) parseState(state string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(state, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(svc.secretKey), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(stateAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(svc.now),
	)
	if err != nil || claims.Subject == "" {
		return "", ErrInvalidState
	}
	return claims.Subject, nil
}

// Callback completes the OAuth flow started with ConnectURL and stores the user's token.
func (svc *Service) Callback(ctx context.Context, state, code string) (Status, error) {
	userID, err := svc.parseState(state)
	if err != nil {
		return Status{}, core.NewValidationError(err, core.FieldError{Field: "state", Error: err.Error()})
	}
	if code == "" {
		return Status{}, core.NewValidationError(nil, core.FieldError{Field: "code", Error: "this field is required"})
	}

	tok, err := svc.provider.Exchange(ctx, code)
	if err != nil {
		return Status{}, errors.Wrap(err, "exchanging authorization code")
	}
	now := svc.now().UTC()
	tok.UserID = userID
	tok.Provider = ProviderGoogle
	tok.CreatedAt = now
	tok.UpdatedAt = now
	if tok, err = svc.repo.SaveToken(ctx, tok); err != nil {
		return Status{}, errors.Wrap(err, "saving token")
	}
	return Status{Provider: ProviderGoogle, Connected: true, ConnectedAt: &tok.CreatedAt}, nil
}

func (svc *Service) Status(ctx context.Context, actor user.User) (Status, error) {
	tok, err := svc.repo.GetToken(ctx, actor.ID, ProviderGoogle)
	if err != nil {
		if core.IsNotFound(err) {
			return Status{Provider: ProviderGoogle}, nil
		}
		return Status{}, err
	}
	return Status{Provider: ProviderGoogle, Connected: true, ConnectedAt: &tok.CreatedAt}, nil
}

func (svc *Service) Disconnect(ctx context.Context, actor user.User) error {
	return svc.repo.DeleteToken(ctx, actor.ID, ProviderGoogle)
}

// keep persists a token the provider renewed.
func (svc *Service) keep(ctx context.Context, old, renewed Token) {
	if renewed.AccessToken == "" || renewed.AccessToken == old.AccessToken {
		return
	}
	renewed.UserID = old.UserID
	renewed.Provider = old.Provider
	renewed.CreatedAt = old.CreatedAt
	renewed.UpdatedAt = svc.now().UTC()
	if renewed.RefreshToken == "" {
		renewed.RefreshToken = old.RefreshToken
	}
	if _, err := svc.repo.SaveToken(ctx, renewed); err != nil {
		svc.logger.Error(fmt.Sprintf("calendar.keep: saving renewed token: %v", err), err)
	}
}

// PushMeeting writes the meeting to the user's calendar. The event ID is empty when the user
// has no calendar connected.
func (svc *Service) PushMeeting(ctx context.Context, userID string, m supervision.Meeting) (string, error) {
	tok, err := svc.repo.GetToken(ctx, userID, ProviderGoogle)
	if err != nil {
		if core.IsNotFound(err) {
			return "", nil
		}
		return "", errors.Wrap(err, "finding token")
	}

	eventID, renewed, err := svc.provider.CreateEvent(ctx, tok, Event{
		Summary:     m.Title,
		Description: m.Agenda,
		Location:    m.Location,
		Start:       m.ScheduledFor,
		End:         m.ScheduledFor.Add(meetingDuration),
	})
	svc.keep(ctx, tok, renewed)
	if err != nil {
		return "", errors.Wrap(err, "creating event")
	}
	return eventID, nil
}

// RemoveMeeting deletes an event pushed by PushMeeting; nothing happens when the user disconnected since.
func (svc *Service) RemoveMeeting(ctx context.Context, userID, eventID string) error {
	tok, err := svc.repo.GetToken(ctx, userID, ProviderGoogle)
	if err != nil {
		if core.IsNotFound(err) {
			return nil
		}
		return errors.Wrap(err, "finding token")
	}
	renewed, err := svc.provider.DeleteEvent(ctx, tok, eventID)
	svc.keep(ctx, tok, renewed)
	return errors.Wrap(err, "deleting event")
}
