// Package session provides a short-lived Redis-backed store for checkout
// state that must survive across HTTP requests: the tokenized card reference
// between the tokenization postback and the authorization call, the iframe
// flag, and the order secret recorded at payment initiation.
package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// CookieName identifies the checkout session in the browser.
const CookieName = "tickets_session"

// Redis hash fields.
const (
	fieldCardPAN       = "payone_pseudocardpan"
	fieldTruncatedPAN  = "payone_truncatedcardpan"
	fieldCardType      = "payone_cardtype"
	fieldCardExpiry    = "payone_cardexpiredate"
	fieldCardholder    = "payone_cardholder"
	fieldOrderSecret   = "payone_order_secret"
	fieldIframeSession = "iframe_session"
)

var cardFields = []string{fieldCardPAN, fieldTruncatedPAN, fieldCardType, fieldCardExpiry, fieldCardholder}

// CardData holds the non-sensitive results of the client-side card
// tokenization step. The pseudo card number stands in for the real card
// number in the authorization request.
type CardData struct {
	PseudoCardPAN    string
	TruncatedCardPAN string
	CardType         string
	CardExpireDate   string
	Cardholder       string
}

// Store keeps per-session checkout state in Redis hashes with a TTL.
type Store struct {
	R   *redis.Client
	TTL time.Duration
}

func (s *Store) key(sid string) string { return "checkout:sess:" + sid }

func (s *Store) ttl() time.Duration {
	if s.TTL <= 0 {
		return time.Hour
	}
	return s.TTL
}

// SetCardData stores the tokenization results on the session.
func (s *Store) SetCardData(ctx context.Context, sid string, data CardData) error {
	if s.R == nil {
		return errors.New("session: redis client not configured")
	}
	key := s.key(sid)
	pipe := s.R.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		fieldCardPAN:      data.PseudoCardPAN,
		fieldTruncatedPAN: data.TruncatedCardPAN,
		fieldCardType:     data.CardType,
		fieldCardExpiry:   data.CardExpireDate,
		fieldCardholder:   data.Cardholder,
	})
	pipe.Expire(ctx, key, s.ttl())
	_, err := pipe.Exec(ctx)
	return err
}

// CardData reads the tokenization results; zero value when absent.
func (s *Store) CardData(ctx context.Context, sid string) (CardData, error) {
	if s.R == nil {
		return CardData{}, errors.New("session: redis client not configured")
	}
	vals, err := s.R.HMGet(ctx, s.key(sid), cardFields...).Result()
	if err != nil {
		return CardData{}, err
	}
	str := func(i int) string {
		if v, ok := vals[i].(string); ok {
			return v
		}
		return ""
	}
	return CardData{
		PseudoCardPAN:    str(0),
		TruncatedCardPAN: str(1),
		CardType:         str(2),
		CardExpireDate:   str(3),
		Cardholder:       str(4),
	}, nil
}

// ClearCardData removes all card-token fields. Whoever reads the token for
// an authorization call must ensure this runs on every exit path.
func (s *Store) ClearCardData(ctx context.Context, sid string) error {
	if s.R == nil {
		return errors.New("session: redis client not configured")
	}
	return s.R.HDel(ctx, s.key(sid), cardFields...).Err()
}

// SetOrderSecret records the order secret at payment initiation so the
// return flow can verify it originates from the same session.
func (s *Store) SetOrderSecret(ctx context.Context, sid, secret string) error {
	if s.R == nil {
		return errors.New("session: redis client not configured")
	}
	key := s.key(sid)
	pipe := s.R.TxPipeline()
	pipe.HSet(ctx, key, fieldOrderSecret, secret)
	pipe.Expire(ctx, key, s.ttl())
	_, err := pipe.Exec(ctx)
	return err
}

// OrderSecret returns the secret recorded at payment initiation, empty when
// the session never initiated a payment.
func (s *Store) OrderSecret(ctx context.Context, sid string) (string, error) {
	if s.R == nil {
		return "", errors.New("session: redis client not configured")
	}
	v, err := s.R.HGet(ctx, s.key(sid), fieldOrderSecret).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

// SetIframe flags the session as running inside an embedded frame.
func (s *Store) SetIframe(ctx context.Context, sid string, iframe bool) error {
	if s.R == nil {
		return errors.New("session: redis client not configured")
	}
	val := "0"
	if iframe {
		val = "1"
	}
	key := s.key(sid)
	pipe := s.R.TxPipeline()
	pipe.HSet(ctx, key, fieldIframeSession, val)
	pipe.Expire(ctx, key, s.ttl())
	_, err := pipe.Exec(ctx)
	return err
}

// Iframe reports whether the session runs inside an embedded frame.
func (s *Store) Iframe(ctx context.Context, sid string) (bool, error) {
	if s.R == nil {
		return false, errors.New("session: redis client not configured")
	}
	v, err := s.R.HGet(ctx, s.key(sid), fieldIframeSession).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == "1", nil
}

// EnsureID returns the checkout session id from the request cookie, minting
// and setting a new one when absent.
func EnsureID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	sid := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return sid
}
