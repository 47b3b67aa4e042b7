package application

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/salonkit/mediavault/media/domain"
)

// Decision is the outcome of a deletion authorization check.
type Decision int

const (
	// DecisionDenied means the actor may not delete the asset at all.
	DecisionDenied Decision = iota
	// DecisionAllowed means the actor may delete without further ceremony.
	DecisionAllowed
	// DecisionNeedsConfirmation means the actor has elevated rights over the
	// asset's salon but does not own the asset; deletion requires a second
	// call carrying a confirmation token. This keeps a salon owner from
	// destroying a customer's upload with a single click.
	DecisionNeedsConfirmation
)

// AccessGate decides whether an actor may delete an asset and manages the
// confirmation-token round trip for cross-owner deletions.
type AccessGate struct {
	secret []byte
	ttl    time.Duration
}

// NewAccessGate creates a gate signing confirmation tokens with secret. ttl
// bounds how long a token stays redeemable.
func NewAccessGate(secret []byte, ttl time.Duration) *AccessGate {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &AccessGate{
		secret: secret,
		ttl:    ttl,
	}
}

// AuthorizeDelete classifies the actor's right to delete the asset. Owners and
// platform admins pass directly; a salon owner of the asset's salon who is not
// the uploader needs confirmation; everyone else is denied.
func (g *AccessGate) AuthorizeDelete(actor domain.Actor, asset *domain.Asset) Decision {
	if actor.ID != uuid.Nil && actor.ID == asset.OwnerID {
		return DecisionAllowed
	}

	if actor.Role == domain.RolePlatformAdmin {
		return DecisionAllowed
	}

	if actor.Role == domain.RoleSalonOwner && actor.SalonID != uuid.Nil && actor.SalonID == asset.SalonID {
		return DecisionNeedsConfirmation
	}

	return DecisionDenied
}

// confirmationClaims bind a token to one actor and one asset.
type confirmationClaims struct {
	AssetID string `json:"assetId"`
	jwt.RegisteredClaims
}

// IssueConfirmationToken mints a short-lived token proving the actor was shown
// the cross-owner warning for this specific asset.
func (g *AccessGate) IssueConfirmationToken(actor domain.Actor, assetID uuid.UUID) (string, error) {
	now := time.Now()
	claims := confirmationClaims{
		AssetID: assetID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign confirmation token: %w", err)
	}

	return token, nil
}

// VerifyConfirmationToken checks signature, expiry and that the token was
// issued to this actor for this asset.
func (g *AccessGate) VerifyConfirmationToken(tokenString string, actor domain.Actor, assetID uuid.UUID) error {
	claims := &confirmationClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return g.secret, nil
	})
	if err != nil {
		return fmt.Errorf("invalid confirmation token: %w", err)
	}

	if claims.Subject != actor.ID.String() {
		return fmt.Errorf("confirmation token was issued to a different actor")
	}

	if claims.AssetID != assetID.String() {
		return fmt.Errorf("confirmation token was issued for a different asset")
	}

	return nil
}
