package session

import (
	"context"
	"errors"
)

// StaticProvider serves a fixed secret, for deployments where the
// custody provider is replaced by an operator-supplied key (local
// development, integration environments).
type StaticProvider struct {
	SecretHex string
	Profile   Profile
}

func (p *StaticProvider) Login(ctx context.Context) (string, Profile, error) {
	if p.SecretHex == "" {
		return "", Profile{}, errors.New("no secret configured")
	}
	return p.SecretHex, p.Profile, nil
}

func (p *StaticProvider) Logout(ctx context.Context) error {
	return nil
}

func (p *StaticProvider) UserInfo(ctx context.Context) (Profile, error) {
	return p.Profile, nil
}
