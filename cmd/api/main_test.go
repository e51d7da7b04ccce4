package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wiki-mailauth/internal/application/auth"
	"github.com/wiki-mailauth/internal/domain"
	"github.com/wiki-mailauth/internal/infrastructure/smtp"
)

func TestNewCommand_Subcommands(t *testing.T) {
	cmd := newCommand()

	var names []string
	for _, c := range cmd.Commands {
		names = append(names, c.Name)
		assert.NotNil(t, c.Action, c.Name)
	}
	assert.ElementsMatch(t, []string{"serve", "smtp-check"}, names)
	assert.Equal(t, "serve", cmd.DefaultCommand)
}

func TestSetup_RejectsInvalidPolicy(t *testing.T) {
	t.Setenv("POLICY_MAX_ATTEMPTS", "0")
	_, err := setup()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config")
}

func TestSetup_Wires(t *testing.T) {
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_FROM", "bot@example.com")
	t.Setenv("POLICY_ALLOWED_DOMAINS", "qq.com,example.com")

	a, err := setup()
	require.NoError(t, err)
	assert.NotNil(t, a.auth)
	assert.NotNil(t, a.metrics)
	assert.Equal(t, 0, a.store.Len())
	assert.Equal(t, []string{"qq.com", "example.com"}, a.cfg.Policy.AllowedDomains)
}

func TestSetup_WithoutSMTPCredentials(t *testing.T) {
	t.Setenv("SMTP_USERNAME", "")
	t.Setenv("SMTP_FROM", "")

	a, err := setup()
	require.NoError(t, err)

	err = a.auth.CheckDelivery(context.Background())
	var de *domain.DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.DeliveryOther, de.Kind)
	assert.ErrorIs(t, err, smtp.ErrNotConfigured)

	_, err = a.auth.SendCode(context.Background(), auth.SendCodeRequest{Email: "12345@qq.com"})
	assert.ErrorIs(t, err, domain.ErrDelivery)
	assert.Equal(t, 0, a.store.Len(), "undeliverable code is rolled back")
}
