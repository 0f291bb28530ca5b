package mailer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentCorner/internal/config"
)

func newTestSender(t *testing.T) *SMTPSender {
	t.Helper()
	s, err := NewSMTPSender(config.MailConfig{
		Host:     "localhost",
		Port:     2525,
		From:     "no-reply@talent.test",
		FromName: "Talent Corner",
	})
	require.NoError(t, err)
	return s
}

func TestBuildUsesDefaultSender(t *testing.T) {
	s := newTestSender(t)

	m, err := s.build(Message{To: "ana@example.com", Subject: "Hi", HTML: "<p>Hi</p>"})
	require.NoError(t, err)

	from := m.GetFromString()
	require.Len(t, from, 1)
	assert.Contains(t, from[0], "no-reply@talent.test")
	assert.Equal(t, []string{"<ana@example.com>"}, m.GetToString())
}

func TestBuildOrganizationSender(t *testing.T) {
	s := newTestSender(t)

	m, err := s.build(Message{
		FromName: "Acme",
		From:     "hr@acme.test",
		ReplyTo:  "hr@acme.test",
		To:       "ana@example.com",
		Text:     "Dear Ana",
	})
	require.NoError(t, err)
	assert.Contains(t, m.GetFromString()[0], "hr@acme.test")
}

func TestBuildRejectsMissingRecipient(t *testing.T) {
	s := newTestSender(t)

	_, err := s.build(Message{Subject: "x"})
	assert.Error(t, err)

	_, err = s.build(Message{To: "not an address"})
	assert.Error(t, err)
}

func TestCloseWithoutConnectionIsNoop(t *testing.T) {
	s := newTestSender(t)
	assert.NoError(t, s.Close())
}
