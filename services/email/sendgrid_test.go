package emailsvc

import (
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexscholar/nexscholar/core"
	logsvc "github.com/nexscholar/nexscholar/services/logger"
)

func TestSendgridMailer_build(t *testing.T) {
	conf := core.NewTestConfig()
	svc := NewSendgridService(conf, logsvc.NewDiscardLogger()).(*sendgridMailer)

	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: "Nur Aina", Address: "nuraina@example.com"}},
		Bcc:          []mail.Address{{Address: "audit@example.com"}},
		Subject:      "New offer",
		TemplateName: "notification",
		TextContent:  "Dr. Aisyah offered to supervise you.",
		HTMLContent:  "<p>Dr. Aisyah offered to supervise you.</p>",
	}
	require.NoError(t, msg.Attach(strings.NewReader("%PDF-1.4"), "offer.pdf", "application/pdf"))

	v3 := svc.build(msg)
	assert.Equal(t, conf.DefaultFromEmail.Address, v3.From.Address)
	require.Len(t, v3.Personalizations, 1)
	p := v3.Personalizations[0]
	assert.Equal(t, "[Nexscholar] New offer", p.Subject)
	require.Len(t, p.To, 1)
	assert.Equal(t, "nuraina@example.com", p.To[0].Address)
	assert.Empty(t, p.CC)
	require.Len(t, p.BCC, 1)

	require.Len(t, v3.Content, 2)
	assert.Equal(t, "text/plain", v3.Content[0].Type)
	assert.Equal(t, "text/html", v3.Content[1].Type)
	assert.Equal(t, []string{"notification"}, v3.Categories)

	require.Len(t, v3.Attachments, 1)
	assert.Equal(t, "JVBERi0xLjQ=", v3.Attachments[0].Content)
	assert.Equal(t, "attachment", v3.Attachments[0].Disposition)
}

func TestSendgridMailer_build_plainText(t *testing.T) {
	svc := NewSendgridService(core.NewTestConfig(), logsvc.NewDiscardLogger()).(*sendgridMailer)
	v3 := svc.build(&core.EmailMessage{
		To:          []mail.Address{{Address: "limwei@example.com"}},
		TextContent: "hello",
	})
	require.Len(t, v3.Content, 1)
	assert.Equal(t, "hello", v3.Content[0].Value)
	assert.Empty(t, v3.Categories)
}
