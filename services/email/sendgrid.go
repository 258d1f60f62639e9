package emailsvc

import (
	"fmt"
	"net/http"
	"net/mail"

	"github.com/pkg/errors"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/nexscholar/nexscholar/core"
)

// sendgridMailer delivers messages through the SendGrid v3 API, one goroutine per message.
type sendgridMailer struct {
	client     *sendgrid.Client
	from       *sgmail.Email
	subjPrefix string
	logger     core.Logger
}

var _ core.EmailService = (*sendgridMailer)(nil)

func NewSendgridService(conf *core.Config, logger core.Logger) core.EmailService {
	return &sendgridMailer{
		client:     sendgrid.NewSendClient(conf.SendgridApiKey),
		from:       sgmail.NewEmail(conf.DefaultFromEmail.Name, conf.DefaultFromEmail.Address),
		subjPrefix: "[" + conf.AppName + "] ",
		logger:     logger,
	}
}

func (m *sendgridMailer) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		go m.deliver(msg)
	}
}

func (m *sendgridMailer) deliver(msg *core.EmailMessage) {
	if err := msg.Render(); err != nil {
		m.logger.Error("emailsvc.sendgrid: "+err.Error(), errors.Wrap(err, "rendering email"))
		return
	}
	if !msg.HasRecipients() || !(msg.HasContent() || msg.HasAttachments()) {
		return
	}

	res, err := m.client.Send(m.build(msg))
	switch {
	case err != nil:
		m.logger.Error("emailsvc.sendgrid: "+err.Error(), errors.Wrap(err, "sending email"))
	case res.StatusCode >= http.StatusBadRequest:
		m.logger.Error(fmt.Sprintf("emailsvc.sendgrid: status %d", res.StatusCode),
			map[string]interface{}{"subject": msg.Subject, "body": res.Body})
	}
}

func (m *sendgridMailer) build(msg *core.EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = m.subjPrefix + msg.Subject
	p.AddTos(sgEmails(msg.To)...)
	if len(msg.Cc) > 0 {
		p.AddCCs(sgEmails(msg.Cc)...)
	}
	if len(msg.Bcc) > 0 {
		p.AddBCCs(sgEmails(msg.Bcc)...)
	}

	v3 := sgmail.NewV3Mail().SetFrom(m.from).AddPersonalizations(p)
	// text/plain must come first
	if msg.TextContent != "" {
		v3.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	}
	if msg.HTMLContent != "" {
		v3.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}
	if msg.TemplateName != "" {
		v3.AddCategories(msg.TemplateName)
	}
	for _, at := range msg.Attachments {
		v3.AddAttachment(&sgmail.Attachment{
			Content:     at.Content.String(),
			Type:        at.ContentType,
			Filename:    at.Filename,
			Disposition: "attachment",
		})
	}
	return v3
}

func sgEmails(addrs []mail.Address) []*sgmail.Email {
	emails := make([]*sgmail.Email, len(addrs))
	for i, addr := range addrs {
		emails[i] = sgmail.NewEmail(addr.Name, addr.Address)
	}
	return emails
}
