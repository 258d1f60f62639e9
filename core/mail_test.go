package core

import (
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func TestParseEmailTemplates(t *testing.T) {
	conf := NewTestConfig()
	require.NotPanics(t, func() { ParseEmailTemplates(conf, nopLogger{}) })

	for _, name := range []string{"notification", "password_reset"} {
		_, ok := (&EmailMessage{TemplateName: name}).getTemplate(".txt")
		assert.True(t, ok, "%s.txt should be parsed against its base", name)
		_, ok = (&EmailMessage{TemplateName: name}).getTemplate(".gohtml")
		assert.True(t, ok, "%s.gohtml should be parsed against its base", name)
	}
}

func TestEmailMessage_Render(t *testing.T) {
	ParseEmailTemplates(NewTestConfig(), nopLogger{})

	t.Run("template", func(t *testing.T) {
		msg := &EmailMessage{
			To:           []mail.Address{{Name: "Jane", Address: "jane@example.com"}},
			Subject:      "New offer",
			TemplateName: "notification",
			TemplateData: map[string]string{
				"Name":  "Jane",
				"Title": "New offer",
				"Body":  "Dr. Lim offered to supervise you.",
			},
		}
		require.NoError(t, msg.Render())
		assert.Contains(t, msg.TextContent, "Dr. Lim offered to supervise you.")
		assert.Contains(t, msg.TextContent, "http://localhost:3000")
		assert.Contains(t, msg.HTMLContent, "Dr. Lim offered to supervise you.")
	})

	t.Run("plain body", func(t *testing.T) {
		msg := &EmailMessage{BodyStr: "hello"}
		require.NoError(t, msg.Render())
		assert.Equal(t, "hello", msg.TextContent)
	})

	t.Run("unknown template", func(t *testing.T) {
		msg := &EmailMessage{TemplateName: "does_not_exist"}
		assert.Error(t, msg.Render())
		assert.False(t, msg.HasContent())
	})
}
