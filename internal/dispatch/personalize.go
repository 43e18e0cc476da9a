package dispatch

import (
	"time"

	"github.com/dtecho/folio/internal/model"
)

// greetings maps locale prefixes to salutations; unknown locales fall
// back to English.
var greetings = map[string]string{
	"en": "Dear",
	"fr": "Cher/Chère",
	"es": "Estimado/a",
	"de": "Sehr geehrte/r",
	"pt": "Prezado/a",
	"ja": "拝啓",
}

// personalize applies the template's personalization rules: a localized
// salutation, an optional role prefix on the recipient's name, and the
// recipient's local send time in the tracking data.
func personalize(msg *model.Message, tmpl model.Template) {
	name := msg.Recipient.Name
	if name == "" {
		name = msg.Recipient.Address
	}
	if prefix, ok := tmpl.Personalization["role_prefix:"+msg.Recipient.Role]; ok && prefix != "" {
		name = prefix + " " + name
	}

	greeting := greetings[localeLanguage(msg.Recipient.Locale)]
	if greeting == "" {
		greeting = greetings["en"]
	}
	if tmpl.Personalization["salutation"] != "off" {
		msg.Body = greeting + " " + name + ",\n\n" + msg.Body
	}

	if msg.Recipient.Timezone != "" {
		if loc, err := time.LoadLocation(msg.Recipient.Timezone); err == nil {
			msg.Tracking["recipient_local_time"] = msg.ScheduledAt.In(loc).Format(time.RFC3339)
		}
	}
}

// localeLanguage extracts the language part of a BCP 47 tag ("fr-CA" ->
// "fr").
func localeLanguage(locale string) string {
	for i := 0; i < len(locale); i++ {
		if locale[i] == '-' || locale[i] == '_' {
			return locale[:i]
		}
	}
	return locale
}
