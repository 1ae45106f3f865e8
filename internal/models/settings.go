package models

import "errors"

// MailSettings is the outbound mail configuration kept in the settings
// store. It can change at runtime; a dispatch run reads it once.
type MailSettings struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Secure    bool   `json:"secure"`
	User      string `json:"user"`
	Password  string `json:"password"`
	FromEmail string `json:"fromEmail"`
	APIKey    string `json:"apiKey"`
}

func (s MailSettings) Validate() error {
	if s.Host == "" || s.Port == 0 || s.User == "" || s.Password == "" || s.FromEmail == "" || s.APIKey == "" {
		return errors.New("all fields are required")
	}
	return nil
}

// RedactedPassword replaces the SMTP password in settings read back by the
// admin console. Saving it unchanged keeps the stored password.
const RedactedPassword = "********"

func (s MailSettings) Redacted() MailSettings {
	if s.Password != "" {
		s.Password = RedactedPassword
	}
	return s
}
