package taskname

const (
	// Notification tasks
	MailSend = "mail:send"
)
