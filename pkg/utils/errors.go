package utils

import (
	"regexp"
	"strings"
)

// Regular expressions for secret redaction
var (
	// key=value pairs whose value is a secret (mount option echoes, debug output)
	secretPairPattern = regexp.MustCompile(`(?i)\b(password|password2|pass|passwd)=([^,\s]*)`)

	// environment-style PASSWD=... as echoed by some mount helpers
	passwdEnvPattern = regexp.MustCompile(`\bPASSWD=\S*`)

	// user%password form accepted by mount.cifs in USER
	userPercentPattern = regexp.MustCompile(`(?i)\b(user(?:name)?=[^,\s%]+)%[^,\s]*`)

	whitespacePattern = regexp.MustCompile(`[ \t]+`)
)

// RedactedValue replaces every redacted secret
const RedactedValue = "[REDACTED]"

// RedactSecrets removes passwords from command output and error messages.
// It never removes usernames or addresses, which are needed to debug a failed mount.
func RedactSecrets(msg string) string {
	msg = secretPairPattern.ReplaceAllString(msg, "${1}="+RedactedValue)
	msg = passwdEnvPattern.ReplaceAllString(msg, "PASSWD="+RedactedValue)
	msg = userPercentPattern.ReplaceAllString(msg, "${1}%"+RedactedValue)
	msg = whitespacePattern.ReplaceAllString(msg, " ")
	return strings.TrimSpace(msg)
}
