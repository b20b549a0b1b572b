package bot

import (
	"fmt"
	"strings"

	"github.com/efortin/factorio-chill/pkg/operation"
)

// Reply texts
const (
	MessageDone         = "Done!"
	MessageUnauthorized = "Sorry, you are not allowed to do that."
)

// FormatResult renders a successful operation as a chat reply
func FormatResult(result *operation.Result) string {
	var b strings.Builder
	b.WriteString(MessageDone)

	if len(result.IPs) > 0 {
		b.WriteString("\nIP addresses:")
		for _, ip := range result.IPs {
			b.WriteString("\n")
			b.WriteString(ip)
		}
	}
	if result.IPError != nil {
		fmt.Fprintf(&b, "\n(could not list node IP addresses: %v)", result.IPError)
	}
	if len(result.MissingIP) > 0 {
		fmt.Fprintf(&b, "\nNo external IP: %s", strings.Join(result.MissingIP, ", "))
	}
	return b.String()
}

// FormatFailure renders a failed command as a chat reply
func FormatFailure(command string, err error) string {
	verb := "start"
	if command == CommandDown {
		verb = "stop"
	}
	return fmt.Sprintf("Failed to %s the server: %v", verb, err)
}
