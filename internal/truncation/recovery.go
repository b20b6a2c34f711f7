package truncation

import "fmt"

// ToolResultNotice builds the [API Limitation] text prepended to a tool
// result whose original tool call arrived with truncated arguments.
func ToolResultNotice(entry ToolEntry) string {
	return fmt.Sprintf(
		"[API Limitation] The previous call to tool '%s' (%s) was truncated by the API: "+
			"%s after %d bytes. The arguments you generated were too large and arrived incomplete. "+
			"Retry the operation with smaller arguments, for example by splitting the content into parts.",
		entry.ToolName, entry.ToolCallID, entry.Info.Reason, entry.Info.SizeBytes,
	)
}

// UserNotice builds the synthetic [System Notice] user message inserted
// after an assistant message that was cut off by the API.
func UserNotice() string {
	return "[System Notice] Your previous response was truncated by API output limits. " +
		"Continue from where you left off. Do not repeat what you already wrote."
}
