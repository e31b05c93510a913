// ABOUTME: Deterministic stream and subject naming for work queues and mailboxes
// ABOUTME: One work stream per capability tag, one inbox stream per agent GUID

package stream

import "strings"

// sanitizeToken makes a tag safe for use in a stream name. Stream names
// reject dots, spaces, and dashes; the mapping must be deterministic so
// every replica derives the same name from the same tag.
func sanitizeToken(s string) string {
	replacer := strings.NewReplacer("-", "_", ".", "_", " ", "_", "*", "_", ">", "_", "/", "_")
	return replacer.Replace(s)
}

// WorkStreamName returns the stream holding work for one capability,
// e.g. "0123abcd_WORK_typescript".
func WorkStreamName(projectID, capability string) string {
	return sanitizeToken(projectID) + "_WORK_" + sanitizeToken(capability)
}

// WorkSubject returns the subject work items for a capability are
// published to.
func WorkSubject(projectID, capability string) string {
	return sanitizeToken(projectID) + ".work." + sanitizeToken(capability)
}

// InboxStreamName returns the mailbox stream for one recipient GUID.
func InboxStreamName(projectID, recipientGUID string) string {
	return sanitizeToken(projectID) + "_INBOX_" + sanitizeToken(recipientGUID)
}

// InboxSubject returns the subject direct messages for a recipient are
// published to.
func InboxSubject(projectID, recipientGUID string) string {
	return sanitizeToken(projectID) + ".inbox." + sanitizeToken(recipientGUID)
}
