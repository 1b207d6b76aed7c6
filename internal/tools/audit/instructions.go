package audit

// InstructionsText returns the instruction string sent to MCP clients on
// initialize.
func InstructionsText() string {
	return `auditwatch keeps an append-only audit log of changes (who changed what, where).

- record_audit_event appends an entry. Fill author and log; add environment, project and the related object when known.
- list_audit_log loads a page (newest first) and makes it the current page.
- query_audit_log filters recent entries with an expression, e.g. Environment == "production" && Author contains "ops".
- audit_log_status shows loading/saving flags and paging.

Read the resource ` + CurrentPageURI + ` for the current page. The server sends notifications/resources/updated for it whenever the log changes; re-read it then instead of polling.`
}
