package mcpserver

// TicketFormatContract describes the canonical ticket shape and the edit
// rules that update_ticket enforces.
const TicketFormatContract = `# Ticket Format Contract

Every ticket served by the desk has this shape after sanitization.

` + "```" + `json
{
  "id": "TKT-1042",                       // unique, never empty
  "title": "Login page broken",           // never empty ("Untitled Ticket" when missing)
  "status": "open",                       // open | in_progress | blocked | closed
  "priority": 2,                          // integer 1 (Critical) .. 5 (Minimal)
  "assignee": "Alice Johnson",            // absent when unassigned
  "createdAt": "2024-03-05T09:00:00.000Z",
  "updatedAt": "2024-03-06T09:00:00.000Z",
  "tags": ["bug", "auth"],                // lowercase, trimmed, no duplicates
  "meta": {"source": "email", "customerTier": "enterprise"}
}
` + "```" + `

Fields starting with an underscore (` + "`" + `_pendingSync` + "`" + `, ` + "`" + `_syncState` + "`" + `,
` + "`" + `_blockedReason` + "`" + `) are local sync state and are never sent upstream.

## Priorities

| Value | Label    |
|-------|----------|
| 1     | Critical |
| 2     | High     |
| 3     | Medium   |
| 4     | Low      |
| 5     | Minimal  |

## Edit rules

1. **Title** must not be empty.
2. **Blocked** tickets need a non-blank ` + "`" + `blocked_reason` + "`" + `.
3. **Priority 1** tickets need an assignee.
4. An empty ` + "`" + `assignee` + "`" + ` unassigns the ticket.
5. ` + "`" + `tags` + "`" + ` replaces the whole tag list.

Edits are applied immediately. If the remote source is unreachable the edit is
queued and replayed on reconnect; check ` + "`" + `sync_status` + "`" + ` for the queue length.
`
