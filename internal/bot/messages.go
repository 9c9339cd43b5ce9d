package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/tempkey-core/internal/audit"
	"github.com/nerrad567/tempkey-core/internal/device"
)

// Reply texts.
const (
	msgWelcome       = "Welcome! Send your device ID or use /add /remove /check /list commands."
	msgUnauthorized  = "❌ You are not authorized to use this command."
	msgAddUsage      = "Usage:\n`" + device.AddUsage + "`"
	msgRemoveUsage   = "Usage: /remove <device_id>"
	msgCheckUsage    = "Usage: /check <device_id>"
	msgExists        = "✅ This device ID already exists."
	msgNotFound      = "❌ Device ID not found."
	msgNotApproved   = "❌ Device ID is NOT approved."
	msgListEmpty     = "No approved IDs yet."
	msgLookupApproved = "✅ Your device ID is already approved."
	msgLookupDenied   = "❌ Your device ID is not approved."
	msgUnknown       = "Unknown command. Use /add /remove /check /list."
	msgSyncPending   = "⚠️ Saved locally, remote sync pending."
	msgNoHistory     = "No changes recorded yet."
	msgHistoryOff    = "History is not available."
	msgInternal      = "❌ Error: internal error"

	historyLimit = 10
)

func errorText(err error) string {
	return "❌ Error: " + err.Error()
}

func addedText(r device.Record, adminID int64) string {
	return fmt.Sprintf("✅ [Database Operation Success]\n"+
		"🆔 UserID: `%s`\n"+
		"📛 Name: `%s`\n"+
		"🔕 Password: `%s`\n"+
		"🆒 Expire: `%s`\n"+
		"👨‍💻 AdminID: `%d`",
		r.ID, r.Username, r.Password, r.Expire, adminID)
}

func removedText(id string) string {
	return fmt.Sprintf("✅ Device ID `%s` has been removed.", id)
}

func foundText(r device.Record) string {
	return fmt.Sprintf("✅ Found:\nUsername: %s\nPassword: %s\nExpire: %s", r.Username, r.Password, r.Expire)
}

func listText(records []device.Record) string {
	if len(records) == 0 {
		return msgListEmpty
	}
	var b strings.Builder
	b.WriteString("📋 Approved Users:\n")
	for i, r := range records {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s - %s (%s)", r.ID, r.Username, r.Expire)
	}
	return b.String()
}

func historyText(entries []audit.Entry) string {
	if len(entries) == 0 {
		return msgNoHistory
	}
	var b strings.Builder
	b.WriteString("🕘 Recent changes:")
	for _, e := range entries {
		fmt.Fprintf(&b, "\n%s %s %s", e.CreatedAt.UTC().Format(time.DateTime), e.Action, e.EntityID)
		if e.UserID != "" {
			fmt.Fprintf(&b, " by %s", e.UserID)
		}
	}
	return b.String()
}
