package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/tempkey-core/internal/audit"
	"github.com/nerrad567/tempkey-core/internal/device"
	"github.com/nerrad567/tempkey-core/internal/replication"
)

// Command names, used for routing and metrics.
const (
	cmdStart   = "start"
	cmdAdd     = "add"
	cmdRemove  = "remove"
	cmdCheck   = "check"
	cmdList    = "list"
	cmdHistory = "history"
	cmdLookup  = "lookup"
	cmdUnknown = "unknown"
)

// Metric outcomes.
const (
	outcomeOK       = "ok"
	outcomeDegraded = "degraded"
	outcomeDenied   = "denied"
	outcomeUsage    = "usage"
	outcomeInvalid  = "invalid"
	outcomeExists   = "exists"
	outcomeNotFound = "not_found"
	outcomeError    = "error"
	outcomePanic    = "panic"
)

// Message is an inbound chat message.
type Message struct {
	SenderID int64
	ChatID   int64
	Text     string
}

// Reply is the text to send back. An empty Text sends nothing.
type Reply struct {
	Text     string
	Markdown bool
}

// RecordStore is the part of device.Store the dispatcher uses.
type RecordStore interface {
	Insert(ctx context.Context, r device.Record) (replication.Result, error)
	Remove(ctx context.Context, id string) (replication.Result, error)
	Find(id string) (device.Record, bool)
	List() []device.Record
}

// Metrics receives one sample per handled command.
// influxdb.Client satisfies this interface.
type Metrics interface {
	WriteCommandMetric(command, outcome string, duration time.Duration)
}

// Logger defines the logging interface used by the Dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Dispatcher routes chat commands to the record store.
type Dispatcher struct {
	store   RecordStore
	adminID int64
	audit   audit.Repository
	metrics Metrics
	logger  Logger
	now     func() time.Time
}

// NewDispatcher creates a dispatcher for store. adminID is the only sender
// allowed to run restricted commands.
func NewDispatcher(store RecordStore, adminID int64) *Dispatcher {
	return &Dispatcher{
		store:   store,
		adminID: adminID,
		logger:  noopLogger{},
		now:     time.Now,
	}
}

// SetAudit enables audit entries for mutations and the /history command.
func (d *Dispatcher) SetAudit(repo audit.Repository) {
	d.audit = repo
}

// SetMetrics enables per-command metrics.
func (d *Dispatcher) SetMetrics(metrics Metrics) {
	d.metrics = metrics
}

// SetLogger sets the logger.
func (d *Dispatcher) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	d.logger = logger
}

// outcome is what a handler reports back to Handle.
type outcome struct {
	reply Reply
	name  string
}

// Handle processes one message. It never panics; a panicking handler
// produces a generic error reply.
func (d *Dispatcher) Handle(ctx context.Context, msg Message) (reply Reply) {
	start := d.now()
	command, args := parseCommand(msg.Text)
	result := outcome{name: outcomeError}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("command handler panic recovered",
				"command", command, "sender", msg.SenderID, "panic", r)
			result = outcome{reply: Reply{Text: msgInternal}, name: outcomePanic}
			reply = result.reply
		}
		if d.metrics != nil {
			d.metrics.WriteCommandMetric(command, result.name, d.now().Sub(start))
		}
		d.logger.Debug("command handled", "command", command, "sender", msg.SenderID, "outcome", result.name)
	}()

	switch command {
	case cmdStart:
		result = outcome{reply: Reply{Text: msgWelcome}, name: outcomeOK}
	case cmdAdd:
		result = d.restricted(msg, func() outcome { return d.handleAdd(ctx, msg, args) })
	case cmdRemove:
		result = d.restricted(msg, func() outcome { return d.handleRemove(ctx, msg, args) })
	case cmdCheck:
		result = d.handleCheck(args)
	case cmdList:
		result = d.restricted(msg, d.handleList)
	case cmdHistory:
		result = d.restricted(msg, func() outcome { return d.handleHistory(ctx) })
	case cmdLookup:
		result = d.handleLookup(msg.Text)
	default:
		result = outcome{reply: Reply{Text: msgUnknown}, name: outcomeUsage}
	}
	return result.reply
}

// IsAdmin reports whether senderID is the configured administrator.
func (d *Dispatcher) IsAdmin(senderID int64) bool {
	return d.adminID != 0 && senderID == d.adminID
}

func (d *Dispatcher) authorize(msg Message) error {
	if !d.IsAdmin(msg.SenderID) {
		return ErrUnauthorized
	}
	return nil
}

func (d *Dispatcher) restricted(msg Message, handler func() outcome) outcome {
	if err := d.authorize(msg); err != nil {
		d.logger.Warn("unauthorized command", "sender", msg.SenderID)
		return outcome{reply: Reply{Text: msgUnauthorized}, name: outcomeDenied}
	}
	return handler()
}

func (d *Dispatcher) handleAdd(ctx context.Context, msg Message, args []string) outcome {
	if len(args) == 0 {
		return outcome{reply: Reply{Text: msgAddUsage, Markdown: true}, name: outcomeUsage}
	}

	record, err := device.ParseRecord(strings.Join(args, " "))
	if err != nil {
		return outcome{reply: Reply{Text: errorText(err)}, name: outcomeInvalid}
	}

	result, err := d.store.Insert(ctx, record)
	switch {
	case errors.Is(err, device.ErrRecordExists):
		return outcome{reply: Reply{Text: msgExists}, name: outcomeExists}
	case errors.Is(err, device.ErrInvalidFormat):
		return outcome{reply: Reply{Text: errorText(err)}, name: outcomeInvalid}
	case err != nil:
		d.logger.Error("adding device failed", "id", record.ID, "error", err)
		return outcome{reply: Reply{Text: errorText(err)}, name: outcomeError}
	}

	d.recordAudit(ctx, audit.ActionAdd, record.ID, msg.SenderID, result, map[string]any{
		"username": record.Username,
		"expire":   record.Expire,
	})
	return d.mutationOutcome(Reply{Text: addedText(record, d.adminID), Markdown: true}, result)
}

func (d *Dispatcher) handleRemove(ctx context.Context, msg Message, args []string) outcome {
	if len(args) == 0 {
		return outcome{reply: Reply{Text: msgRemoveUsage}, name: outcomeUsage}
	}
	id := strings.TrimSpace(args[0])

	result, err := d.store.Remove(ctx, id)
	switch {
	case errors.Is(err, device.ErrRecordNotFound):
		return outcome{reply: Reply{Text: msgNotFound}, name: outcomeNotFound}
	case err != nil:
		d.logger.Error("removing device failed", "id", id, "error", err)
		return outcome{reply: Reply{Text: errorText(err)}, name: outcomeError}
	}

	d.recordAudit(ctx, audit.ActionRemove, id, msg.SenderID, result, nil)
	return d.mutationOutcome(Reply{Text: removedText(id)}, result)
}

// mutationOutcome appends the sync-pending notice when replication failed.
func (d *Dispatcher) mutationOutcome(reply Reply, result replication.Result) outcome {
	if result.Failed() {
		reply.Text += "\n" + msgSyncPending
		return outcome{reply: reply, name: outcomeDegraded}
	}
	return outcome{reply: reply, name: outcomeOK}
}

func (d *Dispatcher) handleCheck(args []string) outcome {
	if len(args) == 0 {
		return outcome{reply: Reply{Text: msgCheckUsage}, name: outcomeUsage}
	}
	record, ok := d.store.Find(strings.TrimSpace(args[0]))
	if !ok {
		return outcome{reply: Reply{Text: msgNotApproved}, name: outcomeNotFound}
	}
	return outcome{reply: Reply{Text: foundText(record)}, name: outcomeOK}
}

func (d *Dispatcher) handleList() outcome {
	return outcome{reply: Reply{Text: listText(d.store.List())}, name: outcomeOK}
}

func (d *Dispatcher) handleHistory(ctx context.Context) outcome {
	if d.audit == nil {
		return outcome{reply: Reply{Text: msgHistoryOff}, name: outcomeError}
	}
	page, err := d.audit.List(ctx, audit.Filter{EntityType: audit.EntityDevice, Limit: historyLimit})
	if err != nil {
		d.logger.Error("reading audit history failed", "error", err)
		return outcome{reply: Reply{Text: errorText(err)}, name: outcomeError}
	}
	return outcome{reply: Reply{Text: historyText(page.Entries)}, name: outcomeOK}
}

func (d *Dispatcher) handleLookup(text string) outcome {
	if _, ok := d.store.Find(strings.TrimSpace(text)); ok {
		return outcome{reply: Reply{Text: msgLookupApproved}, name: outcomeOK}
	}
	return outcome{reply: Reply{Text: msgLookupDenied}, name: outcomeNotFound}
}

// recordAudit writes one entry. Failures are logged; the mutation stands.
func (d *Dispatcher) recordAudit(ctx context.Context, action, id string, sender int64, result replication.Result, details map[string]any) {
	if d.audit == nil {
		return
	}
	if details == nil {
		details = map[string]any{}
	}
	details["replication"] = string(result.Status)

	entry := &audit.Entry{
		Action:     action,
		EntityType: audit.EntityDevice,
		EntityID:   id,
		UserID:     strconv.FormatInt(sender, 10),
		Source:     audit.SourceTelegram,
		Details:    details,
		CreatedAt:  d.now().UTC(),
	}
	if err := d.audit.Create(ctx, entry); err != nil {
		d.logger.Warn("writing audit entry failed", "action", action, "id", id, "error", err)
	}
}

// parseCommand splits "/cmd@bot arg1 arg2" into ("cmd", [arg1 arg2]).
// Text not starting with "/" is an id lookup.
func parseCommand(text string) (string, []string) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return cmdLookup, nil
	}

	fields := strings.Fields(trimmed)
	name := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	name = strings.ToLower(name)

	switch name {
	case cmdStart, cmdAdd, cmdRemove, cmdCheck, cmdList, cmdHistory:
		return name, fields[1:]
	default:
		return cmdUnknown, fields[1:]
	}
}
