package domain

import (
	"strings"
	"sync"
	"time"
)

const (
	// MaxRecipients must match the max tag on JobSpec.Recipients.
	MaxRecipients       = 50000
	MaxLogEntries       = 200
	DefaultDelaySeconds = 2.0
)

type Sender struct {
	FromName   string `json:"from_name"`
	FromEmail  string `json:"from_email" validate:"required,email"`
	Subject    string `json:"subject" validate:"required"`
	Content    string `json:"content"`
	IsHTML     bool   `json:"is_html"`
	Attachment string `json:"attachment,omitempty"`
}

type JobOptions struct {
	DelaySeconds float64 `json:"delay_seconds"`
	Rotate       bool    `json:"rotate"`
}

// Delay is the pause between two sends. Negative values count as zero.
func (o JobOptions) Delay() time.Duration {
	if o.DelaySeconds <= 0 {
		return 0
	}
	return time.Duration(o.DelaySeconds * float64(time.Second))
}

type JobOptionsInput struct {
	DelaySeconds *float64 `json:"delay_seconds,omitempty"`
	Rotate       *bool    `json:"rotate,omitempty"`
}

// JobSpec is what an operator submits.
type JobSpec struct {
	Sender     Sender           `json:"sender"`
	Recipients []string         `json:"recipients" validate:"required,min=1,max=50000"`
	Options    *JobOptionsInput `json:"options,omitempty"`
}

func (s JobSpec) Normalize() JobSpec {
	s.Sender.FromName = strings.TrimSpace(s.Sender.FromName)
	s.Sender.FromEmail = strings.TrimSpace(s.Sender.FromEmail)
	s.Sender.Subject = strings.TrimSpace(s.Sender.Subject)
	s.Sender.Attachment = strings.TrimSpace(s.Sender.Attachment)
	return s
}

// ResolveOptions applies defaults for anything the submitter left out.
func (s JobSpec) ResolveOptions(defaultDelay float64) JobOptions {
	opts := JobOptions{DelaySeconds: defaultDelay, Rotate: true}
	if s.Options == nil {
		return opts
	}
	if s.Options.DelaySeconds != nil {
		opts.DelaySeconds = *s.Options.DelaySeconds
	}
	if opts.DelaySeconds < 0 {
		opts.DelaySeconds = 0
	}
	if s.Options.Rotate != nil {
		opts.Rotate = *s.Options.Rotate
	}
	return opts
}

type JobStats struct {
	Total        int `json:"total"`
	Sent         int `json:"sent"`
	Failed       int `json:"failed"`
	CurrentIndex int `json:"current_index"`
}

type LogLevel string

const (
	LogInfo    LogLevel = "info"
	LogSuccess LogLevel = "success"
	LogWarn    LogLevel = "warn"
	LogError   LogLevel = "error"
)

type LogEntry struct {
	Time    time.Time `json:"t"`
	Level   LogLevel  `json:"level"`
	Message string    `json:"msg"`
}

// Job is one bulk send. ID, Sender, Recipients, Options and CreatedAt never
// change after creation; progress, logs and the paused flag are guarded by mu.
type Job struct {
	ID         string
	Sender     Sender
	Recipients []string
	Options    JobOptions
	CreatedAt  time.Time

	mu     sync.Mutex
	stats  JobStats
	logs   []LogEntry
	paused bool
}

func NewJob(id string, spec JobSpec, opts JobOptions, createdAt time.Time) *Job {
	recipients := make([]string, len(spec.Recipients))
	copy(recipients, spec.Recipients)

	return &Job{
		ID:         id,
		Sender:     spec.Sender,
		Recipients: recipients,
		Options:    opts,
		CreatedAt:  createdAt,
		stats:      JobStats{Total: len(recipients)},
	}
}

func (j *Job) Progress() JobStats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stats
}

func (j *Job) IsPaused() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.paused
}

func (j *Job) SetPaused(paused bool) {
	j.mu.Lock()
	j.paused = paused
	j.mu.Unlock()
}

func (j *Job) IsComplete() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stats.CurrentIndex >= j.stats.Total
}

// Next returns the index and address of the first unsent recipient.
func (j *Job) Next() (int, string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.stats.CurrentIndex >= j.stats.Total {
		return j.stats.CurrentIndex, "", false
	}
	return j.stats.CurrentIndex, j.Recipients[j.stats.CurrentIndex], true
}

// RecordOutcome counts one send attempt, logs it and advances to the next
// recipient in a single step. It is a no-op on a completed job.
func (j *Job) RecordOutcome(sent bool, level LogLevel, message string) JobStats {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.stats.CurrentIndex >= j.stats.Total {
		return j.stats
	}
	if sent {
		j.stats.Sent++
	} else {
		j.stats.Failed++
	}
	j.stats.CurrentIndex++
	j.appendLogLocked(level, message)
	return j.stats
}

func (j *Job) AppendLog(level LogLevel, message string) {
	j.mu.Lock()
	j.appendLogLocked(level, message)
	j.mu.Unlock()
}

func (j *Job) appendLogLocked(level LogLevel, message string) {
	entry := LogEntry{Time: time.Now().UTC(), Level: level, Message: message}
	if len(j.logs) < MaxLogEntries {
		j.logs = append(j.logs, entry)
		return
	}
	copy(j.logs, j.logs[1:])
	j.logs[len(j.logs)-1] = entry
}

// Logs returns up to tail of the most recent entries, oldest first.
func (j *Job) Logs(tail int) []LogEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return tailOf(j.logs, tail)
}

func tailOf(logs []LogEntry, tail int) []LogEntry {
	if tail <= 0 || tail > len(logs) {
		tail = len(logs)
	}
	out := make([]LogEntry, tail)
	copy(out, logs[len(logs)-tail:])
	return out
}

// JobStatus is the operator view of a job.
type JobStatus struct {
	ID        string     `json:"id"`
	Subject   string     `json:"subject"`
	Stats     JobStats   `json:"stats"`
	Paused    bool       `json:"paused"`
	Complete  bool       `json:"complete"`
	Running   bool       `json:"running"`
	Options   JobOptions `json:"options"`
	Logs      []LogEntry `json:"logs"`
	CreatedAt time.Time  `json:"created_at"`
}

func (j *Job) Status(tail int) JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobStatus{
		ID:        j.ID,
		Subject:   j.Sender.Subject,
		Stats:     j.stats,
		Paused:    j.paused,
		Complete:  j.stats.CurrentIndex >= j.stats.Total,
		Options:   j.Options,
		Logs:      tailOf(j.logs, tail),
		CreatedAt: j.CreatedAt,
	}
}

// Snapshot is the durable form of a job. Active records whether a loop was
// sending (and not paused) when it was written, which is what tells a crash
// apart from an operator pause on restart.
type Snapshot struct {
	ID         string     `json:"id"`
	Sender     Sender     `json:"sender"`
	Recipients []string   `json:"recipients"`
	Options    JobOptions `json:"options"`
	Stats      JobStats   `json:"stats"`
	Logs       []LogEntry `json:"logs"`
	Paused     bool       `json:"paused"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (j *Job) Snapshot(active bool) Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	logs := make([]LogEntry, len(j.logs))
	copy(logs, j.logs)

	return Snapshot{
		ID:         j.ID,
		Sender:     j.Sender,
		Recipients: j.Recipients,
		Options:    j.Options,
		Stats:      j.stats,
		Logs:       logs,
		Paused:     j.paused,
		Active:     active && !j.paused,
		CreatedAt:  j.CreatedAt,
	}
}

// JobFromSnapshot rebuilds an in-memory job from its durable form.
func JobFromSnapshot(s Snapshot) *Job {
	stats := s.Stats
	stats.Total = len(s.Recipients)
	if stats.CurrentIndex > stats.Total {
		stats.CurrentIndex = stats.Total
	}

	logs := s.Logs
	if len(logs) > MaxLogEntries {
		logs = logs[len(logs)-MaxLogEntries:]
	}

	return &Job{
		ID:         s.ID,
		Sender:     s.Sender,
		Recipients: s.Recipients,
		Options:    s.Options,
		CreatedAt:  s.CreatedAt,
		stats:      stats,
		logs:       append([]LogEntry(nil), logs...),
		paused:     s.Paused,
	}
}
