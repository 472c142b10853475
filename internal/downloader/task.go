package downloader

// Status is the lifecycle state of a download task. Transitions are
// strictly forward-only: Queued → Downloading → {Completed|Failed|
// Cancelled}. Once terminal, a task never changes again.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// Terminal reports whether no further mutation is permitted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Request describes a download to enqueue. CanonicalID is the de-duplication
// key (a canonical group key or resolved filename); at most one task per
// canonical id is ever active.
type Request struct {
	CanonicalID   string
	SourceURL     string
	Destination   string
	ExpectedBytes int64
	SHA256        string // optional; verified by the transport before the file surfaces
	BatchID       string // optional batch membership
}

// Task is a point-in-time snapshot of a download task.
type Task struct {
	ID               string `json:"id"`
	SourceURL        string `json:"source_url"`
	Destination      string `json:"destination"`
	ExpectedBytes    int64  `json:"expected_bytes"`
	BytesTransferred int64  `json:"bytes_transferred"`
	Status           Status `json:"status"`
	Message          string `json:"message,omitempty"`
	BatchID          string `json:"batch_id,omitempty"`
}

// Handle identifies an enqueued task. Enqueueing an id that is already
// active returns the existing task's handle.
type Handle struct {
	id string
	c  *Coordinator
}

// ID returns the canonical task id.
func (h Handle) ID() string {
	return h.id
}

// Task returns the current snapshot of the task.
func (h Handle) Task() (Task, bool) {
	return h.c.Task(h.id)
}

// Cancel requests cancellation of the task.
func (h Handle) Cancel() {
	h.c.Cancel(h.id)
}

// BatchState tracks completion of a user-initiated group of enqueues. A
// task finishing in Failed or Cancelled still counts as completed: batch
// completion means "no longer pending", not "succeeded".
type BatchState struct {
	ID        string `json:"id"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Done      bool   `json:"done"`
}
