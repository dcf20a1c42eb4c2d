// Package agent implements the client side of the sync protocol: it owns
// the local materialized document, relays local edits immediately,
// coalesces them into debounced snapshot saves, and tracks remote
// cursors and presence.
package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"syncspace/delta"
	"syncspace/internal/document/model"
	"syncspace/pkg/logger"
	"syncspace/socket"
)

// Store is the document store as seen from a client: load the snapshot
// plus metadata, save a whole snapshot back.
type Store interface {
	Load(ctx context.Context, docID string) (*model.Document, error)
	Save(ctx context.Context, docID string, snapshot []byte) error
}

// ErrNotFound is returned by Store implementations when the document does
// not exist.
var ErrNotFound = errors.New("agent: document not found")

type State int

const (
	StateLoading State = iota
	StateIdle
	StateEditing
	StateSaving
	StateClosed
)

const (
	defaultDebounceWindow = 850 * time.Millisecond
	defaultSaveTimeout    = 10 * time.Second
)

// Options tune the agent and hook it into the surrounding application.
// All callbacks are invoked from the agent's event loop.
type Options struct {
	DebounceWindow time.Duration
	SaveTimeout    time.Duration

	// OnSaveError surfaces a failed save to the user. The local document
	// is kept; the next edit arms the next save attempt.
	OnSaveError func(err error)
	// OnRedirect fires when the document cannot be loaded; parentID is the
	// nearest known ancestor location, empty when unknown.
	OnRedirect func(parentID string)
}

type command struct {
	edit   *delta.Delta
	cursor *delta.Range
}

// Agent runs one open document for one client. All state transitions
// happen on a single event-loop goroutine; public methods post into it.
type Agent struct {
	docID     string
	store     Store
	transport Transport
	opts      Options

	commands chan command
	flushc   chan struct{}
	saveDone chan error
	closec   chan struct{}
	closed   chan struct{}

	timer *time.Timer

	mu      sync.Mutex
	state   State
	doc     *delta.Doc
	meta    model.Metadata
	selfID  string
	members []socket.Member
	cursors map[string]delta.Range
	offline bool
}

func New(docID string, store Store, transport Transport, opts Options) *Agent {
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = defaultDebounceWindow
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = defaultSaveTimeout
	}
	return &Agent{
		docID:     docID,
		store:     store,
		transport: transport,
		opts:      opts,
		commands:  make(chan command, 64),
		flushc:    make(chan struct{}, 1),
		saveDone:  make(chan error, 1),
		closec:    make(chan struct{}),
		closed:    make(chan struct{}),
		state:     StateLoading,
		doc:       delta.NewDoc(),
		cursors:   make(map[string]delta.Range),
	}
}

// Run loads the snapshot and processes events until ctx is cancelled or
// Close is called. It blocks; run it on its own goroutine.
func (a *Agent) Run(ctx context.Context) error {
	defer close(a.closed)

	loaded, err := a.store.Load(ctx, a.docID)
	if err != nil {
		// Not found or fetch error: bounce the user to the nearest valid
		// ancestor instead of presenting a dead editor.
		if a.opts.OnRedirect != nil {
			a.opts.OnRedirect("")
		}
		a.shutdown()
		return err
	}

	doc, err := delta.FromSnapshot(loaded.Content)
	if err != nil {
		if a.opts.OnRedirect != nil {
			a.opts.OnRedirect(loaded.ParentID)
		}
		a.shutdown()
		return err
	}

	a.mu.Lock()
	a.doc = doc
	a.meta = model.Metadata{
		ID: loaded.ID, Title: loaded.Title, Icon: loaded.Icon,
		BannerRef: loaded.BannerRef, InTrash: loaded.InTrash,
		ParentID: loaded.ParentID, UpdatedAt: loaded.UpdatedAt,
	}
	a.state = StateIdle
	a.mu.Unlock()

	return a.loop(ctx)
}

func (a *Agent) loop(ctx context.Context) error {
	defer a.shutdown()

	var events <-chan Event
	if a.transport != nil {
		events = a.transport.Events()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-a.closec:
			return nil

		case cmd := <-a.commands:
			if cmd.edit != nil {
				a.handleLocalEdit(*cmd.edit)
			}
			if cmd.cursor != nil && a.transport != nil {
				if err := a.transport.SendCursor(*cmd.cursor); err != nil {
					logger.Sugar.Debugf("cursor send failed: %v", err)
				}
			}

		case <-a.flushc:
			a.startSave()

		case err := <-a.saveDone:
			a.finishSave(err)

		case ev, ok := <-events:
			if !ok {
				// Transport gone: realtime features are lost, local editing
				// and saving continue from the last persisted snapshot.
				logger.Sugar.Warn("realtime transport closed; continuing offline")
				a.mu.Lock()
				a.offline = true
				a.mu.Unlock()
				events = nil
				continue
			}
			a.handleRemote(ev)
		}
	}
}

// handleLocalEdit applies a user-driven change: mutate the local doc,
// broadcast the delta right away, then arm (or re-arm) the debounce timer
// so a burst of edits persists as a single save.
func (a *Agent) handleLocalEdit(d delta.Delta) {
	a.mu.Lock()
	if err := a.doc.Apply(d); err != nil {
		a.mu.Unlock()
		logger.Sugar.Errorf("local edit rejected: %v", err)
		return
	}
	a.state = StateEditing
	a.mu.Unlock()

	if a.transport != nil {
		if err := a.transport.SendDelta(d); err != nil {
			// Best-effort: a dropped broadcast only costs liveness, the
			// snapshot save path still runs.
			logger.Sugar.Debugf("delta send failed: %v", err)
		}
	}

	a.armTimer()
}

// handleRemote applies an externally originated event. Remote deltas never
// touch the debounce/save path; without that distinction every applied
// delta would re-broadcast and re-save in a loop.
func (a *Agent) handleRemote(ev Event) {
	switch ev.Type {
	case EventDelta:
		a.mu.Lock()
		if err := a.doc.Apply(ev.Delta); err != nil {
			logger.Sugar.Errorf("remote delta from %s rejected: %v", ev.SessionID, err)
		}
		a.mu.Unlock()

	case EventCursor:
		// Superseding: the newest range per session replaces the old one.
		a.mu.Lock()
		a.cursors[ev.SessionID] = ev.Range
		a.mu.Unlock()

	case EventPresence:
		a.mu.Lock()
		a.members = ev.Members
		live := make(map[string]bool, len(ev.Members))
		for _, m := range ev.Members {
			live[m.SessionID] = true
		}
		for sid := range a.cursors {
			if !live[sid] {
				delete(a.cursors, sid)
			}
		}
		a.mu.Unlock()

	case EventMetadata:
		a.mu.Lock()
		if ev.Meta.Self.SessionID != "" {
			a.selfID = ev.Meta.Self.SessionID
		}
		a.meta.Title = ev.Meta.Title
		a.meta.Icon = ev.Meta.Icon
		a.meta.InTrash = ev.Meta.InTrash
		a.mu.Unlock()
	}
}

func (a *Agent) armTimer() {
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.opts.DebounceWindow, func() {
		select {
		case a.flushc <- struct{}{}:
		case <-a.closed:
		}
	})
}

// startSave snapshots the current document and persists it off-loop. The
// save is fire-and-forget from the editing flow's perspective.
func (a *Agent) startSave() {
	a.mu.Lock()
	a.state = StateSaving
	snapshot, err := a.doc.Snapshot()
	a.mu.Unlock()
	if err != nil {
		a.saveDone <- err
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.opts.SaveTimeout)
		defer cancel()
		saveErr := a.store.Save(ctx, a.docID, snapshot)
		select {
		case a.saveDone <- saveErr:
		case <-a.closed:
		}
	}()
}

// finishSave reports failures and returns to Idle. The local document is
// never rolled back: it already reflects the edits, and the next
// edit-triggered save retries implicitly.
func (a *Agent) finishSave(err error) {
	if err != nil {
		logger.Sugar.Errorf("save failed for doc %s: %v", a.docID, err)
		if a.opts.OnSaveError != nil {
			a.opts.OnSaveError(err)
		}
	}
	a.mu.Lock()
	if a.state == StateSaving {
		a.state = StateIdle
	}
	a.mu.Unlock()
}

func (a *Agent) shutdown() {
	if a.timer != nil {
		a.timer.Stop()
	}
	if a.transport != nil {
		a.transport.Close()
	}
	a.setState(StateClosed)
}

// Edit submits a local user-driven change. Returns an error once the
// agent is closed.
func (a *Agent) Edit(d delta.Delta) error {
	if err := d.Validate(); err != nil {
		return err
	}
	select {
	case <-a.closed:
		return errors.New("agent: closed")
	default:
	}
	select {
	case a.commands <- command{edit: &d}:
		return nil
	case <-a.closed:
		return errors.New("agent: closed")
	}
}

// MoveCursor publishes the local selection. Loss is harmless.
func (a *Agent) MoveCursor(r delta.Range) {
	select {
	case a.commands <- command{cursor: &r}:
	case <-a.closed:
	}
}

// Close tears the session down: the debounce timer is cancelled, the
// transport is closed (leaving the room) and the loop exits.
func (a *Agent) Close() {
	select {
	case <-a.closec:
	default:
		close(a.closec)
	}
	<-a.closed
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Text returns the current materialized document text.
func (a *Agent) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.doc.String()
}

// Snapshot serializes the current local document.
func (a *Agent) Snapshot() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.doc.Snapshot()
}

func (a *Agent) Metadata() model.Metadata {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.meta
}

// SessionID is the server-assigned id of this session, empty until the
// join handshake completes.
func (a *Agent) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.selfID
}

func (a *Agent) Members() []socket.Member {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]socket.Member, len(a.members))
	copy(out, a.members)
	return out
}

// Cursors returns the latest known selection per remote session.
func (a *Agent) Cursors() map[string]delta.Range {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]delta.Range, len(a.cursors))
	for sid, r := range a.cursors {
		out[sid] = r
	}
	return out
}

// Offline reports whether the realtime transport has dropped.
func (a *Agent) Offline() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.offline
}
