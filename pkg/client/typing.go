package client

import (
	"strings"
	"sync"
	"time"
)

// DefaultTypingWindow matches the reference UI: three seconds of inactivity
// before stopTyping goes out.
const DefaultTypingWindow = 3 * time.Second

// TypingNotifier turns keystrokes into typing/stopTyping emissions with a
// client-local inactivity timer. The server does no debouncing; flood
// control lives here.
type TypingNotifier struct {
	mu     sync.Mutex
	window time.Duration
	start  func(peerID string)
	stop   func(peerID string)

	peerID string
	active bool
	timer  *time.Timer
	gen    uint64
}

func NewTypingNotifier(window time.Duration, start, stop func(peerID string)) *TypingNotifier {
	if window <= 0 {
		window = DefaultTypingWindow
	}
	return &TypingNotifier{
		window: window,
		start:  start,
		stop:   stop,
	}
}

// SetPeer switches the notifier to a new conversation. Any in-flight typing
// state is settled against the old peer so a stale stopTyping can never leak
// into the new one.
func (n *TypingNotifier) SetPeer(peerID string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.peerID == peerID {
		return
	}
	n.settleLocked()
	n.peerID = peerID
}

// Keystroke reports the input field's current content after an edit.
// Non-empty input emits typing and re-arms the inactivity timer; input
// cleared to empty stops immediately.
func (n *TypingNotifier) Keystroke(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.peerID == "" {
		return
	}

	if strings.TrimSpace(text) == "" {
		n.settleLocked()
		return
	}

	n.active = true
	n.start(n.peerID)

	if n.timer != nil {
		n.timer.Stop()
	}
	n.gen++
	gen := n.gen
	n.timer = time.AfterFunc(n.window, func() {
		n.expire(gen)
	})
}

// Submit is called when the composed message is sent: the timer is cancelled
// and stopTyping goes out immediately.
func (n *TypingNotifier) Submit() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.settleLocked()
}

// Close settles any pending state; the notifier must not fire afterwards.
func (n *TypingNotifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.settleLocked()
}

func (n *TypingNotifier) expire(gen uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	// A newer keystroke or a peer switch re-armed or settled the state;
	// this firing is stale.
	if gen != n.gen || !n.active {
		return
	}
	n.active = false
	n.stop(n.peerID)
}

func (n *TypingNotifier) settleLocked() {
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.gen++
	if n.active {
		n.active = false
		n.stop(n.peerID)
	}
}
