package headless

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

type OpKind string

const (
	OpCreateDevice        OpKind = "create-device"
	OpCreateContext       OpKind = "create-context"
	OpSetFrameDepth       OpKind = "set-frame-depth"
	OpCreateSwapchain     OpKind = "create-swapchain"
	OpResizeSwapchain     OpKind = "resize-swapchain"
	OpReleaseSwapchain    OpKind = "release-swapchain"
	OpCreateResource      OpKind = "create-resource"
	OpReleaseResource     OpKind = "release-resource"
	OpPrepare             OpKind = "prepare"
	OpTransition          OpKind = "transition"
	OpClearRenderTarget   OpKind = "clear-render-target"
	OpClearDepthStencil   OpKind = "clear-depth-stencil"
	OpBindProgram         OpKind = "bind-program"
	OpSetVertexLayout     OpKind = "set-vertex-layout"
	OpEnd                 OpKind = "end"
	OpPresent             OpKind = "present"
	OpWait                OpKind = "wait"
	OpRetire              OpKind = "retire"
	OpLoadProgram         OpKind = "load-program"
	OpUnloadProgram       OpKind = "unload-program"
	OpMakeVertexLayout    OpKind = "make-vertex-layout"
	OpDestroyVertexLayout OpKind = "destroy-vertex-layout"
	OpDisposeContext      OpKind = "dispose-context"
	OpDisposeDevice       OpKind = "dispose-device"
)

// Op is one recorded backend call.
type Op struct {
	Seq    int
	Kind   OpKind
	Target string
	// State is the destination state of transitions.
	State  metadata.ResourceState
	Detail string
}

func (o Op) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s", o.Seq, o.Kind)
	if o.Target != "" {
		fmt.Fprintf(&b, " %s", o.Target)
	}
	if o.Kind == OpTransition {
		fmt.Fprintf(&b, " ->%s", o.State)
	}
	if o.Detail != "" {
		fmt.Fprintf(&b, " (%s)", o.Detail)
	}
	return b.String()
}

// Trace is the ordered log of every call made against a headless device.
type Trace struct {
	mu  sync.Mutex
	ops []Op
}

func NewTrace() *Trace {
	return &Trace{}
}

func (t *Trace) record(op Op) {
	t.mu.Lock()
	defer t.mu.Unlock()
	op.Seq = len(t.ops)
	t.ops = append(t.ops, op)
}

func (t *Trace) Ops() []Op {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Op, len(t.ops))
	copy(out, t.ops)
	return out
}

// Len is the number of ops recorded so far. Use it as a mark for Since.
func (t *Trace) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ops)
}

// Since returns the ops recorded after mark.
func (t *Trace) Since(mark int) []Op {
	ops := t.Ops()
	if mark >= len(ops) {
		return nil
	}
	return ops[mark:]
}

func (t *Trace) Count(kind OpKind) int {
	n := 0
	for _, op := range t.Ops() {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// Index returns the sequence number of the first op of kind whose target
// has the given prefix, or -1.
func (t *Trace) Index(kind OpKind, targetPrefix string) int {
	for _, op := range t.Ops() {
		if op.Kind == kind && strings.HasPrefix(op.Target, targetPrefix) {
			return op.Seq
		}
	}
	return -1
}

// LastIndex is Index searching from the end.
func (t *Trace) LastIndex(kind OpKind, targetPrefix string) int {
	ops := t.Ops()
	for i := len(ops) - 1; i >= 0; i-- {
		if ops[i].Kind == kind && strings.HasPrefix(ops[i].Target, targetPrefix) {
			return ops[i].Seq
		}
	}
	return -1
}

func (t *Trace) Dump() string {
	var b strings.Builder
	for _, op := range t.Ops() {
		b.WriteString(op.String())
		b.WriteByte('\n')
	}
	return b.String()
}
