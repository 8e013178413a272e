package gpu

import "fmt"

// PatchEntry is a relocation the driver must resolve before submission.
type PatchEntry struct {
	Resource ResourceHandle
	Offset   uint32
	Write    bool
}

// CommandBuffer is a chunk of command-stream memory handed out by a
// hardware context. The storage belongs to the context; callers only
// append to it between acquire and submit/return.
type CommandBuffer struct {
	ID      uint64
	Context ContextType
	Data    []byte
	Used    int

	Patches       []PatchEntry
	PatchCapacity int
}

// Remaining returns the number of unused bytes.
func (b *CommandBuffer) Remaining() int {
	return len(b.Data) - b.Used
}

// Write appends p to the command stream.
func (b *CommandBuffer) Write(p []byte) (int, error) {
	if len(p) > b.Remaining() {
		return 0, &Error{
			Op:   "WRITE_CMD",
			Code: CodeCapacityExceeded,
			Msg:  fmt.Sprintf("need %d bytes, %d remaining", len(p), b.Remaining()),
		}
	}
	n := copy(b.Data[b.Used:], p)
	b.Used += n
	return n, nil
}

// AddPatch records a relocation entry.
func (b *CommandBuffer) AddPatch(e PatchEntry) error {
	if len(b.Patches) >= b.PatchCapacity {
		return &Error{
			Op:   "ADD_PATCH",
			Code: CodeCapacityExceeded,
			Msg:  fmt.Sprintf("patch list full (%d entries)", b.PatchCapacity),
		}
	}
	b.Patches = append(b.Patches, e)
	return nil
}

// Reset clears the written contents so the storage can be reused.
func (b *CommandBuffer) Reset() {
	b.Used = 0
	b.Patches = b.Patches[:0]
}
