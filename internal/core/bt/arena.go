package bt

import "encoding/binary"

const (
	indexSize = 4 // bytes per NodeIndex entry
	// recordSize is one pointer-sized instance-data record: previous cursor and node index.
	recordSize = 8
	// arenaAlign is the alignment of every sub-region start and the largest alignment a
	// node may ask for.
	arenaAlign = 8
)

// indexStack is a NodeIndex view over a region of the arena.
type indexStack []byte

func (s indexStack) at(i int) NodeIndex {
	return NodeIndex(binary.LittleEndian.Uint32(s[i*indexSize:]))
}

func (s indexStack) set(i int, v NodeIndex) {
	binary.LittleEndian.PutUint32(s[i*indexSize:], uint32(v))
}

func (s indexStack) copyPrefix(src indexStack, n int) {
	copy(s[:n*indexSize], src[:n*indexSize])
}

// recordStack is the instance-data bookkeeping view; entry i belongs to active level i.
type recordStack []byte

func (s recordStack) at(i int) (prev int, index NodeIndex) {
	off := i * recordSize
	return int(binary.LittleEndian.Uint32(s[off:])), NodeIndex(binary.LittleEndian.Uint32(s[off+4:]))
}

func (s recordStack) set(i int, prev int, index NodeIndex) {
	off := i * recordSize
	binary.LittleEndian.PutUint32(s[off:], uint32(prev))
	binary.LittleEndian.PutUint32(s[off+4:], uint32(index))
}

// arena is the single buffer a player owns, carved into fixed views per started asset.
type arena struct {
	buf    []byte
	allocs int

	newStack     indexStack
	requestStack indexStack
	activeStack  indexStack
	records      recordStack
	data         []byte
}

func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

func validAlignment(align int) bool {
	return align > 0 && align <= arenaAlign && align&(align-1) == 0
}

// SizeForAsset returns the number of arena bytes a player needs to run asset.
func SizeForAsset(asset Asset) int {
	return sizeFor(asset.MaxDepth(), asset.MaxInstanceBytes())
}

func sizeFor(depth, instanceBytes int) int {
	stack := alignUp(depth*indexSize, arenaAlign)
	return 3*stack + depth*recordSize + instanceBytes
}

// reset sizes the arena for depth and instanceBytes and re-derives every view. It
// reports whether the buffer had to be reallocated.
func (a *arena) reset(depth, instanceBytes int) bool {
	need := sizeFor(depth, instanceBytes)
	grown := false
	if len(a.buf) < need {
		a.buf = make([]byte, need)
		a.allocs++
		grown = true
	}
	stack := alignUp(depth*indexSize, arenaAlign)
	off := 0
	carve := func(n int) []byte {
		b := a.buf[off : off+n : off+n]
		off += n
		return b
	}
	a.newStack = carve(stack)
	a.requestStack = carve(stack)
	a.activeStack = carve(stack)
	a.records = carve(depth * recordSize)
	a.data = carve(instanceBytes)
	return grown
}
