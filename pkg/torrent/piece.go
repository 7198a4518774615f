package torrent

import (
	"crypto/sha1"
	"fmt"
)

// BlockSize is the largest block requested from a peer (16 KiB).
const BlockSize = 16 * 1024

// block is one request unit inside a piece.
type block struct {
	Offset int
	Length int
}

// pieceBuffer is sized to exactly one piece and filled by block offset, so
// the arrival order of blocks does not matter.
type pieceBuffer struct {
	Index    int
	Hash     [20]byte
	data     []byte
	blocks   []block
	received []bool
	pending  int
}

func newPieceBuffer(index int, length int64, hash [20]byte) *pieceBuffer {
	numBlocks := int((length + BlockSize - 1) / BlockSize)
	blocks := make([]block, numBlocks)

	for i := range numBlocks {
		offset := i * BlockSize
		blocks[i] = block{Offset: offset, Length: min(BlockSize, int(length)-offset)}
	}

	return &pieceBuffer{
		Index:    index,
		Hash:     hash,
		data:     make([]byte, length),
		blocks:   blocks,
		received: make([]bool, numBlocks),
		pending:  numBlocks,
	}
}

// put stores data at begin. begin must be the start of a block and data
// must be exactly that block's length.
func (p *pieceBuffer) put(begin int, data []byte) error {
	if begin < 0 || begin%BlockSize != 0 || begin/BlockSize >= len(p.blocks) {
		return fmt.Errorf("offset %d is not a block boundary of piece %d", begin, p.Index)
	}

	i := begin / BlockSize
	if len(data) != p.blocks[i].Length {
		return fmt.Errorf("block at %d of piece %d is %d bytes, want %d", begin, p.Index, len(data), p.blocks[i].Length)
	}

	if n := copy(p.data[begin:], data); n != len(data) {
		panic(fmt.Sprintf("piece %d: copied %d of %d bytes at %d", p.Index, n, len(data), begin))
	}

	if !p.received[i] {
		p.received[i] = true
		p.pending--
	}

	return nil
}

func (p *pieceBuffer) complete() bool {
	return p.pending == 0
}

// verify hashes the assembled piece.
func (p *pieceBuffer) verify() error {
	if !p.complete() {
		panic(fmt.Sprintf("piece %d verified with %d blocks missing", p.Index, p.pending))
	}

	if sum := sha1.Sum(p.data); sum != p.Hash {
		return &IntegrityError{Index: p.Index, Expected: p.Hash, Actual: sum}
	}

	return nil
}
