package storage

import "fmt"

// Section exposes the range [base, base+length) of the torrent's byte stream
// backed by a store holding only that range. A single-piece download writes
// through a Section so the output file contains just the piece.
type Section struct {
	s      Storage
	base   int64
	length int64
}

// NewSection maps absolute offsets in [base, base+length) onto s at 0.
func NewSection(s Storage, base, length int64) *Section {
	return &Section{s: s, base: base, length: length}
}

func (sec *Section) ReadBlock(b []byte, off int64) (int, error) {
	rel, err := sec.rel(off, len(b))
	if err != nil {
		return 0, err
	}

	return sec.s.ReadBlock(b, rel)
}

func (sec *Section) WriteBlock(b []byte, off int64) (int, error) {
	rel, err := sec.rel(off, len(b))
	if err != nil {
		return 0, err
	}

	return sec.s.WriteBlock(b, rel)
}

// rel translates an absolute offset to one relative to base.
func (sec *Section) rel(off int64, n int) (int64, error) {
	if off < sec.base {
		return 0, fmt.Errorf("%w: offset %d before section start %d", ErrOutOfRange, off, sec.base)
	}

	rel := off - sec.base
	if err := checkRange(sec.length, rel, n); err != nil {
		return 0, err
	}

	return rel, nil
}

func (sec *Section) Close() error {
	return sec.s.Close()
}
