package ravana

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ID is a 128-bit identifier. On the wire it always travels as two 64-bit
// integers, lower half first.
type ID struct {
	Lo, Hi uint64
}

// Cid identifies a channel, the backing namespace served by one endpoint.
type Cid = ID

// Fid identifies a file within a channel. It doubles as the inode number.
type Fid = ID

var (
	// Root is the fid of the namespace root directory.
	Root = ID{Lo: 1}

	// DefaultCid is the conventional channel used by tooling.
	DefaultCid = ID{Lo: 123}

	// MaxID has every bit set.
	MaxID = ID{Lo: ^uint64(0), Hi: ^uint64(0)}
)

var ErrBadID = errors.New("malformed 128-bit identifier")

// NewID returns the identifier for a value that fits in 64 bits.
func NewID(v uint64) ID {
	return ID{Lo: v}
}

// Join assembles an ID from its lower and upper halves.
func Join(lo, hi uint64) ID {
	return ID{Lo: lo, Hi: hi}
}

// Split returns the lower and upper 64 bits.
func (id ID) Split() (lo, hi uint64) {
	return id.Lo, id.Hi
}

func (id ID) IsZero() bool {
	return id.Lo == 0 && id.Hi == 0
}

// String renders the id the way endpoint directories are named: the upper half
// without padding followed by the lower half padded to 16 digits.
func (id ID) String() string {
	return fmt.Sprintf("%x%016x", id.Hi, id.Lo)
}

// UUID returns the id as a big-endian UUID value.
func (id ID) UUID() uuid.UUID {
	var u uuid.UUID
	for i := 0; i < 8; i++ {
		u[i] = byte(id.Hi >> (56 - 8*i))
		u[8+i] = byte(id.Lo >> (56 - 8*i))
	}
	return u
}

// IDFromUUID is the inverse of ID.UUID.
func IDFromUUID(u uuid.UUID) ID {
	var id ID
	for i := 0; i < 8; i++ {
		id.Hi = id.Hi<<8 | uint64(u[i])
		id.Lo = id.Lo<<8 | uint64(u[8+i])
	}
	return id
}

// ParseID accepts the hex form produced by String (with or without a 0x
// prefix, up to 32 digits) or a canonical UUID string.
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if strings.Count(s, "-") == 4 {
		u, err := uuid.Parse(s)
		if err != nil {
			return ID{}, fmt.Errorf("%w: %q: %v", ErrBadID, s, err)
		}
		return IDFromUUID(u), nil
	}
	hex := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if hex == "" || len(hex) > 32 {
		return ID{}, fmt.Errorf("%w: %q", ErrBadID, s)
	}
	var id ID
	split := len(hex) - 16
	if split > 0 {
		hi, err := strconv.ParseUint(hex[:split], 16, 64)
		if err != nil {
			return ID{}, fmt.Errorf("%w: %q", ErrBadID, s)
		}
		id.Hi = hi
		hex = hex[split:]
	}
	lo, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return ID{}, fmt.Errorf("%w: %q", ErrBadID, s)
	}
	id.Lo = lo
	return id, nil
}

// Set and Type let an ID be used directly as a command line flag value.
func (id *ID) Set(s string) error {
	v, err := ParseID(s)
	if err != nil {
		return err
	}
	*id = v
	return nil
}

func (id *ID) Type() string {
	return "id"
}
