package ravana

import "fmt"

// Op is the operation code leading every request payload.
type Op uint32

// Filesystem operations
const (
	OpLookup     Op = 1
	OpReaddir    Op = 2
	OpCreate     Op = 3
	OpMkdir      Op = 4
	OpSymlink    Op = 5
	OpReadlink   Op = 6
	OpTestAccess Op = 7
	OpGetattr    Op = 8
	OpSetattr    Op = 9
	OpLink       Op = 10
	OpRename     Op = 11
	OpUnlink     Op = 12
	OpOpen       Op = 13
	OpReopen     Op = 14
	OpStatus     Op = 15
	OpRead       Op = 16
	OpWrite      Op = 17
	OpCommit     Op = 18
	OpLock       Op = 19
	OpClose      Op = 20
	OpRmdir      Op = 21
	OpMknod      Op = 22
)

// Server control operations. No payload layout is defined for these.
const (
	OpStopServer Op = 1001
	OpUtilMkfs   Op = 1002
	OpGetSuper   Op = 1003
	OpPutSuper   Op = 1004
	OpMount      Op = 1005
)

var opNames = map[Op]string{
	OpLookup:     "LOOKUP",
	OpReaddir:    "READDIR",
	OpCreate:     "CREATE",
	OpMkdir:      "MKDIR",
	OpSymlink:    "SYMLINK",
	OpReadlink:   "READLINK",
	OpTestAccess: "TEST_ACCESS",
	OpGetattr:    "GETATTRS",
	OpSetattr:    "SETATTRS",
	OpLink:       "LINK",
	OpRename:     "RENAME",
	OpUnlink:     "UNLINK",
	OpOpen:       "OPEN",
	OpReopen:     "REOPEN",
	OpStatus:     "STATUS",
	OpRead:       "READ",
	OpWrite:      "WRITE",
	OpCommit:     "COMMIT",
	OpLock:       "LOCK",
	OpClose:      "CLOSE",
	OpRmdir:      "RMDIR",
	OpMknod:      "MKNOD",
	OpStopServer: "STOP_SERVER",
	OpUtilMkfs:   "UTIL_MKFS",
	OpGetSuper:   "GET_SUPER",
	OpPutSuper:   "PUT_SUPER",
	OpMount:      "MOUNT",
}

func (op Op) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return fmt.Sprintf("OP(%d)", uint32(op))
}

// Implemented reports whether op has a defined payload layout.
func (op Op) Implemented() bool {
	switch op {
	case OpLookup, OpReaddir, OpCreate, OpMkdir, OpSymlink, OpReadlink,
		OpGetattr, OpSetattr, OpLink, OpRename, OpUnlink, OpRead, OpWrite,
		OpRmdir, OpMknod:
		return true
	}
	return false
}
