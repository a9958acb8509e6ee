// Package resource maps request targets onto files under the document root.
package resource

import (
	"fmt"
	"path"

	"github.com/indigo-web/staticd/http/status"
	"github.com/indigo-web/utils/uf"
	"golang.org/x/sys/unix"
)

// Mapping is a read-only view of a whole file. The view is backed by a private memory
// mapping, so handing it out costs the same for a file of any size and the file bytes
// are never copied. A mapping must be released exactly once; the zero value is an absent
// mapping.
type Mapping struct {
	data []byte
	size int64
	mode uint32
}

// Bytes returns the mapped contents. The slice is valid until Release.
func (m Mapping) Bytes() []byte {
	return m.data
}

func (m Mapping) Size() int64 {
	return m.size
}

func (m Mapping) Mode() uint32 {
	return m.mode
}

// Mapped reports whether there is a live memory mapping behind the view. Empty files are
// never mapped.
func (m Mapping) Mapped() bool {
	return m.data != nil
}

// Release unmaps the file. Releasing an absent mapping is a no-op, so it's safe to call
// on every teardown path.
func (m *Mapping) Release() error {
	if m.data == nil {
		*m = Mapping{}
		return nil
	}

	err := unix.Munmap(m.data)
	*m = Mapping{}

	return err
}

// Resolve builds the filesystem path from the root and the request target and maps the file.
// The path is bounded by limit bytes, the excess is cut. Errors wrap status errors:
//   - status.ErrNotFound if the file can't be queried;
//   - status.ErrForbidden if it isn't readable by others;
//   - status.ErrIsDirectory or status.ErrNotRegular if it isn't a regular file.
//
// Any other error means the file exists and is servable, but couldn't be mapped.
func Resolve(root string, target []byte, limit int) (Mapping, error) {
	filename := Path(root, target, limit)

	var stat unix.Stat_t
	if err := unix.Stat(filename, &stat); err != nil {
		return Mapping{}, fmt.Errorf("%w: %s: %s", status.ErrNotFound, filename, err)
	}

	if stat.Mode&unix.S_IROTH == 0 {
		return Mapping{}, fmt.Errorf("%w: %s", status.ErrForbidden, filename)
	}

	switch stat.Mode & unix.S_IFMT {
	case unix.S_IFREG:
	case unix.S_IFDIR:
		return Mapping{}, fmt.Errorf("%w: %s", status.ErrIsDirectory, filename)
	default:
		return Mapping{}, fmt.Errorf("%w: %s", status.ErrNotRegular, filename)
	}

	m := Mapping{size: stat.Size, mode: stat.Mode}
	if stat.Size == 0 {
		return m, nil
	}

	fd, err := unix.Open(filename, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return Mapping{}, fmt.Errorf("resource: open %s: %w", filename, err)
	}

	m.data, err = unix.Mmap(fd, 0, int(stat.Size), unix.PROT_READ, unix.MAP_PRIVATE)
	// the mapping holds its own reference to the file
	_ = unix.Close(fd)
	if err != nil {
		return Mapping{}, fmt.Errorf("resource: mmap %s: %w", filename, err)
	}

	return m, nil
}

// Path concatenates the root with the cleaned target and cuts the result to limit bytes.
// Cleaning resolves dot-dot segments against the target's own root, therefore the result
// can't point outside the document root.
func Path(root string, target []byte, limit int) string {
	cleaned := path.Clean("/" + uf.B2S(target))
	filename := make([]byte, 0, len(root)+len(cleaned))
	filename = append(filename, root...)
	if len(root) > 0 && root[len(root)-1] == '/' {
		filename = filename[:len(filename)-1]
	}
	filename = append(filename, cleaned...)

	if len(filename) > limit {
		filename = filename[:limit]
	}

	return uf.B2S(filename)
}
