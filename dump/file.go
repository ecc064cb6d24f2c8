package dump

import (
	"io"
	"os"

	"github.com/ampt/dumpkit"
	"github.com/pkg/errors"
)

// File is a Parser over a local dump file which can be restarted from the
// beginning.
type File struct {
	*Parser

	f    *os.File
	kind dumpkit.Kind
	opts []ParserOption
}

// Open opens the named dump file for parsing blocks of kind k.
func Open(name string, k dumpkit.Kind, res dumpkit.SchemaResolver, opts ...ParserOption) (*File, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", name)
	}
	df := &File{
		f:    f,
		kind: k,
		opts: append([]ParserOption{OptName(name)}, opts...),
	}
	df.Parser = NewParser(f, k, res, df.opts...)
	return df, nil
}

// Reset starts the sequence of blocks over from the beginning of the file,
// resolving headers through res. Passing a fresh resolver repeats the epoch
// numbering of the first pass.
func (f *File) Reset(res dumpkit.SchemaResolver) error {
	if _, err := f.f.Seek(0, io.SeekStart); err != nil {
		return errors.Wrapf(err, "rewinding %s", f.f.Name())
	}
	f.Parser = NewParser(f.f, f.kind, res, f.opts...)
	return nil
}

// Close closes the underlying file.
func (f *File) Close() error {
	return f.f.Close()
}
