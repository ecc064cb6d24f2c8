package partition

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ampt/dumpkit"
)

// Ext is the file extension of partition files.
const Ext = ".parquet"

// FileName returns the name of the partition holding timestep step of kind
// k, e.g. particle_00001000.parquet.
func FileName(k dumpkit.Kind, step int64) string {
	return fmt.Sprintf("%s_%08d%s", k, step, Ext)
}

// ParseFileName is the inverse of FileName. Only names FileName produces are
// accepted, so the timestep of an accepted name always leads back to the same
// file. Temporary files and other files which merely share the extension,
// such as the particle_box_00001000.parquet files written by older tools or
// an unpadded particle_100.parquet, are rejected.
func ParseFileName(name string) (k dumpkit.Kind, step int64, ok bool) {
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, Ext) {
		return "", 0, false
	}
	stem := strings.TrimSuffix(name, Ext)
	i := strings.IndexByte(stem, '_')
	if i <= 0 {
		return "", 0, false
	}
	k, err := dumpkit.ParseKind(stem[:i])
	if err != nil || string(k) != stem[:i] {
		return "", 0, false
	}
	digits := stem[i+1:]
	if len(digits) == 0 {
		return "", 0, false
	}
	for j := 0; j < len(digits); j++ {
		if digits[j] < '0' || digits[j] > '9' {
			return "", 0, false
		}
	}
	step, err = strconv.ParseInt(digits, 10, 64)
	if err != nil || FileName(k, step) != name {
		return "", 0, false
	}
	return k, step, true
}

// IsTemp reports whether name is a temporary file left by a Writer.
func IsTemp(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, tmpSuffix) && strings.Contains(name, Ext)
}

const tmpSuffix = ".tmp"

func tempPattern(name string) string {
	return "." + name + ".*" + tmpSuffix
}
