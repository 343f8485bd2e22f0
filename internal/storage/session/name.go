package session

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/libresprite/recovery/internal/doc"
)

const nameTimeLayout = "20060102-150405"

var namePattern = regexp.MustCompile(`^(\d{8}-\d{6})-(\d+)$`)

// Name returns the directory name of a session created at t by pid.
func Name(t time.Time, pid int) string {
	return fmt.Sprintf("%s-%d", t.UTC().Format(nameTimeLayout), pid)
}

// ParseName extracts the creation time and pid from a session directory
// name. ok is false for names that do not follow the convention.
func ParseName(name string) (created time.Time, pid int, ok bool) {
	m := namePattern.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, 0, false
	}
	created, err := time.Parse(nameTimeLayout, m[1])
	if err != nil {
		return time.Time{}, 0, false
	}
	pid, err = strconv.Atoi(m[2])
	if err != nil || pid <= 0 {
		return time.Time{}, 0, false
	}
	return created, pid, true
}

// KeyFor returns the backup key of a document. The key, not the file name,
// is the document identity inside a session.
func KeyFor(id doc.ObjectID) string {
	return fmt.Sprintf("%s%d", docDirPrefix, id)
}

func generationName(gen uint64) string {
	return fmt.Sprintf("%s%08d", genPrefix, gen)
}

func tempGenerationName(gen uint64) string {
	return fmt.Sprintf("%s%08d", tmpGenPrefix, gen)
}

func parseGeneration(name string) (uint64, bool) {
	if len(name) != len(genPrefix)+8 || name[:len(genPrefix)] != genPrefix {
		return 0, false
	}
	gen, err := strconv.ParseUint(name[len(genPrefix):], 10, 64)
	if err != nil || gen == 0 {
		return 0, false
	}
	return gen, true
}
