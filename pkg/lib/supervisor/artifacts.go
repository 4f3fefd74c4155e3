package supervisor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/SanjoDeundiak/crawl-runner/pkg/lib"
)

// createRunDir makes a fresh directory for one run under root. Two runs
// started within the same millisecond get "-2", "-3", ... suffixes.
func createRunDir(root string, now time.Time) (string, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", err
	}
	base := filepath.Join(root, lib.RunDirName(now))
	dir := base
	for i := 2; ; i++ {
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, fs.ErrExist) || i > 100 {
			return "", err
		}
		dir = fmt.Sprintf("%s-%d", base, i)
	}
}

// rename is one completed step of output renumbering.
type rename struct {
	From string
	To   string
}

// outputStem is the file name without its extension, matched case-insensitively.
func outputStem(fileName string) string {
	if strings.HasSuffix(strings.ToLower(fileName), lib.OutputExtension) {
		return fileName[:len(fileName)-len(lib.OutputExtension)]
	}
	return fileName
}

type outputFile struct {
	name   string
	number int
	hasNum bool
}

// findOutputs lists the crawler's result files in dir. The crawler splits
// large results into "output.json", "output-1.json", "output-2.json" and so on.
func findOutputs(dir, stem string) ([]outputFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []outputFile
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || !strings.HasPrefix(name, stem) {
			continue
		}
		// "a.json" shares the prefix of stem "a.js" but overlaps its extension.
		if len(name) < len(stem)+len(lib.OutputExtension) ||
			!strings.HasSuffix(strings.ToLower(name), lib.OutputExtension) {
			continue
		}
		middle := name[len(stem) : len(name)-len(lib.OutputExtension)]
		f := outputFile{name: name}
		if digits := strings.TrimLeft(middle, "-_"); digits != "" {
			if n, err := strconv.Atoi(digits); err == nil {
				f.number, f.hasNum = n, true
			}
		}
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool {
		a, b := files[i], files[j]
		if a.hasNum != b.hasNum {
			return !a.hasNum
		}
		if a.number != b.number {
			return a.number < b.number
		}
		return a.name < b.name
	})
	return files, nil
}

// renumberOutputs renames the crawler's result files to "<stem>_1.json",
// "<stem>_2.json", ... in the order the crawler produced them. Files are
// first moved to temporary names so a target never overwrites a source.
func renumberOutputs(dir, fileName string) ([]rename, error) {
	stem := outputStem(fileName)
	files, err := findOutputs(dir, stem)
	if err != nil {
		return nil, err
	}

	type step struct{ from, tmp, to string }
	var steps []step
	for i, f := range files {
		to := fmt.Sprintf("%s_%d%s", stem, i+1, lib.OutputExtension)
		if f.name == to {
			continue
		}
		steps = append(steps, step{from: f.name, tmp: fmt.Sprintf(".%s.renumber-%d", f.name, i), to: to})
	}

	for i, s := range steps {
		if err := os.Rename(filepath.Join(dir, s.from), filepath.Join(dir, s.tmp)); err != nil {
			// Put back what was already moved.
			for _, done := range steps[:i] {
				_ = os.Rename(filepath.Join(dir, done.tmp), filepath.Join(dir, done.from))
			}
			return nil, err
		}
	}

	var renames []rename
	for _, s := range steps {
		if err := os.Rename(filepath.Join(dir, s.tmp), filepath.Join(dir, s.to)); err != nil {
			return renames, err
		}
		renames = append(renames, rename{From: s.from, To: s.to})
	}
	return renames, nil
}
