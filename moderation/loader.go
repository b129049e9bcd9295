package moderation

import (
	"bufio"
	"bytes"
	"dm-lab/errors"
	"embed"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed blocklist/*.txt
var blocklistFolder embed.FS

// Blocklist maps each category to its words. A category is named after its file ("insult.txt" -> "insult").
type Blocklist map[string][]string

// Categories returns the category names sorted.
func (b Blocklist) Categories() []string {
	categories := make([]string, 0, len(b))
	for category := range b {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	return categories
}

// BlocklistLoader reads categorised word lists from a filesystem, one word or phrase per line.
type BlocklistLoader struct {
	fs fs.FS
}

func NewBlocklistLoader(f fs.FS) *BlocklistLoader {
	return &BlocklistLoader{fs: f}
}

// DefaultBlocklist loads the lists embedded in the binary.
func DefaultBlocklist() (Blocklist, error) {
	return NewBlocklistLoader(blocklistFolder).LoadAll("blocklist")
}

// LoadAll scans dir for .txt files. Blank lines and lines starting with '#' are ignored.
func (l *BlocklistLoader) LoadAll(dir string) (Blocklist, error) {
	entries, err := fs.ReadDir(l.fs, dir)
	if err != nil {
		return nil, err
	}

	blocklist := make(Blocklist)
	total := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		category := strings.TrimSuffix(entry.Name(), ".txt")

		data, err := fs.ReadFile(l.fs, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		// Scanner handles \n and \r\n alike
		unique := make(map[string]struct{})
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if _, ok := unique[line]; ok {
				continue
			}
			unique[line] = struct{}{}
			blocklist[category] = append(blocklist[category], line)
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		total += len(unique)
	}

	if total == 0 {
		return nil, errors.ErrEmptyWords
	}
	return blocklist, nil
}
