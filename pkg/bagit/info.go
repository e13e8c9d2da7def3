package bagit

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Well-known bag-info.txt tags.
const (
	TagExternalIdentifier = "External-Identifier"
	TagInternalSenderID   = "Internal-Sender-Identifier"
	TagContactName        = "Contact-Name"
	TagExternalDesc       = "External-Description"
	TagSourceOrganization = "Source-Organization"
	TagBaggingDate        = "Bagging-Date"
	TagPayloadOxum        = "Payload-Oxum"
)

// Info is the key/value metadata carried in bag-info.txt. A key may hold
// several values, written as repeated lines.
type Info map[string][]string

// Get returns the first value for key, or "" when absent.
func (i Info) Get(key string) string {
	if vs := i[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Set replaces all values for key.
func (i Info) Set(key string, values ...string) {
	i[key] = values
}

// Clone returns a deep copy of the info map.
func (i Info) Clone() Info {
	out := make(Info, len(i))
	for k, vs := range i {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

func readInfo(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info := make(Info)
	var lastKey string
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := s.Text()
		if line == "" {
			continue
		}
		// Continuation lines start with whitespace and extend the previous value.
		if (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) && lastKey != "" {
			vs := info[lastKey]
			vs[len(vs)-1] += " " + strings.TrimSpace(line)
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("malformed tag line %q in %s", line, path)
		}
		key = strings.TrimSpace(key)
		info[key] = append(info[key], strings.TrimSpace(value))
		lastKey = key
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return info, nil
}

func writeInfo(w io.Writer, info Info) error {
	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		for _, v := range info[k] {
			if _, err := fmt.Fprintf(w, "%s: %s\n", k, v); err != nil {
				return err
			}
		}
	}
	return nil
}
