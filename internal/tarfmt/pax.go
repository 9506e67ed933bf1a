package tarfmt

import (
	"path"
	"strconv"
	"strings"
)

// paxRecord renders one pax extended-header record "<LEN> <KEY>=<VALUE>\n",
// where <LEN> is the decimal length of the whole record including <LEN>
// itself and the trailing newline.
//
// <LEN> is self-referential, so it is computed by fixed-point iteration
// (E1): start from the length assuming a plausible digit count, recompute
// the record length with that guess, and repeat until the guess stops
// changing. This converges in at most three iterations for any key/value
// pair up to the sizes this system deals in (E1 bounds |value| <= 2^20).
func paxRecord(key, value string) string {
	// " key=value\n" fixed part, plus the variable-width decimal length.
	fixed := 1 /* space */ + len(key) + 1 /* = */ + len(value) + 1 /* \n */

	length := fixed + 2 // seed with a plausible 2-digit length (E1)
	for {
		digits := len(strconv.Itoa(length))
		next := fixed + digits
		if next == length {
			break
		}
		length = next
	}
	return strconv.Itoa(length) + " " + key + "=" + value + "\n"
}

// paxPayload builds the pax extended-header payload for e, emitting
// records in the order §4.A specifies: path, then linkpath, then size.
// Call only when e.needsPax() (or to compute the footprint, which must
// agree with the payload actually written).
func (e *Entry) paxPayload() string {
	var b strings.Builder
	if len(e.Filename) > 100 {
		b.WriteString(paxRecord("path", e.Filename))
	}
	if len(e.Linkname) > 100 {
		b.WriteString(paxRecord("linkpath", e.Linkname))
	}
	if e.Stat.Kind == Regular && e.Stat.Size > maxUstarSize {
		b.WriteString(paxRecord("size", strconv.FormatUint(e.Stat.Size, 10)))
	}
	return b.String()
}

// paxHeaderName synthesizes the name of the ustar header block that
// carries the pax payload: "<dirname>/<basename>.paxhdr".
func paxHeaderName(filename string) string {
	clean := strings.TrimSuffix(filename, "/")
	return path.Dir(clean) + "/" + path.Base(clean) + ".paxhdr"
}
