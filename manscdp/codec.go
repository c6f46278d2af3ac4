package manscdp

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/encoding/simplifiedchinese"
)

var cmdTypeRe = regexp.MustCompile(`<CmdType>(\w+)</CmdType>`)

// CmdType extracts the command name from a decoded body, or "" when the
// element is missing.
func CmdType(body string) string {
	if m := cmdTypeRe.FindStringSubmatch(body); m != nil {
		return m[1]
	}
	return ""
}

// DecodeBody converts wire bytes to a UTF-8 string. Devices declare GB2312
// or GB18030 in the prolog; GB18030 is a superset of both, so one decoder
// covers every case. The prolog is rewritten so the XML parser does not
// trip over the stale declaration.
func DecodeBody(data []byte) (string, error) {
	body, err := simplifiedchinese.GB18030.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode body: %w", err)
	}

	s := string(body)
	s = strings.Replace(s, `encoding="GB2312"`, `encoding="UTF-8"`, 1)
	s = strings.Replace(s, `encoding="GB18030"`, `encoding="UTF-8"`, 1)
	return s, nil
}

// EncodeBody converts a UTF-8 body to the GB2312 form devices expect.
func EncodeBody(body string) ([]byte, error) {
	s := strings.Replace(body, `encoding="UTF-8"`, `encoding="GB2312"`, 1)
	out, err := simplifiedchinese.GB18030.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return out, nil
}
