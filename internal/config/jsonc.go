package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// normalizeJSONC blanks out comments and drops trailing commas so encoding/json can decode
// the result. Byte offsets and line breaks are preserved for error positions.
func normalizeJSONC(content string) (string, error) {
	out := make([]byte, 0, len(content))

	const (
		code = iota
		str
		strEscape
		lineComment
		blockComment
	)
	state := code
	// pendingComma holds the output index of a comma that may turn out to be trailing.
	pendingComma := -1

	for i := 0; i < len(content); i++ {
		ch := content[i]
		switch state {
		case str:
			out = append(out, ch)
			if ch == '\\' {
				state = strEscape
			} else if ch == '"' {
				state = code
			}
			continue
		case strEscape:
			out = append(out, ch)
			state = str
			continue
		case lineComment:
			if ch == '\n' || ch == '\r' {
				state = code
				out = append(out, ch)
			} else {
				out = append(out, ' ')
			}
			continue
		case blockComment:
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				out = append(out, ' ', ' ')
				i++
				state = code
				continue
			}
			out = append(out, blankOf(ch))
			continue
		}

		if ch == '/' && i+1 < len(content) && (content[i+1] == '/' || content[i+1] == '*') {
			if content[i+1] == '/' {
				state = lineComment
			} else {
				state = blockComment
			}
			out = append(out, ' ', ' ')
			i++
			continue
		}

		switch {
		case ch == '}' || ch == ']':
			if pendingComma >= 0 {
				out[pendingComma] = ' '
			}
			pendingComma = -1
		case ch == ',':
			pendingComma = len(out)
		case !isJSONWhitespace(ch):
			pendingComma = -1
		}
		if ch == '"' {
			state = str
		}
		out = append(out, ch)
	}

	if state == blockComment {
		return "", errors.New("unterminated block comment in JSONC")
	}
	return string(out), nil
}

func blankOf(ch byte) byte {
	if ch == '\n' || ch == '\r' || ch == '\t' {
		return ch
	}
	return ' '
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return errors.New("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}
	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line, col := 1, 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
