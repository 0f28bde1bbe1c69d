package artifact

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// maxLineBytes bounds a single JSONL record.
const maxLineBytes = 16 << 20

// ParseError reports malformed JSON or JSONL content. Line is 1-based and zero
// when unknown.
type ParseError struct {
	Location string
	Line     int
	Err      error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %v", e.Location, e.Line, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Location, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ReadBytes returns the full contents of slot.
func ReadBytes(store Store, slot Slot) ([]byte, error) {
	rc, err := store.Open(slot)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// ReadJSON decodes a JSON slot into v. Numbers inside interface values decode
// as json.Number so no precision is lost before canonicalization.
func ReadJSON(store Store, slot Slot, v any) error {
	data, err := ReadBytes(store, slot)
	if err != nil {
		return err
	}
	return DecodeJSON(store.Location(slot), data, v)
}

// DecodeJSON decodes data into v, attributing syntax errors to a line of loc.
func DecodeJSON(loc string, data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return &ParseError{Location: loc, Line: errorLine(data, err), Err: err}
	}
	if dec.More() {
		return &ParseError{Location: loc, Err: errors.New("trailing data after JSON value")}
	}
	return nil
}

// ReadJSONL decodes every non-blank line of slot as a T.
func ReadJSONL[T any](store Store, slot Slot) ([]T, error) {
	var out []T
	err := EachJSONL(store, slot, func(line int, raw []byte) error {
		var row T
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&row); err != nil {
			return err
		}
		if dec.More() {
			return errors.New("trailing data after JSON value")
		}
		out = append(out, row)
		return nil
	})
	return out, err
}

// ReadJSONLOptional is ReadJSONL that treats a missing slot as empty.
func ReadJSONLOptional[T any](store Store, slot Slot) ([]T, error) {
	rows, err := ReadJSONL[T](store, slot)
	if IsNotFound(err) {
		return nil, nil
	}
	return rows, err
}

// EachJSONL calls fn for every non-blank line of slot. Errors returned by fn
// are wrapped in a ParseError carrying the line number.
func EachJSONL(store Store, slot Slot, fn func(line int, raw []byte) error) error {
	rc, err := store.Open(slot)
	if err != nil {
		return err
	}
	defer rc.Close()

	loc := store.Location(slot)
	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		if err := fn(line, raw); err != nil {
			return &ParseError{Location: loc, Line: line, Err: err}
		}
	}
	if err := sc.Err(); err != nil {
		return &ParseError{Location: loc, Line: line + 1, Err: err}
	}
	return nil
}

// WriteJSON writes v as indented JSON.
func WriteJSON(store Store, slot Slot, v any) error {
	return store.Write(slot, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

// WriteJSONL writes one compact JSON object per row.
func WriteJSONL[T any](store Store, slot Slot, rows []T) error {
	return store.Write(slot, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		for i := range rows {
			if err := enc.Encode(rows[i]); err != nil {
				return fmt.Errorf("row %d: %w", i+1, err)
			}
		}
		return nil
	})
}

func errorLine(data []byte, err error) int {
	var offset int64
	var syn *json.SyntaxError
	var typ *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syn):
		offset = syn.Offset
	case errors.As(err, &typ):
		offset = typ.Offset
	default:
		return 0
	}
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	return bytes.Count(data[:offset], []byte("\n")) + 1
}
