package source

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/feedcurve/internal/model"
)

// DecodeJSONArray decodes a JSON array streaming, sending each element to a channel.
// Expects input in the form [{...},{...}].
// Both channels are closed when processing completes.
func DecodeJSONArray[T any](ctx context.Context, r io.Reader) (<-chan T, <-chan error) {
	outCh := make(chan T, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		decoder := json.NewDecoder(r)

		tok, err := decoder.Token()
		if err != nil {
			if err == io.EOF {
				return
			}
			errCh <- eris.Wrap(err, "source: json read opening token")
			return
		}

		delim, ok := tok.(json.Delim)
		if !ok || delim != '[' {
			errCh <- eris.Errorf("source: json expected '[', got %v", tok)
			return
		}

		for decoder.More() {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "source: json context cancelled")
				return
			}

			var item T
			if err := decoder.Decode(&item); err != nil {
				errCh <- eris.Wrap(err, "source: json decode element")
				return
			}

			select {
			case outCh <- item:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "source: json context cancelled")
				return
			}
		}

		if _, err := decoder.Token(); err != nil && err != io.EOF {
			errCh <- eris.Wrap(err, "source: json read closing token")
		}
	}()

	return outCh, errCh
}

// jsonScalar renders a JSON value as the string a CSV cell would hold.
// Strings are unquoted, null becomes empty, numbers keep their literal text.
func jsonScalar(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

// jsonField is one key/value pair of a flat JSON object.
type jsonField struct {
	Key   string
	Value json.RawMessage
}

// jsonObject keeps an object's fields in document order.
type jsonObject []jsonField

// UnmarshalJSON walks the object's tokens so key order survives decoding.
func (o *jsonObject) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return eris.Wrap(err, "source: json read object")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return eris.Errorf("source: json expected object, got %v", tok)
	}

	fields := make(jsonObject, 0, 16)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return eris.Wrap(err, "source: json read key")
		}
		key, ok := tok.(string)
		if !ok {
			return eris.Errorf("source: json expected key, got %v", tok)
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return eris.Wrapf(err, "source: json decode %q", key)
		}
		fields = append(fields, jsonField{Key: key, Value: v})
	}
	*o = fields
	return nil
}

// ReadJSON reads an array of flat objects into raw records. Keys follow the
// same aliases as CSV headers and, as with CSV columns, the first key in the
// object matching a field wins. The first object must carry every required key.
func ReadJSON(ctx context.Context, r io.Reader) ([]model.RawRecord, error) {
	objCh, errCh := DecodeJSONArray[jsonObject](ctx, r)

	var identity columnMap
	for i := range identity {
		identity[i] = i
	}

	var (
		recs    []model.RawRecord
		first   = true
		headErr error
	)
	for obj := range objCh {
		if headErr != nil {
			continue
		}
		row := make([]string, numFields)
		var set [numFields]bool
		keys := make([]string, 0, len(obj))
		for _, kv := range obj {
			keys = append(keys, kv.Key)
			if f, ok := aliasIndex[normalizeCol(kv.Key)]; ok && !set[f] {
				set[f] = true
				row[f] = jsonScalar(kv.Value)
			}
		}
		if first {
			first = false
			if _, headErr = mapHeader(keys); headErr != nil {
				continue
			}
		}
		recs = append(recs, identity.record(row))
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	if headErr != nil {
		return nil, headErr
	}
	return recs, nil
}
