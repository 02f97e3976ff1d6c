package cache

import (
	"bytes"
	"encoding/gob"
	"io"
	"time"
)

func init() {
	// chunk.Row values stored in an interface{} field must have their
	// concrete type registered with gob before they can cross the wire;
	// time.Time is the one non-builtin type rows commonly carry (e.g. a
	// watermark column echoed back in a sample row).
	gob.Register(time.Time{})
}

func gobEncoder(w io.Writer) *gob.Encoder {
	return gob.NewEncoder(w)
}

func gobDecoder(raw []byte) *gob.Decoder {
	return gob.NewDecoder(bytes.NewReader(raw))
}
