// internal/llmutil/lenient.go
package llmutil

import (
	"strconv"
	"strings"
	"unsafe"

	jsoniter "github.com/json-iterator/go"
	"github.com/modern-go/reflect2"
)

// lenientJSON decodes model output. Models routinely quote numbers
// ("waitTime": "2000") or emit bare numbers where strings are expected, so
// string, int and float64 fields accept either form. The decoders are bound
// to this API only; every other jsoniter config in the process stays strict.
var lenientJSON = newLenientAPI()

func newLenientAPI() jsoniter.API {
	api := jsoniter.Config{
		EscapeHTML:             true,
		SortMapKeys:            true,
		ValidateJsonRawMessage: true,
	}.Froze()
	api.RegisterExtension(jsoniter.DecoderExtension{
		reflect2.TypeOf(""):         lenientStringDecoder{},
		reflect2.TypeOf(int(0)):     lenientIntDecoder{},
		reflect2.TypeOf(float64(0)): lenientFloatDecoder{},
	})
	return api
}

type lenientStringDecoder struct{}

func (lenientStringDecoder) Decode(ptr unsafe.Pointer, iter *jsoniter.Iterator) {
	switch iter.WhatIsNext() {
	case jsoniter.StringValue:
		*(*string)(ptr) = iter.ReadString()
	case jsoniter.NumberValue:
		*(*string)(ptr) = string(iter.ReadNumber())
	case jsoniter.NilValue:
		iter.Skip()
		*(*string)(ptr) = ""
	default:
		iter.ReportError("lenientStringDecoder", "not number or string")
	}
}

// readNumeric returns the textual form of a number or quoted number. ok is
// false when the value was null.
func readNumeric(iter *jsoniter.Iterator, op string) (string, bool) {
	switch iter.WhatIsNext() {
	case jsoniter.NumberValue:
		return string(iter.ReadNumber()), true
	case jsoniter.StringValue:
		return strings.TrimSpace(iter.ReadString()), true
	case jsoniter.NilValue:
		iter.Skip()
		return "", false
	default:
		iter.ReportError(op, "not number or string")
		return "", false
	}
}

type lenientIntDecoder struct{}

func (lenientIntDecoder) Decode(ptr unsafe.Pointer, iter *jsoniter.Iterator) {
	s, ok := readNumeric(iter, "lenientIntDecoder")
	if !ok || s == "" {
		*(*int)(ptr) = 0
		return
	}
	if n, err := strconv.Atoi(s); err == nil {
		*(*int)(ptr) = n
		return
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		iter.ReportError("lenientIntDecoder", "invalid number "+strconv.Quote(s))
		return
	}
	*(*int)(ptr) = int(f)
}

type lenientFloatDecoder struct{}

func (lenientFloatDecoder) Decode(ptr unsafe.Pointer, iter *jsoniter.Iterator) {
	s, ok := readNumeric(iter, "lenientFloatDecoder")
	if !ok || s == "" {
		*(*float64)(ptr) = 0
		return
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		iter.ReportError("lenientFloatDecoder", "invalid number "+strconv.Quote(s))
		return
	}
	*(*float64)(ptr) = f
}
