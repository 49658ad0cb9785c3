// Package proto implements the tag-driven protobuf runtime used for the
// SSO reserved fields and the QR extension payloads.
//
// Messages are plain structs whose fields carry a `proto:"N"` tag, with
// optional modifiers:
//
//	proto:"2,zigzag"  signed scalar with zigzag encoding
//	proto:"3,fixed"   fixed32/fixed64 by field width
//	proto:"4,packed"  packed repeated scalar
//	proto:"-"         skipped
//
// Embedding UnknownFields opts the message into unknown-field preservation:
// fields with no schema entry survive a decode/encode round trip
// byte-for-byte.
package proto

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"google.golang.org/protobuf/encoding/protowire"
)

// UnknownFields holds raw (tag, wire-type, value) tuples for fields the
// schema does not know. Embed it by value in a message struct.
type UnknownFields struct {
	raw []byte
}

// Raw returns the preserved unknown bytes.
func (u *UnknownFields) Raw() []byte { return u.raw }

// SetRaw replaces the preserved unknown bytes.
func (u *UnknownFields) SetRaw(b []byte) { u.raw = b }

type fieldInfo struct {
	index  int
	num    protowire.Number
	zigzag bool
	fixed  bool
	packed bool
}

type structInfo struct {
	fields       []fieldInfo
	byNumber     map[protowire.Number]*fieldInfo
	unknownIndex int // -1 when the message does not preserve unknowns
}

var infoCache sync.Map // reflect.Type -> *structInfo

var unknownType = reflect.TypeOf(UnknownFields{})

func structInfoOf(t reflect.Type) (*structInfo, error) {
	if cached, ok := infoCache.Load(t); ok {
		return cached.(*structInfo), nil
	}

	info := &structInfo{
		byNumber:     make(map[protowire.Number]*fieldInfo),
		unknownIndex: -1,
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Type == unknownType {
			info.unknownIndex = i
			continue
		}
		tag, ok := field.Tag.Lookup("proto")
		if !ok || tag == "-" {
			continue
		}
		parts := strings.Split(tag, ",")
		n, err := strconv.Atoi(parts[0])
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("proto: field %s.%s has bad tag %q", t.Name(), field.Name, tag)
		}
		fi := fieldInfo{index: i, num: protowire.Number(n)}
		for _, opt := range parts[1:] {
			switch opt {
			case "zigzag":
				fi.zigzag = true
			case "fixed":
				fi.fixed = true
			case "packed":
				fi.packed = true
			}
		}
		info.fields = append(info.fields, fi)
	}
	for i := range info.fields {
		info.byNumber[info.fields[i].num] = &info.fields[i]
	}

	infoCache.Store(t, info)
	return info, nil
}

func derefStruct(v any) (reflect.Value, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return reflect.Value{}, fmt.Errorf("proto: nil message")
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("proto: message must be a struct, got %s", rv.Kind())
	}
	return rv, nil
}

// Marshal encodes a message struct (or pointer to one) to the wire format.
func Marshal(m any) ([]byte, error) {
	rv, err := derefStruct(m)
	if err != nil {
		return nil, err
	}
	return appendMessage(nil, rv)
}

func appendMessage(b []byte, rv reflect.Value) ([]byte, error) {
	info, err := structInfoOf(rv.Type())
	if err != nil {
		return nil, err
	}

	for _, fi := range info.fields {
		b, err = appendField(b, &fi, rv.Field(fi.index))
		if err != nil {
			return nil, err
		}
	}
	if info.unknownIndex >= 0 {
		bag := rv.Field(info.unknownIndex).Addr().Interface().(*UnknownFields)
		b = append(b, bag.raw...)
	}
	return b, nil
}

func appendField(b []byte, fi *fieldInfo, v reflect.Value) ([]byte, error) {
	// Optional scalars and nested messages are pointers; nil means absent.
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return b, nil
		}
		if v.Elem().Kind() == reflect.Struct {
			nested, err := appendMessage(nil, v.Elem())
			if err != nil {
				return nil, err
			}
			b = protowire.AppendTag(b, fi.num, protowire.BytesType)
			return protowire.AppendBytes(b, nested), nil
		}
		return appendScalar(b, fi, v.Elem(), true)
	}

	switch v.Kind() {
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			if v.Len() == 0 {
				return b, nil
			}
			b = protowire.AppendTag(b, fi.num, protowire.BytesType)
			return protowire.AppendBytes(b, v.Bytes()), nil
		}
		return appendRepeated(b, fi, v)
	case reflect.Map:
		return appendMap(b, fi, v)
	case reflect.Struct:
		nested, err := appendMessage(nil, v)
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, fi.num, protowire.BytesType)
		return protowire.AppendBytes(b, nested), nil
	default:
		return appendScalar(b, fi, v, false)
	}
}

// appendScalar encodes one scalar value. Zero values of non-pointer fields
// are omitted, matching proto3 presence semantics.
func appendScalar(b []byte, fi *fieldInfo, v reflect.Value, forced bool) ([]byte, error) {
	switch v.Kind() {
	case reflect.Bool:
		if !v.Bool() && !forced {
			return b, nil
		}
		b = protowire.AppendTag(b, fi.num, protowire.VarintType)
		return protowire.AppendVarint(b, protowire.EncodeBool(v.Bool())), nil
	case reflect.Int32, reflect.Int64, reflect.Int:
		n := v.Int()
		if n == 0 && !forced {
			return b, nil
		}
		switch {
		case fi.fixed && v.Kind() == reflect.Int32:
			b = protowire.AppendTag(b, fi.num, protowire.Fixed32Type)
			return protowire.AppendFixed32(b, uint32(n)), nil
		case fi.fixed:
			b = protowire.AppendTag(b, fi.num, protowire.Fixed64Type)
			return protowire.AppendFixed64(b, uint64(n)), nil
		case fi.zigzag:
			b = protowire.AppendTag(b, fi.num, protowire.VarintType)
			return protowire.AppendVarint(b, protowire.EncodeZigZag(n)), nil
		default:
			b = protowire.AppendTag(b, fi.num, protowire.VarintType)
			return protowire.AppendVarint(b, uint64(n)), nil
		}
	case reflect.Uint32, reflect.Uint64, reflect.Uint:
		n := v.Uint()
		if n == 0 && !forced {
			return b, nil
		}
		switch {
		case fi.fixed && v.Kind() == reflect.Uint32:
			b = protowire.AppendTag(b, fi.num, protowire.Fixed32Type)
			return protowire.AppendFixed32(b, uint32(n)), nil
		case fi.fixed:
			b = protowire.AppendTag(b, fi.num, protowire.Fixed64Type)
			return protowire.AppendFixed64(b, n), nil
		default:
			b = protowire.AppendTag(b, fi.num, protowire.VarintType)
			return protowire.AppendVarint(b, n), nil
		}
	case reflect.Float32:
		bits := uint32(0)
		if f := v.Float(); f != 0 || forced {
			bits = floatBits32(f)
		} else {
			return b, nil
		}
		b = protowire.AppendTag(b, fi.num, protowire.Fixed32Type)
		return protowire.AppendFixed32(b, bits), nil
	case reflect.Float64:
		f := v.Float()
		if f == 0 && !forced {
			return b, nil
		}
		b = protowire.AppendTag(b, fi.num, protowire.Fixed64Type)
		return protowire.AppendFixed64(b, floatBits64(f)), nil
	case reflect.String:
		s := v.String()
		if s == "" && !forced {
			return b, nil
		}
		b = protowire.AppendTag(b, fi.num, protowire.BytesType)
		return protowire.AppendString(b, s), nil
	default:
		return nil, fmt.Errorf("proto: unsupported scalar kind %s", v.Kind())
	}
}

func appendRepeated(b []byte, fi *fieldInfo, v reflect.Value) ([]byte, error) {
	if v.Len() == 0 {
		return b, nil
	}
	if fi.packed {
		var body []byte
		for i := 0; i < v.Len(); i++ {
			elem := v.Index(i)
			switch elem.Kind() {
			case reflect.Int32, reflect.Int64, reflect.Int:
				if fi.zigzag {
					body = protowire.AppendVarint(body, protowire.EncodeZigZag(elem.Int()))
				} else {
					body = protowire.AppendVarint(body, uint64(elem.Int()))
				}
			case reflect.Uint32, reflect.Uint64, reflect.Uint:
				body = protowire.AppendVarint(body, elem.Uint())
			case reflect.Bool:
				body = protowire.AppendVarint(body, protowire.EncodeBool(elem.Bool()))
			default:
				return nil, fmt.Errorf("proto: packed field of kind %s", elem.Kind())
			}
		}
		b = protowire.AppendTag(b, fi.num, protowire.BytesType)
		return protowire.AppendBytes(b, body), nil
	}

	var err error
	for i := 0; i < v.Len(); i++ {
		elem := v.Index(i)
		if elem.Kind() == reflect.Pointer || elem.Kind() == reflect.Struct ||
			(elem.Kind() == reflect.Slice && elem.Type().Elem().Kind() == reflect.Uint8) {
			b, err = appendField(b, fi, elem)
		} else {
			b, err = appendScalar(b, fi, elem, true)
		}
		if err != nil {
			return nil, err
		}
	}
	return b, nil
}

// appendMap encodes each entry as a nested message with key tag 1 and
// value tag 2, in Go map iteration order.
func appendMap(b []byte, fi *fieldInfo, v reflect.Value) ([]byte, error) {
	if v.Len() == 0 {
		return b, nil
	}
	keyInfo := &fieldInfo{num: 1}
	valInfo := &fieldInfo{num: 2}
	iter := v.MapRange()
	for iter.Next() {
		entry, err := appendScalar(nil, keyInfo, iter.Key(), true)
		if err != nil {
			return nil, err
		}
		val := iter.Value()
		if val.Kind() == reflect.Pointer || val.Kind() == reflect.Struct ||
			(val.Kind() == reflect.Slice && val.Type().Elem().Kind() == reflect.Uint8) {
			entry, err = appendField(entry, valInfo, val)
		} else {
			entry, err = appendScalar(entry, valInfo, val, true)
		}
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, fi.num, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	return b, nil
}
