package proto

import (
	"fmt"
	"math"
	"reflect"

	"google.golang.org/protobuf/encoding/protowire"
)

func floatBits32(f float64) uint32 { return math.Float32bits(float32(f)) }
func floatBits64(f float64) uint64 { return math.Float64bits(f) }

// Unmarshal decodes wire-format data into m, which must be a pointer to a
// message struct. Unknown fields are preserved when the message embeds
// UnknownFields, and silently skipped otherwise.
func Unmarshal(data []byte, m any) error {
	rv := reflect.ValueOf(m)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("proto: Unmarshal target must be a non-nil pointer")
	}
	return unmarshalMessage(data, rv.Elem())
}

func unmarshalMessage(data []byte, rv reflect.Value) error {
	if rv.Kind() != reflect.Struct {
		return fmt.Errorf("proto: message must be a struct, got %s", rv.Kind())
	}
	info, err := structInfoOf(rv.Type())
	if err != nil {
		return err
	}

	for len(data) > 0 {
		num, typ, tagLen := protowire.ConsumeTag(data)
		if tagLen < 0 {
			return fmt.Errorf("proto: bad tag: %v", protowire.ParseError(tagLen))
		}
		valLen := protowire.ConsumeFieldValue(num, typ, data[tagLen:])
		if valLen < 0 {
			return fmt.Errorf("proto: bad field %d: %v", num, protowire.ParseError(valLen))
		}
		raw := data[:tagLen+valLen]
		value := data[tagLen:][:valLen]
		data = data[tagLen+valLen:]

		fi, known := info.byNumber[num]
		if !known {
			if info.unknownIndex >= 0 {
				bag := rv.Field(info.unknownIndex).Addr().Interface().(*UnknownFields)
				bag.raw = append(bag.raw, raw...)
			}
			continue
		}
		if err := setField(fi, rv.Field(fi.index), typ, value); err != nil {
			return fmt.Errorf("proto: field %d: %w", num, err)
		}
	}
	return nil
}

func setField(fi *fieldInfo, v reflect.Value, typ protowire.Type, value []byte) error {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		if v.Elem().Kind() == reflect.Struct {
			body, n := protowire.ConsumeBytes(value)
			if n < 0 {
				return protowire.ParseError(n)
			}
			return unmarshalMessage(body, v.Elem())
		}
		return setScalar(fi, v.Elem(), typ, value)
	case reflect.Struct:
		body, n := protowire.ConsumeBytes(value)
		if n < 0 {
			return protowire.ParseError(n)
		}
		return unmarshalMessage(body, v)
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			body, n := protowire.ConsumeBytes(value)
			if n < 0 {
				return protowire.ParseError(n)
			}
			v.SetBytes(append([]byte(nil), body...))
			return nil
		}
		return appendDecoded(fi, v, typ, value)
	case reflect.Map:
		return setMapEntry(v, value)
	default:
		return setScalar(fi, v, typ, value)
	}
}

// appendDecoded handles repeated fields, including packed scalar runs.
func appendDecoded(fi *fieldInfo, v reflect.Value, typ protowire.Type, value []byte) error {
	elemType := v.Type().Elem()
	isScalar := elemType.Kind() != reflect.Pointer && elemType.Kind() != reflect.Struct

	if typ == protowire.BytesType && isScalar && elemType.Kind() != reflect.String {
		// Packed run: consume varints until the body is exhausted.
		body, n := protowire.ConsumeBytes(value)
		if n < 0 {
			return protowire.ParseError(n)
		}
		for len(body) > 0 {
			x, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return protowire.ParseError(n)
			}
			body = body[n:]
			elem := reflect.New(elemType).Elem()
			if err := assignVarint(fi, elem, x); err != nil {
				return err
			}
			v.Set(reflect.Append(v, elem))
		}
		return nil
	}

	elem := reflect.New(elemType).Elem()
	if err := setField(fi, elem, typ, value); err != nil {
		return err
	}
	v.Set(reflect.Append(v, elem))
	return nil
}

func setMapEntry(v reflect.Value, value []byte) error {
	body, n := protowire.ConsumeBytes(value)
	if n < 0 {
		return protowire.ParseError(n)
	}
	if v.IsNil() {
		v.Set(reflect.MakeMap(v.Type()))
	}

	key := reflect.New(v.Type().Key()).Elem()
	val := reflect.New(v.Type().Elem()).Elem()
	for len(body) > 0 {
		num, typ, tagLen := protowire.ConsumeTag(body)
		if tagLen < 0 {
			return protowire.ParseError(tagLen)
		}
		valLen := protowire.ConsumeFieldValue(num, typ, body[tagLen:])
		if valLen < 0 {
			return protowire.ParseError(valLen)
		}
		entryValue := body[tagLen:][:valLen]
		body = body[tagLen+valLen:]

		fi := &fieldInfo{num: num}
		switch num {
		case 1:
			if err := setField(fi, key, typ, entryValue); err != nil {
				return err
			}
		case 2:
			if err := setField(fi, val, typ, entryValue); err != nil {
				return err
			}
		}
	}
	v.SetMapIndex(key, val)
	return nil
}

func setScalar(fi *fieldInfo, v reflect.Value, typ protowire.Type, value []byte) error {
	switch typ {
	case protowire.VarintType:
		x, n := protowire.ConsumeVarint(value)
		if n < 0 {
			return protowire.ParseError(n)
		}
		return assignVarint(fi, v, x)
	case protowire.Fixed32Type:
		x, n := protowire.ConsumeFixed32(value)
		if n < 0 {
			return protowire.ParseError(n)
		}
		switch v.Kind() {
		case reflect.Float32:
			v.SetFloat(float64(math.Float32frombits(x)))
		case reflect.Uint32, reflect.Uint64, reflect.Uint:
			v.SetUint(uint64(x))
		case reflect.Int32, reflect.Int64, reflect.Int:
			v.SetInt(int64(int32(x)))
		default:
			return fmt.Errorf("fixed32 into %s", v.Kind())
		}
		return nil
	case protowire.Fixed64Type:
		x, n := protowire.ConsumeFixed64(value)
		if n < 0 {
			return protowire.ParseError(n)
		}
		switch v.Kind() {
		case reflect.Float64:
			v.SetFloat(math.Float64frombits(x))
		case reflect.Uint32, reflect.Uint64, reflect.Uint:
			v.SetUint(x)
		case reflect.Int32, reflect.Int64, reflect.Int:
			v.SetInt(int64(x))
		default:
			return fmt.Errorf("fixed64 into %s", v.Kind())
		}
		return nil
	case protowire.BytesType:
		body, n := protowire.ConsumeBytes(value)
		if n < 0 {
			return protowire.ParseError(n)
		}
		if v.Kind() != reflect.String {
			return fmt.Errorf("bytes into %s", v.Kind())
		}
		v.SetString(string(body))
		return nil
	default:
		return fmt.Errorf("unsupported wire type %d", typ)
	}
}

func assignVarint(fi *fieldInfo, v reflect.Value, x uint64) error {
	switch v.Kind() {
	case reflect.Bool:
		v.SetBool(protowire.DecodeBool(x))
	case reflect.Int32, reflect.Int64, reflect.Int:
		if fi != nil && fi.zigzag {
			v.SetInt(protowire.DecodeZigZag(x))
		} else {
			v.SetInt(int64(x))
		}
	case reflect.Uint32, reflect.Uint64, reflect.Uint:
		v.SetUint(x)
	default:
		return fmt.Errorf("varint into %s", v.Kind())
	}
	return nil
}
